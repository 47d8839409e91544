package pusher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/scoreclock/internal/metrics"
	"github.com/roach88/scoreclock/internal/store"
)

// DefaultPollInterval is the sleep between polls that found nothing to do
// or hit a failure.
const DefaultPollInterval = 500 * time.Millisecond

// DefaultBatchSize caps events fetched per poll.
const DefaultBatchSize = 100

// Tracker is the delivery bookkeeping a Pusher needs.
// Implemented by *store.Store.
type Tracker interface {
	Pending(ctx context.Context, destination string, limit int) ([]store.Event, error)
	Mark(ctx context.Context, eventID int64, destination string, outcome store.Outcome) error
	MarkFailed(ctx context.Context, eventID int64, destination string, cause error) error
}

// Pusher drains one destination.
type Pusher struct {
	tracker  Tracker
	dest     Destination
	interval time.Duration
	batch    int
}

// Option configures a Pusher.
type Option func(*Pusher)

// WithPollInterval overrides DefaultPollInterval.
func WithPollInterval(d time.Duration) Option {
	return func(p *Pusher) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithBatchSize overrides DefaultBatchSize.
func WithBatchSize(n int) Option {
	return func(p *Pusher) {
		if n > 0 {
			p.batch = n
		}
	}
}

// New creates a Pusher for dest.
func New(tracker Tracker, dest Destination, opts ...Option) *Pusher {
	p := &Pusher{
		tracker:  tracker,
		dest:     dest,
		interval: DefaultPollInterval,
		batch:    DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Destination returns the destination being drained.
func (p *Pusher) Destination() Destination {
	return p.dest
}

// Result summarizes one poll.
type Result struct {
	Fetched     int  `json:"fetched"`
	Delivered   int  `json:"delivered"`
	Failed      int  `json:"failed"`
	Interrupted bool `json:"interrupted"` // stop was requested mid-batch
}

func (r Result) String() string {
	return fmt.Sprintf("fetched=%d delivered=%d failed=%d", r.Fetched, r.Delivered, r.Failed)
}

// Run polls until ctx is cancelled. Cancellation is observed between
// attempts: an attempt in flight completes and is recorded first.
func (p *Pusher) Run(ctx context.Context) error {
	name := p.dest.Name()
	slog.Info("pusher started", "destination", name, "interval", p.interval)

	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for {
		if ctx.Err() != nil {
			slog.Info("pusher stopped", "destination", name)
			return nil
		}

		res, err := p.RunOnce(ctx)
		if err != nil {
			slog.Warn("pusher: poll failed", "destination", name, "error", err)
		}
		if err == nil && res.Fetched > 0 && res.Failed == 0 {
			continue
		}

		timer.Reset(p.interval)
		select {
		case <-ctx.Done():
			slog.Info("pusher stopped", "destination", name)
			return nil
		case <-timer.C:
		}
	}
}

// RunOnce fetches one batch and attempts every event in it, in store
// order. A failed event does not hold back the ones after it.
func (p *Pusher) RunOnce(ctx context.Context) (Result, error) {
	name := p.dest.Name()
	events, err := p.tracker.Pending(ctx, name, p.batch)
	if err != nil {
		return Result{}, err
	}

	res := Result{Fetched: len(events)}
	if len(events) > 0 {
		slog.Debug("pusher: processing batch", "destination", name, "count", len(events))
	}

	// Attempts run detached so a stop request never abandons an
	// attempt between Deliver and Mark.
	attemptCtx := context.WithoutCancel(ctx)
	for _, ev := range events {
		if ctx.Err() != nil {
			res.Interrupted = true
			break
		}
		if p.attempt(attemptCtx, ev) {
			res.Delivered++
		} else {
			res.Failed++
		}
	}
	return res, nil
}

func (p *Pusher) attempt(ctx context.Context, ev store.Event) bool {
	name := p.dest.Name()

	start := time.Now()
	err := p.dest.Deliver(ctx, ev)
	metrics.DeliveryDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.DeliveriesTotal.WithLabelValues(name, store.OutcomeFailed.String()).Inc()
		slog.Warn("delivery failed",
			"destination", name,
			"event_id", ev.ID,
			"type", ev.Type,
			"error", err,
		)
		if merr := p.tracker.MarkFailed(ctx, ev.ID, name, err); merr != nil {
			slog.Error("mark failed", "destination", name, "event_id", ev.ID, "error", merr)
		}
		return false
	}

	metrics.DeliveriesTotal.WithLabelValues(name, store.OutcomeSuccess.String()).Inc()
	if merr := p.tracker.Mark(ctx, ev.ID, name, store.OutcomeSuccess); merr != nil {
		// The event will be delivered again; destinations tolerate duplicates.
		slog.Error("mark delivered", "destination", name, "event_id", ev.ID, "error", merr)
		return false
	}
	slog.Info("delivered", "destination", name, "event_id", ev.ID, "type", ev.Type)
	return true
}
