// Package ingest is the aggregator side of event delivery: it validates
// device submissions, stores them idempotently by event id, and replays
// the received log into game state.
package ingest

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/roach88/scoreclock/internal/engine"
	"github.com/roach88/scoreclock/internal/metrics"
	"github.com/roach88/scoreclock/internal/payload"
	"github.com/roach88/scoreclock/internal/protocol"
	"github.com/roach88/scoreclock/internal/schema"
	"github.com/roach88/scoreclock/internal/store"
)

// Observer is notified after a submission stored at least one new event.
type Observer interface {
	OnStored(gameID string, inserted int)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(gameID string, inserted int)

// OnStored implements Observer.
func (f ObserverFunc) OnStored(gameID string, inserted int) { f(gameID, inserted) }

// Service handles event submissions.
type Service struct {
	repo      Repository
	validator store.Validator
	now       func() time.Time
	observers []Observer
}

// Option configures a Service.
type Option func(*Service)

// WithValidator checks each payload before anything is stored.
func WithValidator(v store.Validator) Option {
	return func(s *Service) { s.validator = v }
}

// WithClock sets the time source for received_at and server_time.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithObserver registers an Observer.
func WithObserver(o Observer) Option {
	return func(s *Service) { s.observers = append(s.observers, o) }
}

// NewService creates a Service over repo.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{repo: repo, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SubmitResult summarizes a submission.
type SubmitResult struct {
	AckedThrough int64
	Inserted     int
	Duplicates   int
	Conflicts    int
	ServerTime   time.Time
}

// Response renders the result for the wire.
func (r SubmitResult) Response() protocol.SubmitResponse {
	return protocol.SubmitResponse{
		AckedThrough: r.AckedThrough,
		ServerTime:   r.ServerTime.UTC().Format(time.RFC3339),
	}
}

// Submit validates and stores a batch of events for gameID.
//
// Events are processed in ascending seq order. AckedThrough is the seq of
// the last event of the contiguous stored prefix, whether it was inserted
// now or was already present. A repeated event id, in this request or an
// earlier one, is counted as a duplicate and acked. A *ValidationError means nothing was
// stored. A storage failure part way through returns the partial result
// along with the error.
func (s *Service) Submit(ctx context.Context, gameID string, req protocol.SubmitRequest) (SubmitResult, error) {
	now := s.now()
	result := SubmitResult{ServerTime: now}

	records, err := s.records(gameID, req, now.Unix())
	if err != nil {
		metrics.IngestEventsTotal.WithLabelValues("rejected").Add(float64(len(req.Events)))
		return result, err
	}
	if len(records) == 0 {
		return result, nil
	}

	outcomes, saveErr := s.repo.Save(ctx, records)
	for i, outcome := range outcomes {
		rec := records[i]
		result.AckedThrough = rec.Seq
		metrics.IngestEventsTotal.WithLabelValues(outcome.String()).Inc()
		switch outcome {
		case Inserted:
			result.Inserted++
			slog.Debug("ingest: stored event", "event_id", rec.EventID, "seq", rec.Seq, "type", rec.Type)
		case Duplicate:
			result.Duplicates++
		case Conflict:
			result.Conflicts++
			slog.Warn("ingest: event id reused with different content",
				"event_id", rec.EventID,
				"game_id", gameID,
				"device_id", rec.DeviceID,
			)
		}
	}

	slog.Info("ingest: submission",
		"game_id", gameID,
		"device_id", req.DeviceID,
		"events", len(records),
		"inserted", result.Inserted,
		"duplicates", result.Duplicates,
		"acked_through", result.AckedThrough,
	)

	if result.Inserted > 0 {
		for _, o := range s.observers {
			o.OnStored(gameID, result.Inserted)
		}
	}

	if saveErr != nil {
		metrics.IngestEventsTotal.WithLabelValues("failed").Add(float64(len(records) - len(outcomes)))
		return result, fmt.Errorf("store events: %w", saveErr)
	}
	return result, nil
}

// records validates req and converts it to records sorted by seq.
func (s *Service) records(gameID string, req protocol.SubmitRequest, receivedAt int64) ([]Record, error) {
	if gameID == "" {
		return nil, invalid(CodeInvalidRequest, "game_id", "must not be empty")
	}
	if req.DeviceID == "" {
		return nil, invalid(CodeInvalidRequest, "device_id", "must not be empty")
	}
	if req.SessionID == "" {
		return nil, invalid(CodeInvalidRequest, "session_id", "must not be empty")
	}

	records := make([]Record, 0, len(req.Events))
	for i, ev := range req.Events {
		field := func(name string) string { return fmt.Sprintf("events[%d].%s", i, name) }

		if ev.EventID == "" {
			return nil, invalid(CodeInvalidEvent, field("event_id"), "must not be empty")
		}
		if ev.Seq <= 0 {
			return nil, invalid(CodeInvalidEvent, field("seq"), "must be positive")
		}
		if ev.Type == "" {
			return nil, invalid(CodeInvalidEvent, field("type"), "must not be empty")
		}
		ts, err := protocol.ParseTime(ev.TSLocal)
		if err != nil {
			return nil, invalid(CodeInvalidEvent, field("ts_local"), "must be an RFC 3339 timestamp")
		}

		p := ev.Payload
		if p == nil {
			p = payload.Empty()
		}
		if s.validator != nil {
			if err := s.validator.Validate(ev.Type, p); err != nil {
				return nil, payloadError(field, err)
			}
		}
		hash, err := payload.Digest(ev.Type, p)
		if err != nil {
			return nil, invalid(CodeInvalidPayload, field("payload"), "%v", err)
		}

		records = append(records, Record{
			EventID:     ev.EventID,
			Seq:         ev.Seq,
			DeviceID:    req.DeviceID,
			SessionID:   req.SessionID,
			GameID:      gameID,
			Type:        ev.Type,
			TSLocal:     ev.TSLocal,
			TSUnix:      ts,
			Payload:     p,
			PayloadHash: hash,
			ReceivedAt:  receivedAt,
		})
	}

	slices.SortStableFunc(records, func(a, b Record) int { return cmp.Compare(a.Seq, b.Seq) })
	return records, nil
}

func payloadError(field func(string) string, err error) *ValidationError {
	var serr *schema.ValidationError
	if errors.As(err, &serr) {
		if serr.Message == "unknown event type" {
			return invalid(CodeInvalidEvent, field("type"), "unknown event type %q", serr.EventType)
		}
		name := "payload"
		if serr.Field != "" {
			name += "." + serr.Field
		}
		return invalid(CodeInvalidPayload, field(name), "%s", serr.Message)
	}
	return invalid(CodeInvalidPayload, field("payload"), "%v", err)
}

// Events returns the received events for a game in replay order.
func (s *Service) Events(ctx context.Context, gameID string) ([]Record, error) {
	return s.repo.Events(ctx, gameID)
}

// Games returns every game id with received events.
func (s *Service) Games(ctx context.Context) ([]string, error) {
	return s.repo.GameIDs(ctx)
}

// GameState replays a game's received log and projects it to now.
func (s *Service) GameState(ctx context.Context, gameID string, now int64) (engine.GameState, error) {
	records, err := s.repo.Events(ctx, gameID)
	if err != nil {
		return engine.GameState{}, err
	}
	events := make([]store.Event, len(records))
	for i, rec := range records {
		events[i] = rec.StoreEvent()
	}
	return engine.Project(engine.Replay(events), now), nil
}
