// Package liveness records device heartbeats and answers which devices
// have gone quiet. Staleness is derived at read time; nothing runs in the
// background.
package liveness

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/scoreclock/internal/ingest"
	"github.com/roach88/scoreclock/internal/metrics"
	"github.com/roach88/scoreclock/internal/protocol"
)

// DefaultThreshold is how long a device may stay silent before it is
// reported missing.
const DefaultThreshold = 30 * time.Second

// Mirror receives a copy of every stored heartbeat.
type Mirror interface {
	Mirror(ctx context.Context, rec Record) error
}

// Registry is the heartbeat service.
type Registry struct {
	store  Store
	mirror Mirror
	now    func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock sets the time source for received_at.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithMirror copies heartbeats to m. Mirror failures are logged and do
// not fail the heartbeat.
func WithMirror(m Mirror) Option {
	return func(r *Registry) { r.mirror = m }
}

// NewRegistry creates a Registry over store.
func NewRegistry(store Store, opts ...Option) *Registry {
	r := &Registry{store: store, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Heartbeat stores hb in the history and as the device's latest.
func (r *Registry) Heartbeat(ctx context.Context, hb protocol.Heartbeat) (Record, error) {
	if hb.DeviceID == "" {
		return Record{}, &ingest.ValidationError{Field: "device_id", Message: "must not be empty", Code: ingest.CodeInvalidRequest}
	}
	if hb.TSLocal == "" {
		return Record{}, &ingest.ValidationError{Field: "ts_local", Message: "must not be empty", Code: ingest.CodeInvalidRequest}
	}

	rec, err := r.store.Insert(ctx, fromHeartbeat(hb, r.now().Unix()))
	if err != nil {
		return Record{}, fmt.Errorf("store heartbeat: %w", err)
	}
	metrics.HeartbeatsTotal.Inc()
	slog.Debug("liveness: heartbeat", "device_id", rec.DeviceID, "game_id", rec.CurrentGameID)

	if r.mirror != nil {
		if err := r.mirror.Mirror(ctx, rec); err != nil {
			slog.Warn("liveness: mirror failed", "device_id", rec.DeviceID, "error", err)
		}
	}
	return rec, nil
}

// Latest returns the newest heartbeat per device.
func (r *Registry) Latest(ctx context.Context) (map[string]Record, error) {
	records, err := r.store.Latest(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]Record, len(records))
	for _, rec := range records {
		out[rec.DeviceID] = rec
	}
	return out, nil
}

// History returns up to limit heartbeats for a device, newest first.
func (r *Registry) History(ctx context.Context, deviceID string, limit int) ([]Record, error) {
	return r.store.History(ctx, deviceID, limit)
}

// Missing returns the latest heartbeat of each device not heard from for
// longer than threshold as of now, ordered by device id.
func (r *Registry) Missing(ctx context.Context, now time.Time, threshold time.Duration) ([]Record, error) {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	records, err := r.store.Latest(ctx)
	if err != nil {
		return nil, err
	}

	limit := int64(threshold / time.Second)
	missing := []Record{}
	for _, rec := range records {
		if now.Unix()-rec.ReceivedAt > limit {
			missing = append(missing, rec)
		}
	}
	metrics.DevicesMissing.Set(float64(len(missing)))
	return missing, nil
}
