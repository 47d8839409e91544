package device

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/scoreclock/internal/engine"
	"github.com/roach88/scoreclock/internal/protocol"
)

// DefaultHeartbeatInterval is how often the device reports in.
const DefaultHeartbeatInterval = 3 * time.Second

// Source supplies the latest published snapshot.
// Implemented by engine.Controller.
type Source interface {
	Current() engine.Snapshot
}

// Sender posts heartbeats.
// Implemented by protocol.Client.
type Sender interface {
	SendHeartbeat(ctx context.Context, hb protocol.Heartbeat) (protocol.HeartbeatResponse, error)
}

// Heartbeater reports device status on a fixed interval. A failed send is
// logged and the next one happens on schedule.
type Heartbeater struct {
	sender   Sender
	source   Source
	deviceID string
	version  string
	interval time.Duration
	now      func() time.Time
}

// HeartbeatOption configures a Heartbeater.
type HeartbeatOption func(*Heartbeater)

// WithInterval overrides DefaultHeartbeatInterval.
func WithInterval(d time.Duration) HeartbeatOption {
	return func(h *Heartbeater) {
		if d > 0 {
			h.interval = d
		}
	}
}

// WithAppVersion sets the reported app_version.
func WithAppVersion(v string) HeartbeatOption {
	return func(h *Heartbeater) { h.version = v }
}

// WithClock sets the ts_local source.
func WithClock(now func() time.Time) HeartbeatOption {
	return func(h *Heartbeater) { h.now = now }
}

// NewHeartbeater creates a heartbeater for deviceID.
func NewHeartbeater(sender Sender, source Source, deviceID string, opts ...HeartbeatOption) *Heartbeater {
	h := &Heartbeater{
		sender:   sender,
		source:   source,
		deviceID: deviceID,
		interval: DefaultHeartbeatInterval,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run sends one heartbeat immediately and then one per interval until ctx
// is cancelled.
func (h *Heartbeater) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		if err := h.Send(ctx); err != nil && ctx.Err() == nil {
			slog.Warn("heartbeat: send failed", "device_id", h.deviceID, "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Send posts one heartbeat built from the current snapshot.
func (h *Heartbeater) Send(ctx context.Context) error {
	hb := h.Build()
	if _, err := h.sender.SendHeartbeat(ctx, hb); err != nil {
		return err
	}
	slog.Debug("heartbeat: sent", "device_id", h.deviceID, "game_state", hb.GameState)
	return nil
}

// Build maps the current snapshot onto the heartbeat body.
func (h *Heartbeater) Build() protocol.Heartbeat {
	snap := h.source.Current()
	return protocol.Heartbeat{
		DeviceID:      h.deviceID,
		CurrentGameID: snap.GameID,
		GameState:     gameState(snap),
		ClockRunning:  snap.Running,
		ClockValueMS:  snap.Seconds * 1000,
		LastEventSeq:  snap.LastEventID,
		AppVersion:    h.version,
		PusherStatus:  string(snap.PusherStatus),
		TSLocal:       protocol.FormatTime(h.now().Unix()),
	}
}

func gameState(snap engine.Snapshot) string {
	switch {
	case snap.Running:
		return protocol.GameStateRunning
	case snap.ClockMode():
		return protocol.GameStateIdle
	default:
		return protocol.GameStatePaused
	}
}
