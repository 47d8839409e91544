package pusher

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/scoreclock/internal/protocol"
	"github.com/roach88/scoreclock/internal/store"
)

// CloudDestination posts events to the aggregator, one per request.
//
// Clock-mode events have no game to file under and are accepted without
// a request.
type CloudDestination struct {
	name      string
	client    *protocol.Client
	deviceID  string
	sessionID string
}

// NewCloudDestination creates a destination. An empty name defaults to
// "cloud:" plus the client's base URL.
func NewCloudDestination(name string, client *protocol.Client, deviceID, sessionID string) *CloudDestination {
	if name == "" {
		name = "cloud:" + client.BaseURL()
	}
	return &CloudDestination{name: name, client: client, deviceID: deviceID, sessionID: sessionID}
}

// Name implements Destination.
func (d *CloudDestination) Name() string { return d.name }

// Deliver succeeds only when the aggregator acknowledges the event's seq.
func (d *CloudDestination) Deliver(ctx context.Context, ev store.Event) error {
	if ev.ClockMode() {
		slog.Debug("cloud: skipping clock-mode event", "event_id", ev.ID)
		return nil
	}

	resp, err := d.client.SubmitEvents(ctx, ev.GameID, protocol.SubmitRequest{
		DeviceID:  d.deviceID,
		SessionID: d.sessionID,
		Events:    []protocol.Event{protocol.FromStore(d.deviceID, ev)},
	})
	if err != nil {
		return fmt.Errorf("submit event %d: %w", ev.ID, err)
	}
	if resp.AckedThrough < ev.ID {
		return fmt.Errorf("event %d not acknowledged (acked_through=%d)", ev.ID, resp.AckedThrough)
	}
	return nil
}
