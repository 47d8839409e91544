package pusher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/roach88/scoreclock/internal/protocol"
	"github.com/roach88/scoreclock/internal/store"
)

// DefaultNATSSubject prefixes per-game subjects: "<prefix>.<game_id>",
// or "<prefix>.clock" for clock-mode events.
const DefaultNATSSubject = "scoreclock.events"

// natsPublisher is the subset of *nats.Conn the destination needs.
type natsPublisher interface {
	PublishMsg(m *nats.Msg) error
	FlushTimeout(timeout time.Duration) error
	Close()
}

// NATSDestination publishes each event and waits for the server to
// confirm receipt with a flush.
//
// Messages carry a Nats-Msg-Id header so a JetStream stream bound to the
// subject deduplicates redeliveries.
type NATSDestination struct {
	name     string
	conn     natsPublisher
	prefix   string
	deviceID string
	timeout  time.Duration
}

// DialNATS connects to url with reconnects enabled.
func DialNATS(url, clientName string) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name(clientName),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return conn, nil
}

// NewNATSDestination creates a destination on an open connection.
func NewNATSDestination(name string, conn *nats.Conn, prefix, deviceID string) *NATSDestination {
	return newNATSDestination(name, conn, prefix, deviceID)
}

func newNATSDestination(name string, conn natsPublisher, prefix, deviceID string) *NATSDestination {
	if prefix == "" {
		prefix = DefaultNATSSubject
	}
	if name == "" {
		name = "nats:" + prefix
	}
	return &NATSDestination{name: name, conn: conn, prefix: prefix, deviceID: deviceID, timeout: 5 * time.Second}
}

// Name implements Destination.
func (d *NATSDestination) Name() string { return d.name }

// Subject returns the subject an event is published on.
func (d *NATSDestination) Subject(ev store.Event) string {
	if ev.ClockMode() {
		return d.prefix + ".clock"
	}
	return d.prefix + "." + ev.GameID
}

// Deliver publishes and flushes.
func (d *NATSDestination) Deliver(ctx context.Context, ev store.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(protocol.FromStore(d.deviceID, ev))
	if err != nil {
		return fmt.Errorf("marshal event %d: %w", ev.ID, err)
	}

	msg := nats.NewMsg(d.Subject(ev))
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, protocol.EventID(d.deviceID, ev.ID))

	if err := d.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Subject, err)
	}
	if err := d.conn.FlushTimeout(d.timeout); err != nil {
		return fmt.Errorf("flush %s: %w", msg.Subject, err)
	}
	return nil
}

// Close closes the connection.
func (d *NATSDestination) Close() error {
	d.conn.Close()
	return nil
}
