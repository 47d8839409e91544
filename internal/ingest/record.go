package ingest

import (
	"context"

	"github.com/roach88/scoreclock/internal/payload"
	"github.com/roach88/scoreclock/internal/store"
)

// Record is one event as received by the aggregator.
type Record struct {
	ID          int64          `json:"id"`
	EventID     string         `json:"event_id"`
	Seq         int64          `json:"seq"`
	DeviceID    string         `json:"device_id"`
	SessionID   string         `json:"session_id"`
	GameID      string         `json:"game_id"`
	Type        string         `json:"type"`
	TSLocal     string         `json:"ts_local"`
	TSUnix      int64          `json:"-"`
	Payload     payload.Object `json:"payload"`
	PayloadHash string         `json:"payload_hash"`
	ReceivedAt  int64          `json:"received_at"`
}

// StoreEvent converts a record for the replay engine. The sequence number
// stands in for the log id, so replay orders by (ts_local, seq).
func (r Record) StoreEvent() store.Event {
	return store.Event{
		ID:        r.Seq,
		Type:      r.Type,
		GameID:    r.GameID,
		Payload:   r.Payload,
		CreatedAt: r.TSUnix,
	}
}

// Outcome is what happened to one record in a Save.
type Outcome int

const (
	// Inserted is a new event.
	Inserted Outcome = iota
	// Duplicate is an event id already stored with the same payload hash.
	Duplicate
	// Conflict is an event id already stored with a different payload hash.
	// The stored copy wins.
	Conflict
)

func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Duplicate:
		return "duplicate"
	case Conflict:
		return "conflict"
	}
	return "unknown"
}

// Repository persists received events.
//
// Save stores records in the given order inside one transaction. It
// returns one Outcome per record of the durably stored prefix; when a
// record fails, the prefix before it is still committed and the error
// describes the failure.
type Repository interface {
	Save(ctx context.Context, records []Record) ([]Outcome, error)
	Events(ctx context.Context, gameID string) ([]Record, error)
	GameIDs(ctx context.Context) ([]string, error)
	Close() error
}
