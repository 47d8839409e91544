package store

import (
	"errors"

	"github.com/roach88/scoreclock/internal/payload"
)

// ErrNotFound is returned by single-row reads that match nothing.
var ErrNotFound = errors.New("not found")

// Event is one immutable fact in the log.
//
// GameID is empty for clock-mode events, which are stored with a NULL
// game_id. CreatedAt is unix seconds assigned at append time.
type Event struct {
	ID        int64          `json:"id"`
	Type      string         `json:"type"`
	GameID    string         `json:"game_id,omitempty"`
	Payload   payload.Object `json:"payload"`
	CreatedAt int64          `json:"created_at"`
}

// ClockMode reports whether the event is not scoped to any game.
func (e Event) ClockMode() bool {
	return e.GameID == ""
}

// Outcome is the tri-state delivery status of an (event, destination) pair.
type Outcome int

const (
	OutcomePending Outcome = 0
	OutcomeSuccess Outcome = 1
	OutcomeFailed  Outcome = 2
)

func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeSuccess:
		return "success"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Delivery is the tracked state of one event for one destination.
type Delivery struct {
	EventID     int64   `json:"event_id"`
	Destination string  `json:"destination"`
	Outcome     Outcome `json:"delivered"`
	DeliveredAt int64   `json:"delivered_at,omitempty"`
	Attempts    int64   `json:"attempts"`
	LastError   string  `json:"last_error,omitempty"`
}

// DeliveryStats summarizes a destination's backlog.
type DeliveryStats struct {
	Destination string `json:"destination"`
	Total       int64  `json:"total"`
	Delivered   int64  `json:"delivered"`
	Failed      int64  `json:"failed"`
	Untried     int64  `json:"untried"`
}

// Undelivered is the number of events that still need an attempt.
func (d DeliveryStats) Undelivered() int64 {
	return d.Total - d.Delivered
}

// ListOptions filters List.
type ListOptions struct {
	// GameID restricts results to one game. Nil lists every event; a
	// pointer to "" lists only clock-mode events.
	GameID *string
	// SinceID lists events with id > SinceID.
	SinceID int64
	// Until, when positive, lists events with created_at <= Until.
	Until int64
	// Limit caps the result size when positive.
	Limit int
}

// ForGame returns options listing one game's events. An empty id selects
// clock-mode events.
func ForGame(gameID string) ListOptions {
	return ListOptions{GameID: &gameID}
}
