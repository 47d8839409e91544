package store

import (
	"database/sql"
	"fmt"

	"github.com/roach88/scoreclock/internal/payload"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(r rowScanner) (Event, error) {
	var (
		ev     Event
		gameID sql.NullString
		body   string
	)
	if err := r.Scan(&ev.ID, &ev.Type, &gameID, &body, &ev.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return Event{}, err
		}
		return Event{}, fmt.Errorf("scan event: %w", err)
	}
	ev.GameID = gameID.String

	p, err := unmarshalPayload(body)
	if err != nil {
		return Event{}, fmt.Errorf("event %d: %w", ev.ID, err)
	}
	ev.Payload = p
	return ev, nil
}

// unmarshalPayload decodes a stored payload column. Rows written by older
// software may hold non-canonical JSON; anything that parses is accepted.
func unmarshalPayload(data string) (payload.Object, error) {
	p, err := payload.ParseObject([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return p, nil
}
