package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/scoreclock/internal/payload"
)

// Append validates and durably records a new event stamped with the
// store clock, returning it with its assigned id and created_at. The event
// is committed before Append returns; store errors (locked, unavailable,
// disk full) are returned to the caller.
func (s *Store) Append(ctx context.Context, eventType, gameID string, p payload.Object) (Event, error) {
	return s.AppendAt(ctx, eventType, gameID, p, s.now().Unix())
}

// AppendAt is Append with an explicit created_at. Replay orders by
// (created_at, id), so an event appended late with an earlier timestamp
// still folds in temporal position.
func (s *Store) AppendAt(ctx context.Context, eventType, gameID string, p payload.Object, createdAt int64) (Event, error) {
	if eventType == "" {
		return Event{}, fmt.Errorf("append: event type is required")
	}
	if p == nil {
		p = payload.Empty()
	}
	if s.validator != nil {
		if err := s.validator.Validate(eventType, p); err != nil {
			return Event{}, fmt.Errorf("append %s: %w", eventType, err)
		}
	}

	body, err := payload.MarshalCanonical(p)
	if err != nil {
		return Event{}, fmt.Errorf("append %s: marshal payload: %w", eventType, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Event{}, fmt.Errorf("append %s: begin tx: %w", eventType, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO events (type, game_id, payload, created_at)
		VALUES (?, ?, ?, ?)
	`, eventType, nullString(gameID), string(body), createdAt)
	if err != nil {
		return Event{}, fmt.Errorf("append %s: %w", eventType, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return Event{}, fmt.Errorf("append %s: last insert id: %w", eventType, err)
	}

	if err := tx.Commit(); err != nil {
		return Event{}, fmt.Errorf("append %s: commit: %w", eventType, err)
	}

	// Hand back exactly what a later read would see.
	stored, err := payload.ParseObject(body)
	if err != nil {
		return Event{}, fmt.Errorf("append %s: reparse payload: %w", eventType, err)
	}

	return Event{
		ID:        id,
		Type:      eventType,
		GameID:    gameID,
		Payload:   stored,
		CreatedAt: createdAt,
	}, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
