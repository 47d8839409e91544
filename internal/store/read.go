package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const eventColumns = `e.id, e.type, e.game_id, e.payload, e.created_at`

// List returns events in replay order: ORDER BY created_at ASC, id ASC.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]Event, error) {
	var (
		where []string
		args  []any
	)
	if opts.GameID != nil {
		if *opts.GameID == "" {
			where = append(where, "e.game_id IS NULL")
		} else {
			where = append(where, "e.game_id = ?")
			args = append(args, *opts.GameID)
		}
	}
	if opts.SinceID > 0 {
		where = append(where, "e.id > ?")
		args = append(args, opts.SinceID)
	}
	if opts.Until > 0 {
		where = append(where, "e.created_at <= ?")
		args = append(args, opts.Until)
	}

	query := `SELECT ` + eventColumns + ` FROM events e`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY e.created_at ASC, e.id ASC`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	return collectEvents(rows)
}

// Get retrieves a single event by id.
// Returns ErrNotFound if no such event exists.
func (s *Store) Get(ctx context.Context, id int64) (Event, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events e WHERE e.id = ?`, id)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Event{}, fmt.Errorf("event %d: %w", id, ErrNotFound)
	}
	return ev, err
}

// LastEventID returns the highest event id, or 0 for an empty log.
func (s *Store) LastEventID(ctx context.Context) (int64, error) {
	var id sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(id) FROM events`).Scan(&id); err != nil {
		return 0, fmt.Errorf("get last event id: %w", err)
	}
	return id.Int64, nil
}

// CountEvents returns the number of events matching opts.GameID.
// Other fields of opts are ignored.
func (s *Store) CountEvents(ctx context.Context, opts ListOptions) (int64, error) {
	query := `SELECT COUNT(*) FROM events`
	var args []any
	if opts.GameID != nil {
		if *opts.GameID == "" {
			query += ` WHERE game_id IS NULL`
		} else {
			query += ` WHERE game_id = ?`
			args = append(args, *opts.GameID)
		}
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// GameIDs returns the distinct non-null game ids in the log, sorted.
func (s *Store) GameIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT game_id FROM events
		WHERE game_id IS NOT NULL
		ORDER BY game_id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query game ids: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan game id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate game ids: %w", err)
	}
	return ids, nil
}

func collectEvents(rows *sql.Rows) ([]Event, error) {
	var events []Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	if events == nil {
		events = []Event{}
	}
	return events, nil
}
