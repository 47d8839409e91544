package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Pending returns events that have no successful delivery to destination,
// oldest first by id. Events never attempted, still pending, or last
// marked failed are all included. limit <= 0 means no limit.
func (s *Store) Pending(ctx context.Context, destination string, limit int) ([]Event, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM events e
		LEFT JOIN deliveries d ON d.event_id = e.id AND d.destination = ?
		WHERE d.event_id IS NULL OR d.delivered IN (0, 2)
		ORDER BY e.id ASC`
	args := []any{destination}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query pending for %s: %w", destination, err)
	}
	defer rows.Close()

	return collectEvents(rows)
}

// Mark records the outcome of a delivery attempt. It upserts the single
// (event, destination) record and bumps its attempt counter. Success is
// terminal: a later failed mark for the same pair does not downgrade it.
func (s *Store) Mark(ctx context.Context, eventID int64, destination string, outcome Outcome) error {
	return s.mark(ctx, eventID, destination, outcome, "")
}

// MarkFailed records a failed attempt along with its cause.
func (s *Store) MarkFailed(ctx context.Context, eventID int64, destination string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return s.mark(ctx, eventID, destination, OutcomeFailed, msg)
}

func (s *Store) mark(ctx context.Context, eventID int64, destination string, outcome Outcome, lastError string) error {
	var deliveredAt sql.NullInt64
	if outcome == OutcomeSuccess {
		deliveredAt = sql.NullInt64{Int64: s.now().Unix(), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deliveries (event_id, destination, delivered, delivered_at, attempts, last_error)
		VALUES (?, ?, ?, ?, 1, ?)
		ON CONFLICT(event_id, destination) DO UPDATE SET
			delivered = CASE WHEN deliveries.delivered = 1 THEN 1 ELSE excluded.delivered END,
			delivered_at = CASE WHEN deliveries.delivered = 1 THEN deliveries.delivered_at ELSE excluded.delivered_at END,
			attempts = deliveries.attempts + 1,
			last_error = excluded.last_error
	`, eventID, destination, int(outcome), deliveredAt, nullString(lastError))
	if err != nil {
		return fmt.Errorf("mark event %d for %s: %w", eventID, destination, err)
	}
	return nil
}

// HasUndelivered reports whether any event lacks a successful delivery to
// destination.
func (s *Store) HasUndelivered(ctx context.Context, destination string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM events e
			LEFT JOIN deliveries d ON d.event_id = e.id AND d.destination = ?
			WHERE d.event_id IS NULL OR d.delivered IN (0, 2)
		)
	`, destination).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check undelivered for %s: %w", destination, err)
	}
	return exists, nil
}

// GetDelivery returns the delivery record for one pair.
// Returns ErrNotFound if the event was never attempted for destination.
func (s *Store) GetDelivery(ctx context.Context, eventID int64, destination string) (Delivery, error) {
	var (
		d           Delivery
		outcome     int
		deliveredAt sql.NullInt64
		lastError   sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT event_id, destination, delivered, delivered_at, attempts, last_error
		FROM deliveries
		WHERE event_id = ? AND destination = ?
	`, eventID, destination).Scan(&d.EventID, &d.Destination, &outcome, &deliveredAt, &d.Attempts, &lastError)
	if errors.Is(err, sql.ErrNoRows) {
		return Delivery{}, fmt.Errorf("delivery %d/%s: %w", eventID, destination, ErrNotFound)
	}
	if err != nil {
		return Delivery{}, fmt.Errorf("get delivery %d/%s: %w", eventID, destination, err)
	}
	d.Outcome = Outcome(outcome)
	d.DeliveredAt = deliveredAt.Int64
	d.LastError = lastError.String
	return d, nil
}

// DeliveryStats counts a destination's backlog.
func (s *Store) DeliveryStats(ctx context.Context, destination string) (DeliveryStats, error) {
	stats := DeliveryStats{Destination: destination}
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN d.delivered = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN d.delivered = 2 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN d.event_id IS NULL OR d.delivered = 0 THEN 1 ELSE 0 END), 0)
		FROM events e
		LEFT JOIN deliveries d ON d.event_id = e.id AND d.destination = ?
	`, destination).Scan(&stats.Total, &stats.Delivered, &stats.Failed, &stats.Untried)
	if err != nil {
		return DeliveryStats{}, fmt.Errorf("delivery stats for %s: %w", destination, err)
	}
	return stats, nil
}

// Destinations lists every destination that has at least one delivery
// record, sorted.
func (s *Store) Destinations(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT destination FROM deliveries ORDER BY destination COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query destinations: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan destination: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate destinations: %w", err)
	}
	return out, nil
}
