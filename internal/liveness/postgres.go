package liveness

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema_postgres.sql
var postgresSchema string

// PostgresStore keeps heartbeats in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore applies the heartbeat schema using pool.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		return nil, fmt.Errorf("failed to apply heartbeat schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Insert implements Store.
func (s *PostgresStore) Insert(ctx context.Context, rec Record) (Record, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := tx.QueryRow(ctx,
		`INSERT INTO heartbeats (`+heartbeatColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id`,
		rec.DeviceID, nullString(rec.CurrentGameID), nullString(rec.GameState), rec.ClockRunning,
		rec.ClockValueMS, rec.LastEventSeq, nullString(rec.AppVersion), nullString(rec.PusherStatus),
		rec.TSLocal, rec.ReceivedAt,
	).Scan(&rec.ID); err != nil {
		return Record{}, fmt.Errorf("insert heartbeat: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO latest_heartbeats (heartbeat_id, `+heartbeatColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (device_id) DO UPDATE SET
			heartbeat_id = EXCLUDED.heartbeat_id,
			current_game_id = EXCLUDED.current_game_id,
			game_state = EXCLUDED.game_state,
			clock_running = EXCLUDED.clock_running,
			clock_value_ms = EXCLUDED.clock_value_ms,
			last_event_seq = EXCLUDED.last_event_seq,
			app_version = EXCLUDED.app_version,
			pusher_status = EXCLUDED.pusher_status,
			ts_local = EXCLUDED.ts_local,
			received_at = EXCLUDED.received_at
		WHERE EXCLUDED.received_at >= latest_heartbeats.received_at`,
		rec.ID, rec.DeviceID, nullString(rec.CurrentGameID), nullString(rec.GameState), rec.ClockRunning,
		rec.ClockValueMS, rec.LastEventSeq, nullString(rec.AppVersion), nullString(rec.PusherStatus),
		rec.TSLocal, rec.ReceivedAt,
	); err != nil {
		return Record{}, fmt.Errorf("upsert latest heartbeat: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Record{}, fmt.Errorf("commit: %w", err)
	}
	return rec, nil
}

// Latest implements Store.
func (s *PostgresStore) Latest(ctx context.Context) ([]Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT heartbeat_id, `+heartbeatColumns+` FROM latest_heartbeats ORDER BY device_id`)
	if err != nil {
		return nil, fmt.Errorf("query latest heartbeats: %w", err)
	}
	defer rows.Close()
	return collect(rows)
}

// History implements Store.
func (s *PostgresStore) History(ctx context.Context, deviceID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, `+heartbeatColumns+` FROM heartbeats
		 WHERE device_id = $1
		 ORDER BY received_at DESC, id DESC
		 LIMIT $2`, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("query heartbeats: %w", err)
	}
	defer rows.Close()
	return collect(rows)
}
