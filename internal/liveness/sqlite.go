package liveness

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
)

//go:embed schema_sqlite.sql
var sqliteSchema string

const heartbeatColumns = `
	device_id, current_game_id, game_state, clock_running, clock_value_ms,
	last_event_seq, app_version, pusher_status, ts_local, received_at
`

// SQLiteStore keeps heartbeats in the aggregator's SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore applies the heartbeat schema to db.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, fmt.Errorf("failed to execute heartbeat schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Insert implements Store.
func (s *SQLiteStore) Insert(ctx context.Context, rec Record) (Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Record{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO heartbeats (`+heartbeatColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.DeviceID, nullString(rec.CurrentGameID), nullString(rec.GameState), rec.ClockRunning,
		rec.ClockValueMS, rec.LastEventSeq, nullString(rec.AppVersion), nullString(rec.PusherStatus),
		rec.TSLocal, rec.ReceivedAt,
	)
	if err != nil {
		return Record{}, fmt.Errorf("insert heartbeat: %w", err)
	}
	if rec.ID, err = res.LastInsertId(); err != nil {
		return Record{}, err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO latest_heartbeats (heartbeat_id, `+heartbeatColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET
			heartbeat_id = excluded.heartbeat_id,
			current_game_id = excluded.current_game_id,
			game_state = excluded.game_state,
			clock_running = excluded.clock_running,
			clock_value_ms = excluded.clock_value_ms,
			last_event_seq = excluded.last_event_seq,
			app_version = excluded.app_version,
			pusher_status = excluded.pusher_status,
			ts_local = excluded.ts_local,
			received_at = excluded.received_at
		WHERE excluded.received_at >= latest_heartbeats.received_at`,
		rec.ID, rec.DeviceID, nullString(rec.CurrentGameID), nullString(rec.GameState), rec.ClockRunning,
		rec.ClockValueMS, rec.LastEventSeq, nullString(rec.AppVersion), nullString(rec.PusherStatus),
		rec.TSLocal, rec.ReceivedAt,
	); err != nil {
		return Record{}, fmt.Errorf("upsert latest heartbeat: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Record{}, fmt.Errorf("commit: %w", err)
	}
	return rec, nil
}

// Latest implements Store. Records are ordered by device id.
func (s *SQLiteStore) Latest(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT heartbeat_id, `+heartbeatColumns+` FROM latest_heartbeats ORDER BY device_id`)
	if err != nil {
		return nil, fmt.Errorf("query latest heartbeats: %w", err)
	}
	defer rows.Close()
	return collect(rows)
}

// History implements Store. Newest first.
func (s *SQLiteStore) History(ctx context.Context, deviceID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, `+heartbeatColumns+` FROM heartbeats
		 WHERE device_id = ?
		 ORDER BY received_at DESC, id DESC
		 LIMIT ?`, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("query heartbeats: %w", err)
	}
	defer rows.Close()
	return collect(rows)
}

type rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func collect(r rows) ([]Record, error) {
	records := []Record{}
	for r.Next() {
		var rec Record
		var game, state, version, pusher sql.NullString
		if err := r.Scan(
			&rec.ID, &rec.DeviceID, &game, &state, &rec.ClockRunning, &rec.ClockValueMS,
			&rec.LastEventSeq, &version, &pusher, &rec.TSLocal, &rec.ReceivedAt,
		); err != nil {
			return nil, fmt.Errorf("scan heartbeat: %w", err)
		}
		rec.CurrentGameID = game.String
		rec.GameState = state.String
		rec.AppVersion = version.String
		rec.PusherStatus = pusher.String
		records = append(records, rec)
	}
	return records, r.Err()
}
