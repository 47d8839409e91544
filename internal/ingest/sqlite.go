package ingest

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/scoreclock/internal/payload"
)

//go:embed schema_sqlite.sql
var sqliteSchema string

const sqliteInsert = `
	INSERT INTO received_events (
		event_id, seq, device_id, session_id, game_id, type,
		ts_local, ts_unix, payload, payload_hash, received_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(event_id) DO NOTHING
`

const selectColumns = `
	id, event_id, seq, device_id, session_id, game_id, type,
	ts_local, ts_unix, payload, payload_hash, received_at
`

// SQLiteRepository is the default Repository.
type SQLiteRepository struct {
	db *sql.DB
}

// OpenSQLite opens or creates the aggregator database at path.
func OpenSQLite(path string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to execute schema: %w", err)
	}
	return &SQLiteRepository{db: db}, nil
}

// DB returns the underlying handle. The liveness registry shares it.
func (r *SQLiteRepository) DB() *sql.DB { return r.db }

// Close closes the database.
func (r *SQLiteRepository) Close() error { return r.db.Close() }

// Save implements Repository.
func (r *SQLiteRepository) Save(ctx context.Context, records []Record) ([]Outcome, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	outcomes := make([]Outcome, 0, len(records))
	var failure error
	for _, rec := range records {
		outcome, err := saveSQLite(ctx, tx, rec)
		if err != nil {
			failure = fmt.Errorf("event %s: %w", rec.EventID, err)
			break
		}
		outcomes = append(outcomes, outcome)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return outcomes, failure
}

func saveSQLite(ctx context.Context, tx *sql.Tx, rec Record) (Outcome, error) {
	data, err := payload.MarshalCanonical(rec.Payload)
	if err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, sqliteInsert,
		rec.EventID, rec.Seq, rec.DeviceID, rec.SessionID, rec.GameID, rec.Type,
		rec.TSLocal, rec.TSUnix, string(data), rec.PayloadHash, rec.ReceivedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 1 {
		return Inserted, nil
	}

	var stored string
	if err := tx.QueryRowContext(ctx,
		`SELECT payload_hash FROM received_events WHERE event_id = ?`, rec.EventID,
	).Scan(&stored); err != nil {
		return 0, fmt.Errorf("lookup existing: %w", err)
	}
	if stored != rec.PayloadHash {
		return Conflict, nil
	}
	return Duplicate, nil
}

// Events implements Repository. Records come back in replay order.
func (r *SQLiteRepository) Events(ctx context.Context, gameID string) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM received_events
		 WHERE game_id = ?
		 ORDER BY ts_unix ASC, seq ASC, id ASC`, gameID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// GameIDs implements Repository.
func (r *SQLiteRepository) GameIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT game_id FROM received_events ORDER BY game_id`)
	if err != nil {
		return nil, fmt.Errorf("query games: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var rec Record
	var data string
	if err := row.Scan(
		&rec.ID, &rec.EventID, &rec.Seq, &rec.DeviceID, &rec.SessionID, &rec.GameID, &rec.Type,
		&rec.TSLocal, &rec.TSUnix, &data, &rec.PayloadHash, &rec.ReceivedAt,
	); err != nil {
		return Record{}, fmt.Errorf("scan record: %w", err)
	}
	p, err := payload.ParseObject([]byte(data))
	if err != nil {
		return Record{}, fmt.Errorf("record %s payload: %w", rec.EventID, err)
	}
	rec.Payload = p
	return rec, nil
}
