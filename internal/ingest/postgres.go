package ingest

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/roach88/scoreclock/internal/payload"
)

//go:embed schema_postgres.sql
var postgresSchema string

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository connects, pings, and applies the schema.
func NewPostgresRepository(ctx context.Context, connString string) (*PostgresRepository, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 1
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &PostgresRepository{pool: pool}, nil
}

// Pool returns the connection pool. The liveness registry shares it.
func (r *PostgresRepository) Pool() *pgxpool.Pool { return r.pool }

// Close closes the pool.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// Save implements Repository. Each record runs inside a savepoint so a
// failed insert leaves the stored prefix committable.
func (r *PostgresRepository) Save(ctx context.Context, records []Record) ([]Outcome, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	outcomes := make([]Outcome, 0, len(records))
	var failure error
	for _, rec := range records {
		sp, err := tx.Begin(ctx)
		if err != nil {
			failure = fmt.Errorf("event %s: savepoint: %w", rec.EventID, err)
			break
		}
		outcome, err := savePostgres(ctx, sp, rec)
		if err != nil {
			_ = sp.Rollback(ctx)
			failure = fmt.Errorf("event %s: %w", rec.EventID, err)
			break
		}
		if err := sp.Commit(ctx); err != nil {
			failure = fmt.Errorf("event %s: release savepoint: %w", rec.EventID, err)
			break
		}
		outcomes = append(outcomes, outcome)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return outcomes, failure
}

func savePostgres(ctx context.Context, tx pgx.Tx, rec Record) (Outcome, error) {
	data, err := payload.MarshalCanonical(rec.Payload)
	if err != nil {
		return 0, err
	}
	tag, err := tx.Exec(ctx, `
		INSERT INTO received_events (
			event_id, seq, device_id, session_id, game_id, type,
			ts_local, ts_unix, payload, payload_hash, received_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (event_id) DO NOTHING`,
		rec.EventID, rec.Seq, rec.DeviceID, rec.SessionID, rec.GameID, rec.Type,
		rec.TSLocal, rec.TSUnix, string(data), rec.PayloadHash, rec.ReceivedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return Inserted, nil
	}

	var stored string
	if err := tx.QueryRow(ctx,
		`SELECT payload_hash FROM received_events WHERE event_id = $1`, rec.EventID,
	).Scan(&stored); err != nil {
		return 0, fmt.Errorf("lookup existing: %w", err)
	}
	if stored != rec.PayloadHash {
		return Conflict, nil
	}
	return Duplicate, nil
}

// Events implements Repository.
func (r *PostgresRepository) Events(ctx context.Context, gameID string) ([]Record, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+selectColumns+` FROM received_events
		 WHERE game_id = $1
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
func (r *PostgresRepository) GameIDs(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT game_id FROM received_events ORDER BY game_id`)
	if err != nil {
		return nil, fmt.Errorf("query games: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect games: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}
