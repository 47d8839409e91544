package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/scoreclock/internal/payload"
)

//go:embed schema.sql
var schemaSQL string

// currentSchemaVersion is stored in PRAGMA user_version.
//
//	0  events and deliveries
//	1  deliveries.attempts and deliveries.last_error
const currentSchemaVersion = 1

// Validator checks an event payload before it is appended.
type Validator interface {
	Validate(eventType string, p payload.Object) error
}

// Store is the device-local event log and delivery tracker.
// Uses SQLite with WAL mode so the pusher can read while the control
// loop appends.
type Store struct {
	db        *sql.DB
	now       func() time.Time
	validator Validator
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the time source used to stamp created_at and
// delivered_at. Tests use a fake clock.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithValidator rejects appends whose payload fails validation.
func WithValidator(v Validator) Option {
	return func(s *Store) { s.validator = v }
}

// pragmas configure the single connection Open keeps.
var pragmas = []struct{ name, value string }{
	{"journal_mode", "WAL"},  // pusher reads while the loop appends
	{"synchronous", "FULL"},  // an acknowledged append survives power loss
	{"busy_timeout", "5000"}, // milliseconds
	{"foreign_keys", "ON"},   // deliveries must reference events
}

// Open opens the device database at path, creating it if needed, and
// brings the schema up to date. ":memory:" gives a private database.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// One connection: SQLite has a single writer, and ":memory:" databases
	// are per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := initialize(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func initialize(db *sql.DB) error {
	for _, p := range pragmas {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA %s = %s", p.name, p.value)); err != nil {
			return fmt.Errorf("pragma %s: %w", p.name, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return migrate(db)
}

// Close closes the database. Closing twice is harmless.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB exposes the connection for tests and ad-hoc inspection.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate upgrades databases created by older builds, tracked in
// PRAGMA user_version.
func migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}
	if version >= currentSchemaVersion {
		return nil
	}
	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}
	_, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion))
	return err
}

// migrateToV1 adds retry bookkeeping columns to deliveries tables created
// before they existed. New databases already have them from schema.sql.
func migrateToV1(db *sql.DB) error {
	columns := []struct {
		name string
		ddl  string
	}{
		{"attempts", "ALTER TABLE deliveries ADD COLUMN attempts INTEGER NOT NULL DEFAULT 0"},
		{"last_error", "ALTER TABLE deliveries ADD COLUMN last_error TEXT"},
	}
	for _, c := range columns {
		ok, err := hasColumn(db, "deliveries", c.name)
		if err != nil {
			return fmt.Errorf("migrate to v1: %w", err)
		}
		if ok {
			continue
		}
		if _, err := db.Exec(c.ddl); err != nil {
			return fmt.Errorf("migrate to v1: %w", err)
		}
	}
	return nil
}

func hasColumn(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid       int
			name      string
			typ       string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dfltValue, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// verifyPragma compares a pragma's current value. Only tests call it.
func (s *Store) verifyPragma(name, expected string) error {
	var got string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&got); err != nil {
		return fmt.Errorf("read pragma %s: %w", name, err)
	}
	if got != expected {
		return fmt.Errorf("pragma %s is %q, want %q", name, got, expected)
	}
	return nil
}
