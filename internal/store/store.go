package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added index on decisions(emergency, seq)
// 2 - Added decisions.nonfinite
const currentSchemaVersion = 2

// ErrSchemaVersion is returned when a read-only open finds a decision log
// whose schema differs from this build's. A read-only open cannot migrate;
// an older log is upgraded by opening it once writable.
var ErrSchemaVersion = errors.New("decision log schema version mismatch")

// ErrReadOnly is returned by writes to a log opened with ReadOnly.
var ErrReadOnly = errors.New("decision log is open read-only")

// Store is the durable audit log of executive decisions.
// Uses SQLite with WAL mode for concurrent read access.
type Store struct {
	db       *sql.DB
	readOnly bool
}

type options struct {
	readOnly    bool
	durable     bool
	busyTimeout time.Duration
}

// Option configures Open.
type Option func(*options)

// ReadOnly opens an existing decision log for inspection. The file is not
// created, the schema is not migrated, and RecordDecision fails. trace,
// replay and metrics open the log this way so they never race a running
// engine on migrations.
func ReadOnly() Option {
	return func(o *options) { o.readOnly = true }
}

// Durable makes every recorded decision survive power loss (synchronous =
// FULL) instead of only process crashes.
func Durable() Option {
	return func(o *options) { o.durable = true }
}

// WithBusyTimeout sets how long a statement waits on a locked log.
func WithBusyTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.busyTimeout = d
		}
	}
}

// Open creates or opens the decision log at path.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (FULL with Durable)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// A writable open applies the schema and migrations and is idempotent. A
// ReadOnly open requires the file to exist and its schema to be current.
func Open(path string, opts ...Option) (*Store, error) {
	o := options{busyTimeout: 5 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}

	dsn := path
	if o.readOnly {
		dsn = "file:" + path + "?mode=ro"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite allows one writer; engine workers share this handle.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db, o); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if o.readOnly {
		if err := checkSchema(db); err != nil {
			db.Close()
			return nil, err
		}
		return &Store{db: db, readOnly: true}, nil
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Query executes a raw query. Callers close the returned rows.
func (s *Store) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, query, args...)
}

func applyPragmas(db *sql.DB, o options) error {
	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", o.busyTimeout.Milliseconds()),
		"PRAGMA foreign_keys = ON",
	}
	// journal_mode and synchronous are the writer's to set.
	if !o.readOnly {
		sync := "NORMAL"
		if o.durable {
			sync = "FULL"
		}
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL", "PRAGMA synchronous = "+sync)
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// checkSchema rejects a log this build cannot read.
func checkSchema(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version != currentSchemaVersion {
		return fmt.Errorf("%w: log is v%d, this build reads v%d", ErrSchemaVersion, version, currentSchemaVersion)
	}
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'decisions'`).Scan(&n); err != nil {
		return fmt.Errorf("inspect schema: %w", err)
	}
	if n == 0 {
		return errors.New("not a decision log: no decisions table")
	}
	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}
	if version < 2 {
		if err := migrateToV2(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 indexes emergency stops so `trace --emergency` stays cheap on
// long logs.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_decisions_emergency
		ON decisions(emergency, seq)
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// migrateToV2 adds the column that keeps non-finite telemetry values, which
// canonical JSON cannot carry. A fresh schema already has it.
func migrateToV2(db *sql.DB) error {
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('decisions') WHERE name = 'nonfinite'`).Scan(&n); err != nil {
		return fmt.Errorf("migrate to v2: %w", err)
	}
	if n > 0 {
		return nil
	}
	if _, err := db.Exec(`ALTER TABLE decisions ADD COLUMN nonfinite TEXT NOT NULL DEFAULT '{}'`); err != nil {
		return fmt.Errorf("migrate to v2: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
