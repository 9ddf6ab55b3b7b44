// Package sqlite stores events, rules and occurrence overrides in SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/cyp0633/libschedule/storage"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS rule (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	frequency   TEXT NOT NULL,
	params      TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS event (
	id                   TEXT PRIMARY KEY,
	calendar_id          TEXT NOT NULL DEFAULT '',
	title                TEXT NOT NULL DEFAULT '',
	description          TEXT NOT NULL DEFAULT '',
	start_ts             TEXT NOT NULL,
	start_tz             TEXT NOT NULL,
	end_ts               TEXT NOT NULL,
	end_tz               TEXT NOT NULL,
	rule_id              TEXT REFERENCES rule(id),
	recurrence_end_ts    TEXT,
	recurrence_end_tz    TEXT,
	hint                 BLOB,
	created_ts           TEXT NOT NULL,
	updated_ts           TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_event_calendar ON event (calendar_id, start_ts);

CREATE TABLE IF NOT EXISTS occurrence (
	id                TEXT PRIMARY KEY,
	event_id          TEXT NOT NULL REFERENCES event(id) ON DELETE CASCADE,
	title             TEXT NOT NULL DEFAULT '',
	description       TEXT NOT NULL DEFAULT '',
	start_ts          TEXT NOT NULL,
	start_tz          TEXT NOT NULL,
	end_ts            TEXT NOT NULL,
	end_tz            TEXT NOT NULL,
	original_start_ts TEXT NOT NULL,
	original_start_tz TEXT NOT NULL,
	original_end_ts   TEXT NOT NULL,
	original_end_tz   TEXT NOT NULL,
	cancelled         INTEGER NOT NULL DEFAULT 0,
	created_ts        TEXT NOT NULL,
	updated_ts        TEXT NOT NULL,
	UNIQUE (event_id, original_start_ts, original_end_ts)
);
`

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// Store implements storage.Storage on a SQLite database.
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

var _ storage.Storage = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger for the store
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// Open connects to the database at dsn and creates the schema if needed.
// Use ":memory:" for a private in-memory database.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	s := &Store{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(s)
	}

	db, err := sqlx.ConnectContext(ctx, "sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	// One connection keeps ":memory:" databases and the pragma below alive.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	s.db = db
	s.logger.Debug("sqlite store opened", "dsn", dsn)
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// withTx runs fn in a transaction, committing when it returns nil.
func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// notFound maps sql.ErrNoRows to a storage not-found error.
func notFound(err error, what, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return storage.NotFound(what, id)
	}
	return fmt.Errorf("failed to load %s %q: %w", what, id, err)
}
