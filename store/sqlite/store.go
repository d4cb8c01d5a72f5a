// Package sqlite implements store.KV on SQLite via the pure-Go
// modernc.org/sqlite driver, so single-node deployments get durable state
// without cgo or an external database. Entries live in a single roster_kv
// table.
//
// Usage:
//
//	s, err := sqlite.New(ctx, "/var/lib/roster/roster.db")
//	if err != nil { ... }
//	defer s.Close()
//
// The DSN ":memory:" is supported for development and testing.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // sqlite driver

	"github.com/xraph/roster"
	"github.com/xraph/roster/store"
)

// Compile-time interface check.
var _ store.KV = (*Store)(nil)

// Store is a SQLite implementation of store.KV.
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New opens (creating if needed) the SQLite database at dsn.
func New(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("roster/sqlite: open: %w", err)
	}

	// A pooled :memory: DSN would give every pooled connection its own
	// private database.
	if dsn == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("roster/sqlite: enable WAL: %w", err)
	}

	s := &Store{
		db:     db,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Fetch returns the value stored under key.
func (s *Store) Fetch(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.GetContext(ctx, &value,
		`SELECT value FROM roster_kv WHERE key = ?`, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, roster.ErrKeyNotFound
		}
		return nil, fmt.Errorf("roster/sqlite: fetch: %w", err)
	}
	return value, nil
}

// Put stores value under key, overwriting any previous value.
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO roster_kv (key, value) VALUES (?, ?)`,
		key, value)
	if err != nil {
		return fmt.Errorf("roster/sqlite: put: %w", err)
	}
	return nil
}

// Expunge removes key. Removing an absent key succeeds.
func (s *Store) Expunge(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM roster_kv WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("roster/sqlite: expunge: %w", err)
	}
	return nil
}

// Names returns all entry names, sorted.
func (s *Store) Names(ctx context.Context) ([]string, error) {
	var names []string
	err := s.db.SelectContext(ctx, &names,
		`SELECT key FROM roster_kv ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("roster/sqlite: names: %w", err)
	}
	return names, nil
}

// Initialize creates the roster_kv table if it does not exist. Safe to call
// repeatedly.
func (s *Store) Initialize(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS roster_kv (
			key   TEXT PRIMARY KEY,
			value BLOB NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("roster/sqlite: initialize: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sqlx.DB for advanced usage.
func (s *Store) DB() *sqlx.DB {
	return s.db
}
