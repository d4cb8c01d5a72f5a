// Package badger implements store.KV on BadgerDB, an embedded LSM
// key-value store. It suits single-node deployments that want durable
// state with no external database process.
//
// Usage:
//
//	s, err := badger.New("/var/lib/roster")
//	if err != nil { ... }
//	defer s.Close()
package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/xraph/roster"
	"github.com/xraph/roster/store"
)

// Compile-time interface check.
var _ store.KV = (*Store)(nil)

// Store is a BadgerDB implementation of store.KV. The Store owns the
// database it opened; Close closes it.
type Store struct {
	db     *badgerdb.DB
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

// New opens (creating if needed) the BadgerDB database in dir.
func New(dir string, opts ...Option) (*Store, error) {
	// Badger's internal logger speaks a different interface, so it is
	// disabled rather than bridged.
	dbOpts := badgerdb.DefaultOptions(dir)
	dbOpts.Logger = nil

	db, err := badgerdb.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("roster/badger: open: %w", err)
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
func (s *Store) Fetch(_ context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return nil, roster.ErrKeyNotFound
		}
		return nil, fmt.Errorf("roster/badger: fetch: %w", err)
	}
	return value, nil
}

// Put stores value under key, overwriting any previous value.
func (s *Store) Put(_ context.Context, key string, value []byte) error {
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("roster/badger: put: %w", err)
	}
	return nil
}

// Expunge removes key. Removing an absent key succeeds.
func (s *Store) Expunge(_ context.Context, key string) error {
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("roster/badger: expunge: %w", err)
	}
	return nil
}

// Names returns all entry names. Badger iterates in key order, so the
// result is already sorted.
func (s *Store) Names(_ context.Context) ([]string, error) {
	var names []string
	err := s.db.View(func(txn *badgerdb.Txn) error {
		itOpts := badgerdb.DefaultIteratorOptions
		itOpts.PrefetchValues = false

		it := txn.NewIterator(itOpts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			names = append(names, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("roster/badger: names: %w", err)
	}
	return names, nil
}

// Initialize is a no-op for Badger (schemaless).
func (s *Store) Initialize(_ context.Context) error { return nil }

// Ping reports whether the database is still open.
func (s *Store) Ping(_ context.Context) error {
	if s.db.IsClosed() {
		return roster.ErrStoreClosed
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *badger.DB for advanced usage.
func (s *Store) DB() *badgerdb.DB {
	return s.db
}
