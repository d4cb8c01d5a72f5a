// Package store defines the flat key-value persistence contract shared by
// every roster subsystem, plus the dual-mode client all store access goes
// through. Backends: Memory, Redis, Postgres, SQLite, Badger, and Mongo.
package store

import "context"

// KV is the persistence contract. Keys are flat strings; values are opaque
// bytes produced by the codec package. Multi-step flows built on top of it
// (fetch then put) are not atomic: the engine tolerates races via
// last-write-wins semantics and reconciliation, never via transactions.
type KV interface {
	// Fetch returns the value stored under key, or roster.ErrKeyNotFound.
	Fetch(ctx context.Context, key string) ([]byte, error)

	// Put creates or overwrites the value under key.
	Put(ctx context.Context, key string, value []byte) error

	// Expunge deletes the value under key. Deleting an absent key is not
	// an error.
	Expunge(ctx context.Context, key string) error

	// Names returns every key in the store.
	Names(ctx context.Context) ([]string, error)

	// Initialize prepares the backend (tables, collections, directories).
	// Idempotent; called after every successful migration run.
	Initialize(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close releases the backend connection.
	Close() error
}
