// Package mongo implements store.KV on MongoDB. Every entry is a single
// document in one collection, keyed by _id, so the unique index MongoDB
// maintains on _id is the only schema the backend needs.
//
// Usage:
//
//	client, err := mongod.Connect(options.Client().ApplyURI(uri))
//	if err != nil { ... }
//	s := mongo.New(client, "roster")
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/roster"
	"github.com/xraph/roster/store"
)

// colEntries is the collection holding all roster entries.
const colEntries = "roster_kv"

// Compile-time interface check.
var _ store.KV = (*Store)(nil)

// kvDoc is the persisted shape of one entry.
type kvDoc struct {
	Key   string `bson:"_id"`
	Value []byte `bson:"value"`
}

// Store is a MongoDB implementation of store.KV. The caller owns the
// *mongo.Client lifecycle; Store never closes it.
type Store struct {
	client *mongod.Client
	col    *mongod.Collection
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

// New creates a new MongoDB store over the named database. The caller owns
// the client lifecycle -- the Store will not close it on Close().
func New(client *mongod.Client, database string, opts ...Option) *Store {
	s := &Store{
		client: client,
		col:    client.Database(database).Collection(colEntries),
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Client returns the underlying *mongo.Client for advanced usage.
func (s *Store) Client() *mongod.Client {
	return s.client
}

// Fetch returns the value stored under key.
func (s *Store) Fetch(ctx context.Context, key string) ([]byte, error) {
	var doc kvDoc
	err := s.col.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongod.ErrNoDocuments) {
			return nil, roster.ErrKeyNotFound
		}
		return nil, fmt.Errorf("roster/mongo: fetch: %w", err)
	}
	return doc.Value, nil
}

// Put stores value under key, overwriting any previous value.
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.col.ReplaceOne(ctx,
		bson.M{"_id": key},
		kvDoc{Key: key, Value: value},
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("roster/mongo: put: %w", err)
	}
	return nil
}

// Expunge removes key. Removing an absent key succeeds.
func (s *Store) Expunge(ctx context.Context, key string) error {
	if _, err := s.col.DeleteOne(ctx, bson.M{"_id": key}); err != nil {
		return fmt.Errorf("roster/mongo: expunge: %w", err)
	}
	return nil
}

// Names returns all entry names, sorted.
func (s *Store) Names(ctx context.Context) ([]string, error) {
	var names []string
	if err := s.col.Distinct(ctx, "_id", bson.M{}).Decode(&names); err != nil {
		return nil, fmt.Errorf("roster/mongo: names: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// Initialize is a no-op for MongoDB. The collection is created on first
// write and _id carries the only index the backend relies on.
func (s *Store) Initialize(_ context.Context) error { return nil }

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close is a no-op because the caller owns the client lifecycle.
func (s *Store) Close() error { return nil }
