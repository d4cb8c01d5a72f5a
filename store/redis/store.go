// Package redis implements store.KV on Redis. Every entry is a plain
// string value under a shared key prefix, so one Redis database can host
// roster state next to other applications.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	s := redisstore.New(client)
//	if err := s.Ping(ctx); err != nil { ... }
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/xraph/roster"
	"github.com/xraph/roster/store"
)

// keyPrefix namespaces every roster entry in the Redis keyspace.
const keyPrefix = "roster:"

// Compile-time interface check.
var _ store.KV = (*Store)(nil)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store implements store.KV backed by Redis.
type Store struct {
	client redis.Cmdable
	logger *slog.Logger
}

// New creates a new Redis-backed store. The caller owns the Redis client
// lifecycle.
func New(client redis.Cmdable, opts ...Option) *Store {
	s := &Store{client: client, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Client returns the underlying Redis client.
func (s *Store) Client() redis.Cmdable { return s.client }

// storeKey maps an entry name to its namespaced Redis key.
func storeKey(name string) string { return keyPrefix + name }

// Fetch returns the value stored under key.
func (s *Store) Fetch(ctx context.Context, key string) ([]byte, error) {
	v, err := s.client.Get(ctx, storeKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, roster.ErrKeyNotFound
		}
		return nil, fmt.Errorf("roster/redis: fetch: %w", err)
	}
	return v, nil
}

// Put stores value under key, overwriting any previous value.
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, storeKey(key), value, 0).Err(); err != nil {
		return fmt.Errorf("roster/redis: put: %w", err)
	}
	return nil
}

// Expunge removes key. Removing an absent key succeeds.
func (s *Store) Expunge(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, storeKey(key)).Err(); err != nil {
		return fmt.Errorf("roster/redis: expunge: %w", err)
	}
	return nil
}

// Names returns all entry names, sorted. The shared prefix is stripped so
// callers see the same names they stored.
func (s *Store) Names(ctx context.Context) ([]string, error) {
	var names []string
	iter := s.client.Scan(ctx, 0, keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		names = append(names, strings.TrimPrefix(iter.Val(), keyPrefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("roster/redis: names: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// Initialize is a no-op for Redis (schemaless).
func (s *Store) Initialize(_ context.Context) error { return nil }

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close is a no-op because the caller owns the Redis client lifecycle.
func (s *Store) Close() error { return nil }
