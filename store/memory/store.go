// Package memory provides a fully in-memory store.KV.
//
// Beyond the plain map it supports per-operation fault and latency
// injection plus call counters, so cache/store divergence, timeout
// behavior, and write counts are deterministically testable. Intended for
// unit testing and development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xraph/roster"
	"github.com/xraph/roster/store"
)

// Ensure Store implements store.KV at compile time.
var _ store.KV = (*Store)(nil)

// Operation names for fault injection and call counters.
const (
	OpFetch      = "fetch"
	OpPut        = "put"
	OpExpunge    = "expunge"
	OpNames      = "names"
	OpInitialize = "initialize"
	OpPing       = "ping"
)

// Store is an in-memory implementation of store.KV.
// Safe for concurrent access.
type Store struct {
	mu   sync.RWMutex
	data map[string][]byte

	failures map[string]error
	latency  time.Duration
	counts   map[string]int
	closed   bool
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		data:     make(map[string][]byte),
		failures: make(map[string]error),
		counts:   make(map[string]int),
	}
}

// enter counts the call, applies injected latency and faults, and checks
// the closed flag. Latency honors ctx so abandoned calls can still be
// cancelled by closing their detached context's parent, but under the
// client's detached contexts they simply run to completion.
func (m *Store) enter(ctx context.Context, op string) error {
	m.mu.Lock()
	m.counts[op]++
	closed := m.closed
	delay := m.latency
	fail := m.failures[op]
	m.mu.Unlock()

	if closed {
		return roster.ErrStoreClosed
	}

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return fail
}

// ──────────────────────────────────────────────────
// store.KV
// ──────────────────────────────────────────────────

// Fetch returns a copy of the value stored under key.
func (m *Store) Fetch(ctx context.Context, key string) ([]byte, error) {
	if err := m.enter(ctx, OpFetch); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[key]
	if !ok {
		return nil, roster.ErrKeyNotFound
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, nil
}

// Put stores a copy of value under key.
func (m *Store) Put(ctx context.Context, key string, value []byte) error {
	if err := m.enter(ctx, OpPut); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cp := make([]byte, len(value))
	copy(cp, value)
	m.data[key] = cp
	return nil
}

// Expunge removes key. Removing an absent key succeeds.
func (m *Store) Expunge(ctx context.Context, key string) error {
	if err := m.enter(ctx, OpExpunge); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, key)
	return nil
}

// Names returns all keys, sorted for deterministic output.
func (m *Store) Names(ctx context.Context) ([]string, error) {
	if err := m.enter(ctx, OpNames); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.data))
	for k := range m.data {
		names = append(names, k)
	}
	sort.Strings(names)
	return names, nil
}

// Initialize is a no-op for the memory store.
func (m *Store) Initialize(ctx context.Context) error {
	return m.enter(ctx, OpInitialize)
}

// Ping succeeds unless a fault is injected or the store is closed.
func (m *Store) Ping(ctx context.Context) error {
	return m.enter(ctx, OpPing)
}

// Close marks the store closed; subsequent operations fail with
// roster.ErrStoreClosed.
func (m *Store) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}

// ──────────────────────────────────────────────────
// Test hooks
// ──────────────────────────────────────────────────

// FailWith makes every subsequent op of the given kind fail with err.
// A nil err clears the fault.
func (m *Store) FailWith(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err == nil {
		delete(m.failures, op)
		return
	}
	m.failures[op] = err
}

// SetLatency makes every subsequent op sleep d before executing.
func (m *Store) SetLatency(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.latency = d
}

// Calls returns how many times the given op has been invoked.
func (m *Store) Calls(op string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.counts[op]
}

// Len returns the number of stored keys.
func (m *Store) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.data)
}

// Snapshot returns a copy of the full contents for assertions.
func (m *Store) Snapshot() map[string][]byte {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string][]byte, len(m.data))
	for k, v := range m.data {
		cp := make([]byte, len(v))
		copy(cp, v)
		out[k] = cp
	}
	return out
}
