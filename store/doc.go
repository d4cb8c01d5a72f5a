// Package store defines the flat key-value persistence contract.
//
// Every roster subsystem persists through the same [KV] interface: tasks
// under job-path keys, job definitions under "app:" keys, the group tree
// under "group:root", and the storage version under
// "internal:storage:version". A backend implements KV once and serves all
// of them.
//
// # Dual-mode access
//
// Subsystems never call a backend directly; they go through [Client],
// which makes the synchronization choice explicit at each call site:
//
//   - Blocking with timeout: Fetch, Put, Expunge, Names, Initialize run
//     the operation on a context detached from the caller's and wait at
//     most the configured timeout. On expiry they return
//     roster.ErrTimeout while the underlying operation may still
//     complete, leaving cache and store divergent until reconciliation.
//   - Fire and forget: DeferPut and DeferExpunge return immediately with
//     a [Deferred] handle; failures are logged, and callers that care
//     await the handle.
//
// # Available Backends
//
//   - store/memory — in-memory store for testing, with fault and latency
//     injection
//   - store/redis — Redis backend using go-redis/v9
//   - store/postgres — PostgreSQL backend using pgx/v5
//   - store/sqlite — embedded SQLite backend using sqlx and modernc
//   - store/badger — embedded Badger (LSM) backend
//   - store/mongo — MongoDB backend
//
// # Usage
//
//	import "github.com/xraph/roster/store/redis"
//
//	kv, err := redis.New(ctx, "redis://localhost:6379/0")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer kv.Close()
//
//	k, err := roster.New(roster.WithStore(kv))
package store
