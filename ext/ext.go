// Package ext defines the extension system for roster.
// Extensions are notified of lifecycle events (task created, terminated,
// storage migrated, etc.) and can react to them — logging, metrics,
// alerting, etc.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package ext

import (
	"context"

	"github.com/xraph/roster/migration"
	"github.com/xraph/roster/task"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Task lifecycle hooks
// ──────────────────────────────────────────────────

// TaskCreated is called after a task is registered in the cache.
type TaskCreated interface {
	OnTaskCreated(ctx context.Context, t *task.Task) error
}

// TaskRunning is called after a task's start is confirmed.
type TaskRunning interface {
	OnTaskRunning(ctx context.Context, t *task.Task) error
}

// TaskUpdated is called after a status report changes a task.
type TaskUpdated interface {
	OnTaskUpdated(ctx context.Context, t *task.Task) error
}

// TaskTerminated is called after a task is removed from cache and store.
type TaskTerminated interface {
	OnTaskTerminated(ctx context.Context, t *task.Task) error
}

// TaskPersistFailed is called when a background store write for a task
// fails. The cache has already moved on; reconciliation repairs the store.
type TaskPersistFailed interface {
	OnTaskPersistFailed(ctx context.Context, t *task.Task, err error) error
}

// TaskOverdue is called for each task an overdue sweep hands to the killer.
type TaskOverdue interface {
	OnTaskOverdue(ctx context.Context, t *task.Task) error
}

// ──────────────────────────────────────────────────
// Reconciliation hooks
// ──────────────────────────────────────────────────

// OrphanExpunged is called for each store key an orphan sweep deletes.
type OrphanExpunged interface {
	OnOrphanExpunged(ctx context.Context, key string) error
}

// ──────────────────────────────────────────────────
// Migration hooks
// ──────────────────────────────────────────────────

// MigrationStep is called after each migration step runs to completion.
type MigrationStep interface {
	OnMigrationStep(ctx context.Context, name string, target migration.Version) error
}

// Migrated is called after a successful migration run.
type Migrated interface {
	OnMigrated(ctx context.Context, from, to migration.Version, steps int) error
}

// ──────────────────────────────────────────────────
// Other lifecycle hooks
// ──────────────────────────────────────────────────

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
