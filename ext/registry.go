package ext

import (
	"context"
	"log/slog"

	"github.com/xraph/roster/migration"
	"github.com/xraph/roster/task"
)

// The registry doubles as the emitter wired into the tracker and the
// migrator, fanning their notifications out to extensions.
var (
	_ task.Emitter      = (*Registry)(nil)
	_ migration.Emitter = (*Registry)(nil)
)

// Named entry types pair a hook implementation with the extension name
// captured at registration time. This avoids type-asserting back to
// Extension inside the emit methods.
type taskCreatedEntry struct {
	name string
	hook TaskCreated
}

type taskRunningEntry struct {
	name string
	hook TaskRunning
}

type taskUpdatedEntry struct {
	name string
	hook TaskUpdated
}

type taskTerminatedEntry struct {
	name string
	hook TaskTerminated
}

type taskPersistFailedEntry struct {
	name string
	hook TaskPersistFailed
}

type taskOverdueEntry struct {
	name string
	hook TaskOverdue
}

type orphanExpungedEntry struct {
	name string
	hook OrphanExpunged
}

type migrationStepEntry struct {
	name string
	hook MigrationStep
}

type migratedEntry struct {
	name string
	hook Migrated
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. Hook implementations are resolved once at registration time,
// so emitting an event touches only the extensions that implement its
// hook.
//
// Registration is not safe for concurrent use; register all extensions
// during setup, before events start flowing. Emitting is read-only and
// safe for concurrent use.
type Registry struct {
	logger *slog.Logger

	extensions []Extension

	taskCreated       []taskCreatedEntry
	taskRunning       []taskRunningEntry
	taskUpdated       []taskUpdatedEntry
	taskTerminated    []taskTerminatedEntry
	taskPersistFailed []taskPersistFailedEntry
	taskOverdue       []taskOverdueEntry
	orphanExpunged    []orphanExpungedEntry
	migrationStep     []migrationStepEntry
	migrated          []migratedEntry
	shutdown          []shutdownEntry
}

// NewRegistry creates an empty extension registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds an extension to the registry and caches every hook it
// implements.
func (r *Registry) Register(ext Extension) {
	r.extensions = append(r.extensions, ext)
	name := ext.Name()

	if h, ok := ext.(TaskCreated); ok {
		r.taskCreated = append(r.taskCreated, taskCreatedEntry{name: name, hook: h})
	}
	if h, ok := ext.(TaskRunning); ok {
		r.taskRunning = append(r.taskRunning, taskRunningEntry{name: name, hook: h})
	}
	if h, ok := ext.(TaskUpdated); ok {
		r.taskUpdated = append(r.taskUpdated, taskUpdatedEntry{name: name, hook: h})
	}
	if h, ok := ext.(TaskTerminated); ok {
		r.taskTerminated = append(r.taskTerminated, taskTerminatedEntry{name: name, hook: h})
	}
	if h, ok := ext.(TaskPersistFailed); ok {
		r.taskPersistFailed = append(r.taskPersistFailed, taskPersistFailedEntry{name: name, hook: h})
	}
	if h, ok := ext.(TaskOverdue); ok {
		r.taskOverdue = append(r.taskOverdue, taskOverdueEntry{name: name, hook: h})
	}
	if h, ok := ext.(OrphanExpunged); ok {
		r.orphanExpunged = append(r.orphanExpunged, orphanExpungedEntry{name: name, hook: h})
	}
	if h, ok := ext.(MigrationStep); ok {
		r.migrationStep = append(r.migrationStep, migrationStepEntry{name: name, hook: h})
	}
	if h, ok := ext.(Migrated); ok {
		r.migrated = append(r.migrated, migratedEntry{name: name, hook: h})
	}
	if h, ok := ext.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name: name, hook: h})
	}

	r.logger.Debug("extension registered", slog.String("extension", name))
}

// Extensions returns all registered extensions in registration order.
func (r *Registry) Extensions() []Extension {
	return r.extensions
}

// Hook errors are logged, never propagated. A misbehaving extension must
// not break task bookkeeping or a migration run.

// EmitTaskCreated notifies extensions that a task was registered.
func (r *Registry) EmitTaskCreated(ctx context.Context, t *task.Task) {
	for _, e := range r.taskCreated {
		if err := e.hook.OnTaskCreated(ctx, t); err != nil {
			r.logHookError(e.name, "OnTaskCreated", err)
		}
	}
}

// EmitTaskRunning notifies extensions that a task's start was confirmed.
func (r *Registry) EmitTaskRunning(ctx context.Context, t *task.Task) {
	for _, e := range r.taskRunning {
		if err := e.hook.OnTaskRunning(ctx, t); err != nil {
			r.logHookError(e.name, "OnTaskRunning", err)
		}
	}
}

// EmitTaskUpdated notifies extensions that a status report changed a task.
func (r *Registry) EmitTaskUpdated(ctx context.Context, t *task.Task) {
	for _, e := range r.taskUpdated {
		if err := e.hook.OnTaskUpdated(ctx, t); err != nil {
			r.logHookError(e.name, "OnTaskUpdated", err)
		}
	}
}

// EmitTaskTerminated notifies extensions that a task was removed.
func (r *Registry) EmitTaskTerminated(ctx context.Context, t *task.Task) {
	for _, e := range r.taskTerminated {
		if err := e.hook.OnTaskTerminated(ctx, t); err != nil {
			r.logHookError(e.name, "OnTaskTerminated", err)
		}
	}
}

// EmitTaskPersistFailed notifies extensions that a background store
// write for a task failed.
func (r *Registry) EmitTaskPersistFailed(ctx context.Context, t *task.Task, err error) {
	for _, e := range r.taskPersistFailed {
		if herr := e.hook.OnTaskPersistFailed(ctx, t, err); herr != nil {
			r.logHookError(e.name, "OnTaskPersistFailed", herr)
		}
	}
}

// EmitTaskOverdue notifies extensions that an overdue sweep flagged a task.
func (r *Registry) EmitTaskOverdue(ctx context.Context, t *task.Task) {
	for _, e := range r.taskOverdue {
		if err := e.hook.OnTaskOverdue(ctx, t); err != nil {
			r.logHookError(e.name, "OnTaskOverdue", err)
		}
	}
}

// EmitOrphanExpunged notifies extensions that an orphan sweep deleted a key.
func (r *Registry) EmitOrphanExpunged(ctx context.Context, key string) {
	for _, e := range r.orphanExpunged {
		if err := e.hook.OnOrphanExpunged(ctx, key); err != nil {
			r.logHookError(e.name, "OnOrphanExpunged", err)
		}
	}
}

// EmitMigrationStep notifies extensions that a migration step completed.
func (r *Registry) EmitMigrationStep(ctx context.Context, name string, target migration.Version) {
	for _, e := range r.migrationStep {
		if err := e.hook.OnMigrationStep(ctx, name, target); err != nil {
			r.logHookError(e.name, "OnMigrationStep", err)
		}
	}
}

// EmitMigrated notifies extensions that a migration run succeeded.
func (r *Registry) EmitMigrated(ctx context.Context, from, to migration.Version, steps int) {
	for _, e := range r.migrated {
		if err := e.hook.OnMigrated(ctx, from, to, steps); err != nil {
			r.logHookError(e.name, "OnMigrated", err)
		}
	}
}

// EmitShutdown notifies extensions of graceful shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError(e.name, "OnShutdown", err)
		}
	}
}

func (r *Registry) logHookError(extension, hook string, err error) {
	r.logger.Warn("extension hook failed",
		slog.String("extension", extension),
		slog.String("hook", hook),
		slog.String("error", err.Error()),
	)
}
