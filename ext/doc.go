// Package ext lets outside code observe the roster lifecycle. An
// extension registers once and is then called back whenever tasks move
// through the tracker, the reconciler expunges an orphan, or a storage
// migration runs — useful for metrics, webhooks, and audit trails.
//
// Every hook is its own single-method interface. An extension implements
// only the hooks it wants; the [Registry] inspects what it got at
// registration time and fans each event out to the matching extensions.
//
// # Implementing an Extension
//
//	type notifier struct{}
//
//	func (n *notifier) Name() string { return "slack-notifier" }
//
//	func (n *notifier) OnTaskTerminated(ctx context.Context, t *task.Task) error {
//	    return post(ctx, "task %s left job %s in state %s", t.ID, t.JobID, t.State)
//	}
//
// # Task Lifecycle Hooks
//
//   - [TaskCreated] — task was registered in the cache
//   - [TaskRunning] — task's start was confirmed
//   - [TaskUpdated] — a status report changed the task
//   - [TaskTerminated] — task was removed from cache and store
//   - [TaskPersistFailed] — a background store write for the task failed
//   - [TaskOverdue] — an overdue sweep flagged the task for killing
//
// # Migration Hooks
//
//   - [MigrationStep] — a migration step ran to completion
//   - [Migrated] — a migration run succeeded
//
// # Other Hooks
//
//   - [OrphanExpunged] — an orphan sweep deleted a store key
//   - [Shutdown] — the engine is shutting down gracefully
//
// Hook errors are logged by the registry and never propagate back into
// the lifecycle that emitted them.
package ext
