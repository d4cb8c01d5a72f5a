package audithook

// Action names, one per ext lifecycle hook. The action becomes the
// Action field of the emitted event and is the unit of filtering for
// WithActions.
const (
	ActionTaskCreated       = "task.created"
	ActionTaskRunning       = "task.running"
	ActionTaskUpdated       = "task.updated"
	ActionTaskTerminated    = "task.terminated"
	ActionTaskPersistFailed = "task.persist_failed"
	ActionTaskOverdue       = "task.overdue"
	ActionOrphanExpunged    = "store.orphan_expunged"
	ActionMigrationStep     = "storage.migration_step"
	ActionMigrated          = "storage.migrated"
)

// Categories group actions for trail consumers.
const (
	CategoryTask    = "roster.task"
	CategoryStore   = "roster.store"
	CategoryStorage = "roster.storage"
)

// Resource kinds carried in the Resource field.
const (
	ResourceTask     = "task"
	ResourceStoreKey = "store_key"
	ResourceStorage  = "storage"
)

// AllActions lists every action this extension can emit, in lifecycle
// order.
func AllActions() []string {
	return []string{
		ActionTaskCreated,
		ActionTaskRunning,
		ActionTaskUpdated,
		ActionTaskTerminated,
		ActionTaskPersistFailed,
		ActionTaskOverdue,
		ActionOrphanExpunged,
		ActionMigrationStep,
		ActionMigrated,
	}
}
