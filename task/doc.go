// Package task defines the task entity, its status-report policy, and the
// Tracker: the authoritative in-memory registry of tasks grouped by job.
//
// # Task Entity
//
// A [Task] is one instance of a job on the cluster. It carries the
// timestamps the consistency rules key on (stagedAt always set, startedAt
// zero until an agent confirms the start) and progresses through reported
// states:
//
//	staged → starting → running → finished
//	staged → starting → running → failed | killed | lost
//	staged → killed              (never confirmed)
//
// Cached tasks are immutable: transitions swap in a modified copy, so a
// returned pointer that equals the previous one means "nothing changed".
//
// # Tracker
//
// [Tracker] keeps per-job task sets, each guarded by its own lock, and
// mirrors every persisted transition to the store through the dual-mode
// client: Running and StatusUpdate update the cache synchronously and
// persist in the background; Terminated awaits its store deletion.
// Created is cache-only on purpose. On first access to a job, the tracker
// scans the store for the job's key prefix and loads what it finds.
//
// # Reconciliation
//
// DetermineOverdueTasks flags tasks that sat unlaunched past the staged
// or unconfirmed timeout, and ExpungeOrphanedTasks deletes task keys in
// the store that no cached task accounts for. The reconcile package runs
// both on schedules.
package task
