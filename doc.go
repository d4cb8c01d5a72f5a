// Package roster provides the task-state and persistence-consistency layer
// of a cluster workload orchestrator. It maintains an authoritative
// in-memory view of running tasks grouped by job, keeps that view
// synchronized with a pluggable key-value store, and evolves persisted
// state across software versions through an ordered migration engine.
//
// Roster is designed as a library, not a service. Import it, configure a
// store backend, and wire the subsystems with engine.Build.
//
// # Quick Start
//
//	k, err := roster.New(
//	    roster.WithStore(redisStore),
//	    roster.WithStagedTimeout(5*time.Minute),
//	)
//
// # Architecture
//
// Three subsystems cooperate: the task tracker (concurrent per-job
// registry, write-through to the store), the migration engine (ordered
// storage-version steps run as a startup barrier), and the reconciler
// (overdue detection and orphaned-key sweeps). A single store backend
// implements the flat KV contract all of them share.
//
// Job identifiers are hierarchical paths ("/group/web"); task keys derive
// from them, and every subsystem owns a distinct key namespace.
package roster
