// Package migration brings persisted state up to the storage version
// bundled with the running build.
//
// A [Step] is an idempotent transformation keyed by the version it migrates
// to. [Migrator.Migrate] reads the persisted version (absent reads as
// zero), refuses stores written by newer builds, applies every step above
// the persisted version in ascending order, then re-initializes the store
// and rewrites the version record. The version write happens on every
// successful run, even when no step applied.
//
// Migrate is a startup barrier: it runs single-threaded to completion
// before the tracker or any repository sees traffic, and its failure is
// fatal to startup. Steps keep no partial-completion bookkeeping; a crash
// mid-step re-runs the step in full on the next start, which is why steps
// must be idempotent.
//
// Built-in steps ship with the engine (see [BuiltinSteps]); callers
// register additional steps through the engine's options.
package migration
