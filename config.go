package roster

import "time"

// Config holds configuration for the Keeper.
type Config struct {
	// StoreTimeout bounds every blocking persistent-store round trip.
	// Operations that exceed it fail with ErrTimeout, though the
	// underlying store call may still complete afterwards.
	StoreTimeout time.Duration

	// StagedTimeout is how long a task may sit in the staged state
	// before it is reported overdue.
	StagedTimeout time.Duration

	// UnconfirmedTimeout is how long a task may go without a confirmed
	// start (startedAt unset) before it is reported overdue, regardless
	// of its reported state.
	UnconfirmedTimeout time.Duration

	// OverdueInterval is how often the reconciler sweeps for overdue
	// tasks.
	OverdueInterval time.Duration

	// OrphanSchedule is the cron expression for orphaned-key
	// reconciliation sweeps. Supports descriptors such as "@hourly".
	OrphanSchedule string

	// ScanRate caps store operations per second during orphan sweeps so
	// a large keyspace cannot starve the store.
	ScanRate float64

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		StoreTimeout:       5 * time.Second,
		StagedTimeout:      5 * time.Minute,
		UnconfirmedTimeout: 5 * time.Minute,
		OverdueInterval:    30 * time.Second,
		OrphanSchedule:     "@hourly",
		ScanRate:           200,
		ShutdownTimeout:    30 * time.Second,
	}
}
