package roster

import "errors"

var (
	// Store errors.
	ErrNoStore     = errors.New("roster: no store configured")
	ErrStoreClosed = errors.New("roster: store closed")
	ErrKeyNotFound = errors.New("roster: key not found")
	ErrTimeout     = errors.New("roster: store operation timed out")

	// Not found errors.
	ErrTaskNotFound  = errors.New("roster: task not found")
	ErrJobNotFound   = errors.New("roster: job not found")
	ErrGroupNotFound = errors.New("roster: group not found")

	// State errors.
	ErrTaskAlreadyRunning = errors.New("roster: task already running")

	// Migration errors.
	ErrMigrationFailed = errors.New("roster: migration failed")
	ErrDowngrade       = errors.New("roster: persisted storage version is newer than current")
	ErrDuplicateStep   = errors.New("roster: duplicate migration target version")

	// Lifecycle errors.
	ErrNotBuilt = errors.New("roster: keeper not built")
)
