package roster

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Option configures a Keeper.
type Option func(*Keeper) error

// Storer is the minimal store interface held by the Keeper.
// It covers lifecycle operations only. The full contract (store.KV) is
// used in subsystem layers that don't create import cycles;
// implementations passed to WithStore satisfy store.KV.
type Storer interface {
	Initialize(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// sweepRunner is an internal interface for reconciler lifecycle.
type sweepRunner interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// extensionEmitter is an internal interface for extension lifecycle events.
type extensionEmitter interface {
	EmitShutdown(ctx context.Context)
}

// Keeper is the central coordinator for the task-state layer: the task
// tracker, the storage-version migrator, and the reconciliation sweeps.
//
// Create one with New() and functional options. The Keeper holds
// references to subsystem components via internal interfaces to avoid
// import cycles. Use engine.Build to wire everything together.
type Keeper struct {
	config     Config
	logger     *slog.Logger
	store      Storer
	extensions extensionEmitter
	sweeps     sweepRunner

	// started tracks whether Start has been called.
	started bool
}

// New creates a new Keeper with the given options.
func New(opts ...Option) (*Keeper, error) {
	k := &Keeper{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(k); err != nil {
			return nil, err
		}
	}
	return k, nil
}

// Logger returns the keeper's logger.
func (k *Keeper) Logger() *slog.Logger { return k.logger }

// Store returns the keeper's store.
func (k *Keeper) Store() Storer { return k.store }

// Config returns a copy of the keeper's configuration.
func (k *Keeper) Config() Config { return k.config }

// SetSweeps sets the reconciliation runner (called by engine.Build).
func (k *Keeper) SetSweeps(r sweepRunner) { k.sweeps = r }

// SetExtensions sets the extension emitter (called by engine.Build).
func (k *Keeper) SetExtensions(e extensionEmitter) { k.extensions = e }

// Start begins the reconciliation sweeps.
func (k *Keeper) Start(ctx context.Context) error {
	if k.sweeps == nil {
		return ErrNotBuilt
	}
	if err := k.sweeps.Start(ctx); err != nil {
		return err
	}
	k.started = true
	return nil
}

// Stop gracefully shuts down the keeper: sweeps stop first, then
// extensions get their shutdown hook, then the store closes. Shutdown is
// bounded by the configured ShutdownTimeout.
func (k *Keeper) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, k.config.ShutdownTimeout)
	defer cancel()

	if k.sweeps != nil && k.started {
		if err := k.sweeps.Stop(ctx); err != nil {
			k.logger.Error("reconciler stop error", "error", err)
		}
	}
	if k.extensions != nil {
		k.extensions.EmitShutdown(ctx)
	}
	if k.store != nil {
		return k.store.Close()
	}
	return nil
}

// WithLogger sets the structured logger for the keeper.
func WithLogger(l *slog.Logger) Option {
	return func(k *Keeper) error {
		k.logger = l
		return nil
	}
}

// WithStore sets the persistence backend for the keeper.
// The store must implement Storer at minimum; typically it will be a
// store.KV from one of the backend packages.
func WithStore(s Storer) Option {
	return func(k *Keeper) error {
		k.store = s
		return nil
	}
}

// WithStoreTimeout bounds blocking store round trips.
func WithStoreTimeout(d time.Duration) Option {
	return func(k *Keeper) error {
		if d <= 0 {
			return fmt.Errorf("roster: store timeout must be positive, got %v", d)
		}
		k.config.StoreTimeout = d
		return nil
	}
}

// WithStagedTimeout sets how long a staged task may wait before it is
// considered overdue.
func WithStagedTimeout(d time.Duration) Option {
	return func(k *Keeper) error {
		if d <= 0 {
			return fmt.Errorf("roster: staged timeout must be positive, got %v", d)
		}
		k.config.StagedTimeout = d
		return nil
	}
}

// WithUnconfirmedTimeout sets how long a task may go without a
// confirmed start before it is considered overdue.
func WithUnconfirmedTimeout(d time.Duration) Option {
	return func(k *Keeper) error {
		if d <= 0 {
			return fmt.Errorf("roster: unconfirmed timeout must be positive, got %v", d)
		}
		k.config.UnconfirmedTimeout = d
		return nil
	}
}

// WithOverdueInterval sets the overdue sweep interval.
func WithOverdueInterval(d time.Duration) Option {
	return func(k *Keeper) error {
		if d <= 0 {
			return fmt.Errorf("roster: overdue interval must be positive, got %v", d)
		}
		k.config.OverdueInterval = d
		return nil
	}
}

// WithOrphanSchedule sets the cron expression for orphan sweeps.
func WithOrphanSchedule(expr string) Option {
	return func(k *Keeper) error {
		if expr == "" {
			return fmt.Errorf("roster: orphan schedule must not be empty")
		}
		k.config.OrphanSchedule = expr
		return nil
	}
}

// WithScanRate caps store operations per second during orphan sweeps.
func WithScanRate(perSecond float64) Option {
	return func(k *Keeper) error {
		if perSecond <= 0 {
			return fmt.Errorf("roster: scan rate must be positive, got %v", perSecond)
		}
		k.config.ScanRate = perSecond
		return nil
	}
}

// WithShutdownTimeout sets the graceful shutdown bound.
func WithShutdownTimeout(d time.Duration) Option {
	return func(k *Keeper) error {
		if d <= 0 {
			return fmt.Errorf("roster: shutdown timeout must be positive, got %v", d)
		}
		k.config.ShutdownTimeout = d
		return nil
	}
}
