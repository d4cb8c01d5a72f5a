// Package engine wires all roster subsystems together. It builds the store
// client, the task tracker, the repositories, the storage-version migrator,
// the reconciler, and the extension registry from a Keeper's configuration.
//
// This package exists to break the import cycle: the root roster package
// defines Config and the error sentinels (imported by task, migration, etc.)
// and so cannot import those packages back. The engine package sits above
// all subsystem packages and below the application layer.
package engine

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/xraph/roster"
	"github.com/xraph/roster/backoff"
	"github.com/xraph/roster/ext"
	"github.com/xraph/roster/migration"
	mw "github.com/xraph/roster/middleware"
	"github.com/xraph/roster/observability"
	"github.com/xraph/roster/reconcile"
	"github.com/xraph/roster/repository"
	"github.com/xraph/roster/store"
	"github.com/xraph/roster/task"
)

// Engine wraps a Keeper with fully wired subsystems and typed access to
// them. Use Build() to create one from a Keeper.
type Engine struct {
	k          *roster.Keeper
	kv         store.KV
	client     *store.Client
	extensions *ext.Registry
	tracker    *task.Tracker
	jobs       *repository.Jobs
	groups     *repository.Groups
	migrator   *migration.Migrator
	reconciler *reconcile.Reconciler
	killer     reconcile.Killer
	steps      []migration.Step
	bo         backoff.Strategy
	mws        []mw.Middleware

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures an Engine.
type Option func(*Engine)

// WithExtension registers an extension with the engine.
func WithExtension(e ext.Extension) Option {
	return func(eng *Engine) {
		eng.extensions.Register(e)
	}
}

// WithMigrations appends migration steps to the built-in ones. Steps may
// arrive in any order; the migrator sorts by target version.
func WithMigrations(steps ...migration.Step) Option {
	return func(eng *Engine) {
		eng.steps = append(eng.steps, steps...)
	}
}

// WithKiller sets the executor handle overdue sweeps use to kill flagged
// tasks. Without one, sweeps only flag and emit.
func WithKiller(k reconcile.Killer) Option {
	return func(eng *Engine) {
		eng.killer = k
	}
}

// WithMiddleware adds middleware to the migration step chain, after the
// default stack.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) {
		eng.mws = append(eng.mws, m)
	}
}

// WithBackoff sets the delay strategy applied after failed orphan sweeps.
// If not set, the reconciler's default (exponential with jitter) is used.
func WithBackoff(b backoff.Strategy) Option {
	return func(eng *Engine) {
		eng.bo = b
	}
}

// WithTracerProvider sets a custom OTel TracerProvider for the engine.
// When set, the tracing middleware uses this provider instead of the global
// one. If not set, the global otel.GetTracerProvider() is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) {
		eng.tracerProvider = tp
	}
}

// WithMeterProvider sets a custom OTel MeterProvider for the engine.
// When set, both the metrics middleware and the observability extension
// use this provider instead of the global one.
// If not set, the global otel.GetMeterProvider() is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) {
		eng.meterProvider = mp
	}
}

// Build creates an Engine from an existing Keeper.
// The Keeper's store must implement store.KV.
func Build(k *roster.Keeper, opts ...Option) (*Engine, error) {
	logger := k.Logger()
	st := k.Store()

	if st == nil {
		return nil, roster.ErrNoStore
	}

	// Type-assert the store to get the full KV contract.
	kv, ok := st.(store.KV)
	if !ok {
		return nil, fmt.Errorf("roster: store does not implement store.KV")
	}

	eng := &Engine{
		k:          k,
		kv:         kv,
		extensions: ext.NewRegistry(logger),
	}

	for _, opt := range opts {
		opt(eng)
	}

	cfg := k.Config()
	eng.client = store.NewClient(kv, cfg.StoreTimeout, logger)

	// Register the observability metrics extension.
	var obsExt *observability.MetricsExtension
	if eng.meterProvider != nil {
		meter := eng.meterProvider.Meter("github.com/xraph/roster/observability")
		obsExt = observability.NewMetricsExtensionWithMeter(meter)
	} else {
		obsExt = observability.NewMetricsExtension()
	}
	eng.extensions.Register(obsExt)

	// The registry is the tracker's emitter, so every cache transition
	// fans out to extensions.
	eng.tracker = task.NewTracker(eng.client, logger,
		task.WithStagedTimeout(cfg.StagedTimeout),
		task.WithUnconfirmedTimeout(cfg.UnconfirmedTimeout),
		task.WithEmitter(eng.extensions),
		task.WithScanLimiter(rate.NewLimiter(rate.Limit(cfg.ScanRate), 1)),
	)

	eng.jobs = repository.NewJobs(eng.client, logger)
	eng.groups = repository.NewGroups(eng.client)

	// Build tracing middleware (custom provider or global).
	var tracingMw mw.Middleware
	if eng.tracerProvider != nil {
		tracer := eng.tracerProvider.Tracer("github.com/xraph/roster")
		tracingMw = mw.TracingWithTracer(tracer)
	} else {
		tracingMw = mw.Tracing()
	}

	// Build metrics middleware (custom provider or global).
	var metricsMw mw.Middleware
	if eng.meterProvider != nil {
		meter := eng.meterProvider.Meter("github.com/xraph/roster")
		metricsMw = mw.MetricsWithMeter(meter)
	} else {
		metricsMw = mw.Metrics()
	}

	// Default step middleware stack: recover → tracing → metrics → logging.
	defaultMws := []mw.Middleware{
		mw.Recover(logger),
		tracingMw,
		metricsMw,
		mw.Logging(logger),
	}
	allMws := make([]mw.Middleware, 0, len(defaultMws)+len(eng.mws))
	allMws = append(allMws, defaultMws...)
	allMws = append(allMws, eng.mws...)

	// Create the migrator: built-in steps first, user steps on top.
	migrator, err := migration.New(
		eng.client,
		&migration.Env{Store: eng.client, Jobs: eng.jobs, Groups: eng.groups, Logger: logger},
		append(migration.BuiltinSteps(), eng.steps...),
		migration.WithMiddleware(allMws...),
		migration.WithEmitter(eng.extensions),
		migration.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	eng.migrator = migrator

	// Create the reconciler. A nil killer leaves overdue tasks flagged
	// but alive.
	recOpts := []reconcile.Option{
		reconcile.WithOverdueInterval(cfg.OverdueInterval),
		reconcile.WithOrphanSchedule(cfg.OrphanSchedule),
	}
	if eng.bo != nil {
		recOpts = append(recOpts, reconcile.WithBackoff(eng.bo))
	}
	reconciler, err := reconcile.NewReconciler(eng.tracker, eng.killer, eng.extensions, logger, recOpts...)
	if err != nil {
		return nil, err
	}
	eng.reconciler = reconciler

	// Wire back into the Keeper.
	k.SetSweeps(reconciler)
	k.SetExtensions(eng.extensions)

	return eng, nil
}

// Start brings the layer up: ping the store, prepare the backend, run the
// migration barrier, then start the reconciliation sweeps. A migration
// failure is fatal; nothing starts.
func (eng *Engine) Start(ctx context.Context) error {
	if err := eng.kv.Ping(ctx); err != nil {
		return fmt.Errorf("roster: store ping: %w", err)
	}

	// Initialize before the barrier so version reads hit a prepared
	// backend. Migrate re-initializes after its steps; both calls are
	// idempotent by contract.
	if err := eng.kv.Initialize(ctx); err != nil {
		return fmt.Errorf("roster: store initialize: %w", err)
	}

	if err := eng.migrator.Migrate(ctx); err != nil {
		return err
	}

	return eng.k.Start(ctx)
}

// Stop gracefully shuts down the engine: sweeps stop, extensions get their
// shutdown hook, and the store closes. Bounded by the Keeper's
// ShutdownTimeout.
func (eng *Engine) Stop(ctx context.Context) error {
	return eng.k.Stop(ctx)
}

// Tracker returns the task tracker.
func (eng *Engine) Tracker() *task.Tracker { return eng.tracker }

// Jobs returns the job definition repository.
func (eng *Engine) Jobs() *repository.Jobs { return eng.jobs }

// Groups returns the group tree repository.
func (eng *Engine) Groups() *repository.Groups { return eng.groups }

// Migrator returns the storage-version migrator.
func (eng *Engine) Migrator() *migration.Migrator { return eng.migrator }

// Reconciler returns the reconciliation sweep driver.
func (eng *Engine) Reconciler() *reconcile.Reconciler { return eng.reconciler }

// Extensions returns the extension registry.
func (eng *Engine) Extensions() *ext.Registry { return eng.extensions }

// Client returns the store client. Most callers want the tracker or a
// repository instead; the client is the raw keyed-bytes layer underneath.
func (eng *Engine) Client() *store.Client { return eng.client }

// Keeper returns the underlying Keeper.
func (eng *Engine) Keeper() *roster.Keeper { return eng.k }
