package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/roster/ext"
	"github.com/xraph/roster/migration"
	"github.com/xraph/roster/task"
)

// meterName is the instrumentation scope name for roster metrics.
const meterName = "github.com/xraph/roster"

// Compile-time interface checks.
var (
	_ ext.Extension         = (*MetricsExtension)(nil)
	_ ext.TaskCreated       = (*MetricsExtension)(nil)
	_ ext.TaskRunning       = (*MetricsExtension)(nil)
	_ ext.TaskTerminated    = (*MetricsExtension)(nil)
	_ ext.TaskPersistFailed = (*MetricsExtension)(nil)
	_ ext.TaskOverdue       = (*MetricsExtension)(nil)
	_ ext.OrphanExpunged    = (*MetricsExtension)(nil)
	_ ext.Migrated          = (*MetricsExtension)(nil)
)

// MetricsExtension records system-wide lifecycle counters via OpenTelemetry.
// Register it as a roster extension to automatically track task creations,
// confirmed starts, terminations, overdue flags, persistence failures,
// orphan expunges, and migration runs.
//
// Per-step migration metrics live in the middleware package; see
// middleware.Metrics().
type MetricsExtension struct {
	TasksCreated    metric.Int64Counter
	TasksStarted    metric.Int64Counter
	TasksTerminated metric.Int64Counter
	TasksOverdue    metric.Int64Counter
	PersistFailures metric.Int64Counter
	OrphansExpunged metric.Int64Counter
	Migrations      metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension using the global OTel
// MeterProvider. If no MeterProvider is configured, noop instruments are
// used and the extension records nothing.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the provided
// meter. This variant allows injecting a specific MeterProvider for testing.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	return &MetricsExtension{
		TasksCreated:    counter(meter, "roster.tasks.created", "Tasks registered in the cache", "{task}"),
		TasksStarted:    counter(meter, "roster.tasks.started", "Tasks whose start was confirmed", "{task}"),
		TasksTerminated: counter(meter, "roster.tasks.terminated", "Tasks removed from cache and store", "{task}"),
		TasksOverdue:    counter(meter, "roster.tasks.overdue", "Tasks flagged by overdue sweeps", "{task}"),
		PersistFailures: counter(meter, "roster.store.persist_failures", "Background store writes that failed", "{failure}"),
		OrphansExpunged: counter(meter, "roster.store.orphans_expunged", "Store keys deleted by orphan sweeps", "{key}"),
		Migrations:      counter(meter, "roster.migrations.applied", "Successful migration runs", "{run}"),
	}
}

func counter(meter metric.Meter, name, desc, unit string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
	_ = err // noop fallback guaranteed by OTel API contract
	return c
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// ── Task lifecycle hooks ────────────────────────────

// OnTaskCreated implements ext.TaskCreated.
func (m *MetricsExtension) OnTaskCreated(ctx context.Context, _ *task.Task) error {
	m.TasksCreated.Add(ctx, 1)
	return nil
}

// OnTaskRunning implements ext.TaskRunning.
func (m *MetricsExtension) OnTaskRunning(ctx context.Context, _ *task.Task) error {
	m.TasksStarted.Add(ctx, 1)
	return nil
}

// OnTaskTerminated implements ext.TaskTerminated.
func (m *MetricsExtension) OnTaskTerminated(ctx context.Context, _ *task.Task) error {
	m.TasksTerminated.Add(ctx, 1)
	return nil
}

// OnTaskPersistFailed implements ext.TaskPersistFailed.
func (m *MetricsExtension) OnTaskPersistFailed(ctx context.Context, _ *task.Task, _ error) error {
	m.PersistFailures.Add(ctx, 1)
	return nil
}

// OnTaskOverdue implements ext.TaskOverdue.
func (m *MetricsExtension) OnTaskOverdue(ctx context.Context, _ *task.Task) error {
	m.TasksOverdue.Add(ctx, 1)
	return nil
}

// ── Reconciliation hooks ────────────────────────────

// OnOrphanExpunged implements ext.OrphanExpunged.
func (m *MetricsExtension) OnOrphanExpunged(ctx context.Context, _ string) error {
	m.OrphansExpunged.Add(ctx, 1)
	return nil
}

// ── Migration hooks ─────────────────────────────────

// OnMigrated implements ext.Migrated.
func (m *MetricsExtension) OnMigrated(ctx context.Context, _, _ migration.Version, _ int) error {
	m.Migrations.Add(ctx, 1)
	return nil
}
