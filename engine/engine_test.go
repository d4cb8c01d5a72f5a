package engine_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/xraph/roster"
	audithook "github.com/xraph/roster/audit_hook"
	"github.com/xraph/roster/engine"
	"github.com/xraph/roster/id"
	"github.com/xraph/roster/migration"
	"github.com/xraph/roster/store/memory"
	"github.com/xraph/roster/stream"
	"github.com/xraph/roster/task"
)

const versionKey = "internal:storage:version"

// waitFor polls cond until it holds or five seconds pass.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for condition")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
}

// ──────────────────────────────────────────────────
// Test extension and killer
// ──────────────────────────────────────────────────

// lifecycleExt counts lifecycle events across the whole layer.
type lifecycleExt struct {
	created    atomic.Int64
	running    atomic.Int64
	terminated atomic.Int64
	overdue    atomic.Int64
	steps      atomic.Int64
	migrated   atomic.Bool
	shutdown   atomic.Bool
}

func (l *lifecycleExt) Name() string { return "lifecycle-capture" }

func (l *lifecycleExt) OnTaskCreated(_ context.Context, _ *task.Task) error {
	l.created.Add(1)
	return nil
}

func (l *lifecycleExt) OnTaskRunning(_ context.Context, _ *task.Task) error {
	l.running.Add(1)
	return nil
}

func (l *lifecycleExt) OnTaskTerminated(_ context.Context, _ *task.Task) error {
	l.terminated.Add(1)
	return nil
}

func (l *lifecycleExt) OnTaskOverdue(_ context.Context, _ *task.Task) error {
	l.overdue.Add(1)
	return nil
}

func (l *lifecycleExt) OnMigrationStep(_ context.Context, _ string, _ migration.Version) error {
	l.steps.Add(1)
	return nil
}

func (l *lifecycleExt) OnMigrated(_ context.Context, _, _ migration.Version, _ int) error {
	l.migrated.Store(true)
	return nil
}

func (l *lifecycleExt) OnShutdown(_ context.Context) error {
	l.shutdown.Store(true)
	return nil
}

// captureKiller records kill requests from overdue sweeps.
type captureKiller struct {
	mu     sync.Mutex
	killed []string
}

func (c *captureKiller) Kill(_ context.Context, _ id.JobID, taskID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.killed = append(c.killed, taskID)
	return nil
}

func (c *captureKiller) victims() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]string(nil), c.killed...)
}

// ──────────────────────────────────────────────────
// End-to-end: Build → Start → task lifecycle → Stop
// ──────────────────────────────────────────────────

func TestEngine_EndToEnd(t *testing.T) {
	s := memory.New()
	k, err := roster.New(roster.WithStore(s))
	if err != nil {
		t.Fatalf("roster.New: %v", err)
	}

	lc := &lifecycleExt{}
	eng, err := engine.Build(k, engine.WithExtension(lc))
	if err != nil {
		t.Fatalf("engine.Build: %v", err)
	}

	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// The startup barrier ran both built-in steps against the fresh store
	// and recorded the current version.
	if _, ok := s.Snapshot()[versionKey]; !ok {
		t.Fatal("storage version record not written")
	}
	if got := lc.steps.Load(); got != 2 {
		t.Errorf("migration steps applied = %d, want 2", got)
	}
	if !lc.migrated.Load() {
		t.Error("migrated hook did not fire")
	}

	// Stage a task, confirm its start, then terminate it.
	web := id.MustParse("/web")
	now := time.Now().UTC()
	tk, err := eng.Tracker().Created(context.Background(), web, task.NewStaged(web, now, now))
	if err != nil {
		t.Fatalf("Created: %v", err)
	}

	got, err := eng.Tracker().Running(context.Background(), web, task.Status{
		TaskID:    tk.ID,
		State:     task.StateRunning,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("Running: %v", err)
	}
	if !got.Started() {
		t.Error("task start not confirmed")
	}

	// The running transition persists in the background.
	waitFor(t, func() bool {
		_, ok := s.Snapshot()[tk.Key()]
		return ok
	})

	if _, err := eng.Tracker().Terminated(context.Background(), web, tk.ID); err != nil {
		t.Fatalf("Terminated: %v", err)
	}
	if _, ok := s.Snapshot()[tk.Key()]; ok {
		t.Error("task record still in store after termination")
	}

	if lc.created.Load() != 1 || lc.running.Load() != 1 || lc.terminated.Load() != 1 {
		t.Errorf("lifecycle events = %d/%d/%d, want 1/1/1",
			lc.created.Load(), lc.running.Load(), lc.terminated.Load())
	}

	// Stop fires the shutdown hook and closes the store.
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := eng.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !lc.shutdown.Load() {
		t.Error("shutdown hook did not fire")
	}
	if err := s.Ping(context.Background()); !errors.Is(err, roster.ErrStoreClosed) {
		t.Errorf("Ping after Stop = %v, want ErrStoreClosed", err)
	}
}

// ──────────────────────────────────────────────────
// Build
// ──────────────────────────────────────────────────

func TestBuild_WiresSubsystems(t *testing.T) {
	k, err := roster.New(roster.WithStore(memory.New()))
	if err != nil {
		t.Fatalf("roster.New: %v", err)
	}

	eng, err := engine.Build(k)
	if err != nil {
		t.Fatalf("engine.Build: %v", err)
	}

	if eng.Tracker() == nil || eng.Jobs() == nil || eng.Groups() == nil {
		t.Error("tracker or repositories not wired")
	}
	if eng.Migrator() == nil || eng.Reconciler() == nil || eng.Client() == nil {
		t.Error("migrator, reconciler, or client not wired")
	}
	if eng.Keeper() != k {
		t.Error("engine does not hold the keeper it was built from")
	}

	// The observability extension registers automatically.
	if got := len(eng.Extensions().Extensions()); got != 1 {
		t.Errorf("registered extensions = %d, want 1", got)
	}
}

func TestBuild_NoStore(t *testing.T) {
	k, err := roster.New()
	if err != nil {
		t.Fatalf("roster.New: %v", err)
	}

	if _, err := engine.Build(k); !errors.Is(err, roster.ErrNoStore) {
		t.Errorf("Build = %v, want ErrNoStore", err)
	}
}

// badStore implements the Keeper's minimal Storer but not store.KV.
type badStore struct{}

func (badStore) Initialize(context.Context) error { return nil }
func (badStore) Ping(context.Context) error       { return nil }
func (badStore) Close() error                     { return nil }

func TestBuild_StoreNotKV(t *testing.T) {
	k, err := roster.New(roster.WithStore(badStore{}))
	if err != nil {
		t.Fatalf("roster.New: %v", err)
	}

	if _, err := engine.Build(k); err == nil {
		t.Fatal("Build accepted a store without the KV contract")
	}
}

func TestBuild_DuplicateMigrationTarget(t *testing.T) {
	k, err := roster.New(roster.WithStore(memory.New()))
	if err != nil {
		t.Fatalf("roster.New: %v", err)
	}

	dup := migration.Step{
		Target: migration.Version{Major: 1, Minor: 1, Patch: 0},
		Name:   "duplicate-target",
		Run:    func(context.Context, *migration.Env) error { return nil },
	}
	if _, err := engine.Build(k, engine.WithMigrations(dup)); !errors.Is(err, roster.ErrDuplicateStep) {
		t.Errorf("Build = %v, want ErrDuplicateStep", err)
	}
}

// ──────────────────────────────────────────────────
// Start: barrier semantics
// ──────────────────────────────────────────────────

func TestStart_PingFailure(t *testing.T) {
	s := memory.New()
	boom := errors.New("connection refused")
	s.FailWith(memory.OpPing, boom)

	k, err := roster.New(roster.WithStore(s))
	if err != nil {
		t.Fatalf("roster.New: %v", err)
	}
	eng, err := engine.Build(k)
	if err != nil {
		t.Fatalf("engine.Build: %v", err)
	}

	if err := eng.Start(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Start = %v, want wrapped ping failure", err)
	}
}

func TestStart_MigrationFailureIsFatal(t *testing.T) {
	s := memory.New()
	k, err := roster.New(roster.WithStore(s))
	if err != nil {
		t.Fatalf("roster.New: %v", err)
	}

	boom := errors.New("backfill exploded")
	failing := migration.Step{
		Target: migration.Version{Major: 1, Minor: 0, Patch: 1},
		Name:   "exploding-step",
		Run:    func(context.Context, *migration.Env) error { return boom },
	}
	eng, err := engine.Build(k, engine.WithMigrations(failing))
	if err != nil {
		t.Fatalf("engine.Build: %v", err)
	}

	err = eng.Start(context.Background())
	if !errors.Is(err, roster.ErrMigrationFailed) {
		t.Fatalf("Start = %v, want ErrMigrationFailed", err)
	}
	if !errors.Is(err, boom) {
		t.Errorf("Start error does not wrap the step failure: %v", err)
	}
	if _, ok := s.Snapshot()[versionKey]; ok {
		t.Error("version record written despite failed migration")
	}
}

func TestStart_UserMigrationStepRuns(t *testing.T) {
	s := memory.New()
	k, err := roster.New(roster.WithStore(s))
	if err != nil {
		t.Fatalf("roster.New: %v", err)
	}

	var ran atomic.Bool
	custom := migration.Step{
		Target: migration.Version{Major: 1, Minor: 1, Patch: 5},
		Name:   "custom-backfill",
		Run: func(context.Context, *migration.Env) error {
			ran.Store(true)
			return nil
		},
	}
	lc := &lifecycleExt{}
	eng, err := engine.Build(k, engine.WithExtension(lc), engine.WithMigrations(custom))
	if err != nil {
		t.Fatalf("engine.Build: %v", err)
	}

	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !ran.Load() {
		t.Error("user migration step did not run")
	}
	if got := lc.steps.Load(); got != 3 {
		t.Errorf("migration steps applied = %d, want 3", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := eng.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

// ──────────────────────────────────────────────────
// Overdue sweeps through the full wiring
// ──────────────────────────────────────────────────

func TestOverdueSweepKillsThroughEngine(t *testing.T) {
	s := memory.New()
	k, err := roster.New(
		roster.WithStore(s),
		roster.WithStagedTimeout(time.Millisecond),
		roster.WithUnconfirmedTimeout(time.Millisecond),
		roster.WithOverdueInterval(20*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("roster.New: %v", err)
	}

	lc := &lifecycleExt{}
	killer := &captureKiller{}
	eng, err := engine.Build(k, engine.WithExtension(lc), engine.WithKiller(killer))
	if err != nil {
		t.Fatalf("engine.Build: %v", err)
	}

	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	web := id.MustParse("/web")
	now := time.Now().UTC()
	tk, err := eng.Tracker().Created(context.Background(), web, task.NewStaged(web, now, now))
	if err != nil {
		t.Fatalf("Created: %v", err)
	}

	// The staged task outlives its launch deadline; the sweep must hand it
	// to the killer.
	waitFor(t, func() bool {
		for _, victim := range killer.victims() {
			if victim == tk.ID {
				return true
			}
		}
		return false
	})
	if lc.overdue.Load() == 0 {
		t.Error("overdue hook did not fire")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := eng.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

// ──────────────────────────────────────────────────
// Stop
// ──────────────────────────────────────────────────

func TestStop_WithoutStart(t *testing.T) {
	s := memory.New()
	k, err := roster.New(roster.WithStore(s))
	if err != nil {
		t.Fatalf("roster.New: %v", err)
	}

	lc := &lifecycleExt{}
	eng, err := engine.Build(k, engine.WithExtension(lc))
	if err != nil {
		t.Fatalf("engine.Build: %v", err)
	}

	if err := eng.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !lc.shutdown.Load() {
		t.Error("shutdown hook did not fire")
	}
	if err := s.Ping(context.Background()); !errors.Is(err, roster.ErrStoreClosed) {
		t.Errorf("Ping after Stop = %v, want ErrStoreClosed", err)
	}
}

// ──────────────────────────────────────────────────
// OpenTelemetry provider injection
// ──────────────────────────────────────────────────

func TestBuild_CustomProviders(t *testing.T) {
	s := memory.New()
	k, err := roster.New(roster.WithStore(s))
	if err != nil {
		t.Fatalf("roster.New: %v", err)
	}

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	eng, err := engine.Build(k,
		engine.WithMeterProvider(mp),
		engine.WithTracerProvider(tp),
	)
	if err != nil {
		t.Fatalf("engine.Build: %v", err)
	}
	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// The barrier ran two steps, each traced through the injected provider.
	if got := len(sr.Ended()); got != 2 {
		t.Errorf("recorded spans = %d, want 2", got)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect metrics: %v", err)
	}
	found := false
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == "roster.migrations.applied" {
				found = true
			}
		}
	}
	if !found {
		t.Error("roster.migrations.applied not recorded through the injected provider")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := eng.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

// ──────────────────────────────────────────────────
// Bundled extensions
// ──────────────────────────────────────────────────

// captureRecorder stores audit events for inspection.
type captureRecorder struct {
	mu     sync.Mutex
	events []*audithook.AuditEvent
}

func (c *captureRecorder) Record(_ context.Context, evt *audithook.AuditEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.events = append(c.events, evt)
	return nil
}

func (c *captureRecorder) find(action string) *audithook.AuditEvent {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, evt := range c.events {
		if evt.Action == action {
			return evt
		}
	}
	return nil
}

func TestEngine_BundledExtensions(t *testing.T) {
	s := memory.New()
	k, err := roster.New(roster.WithStore(s))
	if err != nil {
		t.Fatalf("roster.New: %v", err)
	}

	broker := stream.NewBroker(slog.Default())
	sub := broker.Subscribe("test-consumer", stream.TopicFirehose)

	rec := &captureRecorder{}
	eng, err := engine.Build(k,
		engine.WithExtension(broker),
		engine.WithExtension(audithook.New(rec)),
	)
	if err != nil {
		t.Fatalf("engine.Build: %v", err)
	}
	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	web := id.MustParse("/web")
	now := time.Now().UTC()
	tk, err := eng.Tracker().Created(context.Background(), web, task.NewStaged(web, now, now))
	if err != nil {
		t.Fatalf("Created: %v", err)
	}

	// The firehose saw the whole startup barrier plus the creation:
	// two migration steps, the migrated summary, and task.created.
	received := 0
	deadline := time.After(5 * time.Second)
	for received < 4 {
		select {
		case <-sub.C():
			received++
		case <-deadline:
			t.Fatalf("stream events = %d, want 4", received)
		}
	}

	// The audit trail carries the same history.
	if rec.find(audithook.ActionMigrated) == nil {
		t.Error("no storage.migrated audit event")
	}
	if evt := rec.find(audithook.ActionTaskCreated); evt == nil {
		t.Error("no task.created audit event")
	} else if evt.ResourceID != tk.ID {
		t.Errorf("task.created ResourceID = %q, want %q", evt.ResourceID, tk.ID)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := eng.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	// Shutdown closed the broker's subscribers.
	waitFor(t, func() bool {
		select {
		case _, ok := <-sub.C():
			return !ok
		default:
			return false
		}
	})
}
