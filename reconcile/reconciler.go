// Package reconcile drives the background repair loops that keep the task
// cache and the persistent store consistent: a periodic sweep for tasks
// that never launched, and a scheduled sweep for store keys no cached task
// implies.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/xraph/roster"
	"github.com/xraph/roster/backoff"
	"github.com/xraph/roster/id"
	"github.com/xraph/roster/task"
)

// Killer terminates tasks flagged by overdue sweeps. The scheduling layer
// above roster implements it; the reconciler only decides which tasks are
// past their launch deadlines.
type Killer interface {
	Kill(ctx context.Context, job id.JobID, taskID string) error
}

// Emitter emits overdue lifecycle events.
// ext.Registry satisfies this interface via EmitTaskOverdue.
type Emitter interface {
	EmitTaskOverdue(ctx context.Context, t *task.Task)
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithOverdueInterval sets how often the overdue sweep runs.
func WithOverdueInterval(d time.Duration) Option {
	return func(r *Reconciler) { r.overdueInterval = d }
}

// WithOrphanSchedule sets the cron expression for orphan sweeps.
func WithOrphanSchedule(expr string) Option {
	return func(r *Reconciler) { r.orphanSchedule = expr }
}

// WithBackoff sets the delay strategy applied after a failed orphan sweep.
func WithBackoff(s backoff.Strategy) Option {
	return func(r *Reconciler) { r.backoff = s }
}

// cronParser supports standard 5-field cron and descriptors like "@hourly".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSchedule parses a cron expression and returns the schedule.
// Exported so configuration can be validated before a Reconciler exists.
func ParseSchedule(expr string) (cronlib.Schedule, error) {
	return cronParser.Parse(expr)
}

// Reconciler owns the two repair loops. The overdue loop ticks on a fixed
// interval and hands stale tasks to the Killer; the orphan loop follows a
// cron schedule and deletes task keys the cache does not imply. A failed
// orphan sweep is retried on the backoff strategy instead of waiting for
// the next scheduled slot.
type Reconciler struct {
	tracker *task.Tracker
	killer  Killer
	emitter Emitter
	logger  *slog.Logger

	overdueInterval time.Duration
	orphanSchedule  string
	schedule        cronlib.Schedule
	backoff         backoff.Strategy

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewReconciler creates a reconciler over the given tracker. The killer
// and emitter may be nil, in which case overdue tasks are only logged.
func NewReconciler(
	tracker *task.Tracker,
	killer Killer,
	emitter Emitter,
	logger *slog.Logger,
	opts ...Option,
) (*Reconciler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := roster.DefaultConfig()
	r := &Reconciler{
		tracker:         tracker,
		killer:          killer,
		emitter:         emitter,
		logger:          logger,
		overdueInterval: defaults.OverdueInterval,
		orphanSchedule:  defaults.OrphanSchedule,
		backoff:         backoff.DefaultStrategy(),
		stopCh:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}

	sched, err := ParseSchedule(r.orphanSchedule)
	if err != nil {
		return nil, fmt.Errorf("roster/reconcile: orphan schedule %q: %w", r.orphanSchedule, err)
	}
	r.schedule = sched
	return r, nil
}

// Start launches the sweep goroutines. It returns immediately.
func (r *Reconciler) Start(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return nil
	}
	r.running = true

	r.logger.Info("reconciler starting",
		slog.Duration("overdue_interval", r.overdueInterval),
		slog.String("orphan_schedule", r.orphanSchedule),
	)

	r.wg.Add(2)
	go r.overdueLoop()
	go r.orphanLoop()

	return nil
}

// Stop signals the loops to stop and waits for them to finish. An
// in-flight sweep runs to completion; if the context expires first, Stop
// returns its error without waiting further.
func (r *Reconciler) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	r.mu.Unlock()

	close(r.stopCh)

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("reconciler stopped")
		return nil
	case <-ctx.Done():
		r.logger.Warn("reconciler shutdown timed out")
		return ctx.Err()
	}
}

// overdueLoop runs SweepOverdue on a fixed ticker.
func (r *Reconciler) overdueLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.overdueInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.SweepOverdue(context.Background())
		}
	}
}

// orphanLoop runs SweepOrphans on the cron schedule, switching to backoff
// delays while sweeps fail.
func (r *Reconciler) orphanLoop() {
	defer r.wg.Done()

	failures := 0
	for {
		now := time.Now()
		var wait time.Duration
		if failures > 0 {
			wait = r.backoff.Delay(failures)
		} else {
			wait = r.schedule.Next(now).Sub(now)
		}

		timer := time.NewTimer(wait)
		select {
		case <-r.stopCh:
			timer.Stop()
			return
		case <-timer.C:
		}

		if err := r.SweepOrphans(context.Background()); err != nil {
			failures++
			r.logger.Error("orphan sweep failed",
				slog.Int("consecutive_failures", failures),
				slog.String("error", err.Error()),
			)
			continue
		}
		failures = 0
	}
}

// SweepOverdue flags every task past its launch deadline, emits the
// overdue hook for each, and hands them to the killer. Kill failures are
// logged and do not stop the sweep; the task stays cached and the next
// sweep flags it again. Returns the number of tasks flagged.
func (r *Reconciler) SweepOverdue(ctx context.Context) int {
	overdue := r.tracker.DetermineOverdueTasks(time.Now().UTC())
	if len(overdue) == 0 {
		return 0
	}

	r.logger.Info("overdue sweep", slog.Int("tasks", len(overdue)))
	for _, t := range overdue {
		r.logger.Warn("task overdue",
			slog.String("job_id", t.JobID.String()),
			slog.String("task_id", t.ID),
			slog.Time("staged_at", t.StagedAt),
		)
		if r.emitter != nil {
			r.emitter.EmitTaskOverdue(ctx, t)
		}
		if r.killer == nil {
			continue
		}
		if err := r.killer.Kill(ctx, t.JobID, t.ID); err != nil {
			r.logger.Error("kill overdue task failed",
				slog.String("job_id", t.JobID.String()),
				slog.String("task_id", t.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return len(overdue)
}

// SweepOrphans deletes every store key in the task namespace that no
// cached task implies. The tracker emits the per-key hook.
func (r *Reconciler) SweepOrphans(ctx context.Context) error {
	return r.tracker.ExpungeOrphanedTasks(ctx)
}
