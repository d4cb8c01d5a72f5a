package task

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/xraph/roster"
	"github.com/xraph/roster/codec"
	"github.com/xraph/roster/id"
	"github.com/xraph/roster/store"
)

// Tracker is the authoritative in-memory registry of tasks grouped by
// job, kept write-through against the persistent store.
//
// Each job's tasks live in their own entry with its own lock; there is no
// tracker-wide lock, and entry creation is atomic, so jobs never contend
// with each other. Entries populate lazily from the store on first access
// and disappear once a draining job's last task terminates.
type Tracker struct {
	client  *store.Client
	codec   codec.JSON[Task]
	emitter Emitter
	logger  *slog.Logger
	limiter *rate.Limiter

	stagedTimeout      time.Duration
	unconfirmedTimeout time.Duration

	jobs sync.Map // job path → *jobEntry
}

// jobEntry is the cached task set for one job.
type jobEntry struct {
	mu       sync.RWMutex
	tasks    map[string]*Task
	draining bool
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithStagedTimeout sets how long a staged task may wait before
// DetermineOverdueTasks reports it.
func WithStagedTimeout(d time.Duration) Option {
	return func(tr *Tracker) { tr.stagedTimeout = d }
}

// WithUnconfirmedTimeout sets how long a task may go without a confirmed
// start before DetermineOverdueTasks reports it.
func WithUnconfirmedTimeout(d time.Duration) Option {
	return func(tr *Tracker) { tr.unconfirmedTimeout = d }
}

// WithEmitter sets the lifecycle event emitter.
func WithEmitter(e Emitter) Option {
	return func(tr *Tracker) { tr.emitter = e }
}

// WithScanLimiter paces per-key store operations during job loads and
// orphan sweeps.
func WithScanLimiter(l *rate.Limiter) Option {
	return func(tr *Tracker) { tr.limiter = l }
}

// NewTracker creates a tracker over the given store client.
func NewTracker(client *store.Client, logger *slog.Logger, opts ...Option) *Tracker {
	defaults := roster.DefaultConfig()
	tr := &Tracker{
		client:             client,
		codec:              codec.NewJSON[Task](),
		emitter:            NopEmitter{},
		logger:             logger,
		stagedTimeout:      defaults.StagedTimeout,
		unconfirmedTimeout: defaults.UnconfirmedTimeout,
	}
	for _, opt := range opts {
		opt(tr)
	}
	return tr
}

// ──────────────────────────────────────────────────
// Entry access
// ──────────────────────────────────────────────────

// loaded returns the job's entry if cached, without store access.
func (tr *Tracker) loaded(job id.JobID) (*jobEntry, bool) {
	v, ok := tr.jobs.Load(job.String())
	if !ok {
		return nil, false
	}
	return v.(*jobEntry), true
}

// entry returns the job's entry, populating it from the store on first
// access. Concurrent first accesses may both scan the store; exactly one
// registration wins and the losers adopt the winner's entry.
func (tr *Tracker) entry(ctx context.Context, job id.JobID) (*jobEntry, error) {
	if e, ok := tr.loaded(job); ok {
		return e, nil
	}

	fetched, err := tr.fetchJob(ctx, job)
	if err != nil {
		return nil, err
	}

	actual, loaded := tr.jobs.LoadOrStore(job.String(), fetched)
	if !loaded {
		tr.logger.Debug("job loaded from store",
			slog.String("job_id", job.String()),
			slog.Int("tasks", len(fetched.tasks)),
		)
	}
	return actual.(*jobEntry), nil
}

// fetchJob builds an entry from every store key under the job's prefix.
func (tr *Tracker) fetchJob(ctx context.Context, job id.JobID) (*jobEntry, error) {
	names, err := tr.client.Names(ctx)
	if err != nil {
		return nil, err
	}

	prefix := store.TaskPrefix(job)
	e := &jobEntry{tasks: make(map[string]*Task)}
	for _, name := range names {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		t, err := tr.fetchTask(ctx, name)
		if err != nil {
			// Deleted between the scan and the fetch; nothing to load.
			if errors.Is(err, roster.ErrKeyNotFound) {
				continue
			}
			return nil, err
		}
		e.tasks[t.ID] = t
	}
	return e, nil
}

// fetchTask reads and decodes a single task record.
func (tr *Tracker) fetchTask(ctx context.Context, key string) (*Task, error) {
	if err := tr.pace(ctx); err != nil {
		return nil, err
	}

	data, err := tr.client.Fetch(ctx, key)
	if err != nil {
		return nil, err
	}

	t, err := tr.codec.Decode(data)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (tr *Tracker) pace(ctx context.Context) error {
	if tr.limiter == nil {
		return nil
	}
	return tr.limiter.Wait(ctx)
}

// ──────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────

// Get returns a snapshot of the job's tasks, sorted by task ID. The job
// is loaded from the store on first access.
func (tr *Tracker) Get(ctx context.Context, job id.JobID) ([]*Task, error) {
	e, err := tr.entry(ctx, job)
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	out := make([]*Task, 0, len(e.tasks))
	for _, t := range e.tasks {
		out = append(out, t)
	}
	e.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetTask returns a single task, loading the job on first access.
func (tr *Tracker) GetTask(ctx context.Context, job id.JobID, taskID string) (*Task, error) {
	e, err := tr.entry(ctx, job)
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	t, ok := e.tasks[taskID]
	if !ok {
		return nil, roster.ErrTaskNotFound
	}
	return t, nil
}

// GetVersion returns the job-definition version a task was launched from,
// loading the job on first access.
func (tr *Tracker) GetVersion(ctx context.Context, job id.JobID, taskID string) (time.Time, error) {
	t, err := tr.GetTask(ctx, job, taskID)
	if err != nil {
		return time.Time{}, err
	}
	return t.Version, nil
}

// List returns a snapshot of every cached job's tasks. Cache-only: jobs
// never touched on this node do not appear.
func (tr *Tracker) List() map[id.JobID][]*Task {
	out := make(map[id.JobID][]*Task)
	tr.jobs.Range(func(k, v any) bool {
		job := id.MustParse(k.(string))
		e := v.(*jobEntry)

		e.mu.RLock()
		tasks := make([]*Task, 0, len(e.tasks))
		for _, t := range e.tasks {
			tasks = append(tasks, t)
		}
		e.mu.RUnlock()

		sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
		out[job] = tasks
		return true
	})
	return out
}

// Count returns the number of cached tasks for a job. No store access.
func (tr *Tracker) Count(job id.JobID) int {
	e, ok := tr.loaded(job)
	if !ok {
		return 0
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.tasks)
}

// Contains reports whether the job has a cache entry. No store access.
func (tr *Tracker) Contains(job id.JobID) bool {
	_, ok := tr.loaded(job)
	return ok
}

// Take returns up to n cached tasks for a job, in no particular order.
// No store access.
func (tr *Tracker) Take(job id.JobID, n int) []*Task {
	e, ok := tr.loaded(job)
	if !ok || n <= 0 {
		return nil
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]*Task, 0, n)
	for _, t := range e.tasks {
		out = append(out, t)
		if len(out) == n {
			break
		}
	}
	return out
}

// ──────────────────────────────────────────────────
// Transitions
// ──────────────────────────────────────────────────

// Created registers a freshly launched task in the cache. It deliberately
// writes nothing to the store: the record becomes durable on its first
// persisted transition. A crash before that loses the task, and
// reconciliation cannot resurrect what was never stored.
func (tr *Tracker) Created(ctx context.Context, job id.JobID, t *Task) (*Task, error) {
	if t.JobID != job {
		cp := *t
		cp.JobID = job
		t = &cp
	}

	e, err := tr.entry(ctx, job)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.tasks[t.ID] = t
	e.mu.Unlock()

	tr.logger.Debug("task created",
		slog.String("job_id", job.String()),
		slog.String("task_id", t.ID),
	)
	tr.emitter.EmitTaskCreated(ctx, t)
	return t, nil
}

// Running promotes a staged task to a confirmed start: it records the
// report's timestamp as startedAt, applies the reported state, updates the
// cache synchronously, and persists in the background. Fails with
// roster.ErrTaskNotFound if the job has no such task and with
// roster.ErrTaskAlreadyRunning if the start was already confirmed.
func (tr *Tracker) Running(ctx context.Context, job id.JobID, st Status) (*Task, error) {
	e, err := tr.entry(ctx, job)
	if err != nil {
		return nil, err
	}

	startedAt := st.Timestamp
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}

	e.mu.Lock()
	cur, ok := e.tasks[st.TaskID]
	if !ok {
		e.mu.Unlock()
		return nil, roster.ErrTaskNotFound
	}
	if cur.Started() {
		e.mu.Unlock()
		return nil, roster.ErrTaskAlreadyRunning
	}

	updated := cur.withStart(st, startedAt)
	data, err := tr.codec.Encode(*updated)
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	e.tasks[st.TaskID] = updated
	e.mu.Unlock()

	tr.persist(ctx, updated, data)
	tr.emitter.EmitTaskRunning(ctx, updated)
	return updated, nil
}

// StatusUpdate applies a state report to a cached task. When the report
// changes nothing it returns the cached task unmodified and issues no
// store write. When no cached task matches it returns nil and logs a
// warning; the report is dropped.
func (tr *Tracker) StatusUpdate(ctx context.Context, job id.JobID, st Status) (*Task, error) {
	e, err := tr.entry(ctx, job)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	cur, ok := e.tasks[st.TaskID]
	if !ok {
		e.mu.Unlock()
		tr.logger.Warn("status update for unknown task",
			slog.String("job_id", job.String()),
			slog.String("task_id", st.TaskID),
			slog.String("state", string(st.State)),
		)
		return nil, nil
	}

	if !StatusDidChange(cur, st) {
		e.mu.Unlock()
		return cur, nil
	}

	updated := cur.withStatus(st)
	data, err := tr.codec.Encode(*updated)
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	e.tasks[st.TaskID] = updated
	e.mu.Unlock()

	tr.persist(ctx, updated, data)
	tr.emitter.EmitTaskUpdated(ctx, updated)
	return updated, nil
}

// persist fires the store write without blocking the transition and
// routes the eventual failure, if any, to the emitter. The client logs
// the warning.
func (tr *Tracker) persist(ctx context.Context, t *Task, data []byte) {
	d := tr.client.DeferPut(ctx, t.Key(), data)
	bg := context.WithoutCancel(ctx)
	go func() {
		if err := d.Err(); err != nil {
			tr.emitter.EmitTaskPersistFailed(bg, t, err)
		}
	}()
}

// Terminated removes a task from the cache and synchronously awaits the
// store deletion. It returns the removed task, or nil if the task was not
// cached; the deletion is awaited either way. A draining job whose last
// task terminates is evicted from the cache.
func (tr *Tracker) Terminated(ctx context.Context, job id.JobID, taskID string) (*Task, error) {
	var removed *Task
	if e, ok := tr.loaded(job); ok {
		e.mu.Lock()
		removed = e.tasks[taskID]
		delete(e.tasks, taskID)
		evict := e.draining && len(e.tasks) == 0
		e.mu.Unlock()

		if evict {
			tr.jobs.Delete(job.String())
			tr.logger.Info("job drained", slog.String("job_id", job.String()))
		}
	}

	if err := tr.client.Expunge(ctx, store.TaskKey(job, taskID)); err != nil {
		return nil, err
	}

	if removed != nil {
		tr.emitter.EmitTaskTerminated(ctx, removed)
	}
	return removed, nil
}

// Shutdown marks a job as draining. The cache entry disappears once its
// last task terminates; a job with no cached tasks is evicted immediately.
func (tr *Tracker) Shutdown(job id.JobID) {
	e, ok := tr.loaded(job)
	if !ok {
		return
	}

	e.mu.Lock()
	e.draining = true
	evict := len(e.tasks) == 0
	e.mu.Unlock()

	if evict {
		tr.jobs.Delete(job.String())
	}
	tr.logger.Info("job draining", slog.String("job_id", job.String()))
}

// ──────────────────────────────────────────────────
// Reconciliation
// ──────────────────────────────────────────────────

// DetermineOverdueTasks returns cached tasks that have waited too long to
// launch, sorted by key. Two clocks apply: a task still reported staged is
// overdue once stagedAt precedes now minus the staged timeout, and a task
// whose start was never confirmed is overdue once stagedAt precedes now
// minus the unconfirmed timeout, whatever its reported state. A task with
// a confirmed start is never overdue. No store access.
func (tr *Tracker) DetermineOverdueTasks(now time.Time) []*Task {
	stagedCut := now.Add(-tr.stagedTimeout)
	unconfirmedCut := now.Add(-tr.unconfirmedTimeout)

	var overdue []*Task
	tr.jobs.Range(func(_, v any) bool {
		e := v.(*jobEntry)
		e.mu.RLock()
		for _, t := range e.tasks {
			if t.Started() {
				continue
			}
			if (t.State == StateStaged && t.StagedAt.Before(stagedCut)) ||
				t.StagedAt.Before(unconfirmedCut) {
				overdue = append(overdue, t)
			}
		}
		e.mu.RUnlock()
		return true
	})

	sort.Slice(overdue, func(i, j int) bool { return overdue[i].Key() < overdue[j].Key() })
	return overdue
}

// ExpungeOrphanedTasks deletes every store key in the task namespace that
// no cached task implies. Orphans appear when a write lands after its
// caller gave up waiting, or when another node removed a job this one
// still had cached. Each deletion is synchronous and logged; a failed
// delete aborts the sweep with the store's error.
func (tr *Tracker) ExpungeOrphanedTasks(ctx context.Context) error {
	names, err := tr.client.Names(ctx)
	if err != nil {
		return err
	}

	cached := make(map[string]struct{})
	tr.jobs.Range(func(_, v any) bool {
		e := v.(*jobEntry)
		e.mu.RLock()
		for _, t := range e.tasks {
			cached[t.Key()] = struct{}{}
		}
		e.mu.RUnlock()
		return true
	})

	removed := 0
	for _, name := range names {
		if !store.IsTaskKey(name) {
			continue
		}
		if _, ok := cached[name]; ok {
			continue
		}

		if err := tr.pace(ctx); err != nil {
			return err
		}
		if err := tr.client.Expunge(ctx, name); err != nil {
			return err
		}
		tr.logger.Info("expunged orphaned task key", slog.String("key", name))
		tr.emitter.EmitOrphanExpunged(ctx, name)
		removed++
	}

	if removed > 0 {
		tr.logger.Info("orphan sweep complete", slog.Int("removed", removed))
	}
	return nil
}
