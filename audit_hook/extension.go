package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/roster/ext"
	"github.com/xraph/roster/migration"
	"github.com/xraph/roster/task"
)

// Extension must keep satisfying every hook interface it audits.
var (
	_ ext.Extension         = (*Extension)(nil)
	_ ext.TaskCreated       = (*Extension)(nil)
	_ ext.TaskRunning       = (*Extension)(nil)
	_ ext.TaskUpdated       = (*Extension)(nil)
	_ ext.TaskTerminated    = (*Extension)(nil)
	_ ext.TaskPersistFailed = (*Extension)(nil)
	_ ext.TaskOverdue       = (*Extension)(nil)
	_ ext.OrphanExpunged    = (*Extension)(nil)
	_ ext.MigrationStep     = (*Extension)(nil)
	_ ext.Migrated          = (*Extension)(nil)
)

// Recorder receives finished audit events. chronicle.Emitter satisfies
// it, but the interface lives here so roster builds without the
// chronicle module; callers hand in the concrete recorder when wiring
// the extension.
type Recorder interface {
	// Record persists a fully-formed audit event.
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is the envelope handed to the Recorder. Its fields line up
// with chronicle/audit.Event so an adapter can map one onto the other
// without translation.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	ResourceID string         `json:"resource_id,omitempty"`
	Category   string         `json:"category"`
	Severity   string         `json:"severity"`
	Outcome    string         `json:"outcome"`
	Reason     string         `json:"reason,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// RecorderFunc adapts a plain function to the Recorder interface. The
// smallest useful recorder writes JSON lines:
//
//	rec := audithook.RecorderFunc(func(_ context.Context, evt *audithook.AuditEvent) error {
//	    return json.NewEncoder(trailFile).Encode(evt)
//	})
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record calls f.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Severity levels, lowest to highest. Values match chronicle/audit.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Outcome values, matching chronicle/audit.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Extension forwards roster lifecycle events to a Recorder as structured
// audit events.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil means every action
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through rec.
func New(rec Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: rec,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements ext.Extension.
func (e *Extension) Name() string { return "audit-hook" }

// ── Task lifecycle hooks ────────────────────────────

// OnTaskCreated implements ext.TaskCreated.
func (e *Extension) OnTaskCreated(ctx context.Context, t *task.Task) error {
	return e.record(ctx, ActionTaskCreated, ResourceTask, t.ID, CategoryTask,
		SeverityInfo, OutcomeSuccess, nil,
		"job_id", t.JobID.String(),
		"state", string(t.State),
	)
}

// OnTaskRunning implements ext.TaskRunning.
func (e *Extension) OnTaskRunning(ctx context.Context, t *task.Task) error {
	return e.record(ctx, ActionTaskRunning, ResourceTask, t.ID, CategoryTask,
		SeverityInfo, OutcomeSuccess, nil,
		"job_id", t.JobID.String(),
		"host", t.Host,
		"started_at", t.StartedAt.UTC().Format(time.RFC3339),
	)
}

// OnTaskUpdated implements ext.TaskUpdated. The healthy key is only
// present once a health report has arrived.
func (e *Extension) OnTaskUpdated(ctx context.Context, t *task.Task) error {
	kv := []any{
		"job_id", t.JobID.String(),
		"state", string(t.State),
	}
	if t.Health != nil {
		kv = append(kv, "healthy", *t.Health)
	}
	return e.record(ctx, ActionTaskUpdated, ResourceTask, t.ID, CategoryTask,
		SeverityInfo, OutcomeSuccess, nil, kv...)
}

// OnTaskTerminated implements ext.TaskTerminated. A clean exit or a
// requested kill audits as success; failed and lost tasks audit as
// warnings so trail consumers can alert on them.
func (e *Extension) OnTaskTerminated(ctx context.Context, t *task.Task) error {
	severity, outcome := SeverityInfo, OutcomeSuccess
	if t.State == task.StateFailed || t.State == task.StateLost {
		severity, outcome = SeverityWarning, OutcomeFailure
	}
	return e.record(ctx, ActionTaskTerminated, ResourceTask, t.ID, CategoryTask,
		severity, outcome, nil,
		"job_id", t.JobID.String(),
		"state", string(t.State),
	)
}

// OnTaskPersistFailed implements ext.TaskPersistFailed. Warning rather
// than critical: the next orphan sweep repairs the store.
func (e *Extension) OnTaskPersistFailed(ctx context.Context, t *task.Task, taskErr error) error {
	return e.record(ctx, ActionTaskPersistFailed, ResourceTask, t.ID, CategoryTask,
		SeverityWarning, OutcomeFailure, taskErr,
		"job_id", t.JobID.String(),
		"state", string(t.State),
	)
}

// OnTaskOverdue implements ext.TaskOverdue.
func (e *Extension) OnTaskOverdue(ctx context.Context, t *task.Task) error {
	return e.record(ctx, ActionTaskOverdue, ResourceTask, t.ID, CategoryTask,
		SeverityWarning, OutcomeFailure, nil,
		"job_id", t.JobID.String(),
		"state", string(t.State),
		"staged_at", t.StagedAt.UTC().Format(time.RFC3339),
	)
}

// ── Reconciliation hooks ────────────────────────────

// OnOrphanExpunged implements ext.OrphanExpunged. The expunge itself
// succeeded, but an orphaned key means an earlier expunge did not, so
// the event carries warning severity.
func (e *Extension) OnOrphanExpunged(ctx context.Context, key string) error {
	return e.record(ctx, ActionOrphanExpunged, ResourceStoreKey, key, CategoryStore,
		SeverityWarning, OutcomeSuccess, nil)
}

// ── Migration hooks ─────────────────────────────────

// OnMigrationStep implements ext.MigrationStep.
func (e *Extension) OnMigrationStep(ctx context.Context, name string, target migration.Version) error {
	return e.record(ctx, ActionMigrationStep, ResourceStorage, name, CategoryStorage,
		SeverityInfo, OutcomeSuccess, nil,
		"target", target.String(),
	)
}

// OnMigrated implements ext.Migrated.
func (e *Extension) OnMigrated(ctx context.Context, from, to migration.Version, steps int) error {
	return e.record(ctx, ActionMigrated, ResourceStorage, to.String(), CategoryStorage,
		SeverityInfo, OutcomeSuccess, nil,
		"from", from.String(),
		"to", to.String(),
		"steps", steps,
	)
}

// ── Internal helpers ────────────────────────────────

// record assembles and delivers one audit event, unless the action has
// been filtered out via WithActions. Recorder failures are logged and
// swallowed: the audit trail must never stall the task pipeline.
func (e *Extension) record(
	ctx context.Context,
	action, resource, resourceID, category string,
	severity, outcome string,
	err error,
	kv ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		Category:   category,
		Severity:   severity,
		Outcome:    outcome,
		Metadata:   metadata(kv, err),
	}
	if err != nil {
		evt.Reason = err.Error()
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: recorder rejected event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}

// metadata folds the key-value pairs, plus the triggering error if any,
// into the event metadata map. Non-string keys are stringified rather
// than dropped.
func metadata(kv []any, err error) map[string]any {
	m := make(map[string]any, len(kv)/2+1)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		m[key] = kv[i+1]
	}
	if err != nil {
		m["error"] = err.Error()
	}
	return m
}
