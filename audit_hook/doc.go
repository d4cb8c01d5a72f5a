// Package audithook turns roster lifecycle events into audit trail
// entries. It implements every task, reconciliation, and storage hook
// the ext package defines and forwards a structured [AuditEvent] for
// each through a pluggable [Recorder].
//
// Severity tracks how alarming the transition is: routine transitions
// audit as info, while overdue kills, lost persistence writes, and
// orphaned-key cleanup audit as warnings. Metadata carries the job path,
// task state, agent host, and the storage versions involved.
//
// A Recorder is usually a thin adapter over the trail backend. Bridging
// to Chronicle and wiring the extension into an engine:
//
//	rec := audithook.RecorderFunc(func(ctx context.Context, evt *audithook.AuditEvent) error {
//	    return chronicle.Info(ctx, evt.Action, evt.Resource, evt.ResourceID).
//	        Category(evt.Category).
//	        Outcome(evt.Outcome).
//	        Record()
//	})
//	eng, err := engine.Build(keeper, engine.WithExtension(audithook.New(rec)))
//
// Use [WithActions] when only part of the lifecycle belongs in the
// trail, for example terminal states and completed migrations.
package audithook
