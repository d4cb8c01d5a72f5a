package task

import "context"

// Emitter receives task lifecycle notifications from the tracker.
// ext.Registry satisfies it; declaring the interface here rather than
// importing ext breaks the import cycle between task and ext.
type Emitter interface {
	EmitTaskCreated(ctx context.Context, t *Task)
	EmitTaskRunning(ctx context.Context, t *Task)
	EmitTaskUpdated(ctx context.Context, t *Task)
	EmitTaskTerminated(ctx context.Context, t *Task)
	EmitTaskPersistFailed(ctx context.Context, t *Task, err error)
	EmitOrphanExpunged(ctx context.Context, key string)
}

// NopEmitter is an Emitter that discards everything. It is the tracker's
// default when no extension registry is wired in.
type NopEmitter struct{}

func (NopEmitter) EmitTaskCreated(context.Context, *Task)              {}
func (NopEmitter) EmitTaskRunning(context.Context, *Task)              {}
func (NopEmitter) EmitTaskUpdated(context.Context, *Task)              {}
func (NopEmitter) EmitTaskTerminated(context.Context, *Task)           {}
func (NopEmitter) EmitTaskPersistFailed(context.Context, *Task, error) {}
func (NopEmitter) EmitOrphanExpunged(context.Context, string)          {}
