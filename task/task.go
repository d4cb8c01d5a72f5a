package task

import (
	"time"

	"github.com/xraph/roster/id"
	"github.com/xraph/roster/store"
)

// State represents the reported lifecycle state of a task.
type State string

const (
	// StateStaged means the task has been handed to the cluster but no
	// agent has confirmed it yet.
	StateStaged State = "staged"
	// StateStarting means an agent is bringing the task up.
	StateStarting State = "starting"
	// StateRunning means the task runs and its start was confirmed.
	StateRunning State = "running"
	// StateFinished means the task exited successfully.
	StateFinished State = "finished"
	// StateFailed means the task exited with an error.
	StateFailed State = "failed"
	// StateKilled means the task was killed on request.
	StateKilled State = "killed"
	// StateLost means the cluster lost track of the task.
	StateLost State = "lost"
)

// Terminal reports whether a task in this state will never transition
// again.
func (s State) Terminal() bool {
	switch s {
	case StateFinished, StateFailed, StateKilled, StateLost:
		return true
	}
	return false
}

// Task is one instance of a job on the cluster.
//
// Tasks are immutable once cached: every update builds a modified copy and
// swaps the pointer, so holders of a *Task never observe partial writes and
// pointer equality identifies "unchanged". Concurrent updates to the same
// task resolve by last write wins.
type Task struct {
	ID        string    `json:"id"`
	JobID     id.JobID  `json:"job_id"`
	State     State     `json:"state"`
	StagedAt  time.Time `json:"staged_at"`
	StartedAt time.Time `json:"started_at,omitzero"`
	Health    *bool     `json:"health,omitempty"`
	Version   time.Time `json:"version,omitzero"`
	Host      string    `json:"host,omitempty"`
	Ports     []int     `json:"ports,omitempty"`
}

// NewStaged builds a freshly staged task for a job. Version is the
// timestamp of the job definition the task launches from.
func NewStaged(job id.JobID, version, now time.Time) *Task {
	return &Task{
		ID:       id.NewTaskID(job),
		JobID:    job,
		State:    StateStaged,
		StagedAt: now,
		Version:  version,
	}
}

// Key returns the task's store key.
func (t *Task) Key() string { return store.TaskKey(t.JobID, t.ID) }

// Started reports whether the task's start has been confirmed.
func (t *Task) Started() bool { return !t.StartedAt.IsZero() }

// withStatus returns a copy of t with the report applied.
func (t *Task) withStatus(st Status) *Task {
	cp := *t
	cp.State = st.State
	if st.Health != nil {
		h := *st.Health
		cp.Health = &h
	}
	return &cp
}

// withStart returns a copy of t promoted to a confirmed start.
func (t *Task) withStart(st Status, startedAt time.Time) *Task {
	cp := *t.withStatus(st)
	cp.StartedAt = startedAt
	return &cp
}

// Status is an incoming state report for a task. Health is optional;
// reports without it leave the task's known health untouched.
type Status struct {
	TaskID    string    `json:"task_id"`
	State     State     `json:"state"`
	Health    *bool     `json:"health,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// StatusDidChange reports whether applying st would change the task's
// observable state: either the report carries health differing from the
// task's known health, or its state differs. Health is only compared when
// the report includes one.
func StatusDidChange(cur *Task, st Status) bool {
	if st.Health != nil && (cur.Health == nil || *cur.Health != *st.Health) {
		return true
	}
	return st.State != cur.State
}
