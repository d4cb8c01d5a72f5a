package task_test

import (
	"testing"
	"time"

	"github.com/xraph/roster/id"
	"github.com/xraph/roster/task"
)

func boolPtr(b bool) *bool { return &b }

func TestStateTerminal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		state task.State
		want  bool
	}{
		{task.StateStaged, false},
		{task.StateStarting, false},
		{task.StateRunning, false},
		{task.StateFinished, true},
		{task.StateFailed, true},
		{task.StateKilled, true},
		{task.StateLost, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			if got := tt.state.Terminal(); got != tt.want {
				t.Errorf("Terminal(%s) = %v, want %v", tt.state, got, tt.want)
			}
		})
	}
}

func TestNewStaged(t *testing.T) {
	t.Parallel()

	job := id.MustParse("/group/web")
	version := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := time.Date(2025, 6, 2, 8, 30, 0, 0, time.UTC)

	tk := task.NewStaged(job, version, now)

	if tk.JobID != job {
		t.Errorf("job: got %q, want %q", tk.JobID.String(), job.String())
	}
	if tk.State != task.StateStaged {
		t.Errorf("state: got %q, want %q", tk.State, task.StateStaged)
	}
	if !tk.StagedAt.Equal(now) {
		t.Errorf("stagedAt: got %v, want %v", tk.StagedAt, now)
	}
	if tk.Started() {
		t.Error("fresh task must not have a confirmed start")
	}
	if !tk.Version.Equal(version) {
		t.Errorf("version: got %v, want %v", tk.Version, version)
	}
	if tk.ID == "" {
		t.Error("expected a minted task ID")
	}
	if tk.Key() != "/group/web:"+tk.ID {
		t.Errorf("key: got %q", tk.Key())
	}
}

func TestStatusDidChange(t *testing.T) {
	t.Parallel()

	base := &task.Task{
		ID:    "web.0001",
		JobID: id.MustParse("/web"),
		State: task.StateRunning,
	}
	withHealth := &task.Task{
		ID:     "web.0002",
		JobID:  id.MustParse("/web"),
		State:  task.StateRunning,
		Health: boolPtr(true),
	}

	tests := []struct {
		name string
		cur  *task.Task
		st   task.Status
		want bool
	}{
		{
			name: "same state no health",
			cur:  base,
			st:   task.Status{State: task.StateRunning},
			want: false,
		},
		{
			name: "state differs",
			cur:  base,
			st:   task.Status{State: task.StateFailed},
			want: true,
		},
		{
			name: "health appears",
			cur:  base,
			st:   task.Status{State: task.StateRunning, Health: boolPtr(true)},
			want: true,
		},
		{
			name: "health flips",
			cur:  withHealth,
			st:   task.Status{State: task.StateRunning, Health: boolPtr(false)},
			want: true,
		},
		{
			name: "health equal same state",
			cur:  withHealth,
			st:   task.Status{State: task.StateRunning, Health: boolPtr(true)},
			want: false,
		},
		{
			name: "health equal state differs",
			cur:  withHealth,
			st:   task.Status{State: task.StateStarting, Health: boolPtr(true)},
			want: true,
		},
		{
			name: "health absent leaves known health out of it",
			cur:  withHealth,
			st:   task.Status{State: task.StateRunning},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := task.StatusDidChange(tt.cur, tt.st); got != tt.want {
				t.Errorf("StatusDidChange = %v, want %v", got, tt.want)
			}
		})
	}
}
