package store_test

import (
	"testing"

	"github.com/xraph/roster/id"
	"github.com/xraph/roster/store"
)

func TestTaskKeyRoundTrip(t *testing.T) {
	t.Parallel()

	job := id.MustParse("/group/web")
	key := store.TaskKey(job, "group_web.0001")

	if key != "/group/web:group_web.0001" {
		t.Fatalf("TaskKey = %q", key)
	}

	gotJob, gotTask, err := store.SplitTaskKey(key)
	if err != nil {
		t.Fatalf("SplitTaskKey failed: %v", err)
	}
	if gotJob != job {
		t.Errorf("job: got %q, want %q", gotJob.String(), job.String())
	}
	if gotTask != "group_web.0001" {
		t.Errorf("task: got %q, want %q", gotTask, "group_web.0001")
	}
}

func TestIsTaskKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		key  string
		want bool
	}{
		{"/web:t1", true},
		{"/group/web:group_web.0001", true},
		{"app:/web", false},
		{"group:root", false},
		{"internal:storage:version", false},
		{"/web", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := store.IsTaskKey(tt.key); got != tt.want {
				t.Errorf("IsTaskKey(%q) = %v, want %v", tt.key, got, tt.want)
			}
		})
	}
}

func TestSplitTaskKeyRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		key  string
	}{
		{"not a task key", "app:/web"},
		{"no separator", "/web"},
		{"empty task id", "/web:"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := store.SplitTaskKey(tt.key); err == nil {
				t.Errorf("expected error for %q, got nil", tt.key)
			}
		})
	}
}

func TestTaskPrefix(t *testing.T) {
	t.Parallel()

	if got := store.TaskPrefix(id.MustParse("/group/web")); got != "/group/web:" {
		t.Errorf("TaskPrefix = %q, want %q", got, "/group/web:")
	}
}
