package store

import (
	"fmt"
	"strings"

	"github.com/xraph/roster/id"
)

// Task keys join the job path and the task ID with a colon:
// "/group/web:group_web.0001". Job paths always begin with "/" and never
// contain ":", so the first colon splits a key unambiguously and the other
// namespaces ("app:", "group:root", "internal:storage:version") can never
// collide with task keys.

const taskKeySep = ":"

// TaskKey builds the store key for a task.
func TaskKey(job id.JobID, taskID string) string {
	return job.String() + taskKeySep + taskID
}

// TaskPrefix returns the prefix shared by all of a job's task keys.
func TaskPrefix(job id.JobID) string {
	return job.String() + taskKeySep
}

// IsTaskKey reports whether a store key belongs to the task namespace.
func IsTaskKey(key string) bool {
	return strings.HasPrefix(key, "/") && strings.Contains(key, taskKeySep)
}

// SplitTaskKey splits a task key into its job ID and task ID.
func SplitTaskKey(key string) (id.JobID, string, error) {
	if !IsTaskKey(key) {
		return id.Nil, "", fmt.Errorf("roster/store: %q is not a task key", key)
	}

	i := strings.Index(key, taskKeySep)
	taskID := key[i+1:]
	if taskID == "" {
		return id.Nil, "", fmt.Errorf("roster/store: task key %q has an empty task id", key)
	}

	job, err := id.Parse(key[:i])
	if err != nil {
		return id.Nil, "", fmt.Errorf("roster/store: task key %q: %w", key, err)
	}

	return job, taskID, nil
}
