// Package stream fans roster lifecycle events out to live subscribers
// over topic-based pub/sub. The broker hangs off the ext hook surface
// and republishes every hook as a typed, JSON-encoded event.
package stream

import (
	"encoding/json"
	"time"
)

// EventType is the dotted name of a lifecycle event, such as
// "task.created" or "storage.migrated".
type EventType string

const (
	// Task events.
	EventTaskCreated       EventType = "task.created"
	EventTaskRunning       EventType = "task.running"
	EventTaskUpdated       EventType = "task.updated"
	EventTaskTerminated    EventType = "task.terminated"
	EventTaskPersistFailed EventType = "task.persist_failed"
	EventTaskOverdue       EventType = "task.overdue"

	// Store events.
	EventOrphanExpunged EventType = "store.orphan_expunged"

	// Storage schema events.
	EventMigrationStep EventType = "storage.migration_step"
	EventMigrated      EventType = "storage.migrated"
)

// Event is the wire envelope subscribers receive: which lifecycle event
// fired, when, the entity topic it was published on (empty for system
// events), and a payload whose shape depends on the type.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"ts"`
	Topic     string          `json:"topic"`
	Data      json.RawMessage `json:"data"`
}

// TaskEventData is the payload for task lifecycle events.
type TaskEventData struct {
	TaskID  string `json:"task_id"`
	JobID   string `json:"job_id"`
	State   string `json:"state"`
	Host    string `json:"host,omitempty"`
	Healthy *bool  `json:"healthy,omitempty"`
	Error   string `json:"error,omitempty"`
}

// OrphanEventData is the payload for orphan cleanup events.
type OrphanEventData struct {
	Key string `json:"key"`
}

// StorageEventData is the payload for storage schema events.
type StorageEventData struct {
	Step   string `json:"step,omitempty"`
	Target string `json:"target,omitempty"`
	From   string `json:"from,omitempty"`
	To     string `json:"to,omitempty"`
	Steps  int    `json:"steps,omitempty"`
}
