package core

import (
	"time"

	"github.com/google/uuid"
)

// TaskStatus is the closed set of lifecycle states a Task moves through.
type TaskStatus string

const (
	TaskPending   TaskStatus = "PENDING"
	TaskRunning   TaskStatus = "RUNNING"
	TaskCompleted TaskStatus = "COMPLETED"
	TaskAbandoned TaskStatus = "ABANDONED"
	TaskFailed    TaskStatus = "FAILED"
)

// Task is a single scheduled intent to probe one monitor. At most one
// worker ever leases a given task (see Storage.LockTasks).
type Task struct {
	ID          string
	Timestamp   int64
	MonitorID   string
	Status      TaskStatus
	LockedAt    *int64
	LockedBy    *string
	CompletedAt *int64
}

// NewTask creates a fresh PENDING task for the given monitor, stamped
// with the current time.
func NewTask(monitorID string) *Task {
	return &Task{
		ID:        uuid.NewString(),
		Timestamp: time.Now().Unix(),
		MonitorID: monitorID,
		Status:    TaskPending,
	}
}

// Abandon transitions the task to ABANDONED and stamps CompletedAt.
func (t *Task) Abandon() {
	now := time.Now().Unix()
	t.Status = TaskAbandoned
	t.CompletedAt = &now
}

// IsStale reports whether the task's age since creation exceeds
// threshold, measured against now (both in epoch seconds).
func (t *Task) IsStale(now int64, threshold int64) bool {
	return now-t.Timestamp > threshold
}
