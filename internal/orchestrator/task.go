// Package orchestrator implements the async task lifecycle: task
// records, a per-project distributed lock, and the dispatch of the
// Coding/Theory pipeline either in-process or onto the Redis-Streams queue
// a separate worker process drains.
package orchestrator

import "time"

// Status is the lifecycle of one dispatched task.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Task is the record the status endpoint polls. Result/Error are
// mutually exclusive once the task reaches a terminal state.
type Task struct {
	TaskID    string
	Status    Status
	Progress  int // 0..100
	Message   string
	Step      string
	Result    map[string]any
	Error     string
	ErrorCode string

	ProjectID string
	OwnerID   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NextPollSeconds is the server-suggested backoff a polling client should
// honor.
func (t Task) NextPollSeconds(pollInterval time.Duration) int {
	if t.Status == StatusCompleted || t.Status == StatusFailed {
		return 0
	}
	secs := int(pollInterval.Seconds())
	if secs <= 0 {
		secs = 2
	}
	return secs
}
