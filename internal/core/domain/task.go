// Package domain provides the task, agent and resource entities shared by the
// orchestrator & resource manager services.
package domain

import (
	"time"

	"github.com/google/uuid"
)

type ExecutionMode string

const (
	ModeParallel   ExecutionMode = "parallel"
	ModeSequential ExecutionMode = "sequential"
	ModeHybrid     ExecutionMode = "hybrid"
)

// Valid reports whether the mode is one of the supported execution topologies.
func (m ExecutionMode) Valid() bool {
	switch m {
	case ModeParallel, ModeSequential, ModeHybrid:
		return true
	}
	return false
}

type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// Reserved payload keys used to chain results between agents and phases.
const (
	PreviousResultKey = "previous_result"
	PreviousPhaseKey  = "previous_phase"
)

// Timeout bounds in seconds for a single task.
const (
	MinTaskTimeout     = 60
	MaxTaskTimeout     = 3600
	DefaultTaskTimeout = 3600
)

// TaskRequest describes one unit of work submitted by a client.
// It is immutable once submitted.
type TaskRequest struct {
	TaskType string         `json:"task_type"`
	Mode     ExecutionMode  `json:"execution_mode"`
	Agents   []string       `json:"agents"`
	Payload  map[string]any `json:"payload"`
	Timeout  int            `json:"timeout"` // seconds
}

// Normalize fills the timeout default and clamps it into the allowed bounds.
func (r *TaskRequest) Normalize() {
	if r.Timeout == 0 {
		r.Timeout = DefaultTaskTimeout
	}
	if r.Timeout < MinTaskTimeout {
		r.Timeout = MinTaskTimeout
	}
	if r.Timeout > MaxTaskTimeout {
		r.Timeout = MaxTaskTimeout
	}
	if r.Payload == nil {
		r.Payload = map[string]any{}
	}
}

// TaskRecord owns a TaskRequest and accumulates its execution outcome.
// Only the orchestrator that created it mutates the record.
type TaskRecord struct {
	ID            string         `json:"task_id"`
	Request       TaskRequest    `json:"request"`
	Status        TaskStatus     `json:"status"`
	Results       map[string]any `json:"results"`
	Errors        []string       `json:"errors"`
	CreatedAt     time.Time      `json:"created_at"`
	StartedAt     time.Time      `json:"started_at,omitempty"`
	FinishedAt    time.Time      `json:"finished_at,omitempty"`
	ExecutionTime float64        `json:"execution_time"` // seconds
}

// NewTaskRecord creates a pending record with a fresh short task id.
func NewTaskRecord(req TaskRequest) *TaskRecord {
	return &TaskRecord{
		ID:        uuid.NewString()[:8],
		Request:   req,
		Status:    TaskStatusPending,
		Results:   map[string]any{},
		Errors:    []string{},
		CreatedAt: time.Now(),
	}
}

// Terminal reports whether the record reached a final status.
func (t *TaskRecord) Terminal() bool {
	return t.Status == TaskStatusCompleted || t.Status == TaskStatusFailed
}

// TaskStatusView is the slim status projection served by GET /tasks/{id},
// backed by the state store once the full record has been evicted.
type TaskStatusView struct {
	ID            string  `json:"task_id"`
	Status        string  `json:"status"`
	ExecutionTime float64 `json:"execution_time"`
}
