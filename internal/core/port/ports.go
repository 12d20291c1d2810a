// Package port provides the behavior interfaces connecting services to
// adapters and handlers.
package port

import (
	"context"

	"github.com/devgrid/agent-orchestrator/internal/core/domain"
)

// AgentRuntime drives the isolated execution contexts agents run in (Docker).
type AgentRuntime interface {
	// StartAgent creates and starts a container, returning its id.
	StartAgent(ctx context.Context, spec domain.ContainerSpec) (string, error)
	InspectAgent(ctx context.Context, containerID string) (domain.ContainerState, error)
	// AgentLogs returns the container's captured stdout.
	AgentLogs(ctx context.Context, containerID string) (string, error)
	StopAgent(ctx context.Context, containerID string) error
	RemoveAgent(ctx context.Context, containerID string) error

	// ListAgents enumerates live containers for the sampling loop.
	ListAgents(ctx context.Context) ([]domain.ContainerInfo, error)
	// UsageStats reads one resource sample for a container.
	UsageStats(ctx context.Context, containerID, name string) (*domain.ContainerUsage, error)
	UpdateMemoryLimit(ctx context.Context, containerID string, bytes int64) error
	UpdateCPUQuota(ctx context.Context, containerID string, quota int64) error
}

// StateStore persists task status, resource snapshots and allocation records
// across process restarts (Redis).
type StateStore interface {
	SetTaskStatus(ctx context.Context, taskID string, status domain.TaskStatus) error
	SetTaskExecutionTime(ctx context.Context, taskID string, seconds float64) error
	GetTaskStatus(ctx context.Context, taskID string) (string, error)
	GetTaskExecutionTime(ctx context.Context, taskID string) (float64, error)
	SaveUsage(ctx context.Context, usage *domain.ContainerUsage) error
	SaveAllocation(ctx context.Context, alloc *domain.Allocation) error
}

// TaskArchive keeps terminal task records once they leave the in-memory
// active table (Postgres).
type TaskArchive interface {
	Save(ctx context.Context, rec *domain.TaskRecord) error
	GetByID(ctx context.Context, id string) (*domain.TaskRecord, error)
	ListRecent(ctx context.Context, status domain.TaskStatus, limit int) ([]*domain.TaskRecord, error)
}

// QueueService is the async task intake and result event stream (RabbitMQ).
type QueueService interface {
	// PublishResult emits a terminal task record to the events exchange.
	PublishResult(ctx context.Context, rec *domain.TaskRecord) error
	// ConsumeTaskRequests feeds externally submitted requests to the handler.
	ConsumeTaskRequests(ctx context.Context, handler func(req *domain.TaskRequest) error) error
}

// MetricsPublisher exports usage gauges and violation counters.
type MetricsPublisher interface {
	SetContainerUsage(name string, memoryBytes int64, cpuPercent float64)
	SetTotals(memoryBytes int64, cpuPercent float64)
	IncViolation(kind string)
	IncTask(mode string, status domain.TaskStatus)
}

// AdmissionChecker approves or denies a resource request against the global
// budget. Implemented by the resource manager service and by its HTTP client.
type AdmissionChecker interface {
	RequestAllocation(ctx context.Context, req *domain.ResourceRequest) (*domain.ResourceResponse, error)
}

// OrchestratorService is the task execution surface exposed over HTTP and the
// intake queue.
type OrchestratorService interface {
	Submit(ctx context.Context, req domain.TaskRequest) (*domain.TaskRecord, error)
	Execute(ctx context.Context, taskID string) (*domain.TaskRecord, error)
	Agents() []domain.AgentConfig
	TaskStatus(ctx context.Context, taskID string) (*domain.TaskStatusView, error)
	// ListTasks returns recently archived records, newest first, optionally
	// filtered by status.
	ListTasks(ctx context.Context, status domain.TaskStatus, limit int) ([]*domain.TaskRecord, error)
}

// ResourceService is the resource governance surface.
type ResourceService interface {
	AdmissionChecker
	// Run drives the sampling loop until the context is cancelled.
	Run(ctx context.Context)
	CheckResources(ctx context.Context) error
	Summary() *domain.ResourceSummary
	Snapshots() []*domain.ContainerUsage
}
