// Package rest provides the fiber HTTP surfaces of the orchestrator and the
// resource manager.
package rest

import "github.com/devgrid/agent-orchestrator/internal/core/domain"

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HealthResponse answers liveness probes.
type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Timestamp string `json:"timestamp"`
}

// AgentView is the GET /agents projection of one agent descriptor.
type AgentView struct {
	Name      string              `json:"name"`
	Role      string              `json:"role"`
	Image     string              `json:"image"`
	Resources domain.ResourceSpec `json:"resources"`
}

// AgentsResponse wraps the configured fleet.
type AgentsResponse struct {
	Agents []AgentView `json:"agents"`
}

// TasksResponse wraps the archived task history.
type TasksResponse struct {
	Tasks []*domain.TaskRecord `json:"tasks"`
}

// ContainersResponse wraps the raw snapshot list.
type ContainersResponse struct {
	Containers []*domain.ContainerUsage `json:"containers"`
}

// RebalanceResponse acknowledges a forced sampling cycle.
type RebalanceResponse struct {
	Message string `json:"message"`
}
