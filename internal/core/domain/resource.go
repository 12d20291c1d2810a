package domain

import "time"

// ContainerUsage is a point-in-time resource snapshot for one managed
// container. A snapshot is always replaced whole, never merged.
type ContainerUsage struct {
	ContainerID string    `json:"container_id"`
	Name        string    `json:"name"`
	MemoryUsage int64     `json:"memory_usage"` // bytes
	MemoryLimit int64     `json:"memory_limit"` // bytes
	CPUPercent  float64   `json:"cpu_percent"`
	Status      string    `json:"status"`
	SampledAt   time.Time `json:"sampled_at"`
}

// Allocation is a granted resource request. Append-only; never mutated after
// creation.
type Allocation struct {
	ContainerName string    `json:"container_name"`
	MemoryBytes   int64     `json:"memory_bytes"`
	CPUFraction   float64   `json:"cpu_fraction"` // cores
	Priority      int       `json:"priority"`
	CanScale      bool      `json:"can_scale"`
	GrantedAt     time.Time `json:"granted_at"`
}

// ResourceRequest asks the resource manager for headroom before a container
// starts.
type ResourceRequest struct {
	ContainerName  string  `json:"container_name"`
	MemoryRequired string  `json:"memory_required"` // K/M/G suffixed
	CPURequired    float64 `json:"cpu_required"`    // cores
	Priority       int     `json:"priority"`        // 1..10, higher wins
}

// ResourceResponse is the admission decision.
type ResourceResponse struct {
	Approved        bool    `json:"approved"`
	AllocatedMemory int64   `json:"allocated_memory,omitempty"`
	AllocatedCPU    float64 `json:"allocated_cpu,omitempty"`
	Reason          string  `json:"reason"`
}

// ContainerBrief is the per-container line of a usage summary.
type ContainerBrief struct {
	Name       string  `json:"name"`
	MemoryMB   float64 `json:"memory_mb"`
	CPUPercent float64 `json:"cpu_percent"`
	Status     string  `json:"status"`
}

// ResourceSummary is the aggregate usage view.
type ResourceSummary struct {
	TotalMemoryUsed    int64            `json:"total_memory_used"`
	TotalMemoryLimit   int64            `json:"total_memory_limit"`
	MemoryUsagePercent float64          `json:"memory_usage_percent"`
	TotalCPUUsed       float64          `json:"total_cpu_used"`
	TotalCPULimit      float64          `json:"total_cpu_limit"`
	CPUUsagePercent    float64          `json:"cpu_usage_percent"`
	ActiveContainers   int              `json:"active_containers"`
	Containers         []ContainerBrief `json:"containers"`
}

// ContainerSpec describes the isolated execution context for one agent
// invocation.
type ContainerSpec struct {
	Name        string
	Image       string
	Env         []string
	MemoryBytes int64
	NanoCPUs    int64
	Binds       []string
	Network     string
	Labels      map[string]string
}

// ContainerState is the lifecycle view of a running agent container.
type ContainerState struct {
	Status   string // created, running, exited, dead, ...
	ExitCode int
}

// Terminal reports whether the container finished executing.
func (s ContainerState) Terminal() bool {
	return s.Status == "exited" || s.Status == "dead"
}

// ContainerInfo identifies one live container in a runtime listing.
type ContainerInfo struct {
	ID     string
	Name   string
	Status string
}

// CPUPercentage computes a CPU usage percentage from two consecutive
// cumulative counter samples. Zero or negative deltas yield zero rather than
// a division error.
func CPUPercentage(cpuDelta, systemDelta int64, cores int) float64 {
	if cpuDelta <= 0 || systemDelta <= 0 {
		return 0
	}
	if cores <= 0 {
		cores = 1
	}
	return float64(cpuDelta) / float64(systemDelta) * float64(cores) * 100.0
}
