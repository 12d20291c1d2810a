package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/devgrid/agent-orchestrator/internal/core/domain"
	"github.com/devgrid/agent-orchestrator/internal/core/port"
	"go.uber.org/zap"
)

// ResourceConfig holds the global budget and sampling settings.
type ResourceConfig struct {
	MaxMemoryBytes  int64
	MaxCPUCores     int
	CheckInterval   time.Duration
	ManagedPrefixes []string // container-name substrings the governor manages
}

// Remediation constants: limits shrink by 10% during violation walks and by
// 30% in the free-for-priority pass; priority >= 8 earns the one-shot retry.
const (
	violationShrinkFactor = 0.9
	priorityShrinkFactor  = 0.7
	highPriorityThreshold = 8
	stopPriorityCeiling   = 3
	scalePriorityCeiling  = 5
)

type resourceService struct {
	cfg        ResourceConfig
	runtime    port.AgentRuntime
	store      port.StateStore
	metrics    port.MetricsPublisher
	priorities *PriorityTable
	log        *zap.Logger

	// mu guards the snapshot table and allocation history; admission
	// requests and the sampling loop run on different goroutines.
	mu          sync.Mutex
	usage       map[string]*domain.ContainerUsage
	allocations []*domain.Allocation
}

// NewResourceService wires the resource manager. Store and metrics are
// optional.
func NewResourceService(
	cfg ResourceConfig,
	runtime port.AgentRuntime,
	store port.StateStore,
	metrics port.MetricsPublisher,
	priorities *PriorityTable,
	log *zap.Logger,
) port.ResourceService {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 30 * time.Second
	}
	if len(cfg.ManagedPrefixes) == 0 {
		cfg.ManagedPrefixes = []string{"agent", "claude", "gemini", "codeium"}
	}
	if priorities == nil {
		priorities = NewPriorityTable(nil)
	}
	return &resourceService{
		cfg:        cfg,
		runtime:    runtime,
		store:      store,
		metrics:    metrics,
		priorities: priorities,
		usage:      make(map[string]*domain.ContainerUsage),
		log:        log,
	}
}

// Run drives the sampling loop until the context is cancelled. Cycle errors
// are logged and retried after a short backoff, never fatal.
func (s *resourceService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.CheckInterval)
	defer ticker.Stop()

	s.log.Info("Resource monitoring started",
		zap.Duration("interval", s.cfg.CheckInterval),
		zap.Int64("memory_cap_bytes", s.cfg.MaxMemoryBytes),
		zap.Int("cpu_cap_cores", s.cfg.MaxCPUCores))

	for {
		select {
		case <-ctx.Done():
			s.log.Info("Stopping resource monitoring loop")
			return
		case <-ticker.C:
			if err := s.CheckResources(ctx); err != nil {
				s.log.Error("Resource check cycle failed", zap.Error(err))
				time.Sleep(5 * time.Second)
			}
		}
	}
}

// CheckResources runs one sampling cycle: refresh every managed container's
// snapshot, publish metrics, persist, then remediate cap violations.
func (s *resourceService) CheckResources(ctx context.Context) error {
	containers, err := s.runtime.ListAgents(ctx)
	if err != nil {
		return fmt.Errorf("list containers: %w", err)
	}

	var (
		totalMemory int64
		totalCPU    float64
	)
	for _, c := range containers {
		if !s.managed(c.Name) {
			continue
		}

		usage, err := s.runtime.UsageStats(ctx, c.ID, c.Name)
		if err != nil {
			s.log.Warn("Failed to read container stats",
				zap.String("container", c.Name), zap.Error(err))
			continue
		}
		usage.Status = c.Status

		s.mu.Lock()
		s.usage[usage.Name] = usage
		s.mu.Unlock()

		if s.metrics != nil {
			s.metrics.SetContainerUsage(usage.Name, usage.MemoryUsage, usage.CPUPercent)
		}
		totalMemory += usage.MemoryUsage
		totalCPU += usage.CPUPercent

		if s.store != nil {
			if err := s.store.SaveUsage(ctx, usage); err != nil {
				s.log.Warn("Failed to persist snapshot",
					zap.String("container", usage.Name), zap.Error(err))
			}
		}
	}

	if s.metrics != nil {
		s.metrics.SetTotals(totalMemory, totalCPU)
	}

	cpuCap := float64(s.cfg.MaxCPUCores) * 100
	if totalMemory > s.cfg.MaxMemoryBytes {
		if s.metrics != nil {
			s.metrics.IncViolation("memory")
		}
		s.log.Warn("Memory budget exceeded",
			zap.Int64("current", totalMemory),
			zap.Int64("limit", s.cfg.MaxMemoryBytes),
			zap.Int64("overage", totalMemory-s.cfg.MaxMemoryBytes))
		s.remediateMemory(ctx, totalMemory)
	}
	if totalCPU > cpuCap {
		if s.metrics != nil {
			s.metrics.IncViolation("cpu")
		}
		s.log.Warn("CPU budget exceeded",
			zap.Float64("current", totalCPU),
			zap.Float64("limit", cpuCap))
		s.remediateCPU(ctx, totalCPU)
	}
	return nil
}

func (s *resourceService) managed(name string) bool {
	for _, prefix := range s.cfg.ManagedPrefixes {
		if strings.Contains(name, prefix) {
			return true
		}
	}
	return false
}

// remediateMemory shrinks the heaviest consumers by 10% until the total fits
// the cap or candidates run out. Ties break toward lower priority. Per-item
// failures are logged and skipped.
func (s *resourceService) remediateMemory(ctx context.Context, current int64) {
	snaps := s.sortedSnapshots(func(a, b *domain.ContainerUsage) bool {
		if a.MemoryUsage != b.MemoryUsage {
			return a.MemoryUsage > b.MemoryUsage
		}
		return s.priorities.Lookup(a.Name) < s.priorities.Lookup(b.Name)
	})

	for _, u := range snaps {
		if current <= s.cfg.MaxMemoryBytes {
			break
		}
		newLimit := int64(float64(u.MemoryLimit) * violationShrinkFactor)
		if err := s.runtime.UpdateMemoryLimit(ctx, u.ContainerID, newLimit); err != nil {
			s.log.Error("Memory scale-down failed",
				zap.String("container", u.Name), zap.Error(err))
			continue
		}
		current -= u.MemoryLimit - newLimit
		s.log.Info("Memory limit scaled down",
			zap.String("container", u.Name),
			zap.Int64("new_limit", newLimit))
	}
}

// remediateCPU throttles the busiest consumers by 10% until the total fits
// the cap or candidates run out.
func (s *resourceService) remediateCPU(ctx context.Context, current float64) {
	cpuCap := float64(s.cfg.MaxCPUCores) * 100
	snaps := s.sortedSnapshots(func(a, b *domain.ContainerUsage) bool {
		if a.CPUPercent != b.CPUPercent {
			return a.CPUPercent > b.CPUPercent
		}
		return s.priorities.Lookup(a.Name) < s.priorities.Lookup(b.Name)
	})

	for _, u := range snaps {
		if current <= cpuCap {
			break
		}
		// Quota in microseconds per 100ms CFS period.
		newQuota := int64(u.CPUPercent * violationShrinkFactor * 100000 / 100)
		if err := s.runtime.UpdateCPUQuota(ctx, u.ContainerID, newQuota); err != nil {
			s.log.Error("CPU throttle failed",
				zap.String("container", u.Name), zap.Error(err))
			continue
		}
		current -= u.CPUPercent * (1 - violationShrinkFactor)
		s.log.Info("CPU quota throttled",
			zap.String("container", u.Name),
			zap.Int64("new_quota", newQuota))
	}
}

func (s *resourceService) sortedSnapshots(less func(a, b *domain.ContainerUsage) bool) []*domain.ContainerUsage {
	snaps := s.Snapshots()
	sort.Slice(snaps, func(i, j int) bool { return less(snaps[i], snaps[j]) })
	return snaps
}

// RequestAllocation approves the request iff both memory and CPU headroom
// cover it. High-priority requesters get one free-resources pass and a
// single re-check.
func (s *resourceService) RequestAllocation(ctx context.Context, req *domain.ResourceRequest) (*domain.ResourceResponse, error) {
	requiredMemory, err := domain.ParseMemory(req.MemoryRequired)
	if err != nil {
		return nil, fmt.Errorf("memory_required: %w", err)
	}
	requiredCPU := req.CPURequired * 100
	if req.Priority == 0 {
		req.Priority = domain.DefaultPriority
	}
	if req.Priority < 1 || req.Priority > 10 {
		return nil, fmt.Errorf("priority %d out of range 1..10", req.Priority)
	}

	currentMemory, currentCPU := s.currentTotals()
	memoryOK := s.cfg.MaxMemoryBytes-currentMemory >= requiredMemory
	cpuOK := float64(s.cfg.MaxCPUCores)*100-currentCPU >= requiredCPU

	if !memoryOK || !cpuOK {
		if req.Priority < highPriorityThreshold {
			return s.deny(memoryOK, cpuOK), nil
		}

		freedMemory, freedCPU := s.freeForPriority(ctx, requiredMemory, requiredCPU)
		memoryOK = s.cfg.MaxMemoryBytes-(currentMemory-freedMemory) >= requiredMemory
		cpuOK = float64(s.cfg.MaxCPUCores)*100-(currentCPU-freedCPU) >= requiredCPU
		if !memoryOK || !cpuOK {
			return s.deny(memoryOK, cpuOK), nil
		}
		return s.grant(ctx, req, requiredMemory, "resources allocated after rebalancing"), nil
	}

	return s.grant(ctx, req, requiredMemory, "resources allocated successfully"), nil
}

func (s *resourceService) deny(memoryOK, cpuOK bool) *domain.ResourceResponse {
	return &domain.ResourceResponse{
		Approved: false,
		Reason:   fmt.Sprintf("insufficient resources: memory available: %t, cpu available: %t", memoryOK, cpuOK),
	}
}

func (s *resourceService) grant(ctx context.Context, req *domain.ResourceRequest, requiredMemory int64, reason string) *domain.ResourceResponse {
	alloc := &domain.Allocation{
		ContainerName: req.ContainerName,
		MemoryBytes:   requiredMemory,
		CPUFraction:   req.CPURequired,
		Priority:      req.Priority,
		CanScale:      true,
		GrantedAt:     time.Now(),
	}

	s.mu.Lock()
	s.allocations = append(s.allocations, alloc)
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.SaveAllocation(ctx, alloc); err != nil {
			s.log.Warn("Failed to persist allocation",
				zap.String("container", req.ContainerName), zap.Error(err))
		}
	}

	s.log.Info("Resources allocated",
		zap.String("container", req.ContainerName),
		zap.Int64("memory_bytes", requiredMemory),
		zap.Float64("cpu", req.CPURequired),
		zap.Int("priority", req.Priority))
	return &domain.ResourceResponse{
		Approved:        true,
		AllocatedMemory: requiredMemory,
		AllocatedCPU:    req.CPURequired,
		Reason:          reason,
	}
}

// freeForPriority stops or shrinks low-priority containers until enough
// capacity is freed for the request. One pass only; stopped containers leave
// the snapshot table.
func (s *resourceService) freeForPriority(ctx context.Context, requiredMemory int64, requiredCPU float64) (int64, float64) {
	s.log.Info("Freeing resources for high-priority request",
		zap.Int64("required_memory", requiredMemory),
		zap.Float64("required_cpu", requiredCPU))

	snaps := s.sortedSnapshots(func(a, b *domain.ContainerUsage) bool {
		return s.priorities.Lookup(a.Name) < s.priorities.Lookup(b.Name)
	})

	var (
		freedMemory int64
		freedCPU    float64
	)
	for _, u := range snaps {
		if freedMemory >= requiredMemory && freedCPU >= requiredCPU {
			break
		}
		priority := s.priorities.Lookup(u.Name)
		if priority > scalePriorityCeiling {
			continue
		}

		if priority <= stopPriorityCeiling {
			if err := s.runtime.StopAgent(ctx, u.ContainerID); err != nil {
				s.log.Error("Failed to stop container for priority",
					zap.String("container", u.Name), zap.Error(err))
				continue
			}
			freedMemory += u.MemoryUsage
			freedCPU += u.CPUPercent

			s.mu.Lock()
			delete(s.usage, u.Name)
			s.mu.Unlock()

			s.log.Info("Container stopped for priority", zap.String("container", u.Name))
			continue
		}

		newLimit := int64(float64(u.MemoryLimit) * priorityShrinkFactor)
		if err := s.runtime.UpdateMemoryLimit(ctx, u.ContainerID, newLimit); err != nil {
			s.log.Error("Failed to scale container for priority",
				zap.String("container", u.Name), zap.Error(err))
			continue
		}
		freedMemory += u.MemoryLimit - newLimit
		s.log.Info("Container scaled down for priority", zap.String("container", u.Name))
	}
	return freedMemory, freedCPU
}

func (s *resourceService) currentTotals() (int64, float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		memory int64
		cpu    float64
	)
	for _, u := range s.usage {
		memory += u.MemoryUsage
		cpu += u.CPUPercent
	}
	return memory, cpu
}

// Summary returns the aggregate usage view.
func (s *resourceService) Summary() *domain.ResourceSummary {
	snaps := s.Snapshots()

	var (
		totalMemory int64
		totalCPU    float64
	)
	briefs := make([]domain.ContainerBrief, 0, len(snaps))
	for _, u := range snaps {
		totalMemory += u.MemoryUsage
		totalCPU += u.CPUPercent
		briefs = append(briefs, domain.ContainerBrief{
			Name:       u.Name,
			MemoryMB:   float64(u.MemoryUsage) / 1024 / 1024,
			CPUPercent: u.CPUPercent,
			Status:     u.Status,
		})
	}

	cpuCap := float64(s.cfg.MaxCPUCores) * 100
	summary := &domain.ResourceSummary{
		TotalMemoryUsed:  totalMemory,
		TotalMemoryLimit: s.cfg.MaxMemoryBytes,
		TotalCPUUsed:     totalCPU,
		TotalCPULimit:    cpuCap,
		ActiveContainers: len(snaps),
		Containers:       briefs,
	}
	if s.cfg.MaxMemoryBytes > 0 {
		summary.MemoryUsagePercent = float64(totalMemory) / float64(s.cfg.MaxMemoryBytes) * 100
	}
	if cpuCap > 0 {
		summary.CPUUsagePercent = totalCPU / cpuCap * 100
	}
	return summary
}

// Snapshots returns a copy of the current snapshot table, sorted by name for
// stable output.
func (s *resourceService) Snapshots() []*domain.ContainerUsage {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*domain.ContainerUsage, 0, len(s.usage))
	for _, u := range s.usage {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
