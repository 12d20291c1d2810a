package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/devgrid/agent-orchestrator/internal/core/domain"
	"github.com/devgrid/agent-orchestrator/internal/core/port"
	"go.uber.org/zap"
)

// OrchestratorConfig tunes task execution.
type OrchestratorConfig struct {
	MaxParallelAgents int           // in-flight container cap for parallel phases
	PollInterval      time.Duration // container status poll cadence
	Network           string        // container network name
	Binds             []string      // host mounts shared with agents
}

type orchestratorService struct {
	cfg        OrchestratorConfig
	agents     map[string]domain.AgentConfig
	runtime    port.AgentRuntime
	store      port.StateStore
	archive    port.TaskArchive
	queue      port.QueueService
	admission  port.AdmissionChecker
	metrics    port.MetricsPublisher
	strategies *StrategyTable
	priorities *PriorityTable
	log        *zap.Logger

	// mu guards the active table and the mutable fields of the records in
	// it; status polls race task execution otherwise.
	mu     sync.Mutex
	active map[string]*domain.TaskRecord
}

// NewOrchestratorService wires the task orchestrator. The store, archive,
// queue, admission and metrics dependencies are optional; a nil value
// disables that concern.
func NewOrchestratorService(
	cfg OrchestratorConfig,
	agents map[string]domain.AgentConfig,
	runtime port.AgentRuntime,
	store port.StateStore,
	archive port.TaskArchive,
	queue port.QueueService,
	admission port.AdmissionChecker,
	metrics port.MetricsPublisher,
	strategies *StrategyTable,
	priorities *PriorityTable,
	log *zap.Logger,
) port.OrchestratorService {
	if cfg.MaxParallelAgents <= 0 {
		cfg.MaxParallelAgents = 4
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if agents == nil {
		agents = domain.DefaultAgents()
	}
	if strategies == nil {
		strategies = NewStrategyTable(nil)
	}
	if priorities == nil {
		priorities = NewPriorityTable(nil)
	}
	return &orchestratorService{
		cfg:        cfg,
		agents:     agents,
		runtime:    runtime,
		store:      store,
		archive:    archive,
		queue:      queue,
		admission:  admission,
		metrics:    metrics,
		strategies: strategies,
		priorities: priorities,
		active:     make(map[string]*domain.TaskRecord),
		log:        log,
	}
}

// Submit registers a pending task record and returns immediately.
func (s *orchestratorService) Submit(ctx context.Context, req domain.TaskRequest) (*domain.TaskRecord, error) {
	if !req.Mode.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownMode, req.Mode)
	}
	if len(req.Agents) == 0 {
		return nil, domain.ErrNoAgents
	}

	rec := domain.NewTaskRecord(req)

	s.mu.Lock()
	s.active[rec.ID] = rec
	s.mu.Unlock()

	s.persistStatus(ctx, rec.ID, domain.TaskStatusPending)
	s.log.Info("Task submitted",
		zap.String("task_id", rec.ID),
		zap.String("mode", string(req.Mode)),
		zap.Int("agents", len(req.Agents)))
	return rec, nil
}

// Execute runs a submitted task to a terminal state and returns its record.
func (s *orchestratorService) Execute(ctx context.Context, taskID string) (*domain.TaskRecord, error) {
	s.mu.Lock()
	rec, ok := s.active[taskID]
	if ok {
		rec.Status = domain.TaskStatusRunning
		rec.StartedAt = time.Now()
	}
	s.mu.Unlock()
	if !ok {
		return nil, domain.ErrTaskNotFound
	}
	s.persistStatus(ctx, rec.ID, domain.TaskStatusRunning)

	taskCtx, cancel := context.WithTimeout(ctx, time.Duration(rec.Request.Timeout)*time.Second)
	defer cancel()

	var (
		results map[string]any
		err     error
	)
	switch rec.Request.Mode {
	case domain.ModeParallel:
		results = s.executeParallel(taskCtx, rec.ID, rec.Request.Agents, rec.Request.Payload)
	case domain.ModeSequential:
		results, err = s.executeSequential(taskCtx, rec.ID, rec.Request.Agents, rec.Request.Payload)
	case domain.ModeHybrid:
		results, err = s.executeHybrid(taskCtx, rec)
	default:
		err = fmt.Errorf("%w: %q", domain.ErrUnknownMode, rec.Request.Mode)
	}

	s.mu.Lock()
	rec.FinishedAt = time.Now()
	rec.ExecutionTime = rec.FinishedAt.Sub(rec.StartedAt).Seconds()
	if err != nil {
		rec.Status = domain.TaskStatusFailed
		rec.Errors = append(rec.Errors, err.Error())
	} else {
		rec.Status = domain.TaskStatusCompleted
		rec.Results = results
	}
	elapsed := rec.ExecutionTime
	s.mu.Unlock()

	if err != nil {
		s.log.Error("Task failed",
			zap.String("task_id", rec.ID),
			zap.Float64("seconds", elapsed),
			zap.Error(err))
	} else {
		s.log.Info("Task completed",
			zap.String("task_id", rec.ID),
			zap.Float64("seconds", elapsed))
	}

	s.finishTask(rec)
	return rec, nil
}

// finishTask persists the terminal record, emits events and evicts it from
// the active table. All persistence here is best-effort.
func (s *orchestratorService) finishTask(rec *domain.TaskRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.persistStatus(ctx, rec.ID, rec.Status)
	if s.store != nil {
		if err := s.store.SetTaskExecutionTime(ctx, rec.ID, rec.ExecutionTime); err != nil {
			s.log.Warn("Failed to store execution time", zap.String("task_id", rec.ID), zap.Error(err))
		}
	}
	if s.archive != nil {
		if err := s.archive.Save(ctx, rec); err != nil {
			s.log.Warn("Failed to archive task", zap.String("task_id", rec.ID), zap.Error(err))
		}
	}
	if s.queue != nil {
		if err := s.queue.PublishResult(ctx, rec); err != nil {
			s.log.Warn("Failed to publish task result", zap.String("task_id", rec.ID), zap.Error(err))
		}
	}
	if s.metrics != nil {
		s.metrics.IncTask(string(rec.Request.Mode), rec.Status)
	}

	s.mu.Lock()
	delete(s.active, rec.ID)
	s.mu.Unlock()
}

func (s *orchestratorService) persistStatus(ctx context.Context, taskID string, status domain.TaskStatus) {
	if s.store == nil {
		return
	}
	if err := s.store.SetTaskStatus(ctx, taskID, status); err != nil {
		s.log.Warn("Failed to store task status", zap.String("task_id", taskID), zap.Error(err))
	}
}

// executeParallel fans the listed agents out over a bounded slot pool.
// Individual failures become per-slot error entries; the phase itself never
// fails.
func (s *orchestratorService) executeParallel(ctx context.Context, taskID string, agents []string, payload map[string]any) map[string]any {
	type slot struct {
		result map[string]any
		err    error
	}
	slots := make([]slot, len(agents))

	sem := make(chan struct{}, s.cfg.MaxParallelAgents)
	var wg sync.WaitGroup
	for i, name := range agents {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			res, err := s.runAgent(ctx, taskID, name, payload)
			slots[i] = slot{result: res, err: err}
		}(i, name)
	}
	wg.Wait()

	// Results are keyed by invocation order, not completion order.
	byAgent := make(map[string]any, len(agents))
	combined := []any{}
	for i := range slots {
		key := fmt.Sprintf("agent_%d", i)
		if slots[i].err != nil {
			byAgent[key] = map[string]any{"error": slots[i].err.Error()}
			continue
		}
		byAgent[key] = slots[i].result
		if out, ok := slots[i].result["output"]; ok {
			combined = append(combined, out)
		}
	}

	return map[string]any{
		"combined_output": combined,
		"by_agent":        byAgent,
	}
}

// executeSequential runs the agents in list order, folding each result into
// the next payload. The chain halts on the first failure.
func (s *orchestratorService) executeSequential(ctx context.Context, taskID string, agents []string, payload map[string]any) (map[string]any, error) {
	current := clonePayload(payload)
	results := make(map[string]any, len(agents))

	for _, name := range agents {
		res, err := s.runAgent(ctx, taskID, name, current)
		if err != nil {
			return nil, fmt.Errorf("agent %s: %w", name, err)
		}
		results[name] = res

		next := clonePayload(current)
		next[domain.PreviousResultKey] = res
		current = next
	}
	return results, nil
}

// executeHybrid walks the strategy for the task type phase by phase, feeding
// each phase's merged output into the next.
func (s *orchestratorService) executeHybrid(ctx context.Context, rec *domain.TaskRecord) (map[string]any, error) {
	strategy := s.strategies.For(rec.Request.TaskType, rec.Request.Agents)
	payload := clonePayload(rec.Request.Payload)
	results := make(map[string]any, len(strategy))

	for _, phase := range strategy {
		var (
			phaseResults map[string]any
			err          error
		)
		if phase.Parallel {
			phaseResults = s.executeParallel(ctx, rec.ID, phase.Agents, payload)
		} else {
			phaseResults, err = s.executeSequential(ctx, rec.ID, phase.Agents, payload)
		}
		if err != nil {
			return nil, fmt.Errorf("phase %s: %w", phase.Name, err)
		}
		results[phase.Name] = phaseResults

		next := clonePayload(payload)
		next[domain.PreviousPhaseKey] = phaseResults
		payload = next
	}
	return results, nil
}

// runAgent starts one agent container and waits for its result.
func (s *orchestratorService) runAgent(ctx context.Context, taskID, name string, payload map[string]any) (map[string]any, error) {
	cfg, ok := s.agents[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownAgent, name)
	}

	containerName := fmt.Sprintf("%s-%s", name, taskID)
	if err := s.admit(ctx, containerName, cfg); err != nil {
		return nil, err
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	memBytes, err := domain.ParseMemory(cfg.Resources.Memory)
	if err != nil {
		return nil, fmt.Errorf("agent %s memory spec: %w", name, err)
	}

	env := make([]string, 0, len(cfg.Environment)+2)
	for k, v := range cfg.Environment {
		env = append(env, k+"="+v)
	}
	env = append(env, "TASK_ID="+taskID, "PAYLOAD="+string(payloadJSON))

	id, err := s.runtime.StartAgent(ctx, domain.ContainerSpec{
		Name:        containerName,
		Image:       cfg.Image,
		Env:         env,
		MemoryBytes: memBytes,
		NanoCPUs:    int64(cfg.Resources.CPUs * 1e9),
		Binds:       s.cfg.Binds,
		Network:     s.cfg.Network,
		Labels:      map[string]string{"task_id": taskID, "agent": name},
	})
	if err != nil {
		return nil, fmt.Errorf("start agent %s: %w", name, err)
	}

	s.log.Debug("Agent container started",
		zap.String("task_id", taskID),
		zap.String("agent", name),
		zap.String("container_id", id))
	return s.waitForAgent(ctx, id, name)
}

// admit asks the resource manager for headroom when an admission checker is
// wired in. A denial fails the slot; an unreachable manager does not.
func (s *orchestratorService) admit(ctx context.Context, containerName string, cfg domain.AgentConfig) error {
	if s.admission == nil {
		return nil
	}
	resp, err := s.admission.RequestAllocation(ctx, &domain.ResourceRequest{
		ContainerName:  containerName,
		MemoryRequired: cfg.Resources.Memory,
		CPURequired:    cfg.Resources.CPUs,
		Priority:       s.priorities.Lookup(cfg.Name),
	})
	if err != nil {
		s.log.Warn("Admission check unavailable, proceeding",
			zap.String("container", containerName), zap.Error(err))
		return nil
	}
	if !resp.Approved {
		return fmt.Errorf("%w: %s", domain.ErrAdmissionDenied, resp.Reason)
	}
	return nil
}

// waitForAgent polls the container until it reaches a terminal state or the
// task deadline fires, then interprets its output.
func (s *orchestratorService) waitForAgent(ctx context.Context, containerID, name string) (map[string]any, error) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := s.runtime.StopAgent(stopCtx, containerID); err != nil {
				s.log.Warn("Failed to stop timed-out agent",
					zap.String("agent", name), zap.Error(err))
			}
			return nil, fmt.Errorf("%w: agent %s", domain.ErrExecutionTimeout, name)
		case <-ticker.C:
			state, err := s.runtime.InspectAgent(ctx, containerID)
			if err != nil {
				return nil, fmt.Errorf("inspect agent %s: %w", name, err)
			}
			if !state.Terminal() {
				continue
			}

			logs, err := s.runtime.AgentLogs(ctx, containerID)
			if err != nil {
				return nil, fmt.Errorf("read agent %s logs: %w", name, err)
			}
			if err := s.runtime.RemoveAgent(ctx, containerID); err != nil {
				s.log.Debug("Failed to remove agent container",
					zap.String("container_id", containerID), zap.Error(err))
			}
			return parseAgentResult(logs, name), nil
		}
	}
}

// parseAgentResult interprets the final log line as a JSON object; anything
// else wraps the raw output.
func parseAgentResult(logs, agent string) map[string]any {
	trimmed := strings.TrimRight(logs, "\n\r \t")
	if idx := strings.LastIndexByte(trimmed, '\n'); idx >= 0 {
		trimmed = trimmed[idx+1:]
	}

	var result map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(trimmed)), &result); err == nil && result != nil {
		return result
	}
	return map[string]any{"output": logs, "agent": agent}
}

// Agents lists the configured fleet sorted by name.
func (s *orchestratorService) Agents() []domain.AgentConfig {
	out := make([]domain.AgentConfig, 0, len(s.agents))
	for _, a := range s.agents {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// TaskStatus resolves a task id against the active table, then the state
// store, then the archive.
func (s *orchestratorService) TaskStatus(ctx context.Context, taskID string) (*domain.TaskStatusView, error) {
	s.mu.Lock()
	if rec, ok := s.active[taskID]; ok {
		view := &domain.TaskStatusView{ID: rec.ID, Status: string(rec.Status), ExecutionTime: rec.ExecutionTime}
		s.mu.Unlock()
		return view, nil
	}
	s.mu.Unlock()

	if s.store != nil {
		status, err := s.store.GetTaskStatus(ctx, taskID)
		if err == nil {
			seconds, err := s.store.GetTaskExecutionTime(ctx, taskID)
			if err != nil {
				seconds = 0
			}
			return &domain.TaskStatusView{ID: taskID, Status: status, ExecutionTime: seconds}, nil
		}
	}

	if s.archive != nil {
		archived, err := s.archive.GetByID(ctx, taskID)
		if err == nil && archived != nil {
			return &domain.TaskStatusView{ID: archived.ID, Status: string(archived.Status), ExecutionTime: archived.ExecutionTime}, nil
		}
	}
	return nil, domain.ErrTaskNotFound
}

// ListTasks serves the archived history, newest first.
func (s *orchestratorService) ListTasks(ctx context.Context, status domain.TaskStatus, limit int) ([]*domain.TaskRecord, error) {
	if s.archive == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}
	return s.archive.ListRecent(ctx, status, limit)
}

func clonePayload(payload map[string]any) map[string]any {
	out := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		out[k] = v
	}
	return out
}
