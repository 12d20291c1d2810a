package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/devgrid/agent-orchestrator/internal/core/domain"
	"github.com/devgrid/agent-orchestrator/internal/core/port"
)

// fakeRuntime is an in-memory AgentRuntime. Containers exit immediately with
// the logs produced by logsFor unless neverExit is set.
type fakeRuntime struct {
	mu         sync.Mutex
	seq        int
	containers map[string]domain.ContainerSpec
	logsFor    func(spec domain.ContainerSpec) string
	neverExit  bool
	stopped    []string
	removed    []string
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{
		containers: make(map[string]domain.ContainerSpec),
		logsFor: func(spec domain.ContainerSpec) string {
			return fmt.Sprintf(`{"output":"out-%s"}`, spec.Labels["agent"])
		},
	}
}

func (f *fakeRuntime) StartAgent(_ context.Context, spec domain.ContainerSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	id := fmt.Sprintf("ctr-%d", f.seq)
	f.containers[id] = spec
	return id, nil
}

func (f *fakeRuntime) InspectAgent(_ context.Context, containerID string) (domain.ContainerState, error) {
	if f.neverExit {
		return domain.ContainerState{Status: "running"}, nil
	}
	return domain.ContainerState{Status: "exited"}, nil
}

func (f *fakeRuntime) AgentLogs(_ context.Context, containerID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logsFor(f.containers[containerID]), nil
}

func (f *fakeRuntime) StopAgent(_ context.Context, containerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, containerID)
	return nil
}

func (f *fakeRuntime) RemoveAgent(_ context.Context, containerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, containerID)
	return nil
}

func (f *fakeRuntime) ListAgents(context.Context) ([]domain.ContainerInfo, error) { return nil, nil }

func (f *fakeRuntime) UsageStats(context.Context, string, string) (*domain.ContainerUsage, error) {
	return nil, nil
}

func (f *fakeRuntime) UpdateMemoryLimit(context.Context, string, int64) error { return nil }

func (f *fakeRuntime) UpdateCPUQuota(context.Context, string, int64) error { return nil }

func (f *fakeRuntime) specByAgent(agent string) (domain.ContainerSpec, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, spec := range f.containers {
		if spec.Labels["agent"] == agent {
			return spec, true
		}
	}
	return domain.ContainerSpec{}, false
}

func newTestOrchestrator(rt port.AgentRuntime, strategies *StrategyTable) port.OrchestratorService {
	return NewOrchestratorService(
		OrchestratorConfig{MaxParallelAgents: 2, PollInterval: 5 * time.Millisecond},
		nil, rt, nil, nil, nil, nil, nil, strategies, nil, zap.NewNop(),
	)
}

func payloadOf(t *testing.T, spec domain.ContainerSpec) map[string]any {
	t.Helper()
	for _, e := range spec.Env {
		if strings.HasPrefix(e, "PAYLOAD=") {
			var m map[string]any
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(e, "PAYLOAD=")), &m))
			return m
		}
	}
	t.Fatal("container has no PAYLOAD env")
	return nil
}

func TestSubmitRejectsInvalidRequests(t *testing.T) {
	svc := newTestOrchestrator(newFakeRuntime(), nil)

	_, err := svc.Submit(context.Background(), domain.TaskRequest{
		Mode: "batch", Agents: []string{"claude-architect"}, Timeout: 60,
	})
	assert.ErrorIs(t, err, domain.ErrUnknownMode)

	_, err = svc.Submit(context.Background(), domain.TaskRequest{Mode: domain.ModeParallel, Timeout: 60})
	assert.ErrorIs(t, err, domain.ErrNoAgents)
}

func TestExecuteParallel(t *testing.T) {
	rt := newFakeRuntime()
	svc := newTestOrchestrator(rt, nil)

	rec, err := svc.Submit(context.Background(), domain.TaskRequest{
		TaskType: "code_review",
		Mode:     domain.ModeParallel,
		Agents:   []string{"claude-architect", "gemini-developer", "nonexistent"},
		Timeout:  60,
	})
	require.NoError(t, err)

	rec, err = svc.Execute(context.Background(), rec.ID)
	require.NoError(t, err)

	// Individual slot failures never fail the task.
	assert.Equal(t, domain.TaskStatusCompleted, rec.Status)
	assert.Empty(t, rec.Errors)

	byAgent, ok := rec.Results["by_agent"].(map[string]any)
	require.True(t, ok)
	assert.Len(t, byAgent, 3)

	// Slots are keyed by invocation order regardless of completion order.
	first, ok := byAgent["agent_0"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "out-claude-architect", first["output"])

	failed, ok := byAgent["agent_2"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, failed["error"], "nonexistent")

	combined, ok := rec.Results["combined_output"].([]any)
	require.True(t, ok)
	assert.Len(t, combined, 2)

	// Finished containers are cleaned up.
	assert.Len(t, rt.removed, 2)
}

func TestExecuteSequentialChainsResults(t *testing.T) {
	rt := newFakeRuntime()
	svc := newTestOrchestrator(rt, nil)

	rec, err := svc.Submit(context.Background(), domain.TaskRequest{
		Mode:    domain.ModeSequential,
		Agents:  []string{"claude-architect", "gemini-developer"},
		Payload: map[string]any{"ticket": "T-42"},
		Timeout: 60,
	})
	require.NoError(t, err)

	rec, err = svc.Execute(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCompleted, rec.Status)
	assert.Contains(t, rec.Results, "claude-architect")
	assert.Contains(t, rec.Results, "gemini-developer")

	// The first agent sees the original payload only.
	spec, ok := rt.specByAgent("claude-architect")
	require.True(t, ok)
	payload := payloadOf(t, spec)
	assert.Equal(t, "T-42", payload["ticket"])
	assert.NotContains(t, payload, domain.PreviousResultKey)

	// The second agent sees the first agent's result folded in.
	spec, ok = rt.specByAgent("gemini-developer")
	require.True(t, ok)
	payload = payloadOf(t, spec)
	assert.Equal(t, "T-42", payload["ticket"])
	prev, ok := payload[domain.PreviousResultKey].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "out-claude-architect", prev["output"])
}

func TestExecuteSequentialHaltsOnFirstFailure(t *testing.T) {
	rt := newFakeRuntime()
	svc := newTestOrchestrator(rt, nil)

	rec, err := svc.Submit(context.Background(), domain.TaskRequest{
		Mode:    domain.ModeSequential,
		Agents:  []string{"ghost", "claude-architect"},
		Timeout: 60,
	})
	require.NoError(t, err)

	rec, err = svc.Execute(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusFailed, rec.Status)
	require.Len(t, rec.Errors, 1)
	assert.Contains(t, rec.Errors[0], "ghost")

	// Nothing after the failed step runs.
	assert.Empty(t, rt.containers)
}

func TestExecuteHybridFeedsPhaseResults(t *testing.T) {
	rt := newFakeRuntime()
	strategies := NewStrategyTable(map[string]domain.Strategy{
		"pipeline": {
			{Name: "design", Agents: []string{"claude-architect"}, Parallel: true},
			{Name: "verify", Agents: []string{"claude-tester"}},
		},
	})
	svc := newTestOrchestrator(rt, strategies)

	rec, err := svc.Submit(context.Background(), domain.TaskRequest{
		TaskType: "pipeline",
		Mode:     domain.ModeHybrid,
		Agents:   []string{"claude-architect", "claude-tester"},
		Timeout:  60,
	})
	require.NoError(t, err)

	rec, err = svc.Execute(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCompleted, rec.Status)
	assert.Contains(t, rec.Results, "design")
	assert.Contains(t, rec.Results, "verify")

	// The second phase receives the first phase's merged output.
	spec, ok := rt.specByAgent("claude-tester")
	require.True(t, ok)
	payload := payloadOf(t, spec)
	prev, ok := payload[domain.PreviousPhaseKey].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, prev, "by_agent")
	assert.Contains(t, prev, "combined_output")
}

func TestExecuteTimeoutStopsAgent(t *testing.T) {
	rt := newFakeRuntime()
	rt.neverExit = true
	svc := newTestOrchestrator(rt, nil)

	rec, err := svc.Submit(context.Background(), domain.TaskRequest{
		Mode:    domain.ModeSequential,
		Agents:  []string{"claude-architect"},
		Timeout: 1,
	})
	require.NoError(t, err)

	rec, err = svc.Execute(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusFailed, rec.Status)
	require.Len(t, rec.Errors, 1)
	assert.Contains(t, rec.Errors[0], "timed out")
	assert.Len(t, rt.stopped, 1)
}

func TestTaskStatusDuringExecution(t *testing.T) {
	rt := newFakeRuntime()
	svc := newTestOrchestrator(rt, nil)

	rec, err := svc.Submit(context.Background(), domain.TaskRequest{
		Mode:    domain.ModeParallel,
		Agents:  []string{"claude-architect", "gemini-developer"},
		Timeout: 60,
	})
	require.NoError(t, err)

	var final *domain.TaskRecord
	done := make(chan struct{})
	go func() {
		defer close(done)
		final, _ = svc.Execute(context.Background(), rec.ID)
	}()

	// Poll the status the way a client would while the task runs; the run
	// under -race must stay clean. The record disappears once evicted.
	for {
		view, err := svc.TaskStatus(context.Background(), rec.ID)
		if err != nil {
			assert.ErrorIs(t, err, domain.ErrTaskNotFound)
			break
		}
		assert.Contains(t, []string{"pending", "running", "completed"}, view.Status)
	}

	<-done
	require.NotNil(t, final)
	assert.Equal(t, domain.TaskStatusCompleted, final.Status)
}

func TestParseAgentResult(t *testing.T) {
	// Only the final log line is interpreted.
	got := parseAgentResult("Installing deps...\nstill working\n{\"status\":\"ok\",\"output\":\"42\"}\n", "claude-tester")
	assert.Equal(t, map[string]any{"status": "ok", "output": "42"}, got)

	// Non-JSON output is wrapped verbatim.
	got = parseAgentResult("plain text result", "claude-tester")
	assert.Equal(t, "plain text result", got["output"])
	assert.Equal(t, "claude-tester", got["agent"])

	// A trailing JSON array is not a result object.
	got = parseAgentResult("work\n[1,2,3]", "claude-tester")
	assert.Equal(t, "work\n[1,2,3]", got["output"])
}

func TestTaskStatusLookup(t *testing.T) {
	svc := newTestOrchestrator(newFakeRuntime(), nil)

	rec, err := svc.Submit(context.Background(), domain.TaskRequest{
		Mode:    domain.ModeParallel,
		Agents:  []string{"claude-architect"},
		Timeout: 60,
	})
	require.NoError(t, err)

	view, err := svc.TaskStatus(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, view.ID)
	assert.Equal(t, string(domain.TaskStatusPending), view.Status)

	_, err = svc.TaskStatus(context.Background(), "missing1")
	assert.ErrorIs(t, err, domain.ErrTaskNotFound)
}

func TestAgentsSorted(t *testing.T) {
	svc := newTestOrchestrator(newFakeRuntime(), nil)

	agents := svc.Agents()
	require.Len(t, agents, 3)
	assert.Equal(t, "claude-architect", agents[0].Name)
	assert.Equal(t, "claude-tester", agents[1].Name)
	assert.Equal(t, "gemini-developer", agents[2].Name)
}
