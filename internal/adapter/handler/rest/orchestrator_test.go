package rest

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/devgrid/agent-orchestrator/internal/core/domain"
)

// fakeOrchestrator is a canned port.OrchestratorService.
type fakeOrchestrator struct {
	submitErr  error
	executeErr error
	record     *domain.TaskRecord
	view       *domain.TaskStatusView
	viewErr    error

	submitted *domain.TaskRequest
}

func (f *fakeOrchestrator) Submit(_ context.Context, req domain.TaskRequest) (*domain.TaskRecord, error) {
	f.submitted = &req
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return f.record, nil
}

func (f *fakeOrchestrator) Execute(context.Context, string) (*domain.TaskRecord, error) {
	if f.executeErr != nil {
		return nil, f.executeErr
	}
	return f.record, nil
}

func (f *fakeOrchestrator) Agents() []domain.AgentConfig {
	return []domain.AgentConfig{
		{Name: "claude-architect", Image: "claude-agent:latest", Role: domain.RoleArchitect},
	}
}

func (f *fakeOrchestrator) TaskStatus(context.Context, string) (*domain.TaskStatusView, error) {
	if f.viewErr != nil {
		return nil, f.viewErr
	}
	return f.view, nil
}

func (f *fakeOrchestrator) ListTasks(_ context.Context, status domain.TaskStatus, limit int) ([]*domain.TaskRecord, error) {
	if f.record == nil {
		return nil, nil
	}
	return []*domain.TaskRecord{f.record}, nil
}

func completedRecord() *domain.TaskRecord {
	rec := domain.NewTaskRecord(domain.TaskRequest{
		Mode:    domain.ModeParallel,
		Agents:  []string{"claude-architect"},
		Timeout: 300,
	})
	rec.Status = domain.TaskStatusCompleted
	rec.Results = map[string]any{"by_agent": map[string]any{}}
	return rec
}

func TestExecuteEndpoint(t *testing.T) {
	fake := &fakeOrchestrator{record: completedRecord()}
	server := NewOrchestratorServer(fake, nil, zap.NewNop())

	body := `{"task_type":"code_review","execution_mode":"parallel","agents":["claude-architect"]}`
	req := httptest.NewRequest("POST", "/execute", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := server.App().Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var rec domain.TaskRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rec))
	assert.Equal(t, domain.TaskStatusCompleted, rec.Status)

	// The handler normalizes the timeout before submission.
	require.NotNil(t, fake.submitted)
	assert.Equal(t, domain.DefaultTaskTimeout, fake.submitted.Timeout)
}

func TestExecuteEndpoint_MalformedBody(t *testing.T) {
	server := NewOrchestratorServer(&fakeOrchestrator{}, nil, zap.NewNop())

	req := httptest.NewRequest("POST", "/execute", strings.NewReader(`{"execution_mode":`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := server.App().Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)

	var body ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "invalid_request", body.Error)
}

func TestExecuteEndpoint_SubmitRejected(t *testing.T) {
	fake := &fakeOrchestrator{submitErr: domain.ErrUnknownMode}
	server := NewOrchestratorServer(fake, nil, zap.NewNop())

	req := httptest.NewRequest("POST", "/execute", strings.NewReader(`{"execution_mode":"batch","agents":["a"]}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := server.App().Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)
}

func TestAgentsEndpoint(t *testing.T) {
	server := NewOrchestratorServer(&fakeOrchestrator{}, nil, zap.NewNop())

	resp, err := server.App().Test(httptest.NewRequest("GET", "/agents", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var body AgentsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Agents, 1)
	assert.Equal(t, "claude-architect", body.Agents[0].Name)
	assert.Equal(t, "architect", body.Agents[0].Role)
}

func TestListTasksEndpoint(t *testing.T) {
	fake := &fakeOrchestrator{record: completedRecord()}
	server := NewOrchestratorServer(fake, nil, zap.NewNop())

	resp, err := server.App().Test(httptest.NewRequest("GET", "/tasks?status=completed&limit=5", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var body TasksResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Tasks, 1)
	assert.Equal(t, domain.TaskStatusCompleted, body.Tasks[0].Status)
}

func TestListTasksEndpoint_EmptyHistory(t *testing.T) {
	server := NewOrchestratorServer(&fakeOrchestrator{}, nil, zap.NewNop())

	resp, err := server.App().Test(httptest.NewRequest("GET", "/tasks", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var body TasksResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Empty(t, body.Tasks)
}

func TestTaskStatusEndpoint(t *testing.T) {
	fake := &fakeOrchestrator{view: &domain.TaskStatusView{ID: "a1b2c3d4", Status: "completed", ExecutionTime: 1.5}}
	server := NewOrchestratorServer(fake, nil, zap.NewNop())

	resp, err := server.App().Test(httptest.NewRequest("GET", "/tasks/a1b2c3d4", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var view domain.TaskStatusView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	assert.Equal(t, "a1b2c3d4", view.ID)
	assert.Equal(t, "completed", view.Status)
}

func TestTaskStatusEndpoint_NotFound(t *testing.T) {
	fake := &fakeOrchestrator{viewErr: domain.ErrTaskNotFound}
	server := NewOrchestratorServer(fake, nil, zap.NewNop())

	resp, err := server.App().Test(httptest.NewRequest("GET", "/tasks/missing1", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestOrchestratorHealthEndpoint(t *testing.T) {
	server := NewOrchestratorServer(&fakeOrchestrator{}, nil, zap.NewNop())

	resp, err := server.App().Test(httptest.NewRequest("GET", "/health", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var body HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "orchestrator", body.Service)
}
