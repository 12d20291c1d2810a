package prometheus

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devgrid/agent-orchestrator/internal/core/domain"
)

func TestMetricsExposition(t *testing.T) {
	p := NewMetricsPublisher()
	p.SetContainerUsage("claude-architect-a1b2", 1<<30, 42.5)
	p.SetTotals(3<<30, 120)
	p.IncViolation("memory")
	p.IncTask("parallel", domain.TaskStatusCompleted)

	srv := httptest.NewServer(p.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	body := string(raw)

	assert.Contains(t, body, `resource_manager_memory_usage_bytes{container="claude-architect-a1b2"} 1.073741824e+09`)
	assert.Contains(t, body, `resource_manager_cpu_usage_percent{container="claude-architect-a1b2"} 42.5`)
	assert.Contains(t, body, `resource_manager_total_memory_bytes 3.221225472e+09`)
	assert.Contains(t, body, `resource_manager_violations_total{type="memory"} 1`)
	assert.Contains(t, body, `orchestrator_tasks_total{mode="parallel",status="completed"} 1`)
}
