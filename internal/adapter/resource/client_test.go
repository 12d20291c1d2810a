package resource

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/devgrid/agent-orchestrator/internal/core/domain"
)

func TestRequestAllocation(t *testing.T) {
	var received domain.ResourceRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/allocate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		json.NewEncoder(w).Encode(domain.ResourceResponse{
			Approved:        true,
			AllocatedMemory: 2 << 30,
			AllocatedCPU:    1.0,
			Reason:          "resources allocated successfully",
		})
	}))
	defer srv.Close()

	client := NewAdmissionClient(srv.URL, zap.NewNop())
	resp, err := client.RequestAllocation(context.Background(), &domain.ResourceRequest{
		ContainerName:  "claude-architect-a1b2",
		MemoryRequired: "2G",
		CPURequired:    1.0,
		Priority:       8,
	})
	require.NoError(t, err)
	assert.True(t, resp.Approved)
	assert.Equal(t, "claude-architect-a1b2", received.ContainerName)
	assert.Equal(t, "2G", received.MemoryRequired)
}

func TestRequestAllocation_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewAdmissionClient(srv.URL, zap.NewNop())
	_, err := client.RequestAllocation(context.Background(), &domain.ResourceRequest{
		ContainerName:  "claude-architect-a1b2",
		MemoryRequired: "2G",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestRequestAllocation_Unreachable(t *testing.T) {
	client := NewAdmissionClient("http://127.0.0.1:1", zap.NewNop())
	_, err := client.RequestAllocation(context.Background(), &domain.ResourceRequest{
		ContainerName:  "claude-architect-a1b2",
		MemoryRequired: "2G",
	})
	assert.Error(t, err)
}
