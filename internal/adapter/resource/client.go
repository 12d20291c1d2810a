// Package resource provides the HTTP client the orchestrator uses to ask the
// resource manager for admission.
package resource

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/devgrid/agent-orchestrator/internal/core/domain"
	"github.com/devgrid/agent-orchestrator/internal/core/port"
)

type admissionClient struct {
	baseURL string
	client  *http.Client
	log     *zap.Logger
}

// NewAdmissionClient talks to the resource manager's /allocate endpoint.
func NewAdmissionClient(baseURL string, log *zap.Logger) port.AdmissionChecker {
	return &admissionClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
		log:     log,
	}
}

func (c *admissionClient) RequestAllocation(ctx context.Context, req *domain.ResourceRequest) (*domain.ResourceResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal resource request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/allocate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build allocate request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("allocate request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("resource manager returned status %d: %s", resp.StatusCode, string(payload))
	}

	var result domain.ResourceResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode allocate response: %w", err)
	}

	c.log.Debug("Admission decision received",
		zap.String("container", req.ContainerName),
		zap.Bool("approved", result.Approved))
	return &result, nil
}
