package rabbitmq

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/devgrid/agent-orchestrator/internal/core/domain"
)

func TestRequeueable(t *testing.T) {
	// Validation failures are permanent and must be discarded, not redelivered.
	assert.False(t, requeueable(domain.ErrUnknownMode))
	assert.False(t, requeueable(domain.ErrNoAgents))
	assert.False(t, requeueable(fmt.Errorf("agent ghost: %w", domain.ErrUnknownAgent)))

	// Transient failures stay on the queue for another attempt.
	assert.True(t, requeueable(errors.New("dial tcp: connection refused")))
	assert.True(t, requeueable(fmt.Errorf("archive task: %w", errors.New("context deadline exceeded"))))
}
