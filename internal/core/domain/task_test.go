package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTaskRequestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   int
		want int
	}{
		{"zero gets the default", 0, DefaultTaskTimeout},
		{"below minimum clamps up", 5, MinTaskTimeout},
		{"above maximum clamps down", 99999, MaxTaskTimeout},
		{"in range passes through", 300, 300},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := TaskRequest{Timeout: tt.in}
			req.Normalize()
			assert.Equal(t, tt.want, req.Timeout)
			assert.NotNil(t, req.Payload)
		})
	}
}

func TestNewTaskRecord(t *testing.T) {
	rec := NewTaskRecord(TaskRequest{Mode: ModeParallel, Agents: []string{"claude-architect"}})

	assert.Len(t, rec.ID, 8)
	assert.Equal(t, TaskStatusPending, rec.Status)
	assert.False(t, rec.Terminal())
	assert.NotNil(t, rec.Results)
	assert.NotNil(t, rec.Errors)
	assert.False(t, rec.CreatedAt.IsZero())

	rec.Status = TaskStatusCompleted
	assert.True(t, rec.Terminal())
	rec.Status = TaskStatusFailed
	assert.True(t, rec.Terminal())
}

func TestExecutionModeValid(t *testing.T) {
	assert.True(t, ModeParallel.Valid())
	assert.True(t, ModeSequential.Valid())
	assert.True(t, ModeHybrid.Valid())
	assert.False(t, ExecutionMode("batch").Valid())
	assert.False(t, ExecutionMode("").Valid())
}
