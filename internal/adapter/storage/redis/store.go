// Package redis adapts go-redis to the StateStore port: task status keys,
// per-container resource snapshots and allocation records.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/devgrid/agent-orchestrator/internal/core/domain"
	"github.com/devgrid/agent-orchestrator/internal/core/port"
)

// Terminal task keys survive restarts for a day; snapshots go stale after a
// few sampling intervals.
const (
	taskKeyTTL     = 24 * time.Hour
	snapshotKeyTTL = 5 * time.Minute
)

type stateStore struct {
	client redis.UniversalClient
	log    *zap.Logger
}

// NewStateStore creates the Redis-backed shared state store.
func NewStateStore(client redis.UniversalClient, log *zap.Logger) port.StateStore {
	return &stateStore{client: client, log: log}
}

func (s *stateStore) SetTaskStatus(ctx context.Context, taskID string, status domain.TaskStatus) error {
	key := fmt.Sprintf("task:%s:status", taskID)
	return s.client.Set(ctx, key, string(status), taskKeyTTL).Err()
}

func (s *stateStore) SetTaskExecutionTime(ctx context.Context, taskID string, seconds float64) error {
	key := fmt.Sprintf("task:%s:execution_time", taskID)
	return s.client.Set(ctx, key, strconv.FormatFloat(seconds, 'f', -1, 64), taskKeyTTL).Err()
}

func (s *stateStore) GetTaskStatus(ctx context.Context, taskID string) (string, error) {
	key := fmt.Sprintf("task:%s:status", taskID)
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", domain.ErrTaskNotFound
	}
	return val, err
}

func (s *stateStore) GetTaskExecutionTime(ctx context.Context, taskID string) (float64, error) {
	key := fmt.Sprintf("task:%s:execution_time", taskID)
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, domain.ErrTaskNotFound
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(val, 64)
}

func (s *stateStore) SaveUsage(ctx context.Context, usage *domain.ContainerUsage) error {
	key := fmt.Sprintf("resources:%s", usage.Name)
	if err := s.client.HSet(ctx, key, map[string]any{
		"container_id": usage.ContainerID,
		"memory_usage": usage.MemoryUsage,
		"memory_limit": usage.MemoryLimit,
		"cpu_percent":  usage.CPUPercent,
		"status":       usage.Status,
		"updated_at":   usage.SampledAt.Format(time.RFC3339),
	}).Err(); err != nil {
		return err
	}
	return s.client.Expire(ctx, key, snapshotKeyTTL).Err()
}

func (s *stateStore) SaveAllocation(ctx context.Context, alloc *domain.Allocation) error {
	key := fmt.Sprintf("allocation:%s", alloc.ContainerName)
	return s.client.HSet(ctx, key, map[string]any{
		"memory":      alloc.MemoryBytes,
		"cpu":         alloc.CPUFraction,
		"priority":    alloc.Priority,
		"can_scale":   alloc.CanScale,
		"approved_at": alloc.GrantedAt.Format(time.RFC3339),
	}).Err()
}
