// Package docker adapts the Docker Engine API to the AgentRuntime port.
package docker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"go.uber.org/zap"

	"github.com/devgrid/agent-orchestrator/internal/core/domain"
	"github.com/devgrid/agent-orchestrator/internal/core/port"
)

type agentRuntime struct {
	cli *client.Client
	log *zap.Logger
}

// NewAgentRuntime connects to the local Docker daemon using the standard
// environment configuration.
func NewAgentRuntime(log *zap.Logger) (port.AgentRuntime, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("connect to docker daemon: %w", err)
	}
	return &agentRuntime{cli: cli, log: log}, nil
}

func (r *agentRuntime) StartAgent(ctx context.Context, spec domain.ContainerSpec) (string, error) {
	created, err := r.cli.ContainerCreate(ctx,
		&container.Config{
			Image:  spec.Image,
			Env:    spec.Env,
			Labels: spec.Labels,
		},
		&container.HostConfig{
			Binds:       spec.Binds,
			NetworkMode: container.NetworkMode(spec.Network),
			Resources: container.Resources{
				Memory:   spec.MemoryBytes,
				NanoCPUs: spec.NanoCPUs,
			},
		},
		nil, nil, spec.Name)
	if err != nil {
		return "", fmt.Errorf("create container %s: %w", spec.Name, err)
	}

	if err := r.cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("start container %s: %w", spec.Name, err)
	}

	r.log.Debug("Container started",
		zap.String("name", spec.Name),
		zap.String("id", created.ID[:12]))
	return created.ID, nil
}

func (r *agentRuntime) InspectAgent(ctx context.Context, containerID string) (domain.ContainerState, error) {
	info, err := r.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		return domain.ContainerState{}, err
	}
	return domain.ContainerState{
		Status:   info.State.Status,
		ExitCode: info.State.ExitCode,
	}, nil
}

// AgentLogs returns the container's stdout, demultiplexed from the attach
// stream framing.
func (r *agentRuntime) AgentLogs(ctx context.Context, containerID string) (string, error) {
	rc, err := r.cli.ContainerLogs(ctx, containerID, container.LogsOptions{ShowStdout: true})
	if err != nil {
		return "", err
	}
	defer rc.Close()

	var stdout bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, io.Discard, rc); err != nil {
		return "", fmt.Errorf("demux container logs: %w", err)
	}
	return stdout.String(), nil
}

func (r *agentRuntime) StopAgent(ctx context.Context, containerID string) error {
	timeout := 10
	return r.cli.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout})
}

func (r *agentRuntime) RemoveAgent(ctx context.Context, containerID string) error {
	return r.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true})
}

func (r *agentRuntime) ListAgents(ctx context.Context) ([]domain.ContainerInfo, error) {
	containers, err := r.cli.ContainerList(ctx, container.ListOptions{})
	if err != nil {
		return nil, err
	}

	out := make([]domain.ContainerInfo, 0, len(containers))
	for _, c := range containers {
		name := ""
		if len(c.Names) > 0 {
			name = strings.TrimPrefix(c.Names[0], "/")
		}
		out = append(out, domain.ContainerInfo{ID: c.ID, Name: name, Status: c.State})
	}
	return out, nil
}

// UsageStats reads one stats sample. The CPU percentage comes from the two
// cumulative counter samples the daemon includes in a single response.
func (r *agentRuntime) UsageStats(ctx context.Context, containerID, name string) (*domain.ContainerUsage, error) {
	resp, err := r.cli.ContainerStats(ctx, containerID, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var stats container.StatsResponse
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return nil, fmt.Errorf("decode stats for %s: %w", name, err)
	}

	cpuDelta := int64(stats.CPUStats.CPUUsage.TotalUsage) - int64(stats.PreCPUStats.CPUUsage.TotalUsage)
	systemDelta := int64(stats.CPUStats.SystemUsage) - int64(stats.PreCPUStats.SystemUsage)
	cores := int(stats.CPUStats.OnlineCPUs)
	if cores == 0 {
		cores = len(stats.CPUStats.CPUUsage.PercpuUsage)
	}

	id := containerID
	if len(id) > 12 {
		id = id[:12]
	}
	return &domain.ContainerUsage{
		ContainerID: id,
		Name:        name,
		MemoryUsage: int64(stats.MemoryStats.Usage),
		MemoryLimit: int64(stats.MemoryStats.Limit),
		CPUPercent:  domain.CPUPercentage(cpuDelta, systemDelta, cores),
		SampledAt:   time.Now(),
	}, nil
}

func (r *agentRuntime) UpdateMemoryLimit(ctx context.Context, containerID string, limit int64) error {
	_, err := r.cli.ContainerUpdate(ctx, containerID, container.UpdateConfig{
		Resources: container.Resources{Memory: limit, MemorySwap: -1},
	})
	return err
}

func (r *agentRuntime) UpdateCPUQuota(ctx context.Context, containerID string, quota int64) error {
	_, err := r.cli.ContainerUpdate(ctx, containerID, container.UpdateConfig{
		Resources: container.Resources{CPUQuota: quota},
	})
	return err
}
