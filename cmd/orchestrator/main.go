package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/devgrid/agent-orchestrator/config/logger"
	postgresConfig "github.com/devgrid/agent-orchestrator/config/storage/postgresql"
	redisConfig "github.com/devgrid/agent-orchestrator/config/storage/redis"
	config "github.com/devgrid/agent-orchestrator/config/utils"
	"github.com/devgrid/agent-orchestrator/internal/adapter/handler/rest"
	"github.com/devgrid/agent-orchestrator/internal/adapter/queue/rabbitmq"
	resourceAdapter "github.com/devgrid/agent-orchestrator/internal/adapter/resource"
	dockerRuntime "github.com/devgrid/agent-orchestrator/internal/adapter/runtime/docker"
	postgresAdapter "github.com/devgrid/agent-orchestrator/internal/adapter/storage/postgres"
	redisAdapter "github.com/devgrid/agent-orchestrator/internal/adapter/storage/redis"
	"github.com/devgrid/agent-orchestrator/internal/core/domain"
	"github.com/devgrid/agent-orchestrator/internal/core/port"
	"github.com/devgrid/agent-orchestrator/internal/core/service"
)

func main() {
	rootCtx, rootCtxCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer rootCtxCancel()

	// 1. Init Config & Logger
	appConfig := config.New()
	log := logger.Build(appConfig.Logger)
	log = log.With(zap.String("service", "orchestrator"))
	log.Info("Starting Agent Orchestrator",
		zap.String("app", appConfig.App.Name),
		zap.String("env", appConfig.App.Env))

	// 2. Init Adapters

	// Postgres task archive
	dbService, err := postgresConfig.New(rootCtx, appConfig.DB, log.Named("DB"))
	if err != nil {
		log.Fatal("Failed to init Postgres", zap.Error(err))
	}
	if err := dbService.Migrate(); err != nil {
		log.Fatal("Failed to migrate database", zap.Error(err))
	}
	archive := postgresAdapter.NewTaskArchive(dbService, log)

	// Redis with retry
	redisService := connectRedis(rootCtx, appConfig, log)
	store := redisAdapter.NewStateStore(redisService.Client, log)

	// Docker runtime
	runtime, err := dockerRuntime.NewAgentRuntime(log.Named("Docker"))
	if err != nil {
		log.Fatal("Failed to init Docker runtime", zap.Error(err))
	}

	// Resource manager admission (optional)
	var admission port.AdmissionChecker
	if url := appConfig.Orchestrator.ResourceManagerURL; url != "" {
		admission = resourceAdapter.NewAdmissionClient(url, log)
	}

	// RabbitMQ intake (optional)
	var queue port.QueueService
	if appConfig.AMQP.Host != "" {
		amqpURL := fmt.Sprintf("amqp://%s:%s@%s:%s%s",
			appConfig.AMQP.User, appConfig.AMQP.Password,
			appConfig.AMQP.Host, appConfig.AMQP.Port, appConfig.AMQP.VHost)
		queue, err = rabbitmq.NewQueueService(amqpURL, log.Named("AMQP"))
		if err != nil {
			log.Fatal("Failed to init RabbitMQ", zap.Error(err))
		}
	}

	// 3. Init Orchestrator Service
	orchestrator := service.NewOrchestratorService(
		service.OrchestratorConfig{
			MaxParallelAgents: appConfig.Orchestrator.MaxParallelAgents,
			PollInterval:      appConfig.Orchestrator.PollInterval(),
			Network:           appConfig.Docker.Network,
			Binds:             appConfig.Docker.Binds,
		},
		loadAgents(appConfig),
		runtime,
		store,
		archive,
		queue,
		admission,
		nil,
		service.NewStrategyTable(loadStrategies(appConfig)),
		service.NewPriorityTable(appConfig.Priorities),
		log,
	)

	// 4. Start queue consumer
	if queue != nil {
		err := queue.ConsumeTaskRequests(rootCtx, func(req *domain.TaskRequest) error {
			req.Normalize()
			rec, err := orchestrator.Submit(rootCtx, *req)
			if err != nil {
				return err
			}
			_, err = orchestrator.Execute(rootCtx, rec.ID)
			return err
		})
		if err != nil {
			log.Fatal("Failed to start task consumer", zap.Error(err))
		}
	}

	// 5. Start HTTP server
	server := rest.NewOrchestratorServer(orchestrator, redisService.Storage, log)
	go func() {
		if err := server.Listen(appConfig.Orchestrator.Addr); err != nil {
			log.Error("HTTP server stopped", zap.Error(err))
			rootCtxCancel()
		}
	}()
	log.Info("Orchestrator listening", zap.String("addr", appConfig.Orchestrator.Addr))

	// 6. Wait for shutdown
	<-rootCtx.Done()
	log.Info("Shutting down...")

	if err := server.Shutdown(); err != nil {
		log.Error("HTTP shutdown failed", zap.Error(err))
	}
	dbService.Close()
	redisService.Client.Close()

	log.Info("Shutdown complete")
}

// connectRedis retries the connection; the store is required.
func connectRedis(ctx context.Context, appConfig *config.AppConfig, log *zap.Logger) *redisConfig.Redis {
	maxRetries := 10
	for i := 1; i <= maxRetries; i++ {
		redisService, err := redisConfig.New(ctx, appConfig.Redis)
		if err == nil {
			return redisService
		}
		log.Warn("Failed to connect to Redis, retrying...",
			zap.Int("attempt", i), zap.Error(err))
		if i == maxRetries {
			log.Fatal("Failed to init Redis after max retries", zap.Error(err))
		}
		time.Sleep(time.Duration(i*2) * time.Second)
	}
	return nil
}

func loadAgents(appConfig *config.AppConfig) map[string]domain.AgentConfig {
	if len(appConfig.Agents) == 0 {
		return domain.DefaultAgents()
	}
	agents := make(map[string]domain.AgentConfig, len(appConfig.Agents))
	for _, a := range appConfig.Agents {
		agents[a.Name] = domain.AgentConfig{
			Name:         a.Name,
			Image:        a.Image,
			Role:         domain.AgentRole(a.Role),
			Environment:  a.Environment,
			Resources:    domain.ResourceSpec{Memory: a.Memory, CPUs: a.CPUs},
			Dependencies: a.Dependencies,
		}
	}
	return agents
}

func loadStrategies(appConfig *config.AppConfig) map[string]domain.Strategy {
	if len(appConfig.Strategies) == 0 {
		return nil
	}
	out := make(map[string]domain.Strategy, len(appConfig.Strategies))
	for taskType, phases := range appConfig.Strategies {
		strategy := make(domain.Strategy, 0, len(phases))
		for _, p := range phases {
			strategy = append(strategy, domain.Phase{Name: p.Name, Agents: p.Agents, Parallel: p.Parallel})
		}
		out[taskType] = strategy
	}
	return out
}
