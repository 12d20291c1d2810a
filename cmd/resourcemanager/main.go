package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/devgrid/agent-orchestrator/config/logger"
	redisConfig "github.com/devgrid/agent-orchestrator/config/storage/redis"
	config "github.com/devgrid/agent-orchestrator/config/utils"
	"github.com/devgrid/agent-orchestrator/internal/adapter/handler/rest"
	"github.com/devgrid/agent-orchestrator/internal/adapter/monitoring/prometheus"
	dockerRuntime "github.com/devgrid/agent-orchestrator/internal/adapter/runtime/docker"
	redisAdapter "github.com/devgrid/agent-orchestrator/internal/adapter/storage/redis"
	"github.com/devgrid/agent-orchestrator/internal/core/domain"
	"github.com/devgrid/agent-orchestrator/internal/core/service"
)

func main() {
	rootCtx, rootCtxCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer rootCtxCancel()

	// 1. Init Config & Logger
	appConfig := config.New()
	log := logger.Build(appConfig.Logger)
	log = log.With(zap.String("service", "resource-manager"))
	log.Info("Starting Resource Manager",
		zap.String("app", appConfig.App.Name),
		zap.String("env", appConfig.App.Env))

	maxMemory, err := domain.ParseMemory(appConfig.Resources.MaxTotalMemory)
	if err != nil {
		log.Fatal("Invalid MAX_TOTAL_MEMORY", zap.Error(err))
	}

	// 2. Init Adapters

	// Redis with retry
	redisService := connectRedis(rootCtx, appConfig, log)
	store := redisAdapter.NewStateStore(redisService.Client, log)

	// Docker runtime
	runtime, err := dockerRuntime.NewAgentRuntime(log.Named("Docker"))
	if err != nil {
		log.Fatal("Failed to init Docker runtime", zap.Error(err))
	}

	// Prometheus exporter
	metrics := prometheus.NewMetricsPublisher()

	// 3. Init Resource Service
	governor := service.NewResourceService(
		service.ResourceConfig{
			MaxMemoryBytes:  maxMemory,
			MaxCPUCores:     appConfig.Resources.MaxTotalCPU,
			CheckInterval:   appConfig.Resources.CheckInterval(),
			ManagedPrefixes: appConfig.Resources.ManagedPrefixes,
		},
		runtime,
		store,
		metrics,
		service.NewPriorityTable(appConfig.Priorities),
		log,
	)

	// 4. Start the sampling loop
	go governor.Run(rootCtx)

	// 5. Start HTTP server
	server := rest.NewResourceServer(governor, metrics.Handler(), log)
	go func() {
		if err := server.Listen(appConfig.Resources.Addr); err != nil {
			log.Error("HTTP server stopped", zap.Error(err))
			rootCtxCancel()
		}
	}()
	log.Info("Resource Manager listening", zap.String("addr", appConfig.Resources.Addr))

	// 6. Wait for shutdown
	<-rootCtx.Done()
	log.Info("Shutting down...")

	if err := server.Shutdown(); err != nil {
		log.Error("HTTP shutdown failed", zap.Error(err))
	}
	redisService.Client.Close()

	log.Info("Shutdown complete")
}

// connectRedis retries the connection; the state store is required.
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
