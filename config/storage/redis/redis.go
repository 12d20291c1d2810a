// Package redis provides the shared Redis connection: a go-redis client for
// the state store and a fiber storage view for HTTP middleware.
package redis

import (
	"context"
	"time"

	config "github.com/devgrid/agent-orchestrator/config/utils"

	"github.com/gofiber/storage/redis/v3"
	redigo "github.com/redis/go-redis/v9"
)

// Redis bundles the two views over one connection pool.
type Redis struct {
	Client  redigo.UniversalClient
	Storage *redis.Storage
}

// New connects to Redis and verifies the connection with a ping.
func New(ctx context.Context, config *config.Redis) (*Redis, error) {
	client := redigo.NewUniversalClient(&redigo.UniversalOptions{
		Addrs:           []string{config.Addr},
		Password:        config.Password,
		DB:              0,
		MaxRetries:      3,
		MinRetryBackoff: 100 * time.Millisecond,
		MaxRetryBackoff: 1 * time.Second,
		DialTimeout:     5 * time.Second,
		ReadTimeout:     3 * time.Second,
		WriteTimeout:    3 * time.Second,
		PoolSize:        10,
		MinIdleConns:    2,
		ConnMaxIdleTime: 5 * time.Minute,
	})

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, err
	}

	storage := redis.NewFromConnection(client)

	return &Redis{Client: client, Storage: storage}, nil
}
