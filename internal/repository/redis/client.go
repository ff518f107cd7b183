package redis

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/driftline/auth-service/internal/config"
)

// NewClient connects and pings a Redis client.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}
