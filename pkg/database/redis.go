package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shoplens-ai/shoplens-engine/pkg/config"
)

const redisConnectTimeout = 5 * time.Second

// NewRedisClient creates the answer-cache Redis client. Returns nil when
// caching is not configured (empty host); callers treat a nil client as a
// disabled cache. Unlike the document store there is no connect retry: the
// cache is optional and a dead Redis should fail fast at startup rather
// than stall it.
func NewRedisClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	if cfg.Host == "" {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, redisConnectTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}
