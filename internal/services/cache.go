package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisPageCache keeps fetched pages in Redis for a fixed TTL.
type RedisPageCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *slog.Logger
}

func NewRedisPageCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisPageCache {
	return &RedisPageCache{client: client, ttl: ttl, log: logger}
}

func (c *RedisPageCache) Get(ctx context.Context, key string) (string, bool) {
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false
	}
	if err != nil {
		c.log.Warn("page cache read failed", "key", key, "err", err)
		return "", false
	}
	return val, true
}

func (c *RedisPageCache) Set(ctx context.Context, key, value string) {
	if err := c.client.Set(ctx, key, value, c.ttl).Err(); err != nil {
		c.log.Warn("page cache write failed", "key", key, "err", err)
	}
}
