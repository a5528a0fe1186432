package services

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"scholarchat-backend/internal/logging"
)

func TestRedisPageCache_RoundTripAndExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	cache := NewRedisPageCache(client, time.Minute, logging.Discard())
	ctx := context.Background()

	_, ok := cache.Get(ctx, "fetch:text:https://example.com")
	assert.False(t, ok)

	cache.Set(ctx, "fetch:text:https://example.com", "hello")
	got, ok := cache.Get(ctx, "fetch:text:https://example.com")
	assert.True(t, ok)
	assert.Equal(t, "hello", got)

	mr.FastForward(2 * time.Minute)
	_, ok = cache.Get(ctx, "fetch:text:https://example.com")
	assert.False(t, ok)
}

func TestRedisPageCache_UnavailableIsMiss(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	cache := NewRedisPageCache(client, time.Minute, logging.Discard())
	cache.Set(context.Background(), "k", "v")

	_, ok := cache.Get(context.Background(), "k")
	assert.False(t, ok)
}
