package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a fixed-window counter store backed by Redis, for
// deployments running more than one instance behind a load balancer.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new RedisStore
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Increment bumps the counter for key. The window TTL is set when the
// key is first created, so the counter expires with the window.
func (s *RedisStore) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	redisKey := "ratelimit:" + key

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.ExpireNX(ctx, redisKey, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}
	return incr.Val(), nil
}
