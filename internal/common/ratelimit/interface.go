package ratelimit

import (
	"context"
	"time"
)

// Limiter decides whether one more request for key may proceed now
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Stats() map[string]interface{}
	Health(ctx context.Context) error
}

// RedisInterface is the subset of the Redis client the distributed backend needs
type RedisInterface interface {
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, int, error)
	Health(ctx context.Context) error
}
