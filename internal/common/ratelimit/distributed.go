package ratelimit

import (
	"context"
	"fmt"
)

// distributedLimiter counts hits per key in a Redis sliding window
type distributedLimiter struct {
	config      Config
	redisClient RedisInterface
}

// NewDistributedLimiter creates a Redis-backed limiter shared by all instances
func NewDistributedLimiter(config Config, redisClient RedisInterface) (Limiter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	if redisClient == nil {
		return nil, fmt.Errorf("redis client is required for distributed rate limiter")
	}

	return &distributedLimiter{
		config:      config,
		redisClient: redisClient,
	}, nil
}

func (rl *distributedLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if !rl.config.Enabled {
		return true, nil
	}

	allowed, _, err := rl.redisClient.CheckRateLimit(ctx, rl.config.KeyPrefix+key, rl.config.BurstSize, rl.config.Window())
	if err != nil {
		return false, err
	}
	return allowed, nil
}

func (rl *distributedLimiter) Stats() map[string]interface{} {
	return map[string]interface{}{
		"type":                string(BackendDistributed),
		"enabled":             rl.config.Enabled,
		"requests_per_second": rl.config.RequestsPerSecond,
		"burst_size":          rl.config.BurstSize,
		"window":              rl.config.Window().String(),
		"key_prefix":          rl.config.KeyPrefix,
	}
}

func (rl *distributedLimiter) Health(ctx context.Context) error {
	return rl.redisClient.Health(ctx)
}

var _ Limiter = (*distributedLimiter)(nil)
