package ratelimit

import (
	"fmt"
	"time"
)

// Config represents rate limiter configuration
type Config struct {
	Enabled           bool    `json:"enabled"`
	RequestsPerSecond float64 `json:"requests_per_second"`
	BurstSize         int     `json:"burst_size"`

	Type BackendType `json:"type"`

	// Distributed backend settings
	KeyPrefix string `json:"key_prefix,omitempty"`

	// Cleanup settings for the local backend
	MaxKeys       int           `json:"max_keys,omitempty"`
	CleanupPeriod time.Duration `json:"cleanup_period,omitempty"`
}

// BackendType defines the rate limiter backend
type BackendType string

const (
	BackendLocal       BackendType = "local"
	BackendDistributed BackendType = "distributed"
)

// Validate fills defaults and rejects unusable settings
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.RequestsPerSecond <= 0 {
		return fmt.Errorf("requests per second must be positive")
	}
	if c.BurstSize <= 0 {
		c.BurstSize = int(c.RequestsPerSecond)
		if c.BurstSize < 1 {
			c.BurstSize = 1
		}
	}

	if c.Type == "" {
		c.Type = BackendLocal
	}

	switch c.Type {
	case BackendLocal:
		if c.MaxKeys <= 0 {
			c.MaxKeys = 10000
		}
		if c.CleanupPeriod <= 0 {
			c.CleanupPeriod = 5 * time.Minute
		}
	case BackendDistributed:
		if c.KeyPrefix == "" {
			c.KeyPrefix = "ratelimit:"
		}
	default:
		return fmt.Errorf("unsupported rate limiter backend type: %s", c.Type)
	}

	return nil
}

// Window is the period over which the distributed backend allows BurstSize
// hits, which keeps its long-run rate at RequestsPerSecond.
func (c *Config) Window() time.Duration {
	return time.Duration(float64(c.BurstSize) / c.RequestsPerSecond * float64(time.Second))
}

// DefaultConfig returns a default rate limiter configuration
func DefaultConfig() Config {
	return Config{
		Enabled:           true,
		RequestsPerSecond: 50,
		BurstSize:         100,
		Type:              BackendLocal,
		KeyPrefix:         "ratelimit:",
		MaxKeys:           10000,
		CleanupPeriod:     5 * time.Minute,
	}
}

// New creates the limiter selected by config.Type. redisClient is only
// needed for the distributed backend.
func New(config Config, redisClient RedisInterface) (Limiter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case BackendDistributed:
		return NewDistributedLimiter(config, redisClient)
	default:
		return NewLocalLimiter(config)
	}
}
