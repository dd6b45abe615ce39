package app

import (
	"conversation-router/internal/common/logging"
	"conversation-router/internal/common/ratelimit"
)

// InitializeRateLimiter creates the API rate limiter. Limits are shared
// through Redis when it is configured and kept per process otherwise.
func (app *App) InitializeRateLimiter() ratelimit.Limiter {
	if !app.Config.RateLimitEnabled {
		app.Logger.Info("Rate Limiting: Disabled")
		return nil
	}

	config := ratelimit.DefaultConfig()
	config.RequestsPerSecond = app.Config.RateLimitRPS
	config.BurstSize = app.Config.RateLimitBurst
	config.KeyPrefix = "ratelimit:api:"

	var backend ratelimit.RedisInterface
	if app.RedisClient != nil {
		config.Type = ratelimit.BackendDistributed
		backend = app.RedisClient
	}

	limiter, err := ratelimit.New(config, backend)
	if err != nil {
		app.Logger.Warn("Rate limiter unavailable, falling back to local limiter", logging.Err(err))
		config.Type = ratelimit.BackendLocal
		if limiter, err = ratelimit.New(config, nil); err != nil {
			app.Logger.Error("Rate limiting disabled", err)
			return nil
		}
	}

	app.Logger.Info("Rate Limiting: Enabled",
		logging.String("backend", string(config.Type)),
		logging.Any("rps", config.RequestsPerSecond),
		logging.Int("burst", config.BurstSize),
	)
	return limiter
}
