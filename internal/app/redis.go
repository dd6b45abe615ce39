package app

import (
	"context"

	"conversation-router/internal/common/errors"
	"conversation-router/internal/common/logging"
	"conversation-router/internal/redis"
)

func (app *App) initializeRedis(ctx context.Context) error {
	if app.Config.RedisAddress == "" {
		app.Logger.Info("Redis: Not configured (conversation tracking and rate limiting stay in process, token revocation disabled)")
		return nil
	}

	redisClient, err := redis.NewClient(ctx, &redis.Config{
		Address:  app.Config.RedisAddress,
		Password: app.Config.RedisPassword,
		DB:       app.Config.RedisDB,
		PoolSize: app.Config.RedisPoolSize,
	})
	if err != nil {
		return errors.ConnectionError("failed to connect to Redis", err)
	}

	app.RedisClient = redisClient
	app.Logger.Info("Redis: Connected", logging.String("address", app.Config.RedisAddress))
	return nil
}
