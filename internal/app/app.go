package app

import (
	"context"

	"conversation-router/internal/auth"
	"conversation-router/internal/common/logging"
	"conversation-router/internal/config"
	"conversation-router/internal/events"
	"conversation-router/internal/expiry"
	"conversation-router/internal/redis"
	"conversation-router/internal/routing"
)

// App holds all the application dependencies
type App struct {
	Config      *config.Config
	Store       routing.RuleStore
	RedisClient *redis.Client
	Tracker     routing.Tracker
	Publisher   routing.Publisher
	Router      *routing.Router
	Sweeper     *expiry.Sweeper
	Auth        *auth.Auth
	Logger      logging.Logger

	amqp *events.AMQPPublisher
}

// New creates a new application instance with all dependencies
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logging.Component("app"),
	}

	// Initialize components in order of dependency
	if err := app.initializeStorage(ctx); err != nil {
		return nil, err
	}

	if err := app.initializeRedis(ctx); err != nil {
		app.Cleanup()
		return nil, err
	}

	app.initializeAuth()

	if err := app.initializeRouting(); err != nil {
		app.Cleanup()
		return nil, err
	}

	return app, nil
}

// Cleanup releases all resources
func (app *App) Cleanup() {
	if app.Sweeper != nil {
		app.Sweeper.Stop()
	}
	if app.amqp != nil {
		if err := app.amqp.Close(); err != nil {
			app.Logger.Warn("Error closing event publisher", logging.Err(err))
		}
	}
	if app.RedisClient != nil {
		if err := app.RedisClient.Close(); err != nil {
			app.Logger.Warn("Error closing Redis client", logging.Err(err))
		}
	}
	if app.Store != nil {
		if err := app.Store.Close(); err != nil {
			app.Logger.Warn("Error closing rule store", logging.Err(err))
		}
	}
}
