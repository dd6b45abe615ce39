package app

import (
	"context"
	"fmt"

	"conversation-router/internal/circuitbreaker"
	"conversation-router/internal/common/logging"
	"conversation-router/internal/common/utils"
	"conversation-router/internal/events"
	"conversation-router/internal/expiry"
	"conversation-router/internal/routing"
	"conversation-router/internal/tracking"
)

// dialEvents is replaced in tests.
var dialEvents = events.DialAMQP

func (app *App) initializeRouting() error {
	cfg := app.Config

	if app.RedisClient != nil {
		app.Tracker = tracking.NewRedisTracker(app.RedisClient, cfg.RoutingTrackingTTL)
		app.Logger.Info("Conversation tracking: Redis", logging.Duration("ttl", cfg.RoutingTrackingTTL))
	} else {
		app.Tracker = tracking.NewMemoryTracker(cfg.RoutingTrackingTTL)
		app.Logger.Info("Conversation tracking: in process", logging.Duration("ttl", cfg.RoutingTrackingTTL))
	}

	if err := app.initializePublisher(); err != nil {
		return err
	}

	app.Router = routing.NewRouter(app.Store, app.Tracker, app.Publisher, routing.Options{
		DefaultTarget:     routing.Target(cfg.RoutingDefaultTarget),
		SupersedeOnCreate: cfg.RoutingSupersedeOnCreate,
		Normalizer:        routing.Normalizer{FoldCase: cfg.RoutingFoldCase},
	})

	sweeper, err := expiry.NewSweeper(app.Router, cfg.ExpirySweepSchedule)
	if err != nil {
		return fmt.Errorf("failed to create expiry sweeper: %w", err)
	}
	app.Sweeper = sweeper
	return nil
}

func (app *App) initializePublisher() error {
	if app.Config.RabbitMQURL == "" {
		app.Publisher = events.NopPublisher{}
		app.Logger.Info("Routing events: Not configured (decisions are not published)")
		return nil
	}

	dial := dialEvents(app.Config.RabbitMQURL)
	err := utils.RetryWithBackoff(context.Background(), utils.DefaultRetryConfig(), func() error {
		p, err := events.NewAMQPPublisher(dial, app.Config.RoutingExchange, circuitbreaker.BrokerConfig)
		if err != nil {
			app.Logger.Warn("RabbitMQ not ready", logging.Err(err))
			return err
		}
		app.amqp = p
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to connect event publisher: %w", err)
	}

	app.Publisher = app.amqp
	app.Logger.Info("Routing events: RabbitMQ", logging.String("exchange", app.Config.RoutingExchange))
	return nil
}
