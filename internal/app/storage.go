package app

import (
	"context"

	"conversation-router/internal/common/errors"
	"conversation-router/internal/common/logging"
	"conversation-router/internal/common/utils"
	"conversation-router/internal/routing"
	"conversation-router/internal/storage"
	"conversation-router/internal/storage/postgres"
	"conversation-router/internal/storage/sqlite"
)

// NewStorageRegistry returns a registry with every rule store backend
func NewStorageRegistry() *storage.Registry {
	registry := storage.NewRegistry()
	registry.Register("sqlite", &sqlite.Factory{})
	registry.Register("postgres", &postgres.Factory{})
	return registry
}

// initializeStorage opens the configured rule store. The backends create
// their schema on open. Connection failures are retried with backoff so the
// router can start alongside its database.
func (app *App) initializeStorage(ctx context.Context) error {
	registry := NewStorageRegistry()

	retry := utils.DefaultRetryConfig()
	retry.RetryableErrors = func(err error) bool {
		return !errors.IsType(err, errors.ErrTypeConfig) && !errors.IsType(err, errors.ErrTypeValidation)
	}

	var store routing.RuleStore
	err := utils.RetryWithBackoff(ctx, retry, func() error {
		s, err := storage.NewRuleStore(ctx, registry, app.Config)
		if err != nil {
			app.Logger.Warn("Rule store not ready", logging.Err(err))
			return err
		}
		store = s
		return nil
	})
	if err != nil {
		return err
	}

	app.Store = store
	app.Logger.Info("Rule store ready", logging.String("type", app.Config.DatabaseType))
	return nil
}
