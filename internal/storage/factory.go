package storage

import (
	"context"
	"fmt"

	"conversation-router/internal/common/errors"
	"conversation-router/internal/common/logging"
	"conversation-router/internal/config"
	"conversation-router/internal/routing"
)

// NewRuleStore creates the rule store selected by cfg.DatabaseType
func NewRuleStore(ctx context.Context, registry *Registry, cfg *config.Config) (routing.RuleStore, error) {
	storageConfig, err := ConfigFor(cfg)
	if err != nil {
		return nil, err
	}

	store, err := registry.Create(ctx, cfg.DatabaseType, storageConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s storage: %w", cfg.DatabaseType, err)
	}
	return store, nil
}

// ConfigFor translates application configuration into a backend config
func ConfigFor(cfg *config.Config) (GenericConfig, error) {
	switch cfg.DatabaseType {
	case "sqlite":
		logging.Info("Database: SQLite", logging.String("path", cfg.DatabasePath))
		return GenericConfig{
			"type": "sqlite",
			"path": cfg.DatabasePath,
		}, nil

	case "postgres":
		logging.Info("Database: PostgreSQL",
			logging.String("host", cfg.PostgresHost),
			logging.Int("port", cfg.PostgresPort),
			logging.String("database", cfg.PostgresDB),
		)
		return GenericConfig{
			"type":      "postgres",
			"host":      cfg.PostgresHost,
			"port":      cfg.PostgresPort,
			"database":  cfg.PostgresDB,
			"username":  cfg.PostgresUser,
			"password":  cfg.PostgresPassword,
			"sslmode":   cfg.PostgresSSLMode,
			"max_conns": cfg.PostgresMaxConns,
		}, nil
	}

	return nil, errors.ConfigError(fmt.Sprintf("unsupported database type: %s", cfg.DatabaseType))
}
