package postgres

import (
	"context"
	"fmt"

	"conversation-router/internal/routing"
	"conversation-router/internal/storage"
)

type Factory struct{}

func (f *Factory) Create(ctx context.Context, config storage.StorageConfig) (routing.RuleStore, error) {
	switch c := config.(type) {
	case *Config:
		return NewAdapter(ctx, c)
	case storage.GenericConfig:
		if dsn := c.GetConnectionString(); dsn != "" {
			pgConfig, err := NewConfigFromURL(dsn)
			if err != nil {
				return nil, err
			}
			return NewAdapter(ctx, pgConfig)
		}
		defaults := DefaultConfig()
		return NewAdapter(ctx, &Config{
			Host:     c.String("host", defaults.Host),
			Port:     c.Int("port", defaults.Port),
			Database: c.String("database", defaults.Database),
			Username: c.String("username", defaults.Username),
			Password: c.String("password", ""),
			SSLMode:  c.String("sslmode", defaults.SSLMode),
			MaxConns: c.Int("max_conns", 0),
		})
	}
	return nil, fmt.Errorf("invalid config type for PostgreSQL storage")
}

func (f *Factory) GetType() string {
	return "postgres"
}
