package sqlite

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
		return NewAdapter(ctx, &Config{DatabasePath: c.String("path", DefaultConfig().DatabasePath)})
	}
	return nil, fmt.Errorf("invalid config type for SQLite storage")
}

func (f *Factory) GetType() string {
	return "sqlite"
}
