// Package storage selects and builds the durable routing.RuleStore.
//
// Backends register a StorageFactory under a type name ("sqlite",
// "postgres") and are created from a StorageConfig. Both SQL backends keep
// rules in one routing_rules table and share the row mapping in record.go.
//
// Example usage:
//
//	registry := storage.NewRegistry()
//	registry.Register("sqlite", &sqlite.Factory{})
//	registry.Register("postgres", &postgres.Factory{})
//
//	store, err := storage.NewRuleStore(ctx, registry, cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer store.Close()
package storage

import (
	"context"

	"conversation-router/internal/routing"
)

// StorageConfig describes how to reach one backend
type StorageConfig interface {
	Validate() error
	GetType() string
	GetConnectionString() string
}

// StorageFactory creates a RuleStore for one backend type
type StorageFactory interface {
	Create(ctx context.Context, config StorageConfig) (routing.RuleStore, error)
	GetType() string
}

// GenericConfig is a simple map-based implementation of StorageConfig
type GenericConfig map[string]interface{}

func (gc GenericConfig) Validate() error {
	return nil
}

func (gc GenericConfig) GetType() string {
	if t, ok := gc["type"].(string); ok {
		return t
	}
	return "unknown"
}

func (gc GenericConfig) GetConnectionString() string {
	if cs, ok := gc["connection_string"].(string); ok {
		return cs
	}
	return ""
}

// String returns the string value stored under key, or def
func (gc GenericConfig) String(key, def string) string {
	if v, ok := gc[key].(string); ok && v != "" {
		return v
	}
	return def
}

// Int returns the int value stored under key, or def
func (gc GenericConfig) Int(key string, def int) int {
	switch v := gc[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	}
	return def
}
