package sqlite

import (
	"fmt"
	"strings"
)

type Config struct {
	DatabasePath string
	// BusyTimeoutMS is how long a writer waits for the database lock
	BusyTimeoutMS int
}

func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("database path is required")
	}
	if c.BusyTimeoutMS <= 0 {
		c.BusyTimeoutMS = 5000
	}
	return nil
}

func (c *Config) GetType() string {
	return "sqlite"
}

// GetConnectionString returns a DSN with WAL journaling and a busy timeout
func (c *Config) GetConnectionString() string {
	sep := "?"
	if strings.Contains(c.DatabasePath, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%s_busy_timeout=%d&_journal_mode=WAL&_foreign_keys=on", c.DatabasePath, sep, c.BusyTimeoutMS)
}

func DefaultConfig() *Config {
	return &Config{
		DatabasePath:  "./conversation_router.db",
		BusyTimeoutMS: 5000,
	}
}
