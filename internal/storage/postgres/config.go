package postgres

import (
	"fmt"
	"net/url"
)

type Config struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
	SSLMode  string
	// MaxConns caps the pgx pool; zero keeps the pgx default
	MaxConns int
}

func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("PostgreSQL host is required")
	}

	if c.Port <= 0 {
		c.Port = 5432
	}

	if c.Database == "" {
		return fmt.Errorf("PostgreSQL database name is required")
	}

	if c.Username == "" {
		return fmt.Errorf("PostgreSQL username is required")
	}

	if c.SSLMode == "" {
		c.SSLMode = "prefer"
	}

	if c.MaxConns < 0 {
		return fmt.Errorf("PostgreSQL max connections must not be negative")
	}

	return nil
}

func (c *Config) GetType() string {
	return "postgres"
}

// GetConnectionString returns a postgres:// URL accepted by pgxpool.ParseConfig
func (c *Config) GetConnectionString() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.Username, c.Password),
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   "/" + c.Database,
	}
	q := url.Values{}
	q.Set("sslmode", c.SSLMode)
	if c.MaxConns > 0 {
		q.Set("pool_max_conns", fmt.Sprintf("%d", c.MaxConns))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func NewConfigFromURL(connStr string) (*Config, error) {
	u, err := url.Parse(connStr)
	if err != nil {
		return nil, fmt.Errorf("invalid PostgreSQL URL: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return nil, fmt.Errorf("invalid PostgreSQL URL scheme: %s", u.Scheme)
	}

	config := &Config{
		Host:     u.Hostname(),
		Username: u.User.Username(),
		Port:     5432,
		SSLMode:  "prefer",
	}
	if len(u.Path) > 1 {
		config.Database = u.Path[1:]
	}

	if u.Port() != "" {
		if _, err := fmt.Sscanf(u.Port(), "%d", &config.Port); err != nil {
			return nil, fmt.Errorf("invalid PostgreSQL port: %s", u.Port())
		}
	}

	if password, ok := u.User.Password(); ok {
		config.Password = password
	}

	if sslMode := u.Query().Get("sslmode"); sslMode != "" {
		config.SSLMode = sslMode
	}

	return config, nil
}

func DefaultConfig() *Config {
	return &Config{
		Host:     "localhost",
		Port:     5432,
		Database: "conversation_router",
		Username: "postgres",
		SSLMode:  "prefer",
	}
}
