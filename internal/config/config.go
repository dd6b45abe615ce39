// Package config loads the conversation router configuration from
// environment variables, optionally seeded from a .env file, and validates
// it before startup.
//
// Environment Variables:
//
// Application Settings:
//   - PORT: Server port (default: 8080)
//   - LOG_LEVEL: Logging level (default: info)
//   - LOG_FILE: Log file path; stdout when empty
//   - TLS_CERT_FILE, TLS_KEY_FILE: Serve HTTPS when both are set
//
// Database Configuration:
//   - DATABASE_TYPE: "sqlite" or "postgres" (default: sqlite)
//   - DATABASE_PATH: SQLite database file path (default: ./conversation_router.db)
//   - POSTGRES_HOST, POSTGRES_PORT, POSTGRES_DB, POSTGRES_USER, POSTGRES_PASSWORD
//   - POSTGRES_SSL_MODE: PostgreSQL SSL mode (default: disable)
//   - POSTGRES_MAX_CONNS: pgx pool size; 0 keeps the driver default
//
// Redis Configuration:
//   - REDIS_ADDRESS: Redis server address; empty disables Redis
//   - REDIS_PASSWORD, REDIS_DB (0-15), REDIS_POOL_SIZE (default: 10)
//
// Security Configuration:
//   - JWT_SECRET: JWT signing secret (required, minimum 32 characters)
//   - AUTH_DISABLED: Skip bearer authentication, development only
//
// Event Publishing:
//   - RABBITMQ_URL: RabbitMQ connection URL; empty disables publishing
//   - ROUTING_EXCHANGE: Topic exchange for routing events (default: conversation.routing)
//
// Routing:
//   - ROUTING_DEFAULT_TARGET: Target for unmatched new conversations (n1ago, human, bot)
//   - ROUTING_SUPERSEDE_ON_CREATE: Deactivate overlapping rules on create (default: false)
//   - ROUTING_FOLD_CASE: Case-insensitive match text (default: false)
//   - ROUTING_TRACKING_TTL: How long a routed conversation is remembered (default: 24h)
//   - EXPIRY_SWEEP_SCHEDULE: Cron spec for the expiry sweeper (default: @every 1m)
//
// Rate Limiting:
//   - RATE_LIMIT_ENABLED: Enable API rate limiting (default: true)
//   - RATE_LIMIT_RPS: Requests per second per client (default: 50)
//   - RATE_LIMIT_BURST: Burst size per client (default: 100)
//
// Example usage:
//
//	if err := config.LoadEnvFile(".env"); err != nil {
//		log.Fatal(err)
//	}
//	cfg := config.Load()
//	if err := cfg.Validate(); err != nil {
//		log.Fatalf("Invalid configuration: %v", err)
//	}
package config

import (
	stderrors "errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"conversation-router/internal/common/utils"
	"conversation-router/internal/common/validation"
	"conversation-router/internal/routing"
)

// Config holds all configuration values for the conversation router.
//
// Load never fails; malformed numeric or duration values are remembered and
// reported by Validate.
type Config struct {
	// Application settings
	Port        string
	LogLevel    string
	LogFile     string
	TLSCertFile string
	TLSKeyFile  string

	// Database
	DatabaseType     string // "sqlite" or "postgres"
	DatabasePath     string
	PostgresHost     string
	PostgresPort     int
	PostgresDB       string
	PostgresUser     string
	PostgresPassword string
	PostgresSSLMode  string
	PostgresMaxConns int

	// Redis, used for conversation tracking and distributed rate limiting
	RedisAddress  string
	RedisPassword string
	RedisDB       int
	RedisPoolSize int

	// Authentication
	JWTSecret    string
	AuthDisabled bool

	// Event publishing
	RabbitMQURL     string
	RoutingExchange string

	// Routing behaviour
	RoutingDefaultTarget     string
	RoutingSupersedeOnCreate bool
	RoutingFoldCase          bool
	RoutingTrackingTTL       time.Duration
	ExpirySweepSchedule      string

	// Rate limiting
	RateLimitEnabled bool
	RateLimitRPS     float64
	RateLimitBurst   int

	parseErrs []error
}

// LoadEnvFile loads variables from path into the process environment without
// overriding variables that are already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// Load creates a Config from the environment, applying defaults for unset
// variables. Call Validate on the result before use.
func Load() *Config {
	c := &Config{}

	c.Port = getEnv("PORT", "8080")
	c.LogLevel = getEnv("LOG_LEVEL", "info")
	c.LogFile = getEnv("LOG_FILE", "")
	c.TLSCertFile = getEnv("TLS_CERT_FILE", "")
	c.TLSKeyFile = getEnv("TLS_KEY_FILE", "")

	c.DatabaseType = getEnv("DATABASE_TYPE", "sqlite")
	c.DatabasePath = getEnv("DATABASE_PATH", "./conversation_router.db")
	c.PostgresHost = getEnv("POSTGRES_HOST", "localhost")
	c.PostgresPort = c.getIntEnv("POSTGRES_PORT", 5432)
	c.PostgresDB = getEnv("POSTGRES_DB", "conversation_router")
	c.PostgresUser = getEnv("POSTGRES_USER", "postgres")
	c.PostgresPassword = getEnv("POSTGRES_PASSWORD", "")
	c.PostgresSSLMode = getEnv("POSTGRES_SSL_MODE", "disable")
	c.PostgresMaxConns = c.getIntEnv("POSTGRES_MAX_CONNS", 0)

	c.RedisAddress = getEnv("REDIS_ADDRESS", "")
	c.RedisPassword = getEnv("REDIS_PASSWORD", "")
	c.RedisDB = c.getIntEnv("REDIS_DB", 0)
	c.RedisPoolSize = c.getIntEnv("REDIS_POOL_SIZE", 10)

	c.JWTSecret = getEnv("JWT_SECRET", "")
	c.AuthDisabled = getBoolEnv("AUTH_DISABLED", false)

	c.RabbitMQURL = getEnv("RABBITMQ_URL", "")
	c.RoutingExchange = getEnv("ROUTING_EXCHANGE", "conversation.routing")

	c.RoutingDefaultTarget = getEnv("ROUTING_DEFAULT_TARGET", "")
	c.RoutingSupersedeOnCreate = getBoolEnv("ROUTING_SUPERSEDE_ON_CREATE", false)
	c.RoutingFoldCase = getBoolEnv("ROUTING_FOLD_CASE", false)
	c.RoutingTrackingTTL = c.getDurationEnv("ROUTING_TRACKING_TTL", 24*time.Hour)
	c.ExpirySweepSchedule = getEnv("EXPIRY_SWEEP_SCHEDULE", "@every 1m")

	c.RateLimitEnabled = getBoolEnv("RATE_LIMIT_ENABLED", true)
	c.RateLimitRPS = c.getFloatEnv("RATE_LIMIT_RPS", 50)
	c.RateLimitBurst = c.getIntEnv("RATE_LIMIT_BURST", 100)

	return c
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getBoolEnv accepts the strconv.ParseBool spellings; anything else yields defaultValue.
func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func (c *Config) getIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		c.parseErrs = append(c.parseErrs, fmt.Errorf("%s must be an integer", key))
		return defaultValue
	}
	return parsed
}

func (c *Config) getFloatEnv(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		c.parseErrs = append(c.parseErrs, fmt.Errorf("%s must be a number", key))
		return defaultValue
	}
	return parsed
}

// getDurationEnv accepts Go durations plus the d and w units.
func (c *Config) getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := utils.ParseDuration(value)
	if err != nil {
		c.parseErrs = append(c.parseErrs, fmt.Errorf("%s must be a valid duration (e.g., '24h', '7d')", key))
		return defaultValue
	}
	return parsed
}

// Validate checks required fields, value ranges and cross-field
// dependencies. It returns the first problem found.
func (c *Config) Validate() error {
	if len(c.parseErrs) > 0 {
		return stderrors.Join(c.parseErrs...)
	}

	if !c.AuthDisabled {
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET environment variable is required")
		}
		if len(c.JWTSecret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 characters long for security")
		}
	}

	if port, err := strconv.Atoi(c.Port); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("PORT must be a valid port number between 1 and 65535")
	}

	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		return fmt.Errorf("TLS_CERT_FILE and TLS_KEY_FILE must be set together")
	}

	switch c.DatabaseType {
	case "sqlite":
		if c.DatabasePath == "" {
			return fmt.Errorf("DATABASE_PATH is required when using SQLite")
		}
	case "postgres":
		if c.PostgresHost == "" {
			return fmt.Errorf("POSTGRES_HOST is required when using PostgreSQL")
		}
		if c.PostgresDB == "" {
			return fmt.Errorf("POSTGRES_DB is required when using PostgreSQL")
		}
		if c.PostgresUser == "" {
			return fmt.Errorf("POSTGRES_USER is required when using PostgreSQL")
		}
		if c.PostgresPort < 1 || c.PostgresPort > 65535 {
			return fmt.Errorf("POSTGRES_PORT must be a valid port number")
		}
		if c.PostgresMaxConns < 0 {
			return fmt.Errorf("POSTGRES_MAX_CONNS must not be negative")
		}
	default:
		return fmt.Errorf("DATABASE_TYPE must be 'sqlite' or 'postgres'")
	}

	if c.RedisAddress != "" {
		if c.RedisDB < 0 || c.RedisDB > 15 {
			return fmt.Errorf("REDIS_DB must be a number between 0 and 15")
		}
		if c.RedisPoolSize < 1 {
			return fmt.Errorf("REDIS_POOL_SIZE must be a positive number")
		}
	}

	if c.RabbitMQURL != "" && c.RoutingExchange == "" {
		return fmt.Errorf("ROUTING_EXCHANGE is required when RABBITMQ_URL is set")
	}

	if c.RoutingDefaultTarget != "" && !routing.Target(c.RoutingDefaultTarget).Valid() {
		return fmt.Errorf("ROUTING_DEFAULT_TARGET must be one of n1ago, human, bot")
	}

	if c.RoutingTrackingTTL <= 0 {
		return fmt.Errorf("ROUTING_TRACKING_TTL must be positive")
	}

	if err := validation.Var(c.ExpirySweepSchedule, "required,cron_expression"); err != nil {
		return fmt.Errorf("EXPIRY_SWEEP_SCHEDULE is not a valid cron spec: %w", err)
	}

	if c.RateLimitEnabled {
		if c.RateLimitRPS <= 0 {
			return fmt.Errorf("RATE_LIMIT_RPS must be a positive number")
		}
		if c.RateLimitBurst < 1 {
			return fmt.Errorf("RATE_LIMIT_BURST must be a positive number")
		}
	}

	return nil
}
