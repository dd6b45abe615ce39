// Package logging provides structured logging using zap
package logging

import (
	"context"
	"fmt"
	"os"
)

// NewDefaultLogger creates a stdout logger at info level
func NewDefaultLogger() Logger {
	logger, err := NewZapLogger(LogConfig{Level: InfoLevel})
	if err != nil {
		panic(fmt.Sprintf("failed to initialize default zap logger: %v", err))
	}
	return logger
}

// InitGlobalLogger installs the global logger. An empty logFile logs to stdout.
func InitGlobalLogger(level, logFile string) error {
	config := LogConfig{Level: ParseLevel(level)}

	if logFile != "" {
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file %s: %w", logFile, err)
		}
		config.Output = file
	}

	logger, err := NewZapLogger(config)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	SetGlobalLogger(logger)

	logger.Info("Logger initialized",
		Field{"level", config.Level.String()},
		Field{"log_file", logFile},
	)
	return nil
}

// MustSync flushes any buffered log entries. Call before exit.
func MustSync() {
	if zapLogger, ok := GetGlobalLogger().(*ZapAdapter); ok {
		_ = zapLogger.Sync()
	}
}

// WithContext is a convenience function to add context to the global logger
func WithContext(ctx context.Context) Logger {
	return GetGlobalLogger().WithContext(ctx)
}

// WithFields is a convenience function to add fields to the global logger
func WithFields(fields ...Field) Logger {
	return GetGlobalLogger().WithFields(fields...)
}

// Component returns a child of the global logger tagged with a component name
func Component(name string) Logger {
	return WithFields(Field{"component", name})
}

// Err creates an error field with key "error"
func Err(err error) Field {
	return Field{Key: "error", Value: err}
}
