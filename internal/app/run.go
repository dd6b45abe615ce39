package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"conversation-router/internal/auth"
	"conversation-router/internal/common/logging"
	"conversation-router/internal/config"
)

// Options are the command line flags
type Options struct {
	EnvFile     string
	MigrateOnly bool
	IssueToken  string
	TokenEmail  string
	TokenTTL    time.Duration
}

// ParseFlags reads the command line flags from args
func ParseFlags(args []string) (Options, error) {
	var opts Options
	fs := pflag.NewFlagSet("conversation-router", pflag.ContinueOnError)
	fs.StringVar(&opts.EnvFile, "env-file", ".env", "Load environment variables from this file")
	fs.BoolVar(&opts.MigrateOnly, "migrate-only", false, "Create the database schema and exit")
	fs.StringVar(&opts.IssueToken, "issue-token", "", "Print an API token for this subject and exit")
	fs.StringVar(&opts.TokenEmail, "token-email", "", "Email claim for --issue-token, recorded as createdBy")
	fs.DurationVar(&opts.TokenTTL, "token-ttl", auth.DefaultTokenTTL, "Lifetime of the token printed by --issue-token")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	return opts, nil
}

// Run is the main entry point for the application
func Run(args []string, stdout io.Writer) error {
	opts, err := ParseFlags(args)
	if err != nil {
		return err
	}

	if err := config.LoadEnvFile(opts.EnvFile); err != nil {
		return err
	}
	cfg := config.Load()

	// Initialize logging
	if err := logging.InitGlobalLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		return err
	}
	defer logging.MustSync()

	if err := cfg.Validate(); err != nil {
		logging.Error("Configuration validation failed", err)
		return err
	}

	if opts.IssueToken != "" {
		token, err := auth.New(cfg, nil).GenerateJWT(opts.IssueToken, opts.TokenEmail, opts.TokenTTL)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(stdout, token)
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.MigrateOnly {
		return Migrate(ctx, cfg)
	}

	logging.Info("Starting conversation router", logging.Int("cpus", runtime.NumCPU()))

	app, err := New(ctx, cfg)
	if err != nil {
		logging.Error("Failed to initialize application", err)
		return err
	}
	defer app.Cleanup()

	srv, err := app.RunServer(ctx)
	if err != nil {
		logging.Error("Server failed to start", err)
		return err
	}

	var serveErr error
	select {
	case <-ctx.Done():
		logging.Info("Shutting down server...")
	case serveErr = <-srv.Wait():
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error("Server forced to shutdown", err)
		return err
	}

	logging.Info("Server exited")
	return serveErr
}

// Migrate opens the configured rule store, which creates its schema, and
// closes it again.
func Migrate(ctx context.Context, cfg *config.Config) error {
	app := &App{Config: cfg, Logger: logging.Component("migrate")}
	if err := app.initializeStorage(ctx); err != nil {
		return err
	}
	app.Logger.Info("Schema is up to date", logging.String("type", cfg.DatabaseType))
	return app.Store.Close()
}
