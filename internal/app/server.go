package app

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"conversation-router/internal/handlers"
	"conversation-router/internal/server"
)

// Handler builds the HTTP handler with all routes configured
func (app *App) Handler() http.Handler {
	checks := map[string]handlers.HealthChecker{}
	if app.RedisClient != nil {
		checks["redis"] = app.RedisClient
	}
	if app.amqp != nil {
		checks["events"] = app.amqp
	}

	h := handlers.New(handlers.Dependencies{
		Router:  app.Router,
		Auth:    app.Auth,
		Sweeper: app.Sweeper,
		Checks:  checks,
	})

	router := mux.NewRouter()
	SetupRoutes(router, h, app.Auth.RequireAuth, app.InitializeRateLimiter())
	return router
}

// RunServer starts the expiry sweeper and the HTTP server
func (app *App) RunServer(ctx context.Context) (*server.Server, error) {
	app.Sweeper.Start(ctx)

	srv := server.New(app.Handler(), app.Config.Port, app.Config.TLSCertFile, app.Config.TLSKeyFile)
	if err := srv.Start(); err != nil {
		app.Sweeper.Stop()
		return nil, err
	}
	return srv, nil
}
