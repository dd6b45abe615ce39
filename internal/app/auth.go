package app

import (
	"conversation-router/internal/auth"
)

func (app *App) initializeAuth() {
	if app.Config.AuthDisabled {
		app.Logger.Warn("Authentication disabled: every API request runs as the anonymous principal")
	}

	var revoked auth.RevocationStore
	if app.RedisClient != nil {
		revoked = app.RedisClient
	}
	app.Auth = auth.New(app.Config, revoked)
}
