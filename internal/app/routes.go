package app

import (
	"net/http"

	"github.com/gorilla/mux"
	httpSwagger "github.com/swaggo/http-swagger"

	"conversation-router/internal/auth"
	"conversation-router/internal/common/ratelimit"
	"conversation-router/internal/handlers"
	"conversation-router/internal/middleware"
)

// SetupRoutes configures all HTTP routes for the application
func SetupRoutes(router *mux.Router, h *handlers.Handlers, authMiddleware func(http.Handler) http.Handler, rateLimiter ratelimit.Limiter) {
	router.Use(middleware.RequestID)
	router.Use(middleware.LoggingMiddleware)

	// Health check (no auth required)
	router.HandleFunc("/health", h.Health).Methods("GET")

	// Swagger UI (no auth required)
	router.PathPrefix("/swagger/").Handler(httpSwagger.WrapHandler)

	// Everything under /api requires a bearer token
	api := router.PathPrefix("/api").Subrouter()
	api.Use(authMiddleware)
	if rateLimiter != nil {
		api.Use(ratelimit.HTTPMiddleware(rateLimiter, PrincipalKey))
	}

	api.HandleFunc("/auth/me", h.Me).Methods("GET")
	api.HandleFunc("/auth/logout", h.Logout).Methods("POST")

	// Rule management; fixed paths before {id}
	api.HandleFunc("/routing/rules", h.ListRules).Methods("GET")
	api.HandleFunc("/routing/rules", h.CreateRule).Methods("POST")
	api.HandleFunc("/routing/rules/active", h.ListActiveRules).Methods("GET")
	api.HandleFunc("/routing/rules/expire", h.SweepExpired).Methods("POST")
	api.HandleFunc("/routing/rules/{id}", h.GetRule).Methods("GET")
	api.HandleFunc("/routing/rules/{id}", h.DeleteRule).Methods("DELETE")
	api.HandleFunc("/routing/rules/{id}/deactivate", h.DeactivateRule).Methods("PATCH")

	// Routing events from the messaging collaborator
	api.HandleFunc("/routing/route/new-conversation", h.RouteNewConversation).Methods("POST")
	api.HandleFunc("/routing/route/message", h.RouteOngoingMessage).Methods("POST")
}

// PrincipalKey rate limits per authenticated caller, falling back to the
// client address when no principal is attached.
func PrincipalKey(r *http.Request) string {
	if p, ok := auth.PrincipalFromContext(r.Context()); ok && p.Subject != "anonymous" {
		return "user:" + p.Name()
	}
	return ratelimit.IPBasedKey(r)
}
