package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"conversation-router/internal/auth"
	"conversation-router/internal/common/errors"
	"conversation-router/internal/common/logging"
	"conversation-router/internal/expiry"
	"conversation-router/internal/routing"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

// HealthChecker is a dependency reported by the health endpoint.
type HealthChecker interface {
	Health(ctx context.Context) error
}

type Handlers struct {
	router  *routing.Router
	auth    *auth.Auth
	sweeper *expiry.Sweeper
	checks  map[string]HealthChecker
	logger  logging.Logger
}

// Dependencies are the collaborators the HTTP surface is built from.
// Auth and Sweeper may be nil; Checks are reported by /health in addition
// to the rule store.
type Dependencies struct {
	Router  *routing.Router
	Auth    *auth.Auth
	Sweeper *expiry.Sweeper
	Checks  map[string]HealthChecker
}

func New(deps Dependencies) *Handlers {
	checks := make(map[string]HealthChecker, len(deps.Checks)+1)
	for name, c := range deps.Checks {
		if c != nil {
			checks[name] = c
		}
	}
	checks["store"] = deps.Router

	return &Handlers{
		router:  deps.Router,
		auth:    deps.Auth,
		sweeper: deps.Sweeper,
		checks:  checks,
		logger:  logging.Component("handlers"),
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err onto its status code. Internal failures are logged
// and reported without detail.
func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.WithContext(r.Context()).Error("Request failed", err,
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
		)
	}
	writeJSON(w, status, errorResponse{Error: errors.PublicMessage(err)})
}

// decodeJSON reads a single JSON object into v, rejecting unknown fields.
func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if err == io.EOF {
			return errors.ValidationError("request body is required")
		}
		return errors.ValidationErrorf("invalid request body: %v", err)
	}
	return nil
}
