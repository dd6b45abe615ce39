package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"conversation-router/internal/common/errors"
	"conversation-router/internal/expiry"
)

type healthResponse struct {
	Status  string            `json:"status"`
	Checks  map[string]string `json:"checks"`
	Sweeper *expiry.Status    `json:"sweeper,omitempty"`
	Time    time.Time         `json:"time"`
}

// Health reports the state of the rule store and the optional backends
// @Summary Health check
// @Description Returns 200 when every dependency is reachable, 503 otherwise
// @Tags system
// @Produce json
// @Success 200 {object} healthResponse "Healthy"
// @Failure 503 {object} healthResponse "A dependency is down"
// @Router /health [get]
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := healthResponse{
		Status: "healthy",
		Checks: make(map[string]string, len(names)),
		Time:   time.Now().UTC(),
	}
	for _, name := range names {
		if err := h.checks[name].Health(ctx); err != nil {
			resp.Status = "unhealthy"
			resp.Checks[name] = err.Error()
			continue
		}
		resp.Checks[name] = "ok"
	}
	if h.sweeper != nil {
		status := h.sweeper.Status()
		resp.Sweeper = &status
	}

	code := http.StatusOK
	if resp.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

type sweepResponse struct {
	Deactivated int `json:"deactivated"`
}

// SweepExpired deactivates expired rules immediately
// @Summary Deactivate expired rules
// @Description Runs the expiry sweep now instead of waiting for its schedule
// @Tags rules
// @Produce json
// @Security BearerAuth
// @Success 200 {object} sweepResponse "Number of rules deactivated"
// @Failure 500 {object} errorResponse "Rule store unavailable"
// @Router /routing/rules/expire [post]
func (h *Handlers) SweepExpired(w http.ResponseWriter, r *http.Request) {
	var (
		n   int
		err error
	)
	if h.sweeper != nil {
		n, err = h.sweeper.RunOnce(r.Context())
	} else {
		n, err = h.router.DeactivateExpired(r.Context())
	}
	if err != nil {
		h.writeError(w, r, errors.InternalError("expiry sweep failed", err))
		return
	}
	writeJSON(w, http.StatusOK, sweepResponse{Deactivated: n})
}
