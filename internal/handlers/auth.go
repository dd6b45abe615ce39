package handlers

import (
	"net/http"

	"conversation-router/internal/auth"
	"conversation-router/internal/common/errors"
)

type principalResponse struct {
	Subject string `json:"subject"`
	Email   string `json:"email,omitempty"`
}

// Me returns the authenticated caller
// @Summary Current principal
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} principalResponse "Caller identity"
// @Failure 401 {object} errorResponse "Unauthorized"
// @Router /auth/me [get]
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		h.writeError(w, r, errors.AuthError("authentication required"))
		return
	}
	writeJSON(w, http.StatusOK, principalResponse{Subject: p.Subject, Email: p.Email})
}

// Logout revokes the bearer token the request was made with
// @Summary Logout
// @Description Revokes the caller's token until it expires. Requires Redis.
// @Tags auth
// @Security BearerAuth
// @Success 204 "Token revoked"
// @Failure 401 {object} errorResponse "Unauthorized"
// @Failure 501 {object} errorResponse "Revocation not configured"
// @Router /auth/logout [post]
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	token, ok := auth.BearerToken(r)
	if !ok || h.auth == nil {
		h.writeError(w, r, errors.AuthError("bearer token required"))
		return
	}

	if err := h.auth.Revoke(r.Context(), token); err != nil {
		if errors.IsType(err, errors.ErrTypeConfig) {
			writeJSON(w, http.StatusNotImplemented, errorResponse{Error: errors.PublicMessage(err)})
			return
		}
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
