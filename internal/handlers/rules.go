package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"conversation-router/internal/auth"
	"conversation-router/internal/common/errors"
	"conversation-router/internal/routing"
)

// Rule management handlers

// ListRules returns routing rules in creation order
// @Summary List routing rules
// @Description Returns routing rules oldest first, optionally only active ones or one rule type
// @Tags rules
// @Produce json
// @Security BearerAuth
// @Param active query bool false "Only active rules"
// @Param ruleType query string false "allocate_next_n or transfer_ongoing"
// @Success 200 {array} routing.Rule "Routing rules"
// @Failure 400 {object} errorResponse "Invalid filter"
// @Failure 500 {object} errorResponse "Internal server error"
// @Router /routing/rules [get]
func (h *Handlers) ListRules(w http.ResponseWriter, r *http.Request) {
	filter, err := parseListFilter(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	rules, err := h.router.ListRules(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rules)
}

func parseListFilter(r *http.Request) (routing.ListFilter, error) {
	var filter routing.ListFilter
	q := r.URL.Query()

	if v := q.Get("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			return filter, errors.ValidationErrorf("invalid active filter %q", v)
		}
		filter.ActiveOnly = active
	}

	switch t := routing.RuleType(q.Get("ruleType")); t {
	case "", routing.RuleTypeAllocateNextN, routing.RuleTypeTransferOngoing:
		filter.RuleType = t
	default:
		return filter, errors.ValidationErrorf("invalid ruleType %q", t)
	}
	return filter, nil
}

// ListActiveRules returns the rules that can still match
// @Summary List active routing rules
// @Description Returns active routing rules in the order the matcher tries them
// @Tags rules
// @Produce json
// @Security BearerAuth
// @Success 200 {array} routing.Rule "Active routing rules"
// @Failure 500 {object} errorResponse "Internal server error"
// @Router /routing/rules/active [get]
func (h *Handlers) ListActiveRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.router.ListActiveRules(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rules)
}

// GetRule returns one routing rule
// @Summary Get routing rule
// @Tags rules
// @Produce json
// @Security BearerAuth
// @Param id path string true "Rule ID"
// @Success 200 {object} routing.Rule "Routing rule"
// @Failure 404 {object} errorResponse "Rule not found"
// @Router /routing/rules/{id} [get]
func (h *Handlers) GetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := h.router.GetRule(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// CreateRule creates a routing rule
// @Summary Create routing rule
// @Description Creates an active rule with no allocations. createdBy is taken from the caller's token.
// @Tags rules
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param rule body routing.NewRuleInput true "Rule definition"
// @Success 201 {object} routing.Rule "Created rule"
// @Failure 400 {object} errorResponse "Invalid rule"
// @Failure 401 {object} errorResponse "Unauthorized"
// @Router /routing/rules [post]
func (h *Handlers) CreateRule(w http.ResponseWriter, r *http.Request) {
	var in routing.NewRuleInput
	if err := decodeJSON(r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	if p, ok := auth.PrincipalFromContext(r.Context()); ok {
		in.CreatedBy = p.Name()
	}

	rule, err := h.router.CreateRule(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Location", "/api/routing/rules/"+rule.ID)
	writeJSON(w, http.StatusCreated, rule)
}

// DeactivateRule stops a rule from matching
// @Summary Deactivate routing rule
// @Description Deactivating an inactive rule succeeds and leaves it unchanged
// @Tags rules
// @Produce json
// @Security BearerAuth
// @Param id path string true "Rule ID"
// @Success 200 {object} routing.Rule "Deactivated rule"
// @Failure 404 {object} errorResponse "Rule not found"
// @Router /routing/rules/{id}/deactivate [patch]
func (h *Handlers) DeactivateRule(w http.ResponseWriter, r *http.Request) {
	rule, err := h.router.DeactivateRule(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// DeleteRule permanently removes a routing rule
// @Summary Delete routing rule
// @Tags rules
// @Security BearerAuth
// @Param id path string true "Rule ID"
// @Success 204 "Rule deleted"
// @Failure 404 {object} errorResponse "Rule not found"
// @Router /routing/rules/{id} [delete]
func (h *Handlers) DeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := h.router.DeleteRule(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
