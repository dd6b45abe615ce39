package handlers

import (
	"net/http"

	"conversation-router/internal/common/validation"
	"conversation-router/internal/routing"
)

// RouteNewConversation routes a newly opened conversation
// @Summary Route new conversation
// @Description Applies the first active allocate_next_n rule that admits the customer and has a free slot. Unmatched conversations get the configured default target, if any.
// @Tags routing
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param event body routing.NewConversationEvent true "New conversation"
// @Success 200 {object} routing.Decision "Routing decision"
// @Failure 400 {object} errorResponse "Invalid event"
// @Failure 500 {object} errorResponse "Rule store unavailable"
// @Router /routing/route/new-conversation [post]
func (h *Handlers) RouteNewConversation(w http.ResponseWriter, r *http.Request) {
	var event routing.NewConversationEvent
	if err := decodeJSON(r, &event); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := validation.Struct(event); err != nil {
		h.writeError(w, r, err)
		return
	}

	decision, err := h.router.RouteNewConversation(r.Context(), event)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

// RouteOngoingMessage decides whether an inbound message transfers its conversation
// @Summary Route ongoing message
// @Description Compares the normalized message text with active transfer_ongoing rules. An unmatched decision means no transfer.
// @Tags routing
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param event body routing.OngoingMessageEvent true "Inbound message"
// @Success 200 {object} routing.Decision "Routing decision"
// @Failure 400 {object} errorResponse "Invalid event"
// @Failure 500 {object} errorResponse "Rule store unavailable"
// @Router /routing/route/message [post]
func (h *Handlers) RouteOngoingMessage(w http.ResponseWriter, r *http.Request) {
	var event routing.OngoingMessageEvent
	if err := decodeJSON(r, &event); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := validation.Struct(event); err != nil {
		h.writeError(w, r, err)
		return
	}

	decision, err := h.router.RouteOngoingMessage(r.Context(), event)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, decision)
}
