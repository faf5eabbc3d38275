package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bhaavyasura7/E2ee-chat/internal/models"
)

// StatusResponse represents the online-status lookup response.
type StatusResponse struct {
	Online bool `json:"online"`
}

// OnlineStatus reports whether a user currently has a presence entry.
// The answer is informational: absence never blocks sending.
func (h *Handler) OnlineStatus(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	if userID == "" {
		h.Error(w, http.StatusBadRequest, "userId is required")
		return
	}

	online, err := h.presence.IsOnline(r.Context(), userID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "Failed to fetch status")
		return
	}

	h.JSON(w, http.StatusOK, StatusResponse{Online: online})
}

// GetMessages is the catch-up read: every message the user sent or
// received, ordered by creation time ascending, including ones persisted
// while they were offline.
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		h.Error(w, http.StatusBadRequest, "userId required")
		return
	}

	messages, err := h.store.FindByParticipant(r.Context(), userID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "Failed to fetch messages")
		return
	}
	if messages == nil {
		messages = []models.Message{}
	}

	h.JSON(w, http.StatusOK, messages)
}
