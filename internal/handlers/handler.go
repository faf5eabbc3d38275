package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/bhaavyasura7/E2ee-chat/internal/auth"
	"github.com/bhaavyasura7/E2ee-chat/internal/presence"
	"github.com/bhaavyasura7/E2ee-chat/internal/store"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	store     store.MessageStore
	presence  presence.Registry
	tokens    *auth.JWTAuthenticator
	redisPing func(ctx context.Context) error
}

// NewHandler creates a new Handler with the given dependencies.
// redisPing may be nil when no shared Redis is configured.
func NewHandler(st store.MessageStore, reg presence.Registry, tokens *auth.JWTAuthenticator, redisPing func(ctx context.Context) error) *Handler {
	return &Handler{store: st, presence: reg, tokens: tokens, redisPing: redisPing}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}
