package handlers

import (
	"encoding/json"
	"net/http"
)

// LoginRequest represents the login request body.
type LoginRequest struct {
	UserID string `json:"userId"`
}

// LoginResponse carries the bearer token used for socket handshakes.
type LoginResponse struct {
	Token  string `json:"token"`
	UserID string `json:"userId"`
}

// Login issues a bearer token for a user identity. Password
// verification belongs to a real identity provider; this endpoint only
// binds an identity to a token the gateway can check.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserID == "" {
		h.Error(w, http.StatusBadRequest, "userId is required")
		return
	}

	token, err := h.tokens.Issue(req.UserID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	h.JSON(w, http.StatusOK, LoginResponse{Token: token, UserID: req.UserID})
}
