package api

import (
	"log"
	"net/http"

	"social-chat-core/database"
	"social-chat-core/middleware"
	"social-chat-core/models"
)

// UserHandler serves the peer directory clients browse to start a direct
// thread, plus the session check used when resuming with a stored token.
type UserHandler struct {
	store *database.Store
}

func NewUserHandler(store *database.Store) *UserHandler {
	return &UserHandler{store: store}
}

// ListUsers handles GET /users: every account except the caller's, as public
// profiles, ordered by username.
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	username, ok := middleware.UsernameFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	users, err := h.store.ListUsers(username)
	if err != nil {
		log.Printf("Error listing users for %s: %v", username, err)
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	profiles := make([]*models.SenderProfile, 0, len(users))
	for _, u := range users {
		profiles = append(profiles, u.Profile())
	}
	writeJSON(w, http.StatusOK, profiles)
}

// WhoAmI handles GET /whoami.
func (h *UserHandler) WhoAmI(w http.ResponseWriter, r *http.Request) {
	username, ok := middleware.UsernameFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"username": username,
		"message":  "You are logged in",
	})
}
