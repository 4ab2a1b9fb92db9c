package api

import (
	"database/sql"
	"errors"
	"log"
	"net/http"

	"social-chat-core/database"
)

// ProfileHandler serves the public sender profiles that chat clients cache.
type ProfileHandler struct {
	store *database.Store
}

func NewProfileHandler(store *database.Store) *ProfileHandler {
	return &ProfileHandler{store: store}
}

// GetProfile handles GET /profiles/{username}.
func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")
	if username == "" {
		http.Error(w, "Username is required", http.StatusBadRequest)
		return
	}

	user, err := h.store.UserByUsername(username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "User not found", http.StatusNotFound)
			return
		}
		log.Printf("Error fetching profile for %s: %v", username, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, user.Profile())
}
