package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"social-chat-core/database"
	"social-chat-core/models"
	"social-chat-core/util"
)

// loginLimiter throttles login attempts per remote host.
type loginLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

func newLoginLimiter(rps float64, burst int) *loginLimiter {
	if rps <= 0 {
		rps = 5
	}
	if burst <= 0 {
		burst = 10
	}
	return &loginLimiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

func (l *loginLimiter) allow(host string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[host]
	if !ok {
		lim = rate.NewLimiter(l.rps, l.burst)
		l.limiters[host] = lim
	}
	return lim.Allow()
}

// AuthHandler serves login and logout.
type AuthHandler struct {
	store   *database.Store
	limiter *loginLimiter
}

func NewAuthHandler(store *database.Store, loginRPS float64, loginBurst int) *AuthHandler {
	return &AuthHandler{
		store:   store,
		limiter: newLoginLimiter(loginRPS, loginBurst),
	}
}

// Login verifies credentials and issues a session token. The token is also
// set as a cookie for browser clients; API clients use the JSON field.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if !h.limiter.allow(remoteHost(r)) {
		log.Printf("Login throttled for %s", r.RemoteAddr)
		http.Error(w, "Too many login attempts", http.StatusTooManyRequests)
		return
	}

	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Error reading request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Username == "" || req.Password == "" {
		http.Error(w, "Username and password are required", http.StatusBadRequest)
		return
	}

	user, err := h.store.UserByUsername(req.Username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Printf("Login failed - user not found: %s", req.Username)
			http.Error(w, "Invalid username or password", http.StatusUnauthorized)
			return
		}
		log.Printf("Login failed - database error: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		log.Printf("Login failed - invalid password for: %s", req.Username)
		http.Error(w, "Invalid username or password", http.StatusUnauthorized)
		return
	}

	token := util.CreateSession(user.Username)
	http.SetCookie(w, &http.Cookie{
		Name:     util.SessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(24 * time.Hour),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	log.Printf("Login successful for user: %s", user.Username)

	writeJSON(w, http.StatusOK, models.LoginResponse{Token: token, Username: user.Username})
}

// Logout revokes the presented token and clears the cookie.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if token := util.TokenFromRequest(r); token != "" {
		util.DeleteSession(token)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     util.SessionCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}
