package util

import (
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
)

const SessionCookieName = "session_token"

// In-memory session store. Tokens are opaque and die with the process;
// clients just log in again.
var (
	sessions = make(map[string]string) // token -> username
	mu       sync.RWMutex
)

// CreateSession issues a session token for username.
func CreateSession(username string) string {
	token := uuid.NewString()
	mu.Lock()
	sessions[token] = username
	mu.Unlock()
	return token
}

// SessionUsername resolves a token to its username.
func SessionUsername(token string) (string, bool) {
	mu.RLock()
	username, ok := sessions[token]
	mu.RUnlock()
	return username, ok
}

// DeleteSession revokes a token.
func DeleteSession(token string) {
	mu.Lock()
	delete(sessions, token)
	mu.Unlock()
}

// TokenFromRequest pulls the session token from the Authorization header,
// the token query parameter (browser websocket upgrades cannot set headers)
// or the session cookie, in that order.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		return cookie.Value
	}
	return ""
}
