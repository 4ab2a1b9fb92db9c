package middleware

import (
	"context"
	"log"
	"net/http"

	"social-chat-core/util"
)

// UsernameKeyType keys the authenticated username in the request context.
type UsernameKeyType string

const UsernameKey UsernameKeyType = "username"

// AuthMiddleware checks for a valid session token. If valid, it stores the
// username in the request context and proceeds to the next handler.
// Otherwise it returns an unauthorized error.
func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := util.TokenFromRequest(r)
		if token == "" {
			log.Printf("AuthMiddleware: unauthorized access attempt from %s to %s", r.RemoteAddr, r.URL.Path)
			http.Error(w, "Unauthorized: You must be logged in.", http.StatusUnauthorized)
			return
		}
		username, ok := util.SessionUsername(token)
		if !ok {
			log.Printf("AuthMiddleware: invalid session token from %s to %s", r.RemoteAddr, r.URL.Path)
			http.Error(w, "Unauthorized: You must be logged in.", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), UsernameKey, username)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UsernameFromContext returns the authenticated username stored by
// AuthMiddleware.
func UsernameFromContext(ctx context.Context) (string, bool) {
	username, ok := ctx.Value(UsernameKey).(string)
	return username, ok
}
