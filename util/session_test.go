package util

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionLifecycle(t *testing.T) {
	token := CreateSession("alice")
	require.NotEmpty(t, token)

	username, ok := SessionUsername(token)
	assert.True(t, ok)
	assert.Equal(t, "alice", username)

	DeleteSession(token)
	_, ok = SessionUsername(token)
	assert.False(t, ok)

	// Revoking twice is harmless.
	DeleteSession(token)
}

func TestSessionTokensAreUnique(t *testing.T) {
	t1 := CreateSession("alice")
	t2 := CreateSession("alice")
	assert.NotEqual(t, t1, t2)

	DeleteSession(t1)
	DeleteSession(t2)
}

func TestSessionUnknownToken(t *testing.T) {
	_, ok := SessionUsername("never-issued")
	assert.False(t, ok)
}

func TestTokenFromRequestBearerHeader(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/messages", nil)
	r.Header.Set("Authorization", "Bearer tok-header")

	assert.Equal(t, "tok-header", TokenFromRequest(r))
}

func TestTokenFromRequestQueryParam(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws?token=tok-query", nil)

	assert.Equal(t, "tok-query", TokenFromRequest(r))
}

func TestTokenFromRequestCookie(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/messages", nil)
	r.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "tok-cookie"})

	assert.Equal(t, "tok-cookie", TokenFromRequest(r))
}

func TestTokenFromRequestPrecedence(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws?token=tok-query", nil)
	r.Header.Set("Authorization", "Bearer tok-header")
	r.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "tok-cookie"})

	// Header wins over query, query wins over cookie.
	assert.Equal(t, "tok-header", TokenFromRequest(r))

	r.Header.Del("Authorization")
	assert.Equal(t, "tok-query", TokenFromRequest(r))
}

func TestTokenFromRequestEmpty(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/messages", nil)
	assert.Equal(t, "", TokenFromRequest(r))
}
