package api

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mymapsapp/mymaps-server/internal/auth"
	"github.com/mymapsapp/mymaps-server/internal/domain"
	"github.com/mymapsapp/mymaps-server/internal/errors"
)

func TestNewNonce(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Get("/api/v1/auth/nonce")
	require.Equal(t, http.StatusOK, resp.Code)

	env := decodeEnvelope[NonceResponse](t, resp.Body.Bytes())
	require.NotEmpty(t, env.Data.Raw)
	assert.Equal(t, auth.HashNonce(env.Data.Raw), env.Data.Hashed)
	assert.Contains(t, env.Data.AuthURL, "client-1")
	assert.Contains(t, env.Data.AuthURL, env.Data.Hashed)
}

func TestSignIn_SetsCookieAndReturnsProfile(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Post("/api/v1/auth/sign-in", map[string]any{
		"id_token": idToken(t),
		"nonce":    "raw-nonce",
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	env := decodeEnvelope[SignInResponse](t, resp.Body.Bytes())
	assert.True(t, env.Success)
	assert.Equal(t, viewerID, env.Data.UserID)
	require.NotNil(t, env.Data.User)
	assert.Equal(t, "Ana", env.Data.User.DisplayName)

	cookie := resp.Header().Get("Set-Cookie")
	assert.True(t, strings.HasPrefix(cookie, SessionCookie+"="+env.Data.Token), cookie)
	assert.Contains(t, cookie, "HttpOnly")

	assert.Equal(t, 1, ts.registry.Len())
}

func TestSignIn_MalformedToken(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Post("/api/v1/auth/sign-in", map[string]any{"id_token": "not-a-jwt"})
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	env := decodeEnvelope[any](t, resp.Body.Bytes())
	assert.False(t, env.Success)
	assert.Equal(t, string(errors.CodeValidation), env.Code)
	assert.Empty(t, resp.Header().Get("Set-Cookie"))
}

func TestSessionCookieAuthenticates(t *testing.T) {
	ts := setupTestServer(t)
	header := ts.signIn(t)
	token := strings.TrimPrefix(header, "Authorization: Bearer ")

	resp := ts.api.Get("/api/v1/me", "Cookie: "+SessionCookie+"="+token)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, viewerID, decodeEnvelope[domain.UserProfile](t, resp.Body.Bytes()).Data.ID)
}

func TestSignOut(t *testing.T) {
	ts := setupTestServer(t)
	header := ts.signIn(t)

	resp := ts.api.Post("/api/v1/auth/sign-out", header)
	require.Equal(t, http.StatusNoContent, resp.Code, resp.Body.String())
	assert.Contains(t, resp.Header().Get("Set-Cookie"), "Max-Age=0")
	assert.Equal(t, 0, ts.registry.Len())
	ts.sessions.mu.Lock()
	assert.Empty(t, ts.sessions.m)
	ts.sessions.mu.Unlock()

	ts.backend.mu.Lock()
	assert.Equal(t, 1, ts.backend.signOut)
	ts.backend.mu.Unlock()

	resp = ts.api.Get("/api/v1/me", header)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestSignOut_Anonymous(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Post("/api/v1/auth/sign-out")
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestTamperedTokenIsAnonymous(t *testing.T) {
	ts := setupTestServer(t)
	header := ts.signIn(t)

	resp := ts.api.Get("/api/v1/me", header+"x")
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}
