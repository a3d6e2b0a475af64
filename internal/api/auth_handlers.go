package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/mymapsapp/mymaps-server/internal/auth"
	"github.com/mymapsapp/mymaps-server/internal/domain"
)

func (s *Server) registerAuthRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "newNonce",
		Method:      http.MethodGet,
		Path:        "/api/v1/auth/nonce",
		Summary:     "Start sign-in",
		Description: "Returns a fresh nonce pair and, when a provider client is configured, the authorization URL to open",
		Tags:        []string{"Authentication"},
	}, s.handleNewNonce)

	huma.Register(s.api, huma.Operation{
		OperationID: "signIn",
		Method:      http.MethodPost,
		Path:        "/api/v1/auth/sign-in",
		Summary:     "Sign in",
		Description: "Exchanges a provider ID token and its raw nonce for a session token, also set as a cookie",
		Tags:        []string{"Authentication"},
	}, s.handleSignIn)

	huma.Register(s.api, huma.Operation{
		OperationID:   "signOut",
		Method:        http.MethodPost,
		Path:          "/api/v1/auth/sign-out",
		Summary:       "Sign out",
		Description:   "Revokes the caller's session and drops its cached data",
		Tags:          []string{"Authentication"},
		Security:      []map[string][]string{{"bearer": {}}, {"cookie": {}}},
		DefaultStatus: http.StatusNoContent,
	}, s.handleSignOut)
}

// === DTOs ===

// NonceResponse starts an ID-token sign-in.
type NonceResponse struct {
	Raw     string `json:"raw" doc:"Keep this; send it with the ID token to sign in"`
	Hashed  string `json:"hashed" doc:"SHA-256 hex digest to hand to the provider"`
	AuthURL string `json:"auth_url,omitempty" doc:"Provider authorization URL"`
}

// NonceOutput wraps the nonce response for Huma.
type NonceOutput struct {
	Body NonceResponse
}

// SignInRequest contains the provider ID token and the raw nonce.
type SignInRequest struct {
	IDToken string `json:"id_token" minLength:"1" doc:"Provider ID token (JWT)"`
	Nonce   string `json:"nonce,omitempty" doc:"Raw nonce the ID token was issued for"`
}

// SignInInput wraps the sign-in request for Huma.
type SignInInput struct {
	Body SignInRequest
}

// SignInResponse contains the session token and the signed-in user.
type SignInResponse struct {
	Token     string              `json:"token" doc:"Session token; send as Bearer or rely on the cookie"`
	UserID    string              `json:"user_id" doc:"Signed-in user ID"`
	ExpiresAt time.Time           `json:"expires_at" doc:"When the session token expires"`
	User      *domain.UserProfile `json:"user,omitempty" doc:"Profile of the signed-in user"`
}

// SignInOutput wraps the sign-in response for Huma.
type SignInOutput struct {
	SetCookie http.Cookie `header:"Set-Cookie"`
	Body      SignInResponse
}

// SignOutOutput clears the session cookie.
type SignOutOutput struct {
	SetCookie http.Cookie `header:"Set-Cookie"`
}

// === Handlers ===

func (s *Server) handleNewNonce(_ context.Context, _ *struct{}) (*NonceOutput, error) {
	nonce, err := auth.NewNonce()
	if err != nil {
		return nil, err
	}
	resp := NonceResponse{Raw: nonce.Raw, Hashed: nonce.Hashed}
	if s.oauth.GoogleClientID != "" && s.oauth.RedirectURI != "" {
		resp.AuthURL = auth.AuthURL(s.oauth.GoogleClientID, s.oauth.RedirectURI, nonce.Hashed)
	}
	return &NonceOutput{Body: resp}, nil
}

func (s *Server) handleSignIn(ctx context.Context, input *SignInInput) (*SignInOutput, error) {
	sess, token, err := s.auth.SignIn(ctx, input.Body.IDToken, input.Body.Nonce)
	if err != nil {
		return nil, err
	}

	resp := SignInResponse{
		Token:     token,
		UserID:    sess.UserID,
		ExpiresAt: time.Now().Add(s.oauth.SessionTTL),
	}
	// The profile is a convenience; sign-in stands without it.
	if me, err := s.registry.For(sess).Users.Me(ctx); err != nil {
		s.logger.Warn("load profile after sign in failed", "user_id", sess.UserID, "error", err)
	} else {
		resp.User = &me
	}

	return &SignInOutput{
		SetCookie: s.sessionCookie(token, int(s.oauth.SessionTTL.Seconds())),
		Body:      resp,
	}, nil
}

func (s *Server) handleSignOut(ctx context.Context, _ *struct{}) (*SignOutOutput, error) {
	sess, err := requireSession(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.auth.SignOut(ctx, sess); err != nil {
		return nil, err
	}
	s.registry.Drop(sess.ID)
	return &SignOutOutput{SetCookie: s.sessionCookie("", -1)}, nil
}

func (s *Server) sessionCookie(value string, maxAge int) http.Cookie {
	return http.Cookie{
		Name:     SessionCookie,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.oauth.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	}
}
