package gateway

import (
	"context"
	"net/http"
	"net/url"
)

// AuthSession is the token pair the auth service issues.
type AuthSession struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	User         struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

func tokenQuery(grant string) url.Values {
	q := url.Values{}
	q.Set("grant_type", grant)
	return q
}

// SignInWithIDToken exchanges a provider ID token and the raw nonce it was issued for.
func (c *Client) SignInWithIDToken(ctx context.Context, provider, idToken, nonce string) (*AuthSession, error) {
	body := map[string]string{
		"provider": provider,
		"id_token": idToken,
	}
	if nonce != "" {
		body["nonce"] = nonce
	}

	var out AuthSession
	err := c.do(ctx, request{op: "sign in", method: http.MethodPost, path: "/auth/v1/token", query: tokenQuery("id_token"), body: body}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// RefreshSession trades a refresh token for a new token pair.
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*AuthSession, error) {
	var out AuthSession
	err := c.do(ctx, request{
		op:     "refresh session",
		method: http.MethodPost,
		path:   "/auth/v1/token",
		query:  tokenQuery("refresh_token"),
		body:   map[string]string{"refresh_token": refreshToken},
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SignOut revokes accessToken and the refresh tokens issued with it.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	return c.WithToken(accessToken).do(ctx, request{op: "sign out", method: http.MethodPost, path: "/auth/v1/logout"}, nil)
}
