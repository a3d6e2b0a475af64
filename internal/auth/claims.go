package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mymapsapp/mymaps-server/internal/errors"
)

// AccessClaims are the fields read from a backend access token. The backend signs the
// token; this server only inspects it and never trusts it for anything but routing.
type AccessClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Role  string `json:"role"`
}

// ParseAccessClaims reads the claims of a backend JWT without verifying its signature.
func ParseAccessClaims(token string) (*AccessClaims, error) {
	var claims AccessClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return nil, errors.Wrap(err, errors.CodeUnauthorized, "malformed access token")
	}
	if claims.Subject == "" {
		return nil, errors.Unauthorized("access token has no subject")
	}
	return &claims, nil
}

// ExpiresAt returns the token expiry, or the zero time when the token has none.
func (c *AccessClaims) ExpiresAt() time.Time {
	if c.RegisteredClaims.ExpiresAt == nil {
		return time.Time{}
	}
	return c.RegisteredClaims.ExpiresAt.Time
}
