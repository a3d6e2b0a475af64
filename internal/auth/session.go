package auth

import (
	"time"

	"github.com/mymapsapp/mymaps-server/internal/gateway"
	"github.com/mymapsapp/mymaps-server/internal/id"
)

// refreshSkew refreshes access tokens slightly before they expire.
const refreshSkew = 60 * time.Second

// Session is a signed-in backend identity held on behalf of a view client.
type Session struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	CreatedAt    time.Time `json:"created_at"`
	RefreshedAt  time.Time `json:"refreshed_at"`
}

// NeedsRefresh reports whether the access token is expired or about to be.
func (s *Session) NeedsRefresh(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Add(refreshSkew).Before(s.ExpiresAt)
}

// newSession builds a Session from a backend token pair. User id and expiry come from the
// access token's claims.
func newSession(a *gateway.AuthSession, now time.Time) (*Session, error) {
	sessionID, err := id.Generate(id.PrefixSession)
	if err != nil {
		return nil, err
	}
	s := &Session{ID: sessionID, CreatedAt: now}
	if err := s.apply(a, now); err != nil {
		return nil, err
	}
	return s, nil
}

// apply replaces the token pair of s.
func (s *Session) apply(a *gateway.AuthSession, now time.Time) error {
	claims, err := ParseAccessClaims(a.AccessToken)
	if err != nil {
		return err
	}
	s.UserID = claims.Subject
	s.Email = claims.Email
	if s.Email == "" {
		s.Email = a.User.Email
	}
	s.AccessToken = a.AccessToken
	if a.RefreshToken != "" {
		s.RefreshToken = a.RefreshToken
	}
	s.ExpiresAt = claims.ExpiresAt()
	if s.ExpiresAt.IsZero() && a.ExpiresIn > 0 {
		s.ExpiresAt = now.Add(time.Duration(a.ExpiresIn) * time.Second)
	}
	s.RefreshedAt = now
	return nil
}
