package auth

import (
	"fmt"
	"time"

	"aidanwoods.dev/go-paseto"

	"github.com/mymapsapp/mymaps-server/internal/errors"
)

const (
	tokenIssuer   = "mymaps-server"
	tokenAudience = "mymaps-view"
)

// Sealer issues and opens the opaque tokens view clients present. A token is a
// PASETO v4.local message whose subject is the session id; backend credentials never
// leave the server.
type Sealer struct {
	key paseto.V4SymmetricKey
	ttl time.Duration
	now func() time.Time
}

// NewSealer creates a Sealer from a 32-byte key.
func NewSealer(key []byte, ttl time.Duration) (*Sealer, error) {
	if len(key) != keyLength {
		return nil, fmt.Errorf("session key must be %d bytes, got %d", keyLength, len(key))
	}
	k, err := paseto.V4SymmetricKeyFromBytes(key)
	if err != nil {
		return nil, fmt.Errorf("create session key: %w", err)
	}
	return &Sealer{key: k, ttl: ttl, now: time.Now}, nil
}

// Seal returns a token for sessionID.
func (s *Sealer) Seal(sessionID string) string {
	now := s.now()

	token := paseto.NewToken()
	token.SetIssuer(tokenIssuer)
	token.SetAudience(tokenAudience)
	token.SetSubject(sessionID)
	token.SetIssuedAt(now)
	token.SetNotBefore(now)
	token.SetExpiration(now.Add(s.ttl))

	return token.V4Encrypt(s.key, nil)
}

// Open verifies a token and returns its session id.
func (s *Sealer) Open(sealed string) (string, error) {
	parser := paseto.NewParser()
	parser.AddRule(paseto.ForAudience(tokenAudience))
	parser.AddRule(paseto.IssuedBy(tokenIssuer))
	parser.AddRule(paseto.NotExpired())
	parser.AddRule(paseto.ValidAt(s.now()))

	token, err := parser.ParseV4Local(s.key, sealed, nil)
	if err != nil {
		return "", errors.Wrap(err, errors.CodeUnauthorized, "invalid session token")
	}
	sessionID, err := token.GetSubject()
	if err != nil || sessionID == "" {
		return "", errors.Unauthorized("session token has no subject")
	}
	return sessionID, nil
}
