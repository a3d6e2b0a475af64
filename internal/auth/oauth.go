package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mymapsapp/mymaps-server/internal/errors"
	"github.com/mymapsapp/mymaps-server/internal/id"
)

const (
	// GoogleAuthEndpoint is the provider's authorization URL.
	GoogleAuthEndpoint = "https://accounts.google.com/o/oauth2/v2/auth"
	// ProviderGoogle names the provider in backend sign-in calls.
	ProviderGoogle = "google"

	nonceLength = 32
)

// Nonce binds a provider ID token to one sign-in attempt. The provider sees only the
// digest; the backend receives the raw value and checks it against the token.
type Nonce struct {
	Raw    string `json:"raw"`
	Hashed string `json:"hashed"`
}

// NewNonce returns a random nonce and its SHA-256 hex digest.
func NewNonce() (Nonce, error) {
	raw, err := id.Nonce(nonceLength)
	if err != nil {
		return Nonce{}, errors.Wrap(err, errors.CodeInternal, "generate nonce")
	}
	return Nonce{Raw: raw, Hashed: HashNonce(raw)}, nil
}

// HashNonce returns the hex SHA-256 digest of raw.
func HashNonce(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// AuthURL builds the provider authorization URL for an implicit ID-token flow.
func AuthURL(clientID, redirectURI, hashedNonce string) string {
	q := url.Values{}
	q.Set("client_id", clientID)
	q.Set("redirect_uri", redirectURI)
	q.Set("response_type", "id_token")
	q.Set("scope", "openid profile email")
	q.Set("nonce", hashedNonce)
	return GoogleAuthEndpoint + "?" + q.Encode()
}

// ExtractIDToken finds id_token in a callback URL. The fragment is read first; a query
// string that mentions id_token takes precedence.
func ExtractIDToken(rawURL string) (string, bool) {
	var params string
	if _, frag, ok := strings.Cut(rawURL, "#"); ok {
		params = frag
	}
	if _, query, ok := strings.Cut(rawURL, "?"); ok {
		query, _, _ = strings.Cut(query, "#")
		if strings.Contains(query, "id_token") {
			params = query
		}
	}
	if params == "" {
		return "", false
	}
	values, err := url.ParseQuery(params)
	if err != nil {
		return "", false
	}
	tok := values.Get("id_token")
	return tok, tok != ""
}

// ValidIDTokenShape reports whether tok parses as a JWT. The signature is checked by
// the backend at sign-in, not here.
func ValidIDTokenShape(tok string) bool {
	if strings.Count(tok, ".") != 2 {
		return false
	}
	_, _, err := jwt.NewParser().ParseUnverified(tok, jwt.MapClaims{})
	return err == nil
}

// DeepLink returns the app URL the relay redirects to. JWTs contain only URL-safe
// characters, so the token is passed through as is.
func DeepLink(appBase, idToken string) string {
	return strings.TrimSuffix(appBase, "/") + "/--/auth?id_token=" + idToken
}
