// Package id generates prefixed, URL-safe identifiers for server-side objects
// (sessions, event subscribers, mutation attempts).
package id

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Prefixes for the objects this server mints ids for. Posts, users and places get their
// ids from the backend or the places provider.
const (
	PrefixSession    = "sess"
	PrefixSubscriber = "sub"
	PrefixRequest    = "req"
)

// Generate returns prefix + "-" + a 21-character nanoid.
func Generate(prefix string) (string, error) {
	nid, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return prefix + "-" + nid, nil
}

// MustGenerate is like Generate but panics when the system has no entropy.
func MustGenerate(prefix string) string {
	v, err := Generate(prefix)
	if err != nil {
		panic(fmt.Sprintf("failed to generate ID: %v", err))
	}
	return v
}

// Nonce returns a random alphanumeric string of length n, used for OAuth nonces.
func Nonce(n int) (string, error) {
	v, err := gonanoid.Generate("0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz", n)
	if err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	return v, nil
}
