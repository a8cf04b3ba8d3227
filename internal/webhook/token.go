// Package webhook implements Reef's webhook trigger tokens: generation,
// at-rest hashing, validation against a catalog.WebhookTrigger, and a
// per-token hourly rate limit.
package webhook

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// TokenPrefix marks a string as a Reef webhook token.
const TokenPrefix = "reef_wh_"

// randomSuffixBytes yields enough URL-safe base64 characters to clear the
// documented 32-character minimum token length comfortably.
const randomSuffixBytes = 28

// ErrInvalidToken is returned when a presented token does not match any
// active WebhookTrigger.
var ErrInvalidToken = errors.New("webhook: invalid or inactive token")

// GenerateToken produces a new bearer token: TokenPrefix followed by a
// cryptographically random URL-safe suffix.
func GenerateToken() (string, error) {
	buf := make([]byte, randomSuffixBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("webhook: generate token: %w", err)
	}
	suffix := base64.RawURLEncoding.EncodeToString(buf)
	return TokenPrefix + suffix, nil
}

// HashToken returns the at-rest form stored in WebhookTrigger.TokenHash:
// base64(sha256(token)).
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// LooksLikeToken is a cheap pre-check before a database round trip.
func LooksLikeToken(token string) bool {
	return strings.HasPrefix(token, TokenPrefix) && len(token) >= len(TokenPrefix)+32
}

// Matches reports whether token hashes to storedHash, using a
// constant-time comparison to avoid timing side channels.
func Matches(token, storedHash string) bool {
	got := HashToken(token)
	return subtle.ConstantTimeCompare([]byte(got), []byte(storedHash)) == 1
}
