// Package apiauth implements the Bearer-token and cron-shared-secret
// authentication checks described in spec.md §6.
package apiauth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"regexp"
)

// keyFormat matches "ky_live_" or "ky_test_" followed by 32 hex characters.
var keyFormat = regexp.MustCompile(`^ky_(live|test)_[0-9a-f]{32}$`)

// ValidFormat reports whether token matches the expected API key shape.
func ValidFormat(token string) bool {
	return keyFormat.MatchString(token)
}

// HashToken returns the hex-encoded SHA-256 digest of token, the form
// stored at rest and compared against on every request.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Matches reports whether token's SHA-256 hash equals storedHash, using a
// constant-time comparison to avoid timing side-channels.
func Matches(token, storedHash string) bool {
	if token == "" || storedHash == "" {
		return false
	}
	got := HashToken(token)
	return subtle.ConstantTimeCompare([]byte(got), []byte(storedHash)) == 1
}

// MatchesSharedSecret reports whether the presented cron shared-secret
// header value equals the configured secret, constant-time.
func MatchesSharedSecret(presented, configured string) bool {
	if configured == "" || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(configured)) == 1
}
