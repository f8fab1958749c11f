// Package auth verifies the admin key that guards mutating service endpoints.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	KeyPrefix  = "dsk_" // decider secret key
	KeyLength  = 32     // random bytes after the prefix
	BCryptCost = 12
)

// GenerateAPIKey generates a new admin key.
func GenerateAPIKey() (string, error) {
	b := make([]byte, KeyLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return KeyPrefix + base64.RawURLEncoding.EncodeToString(b), nil
}

// HashAPIKey hashes a key using bcrypt, for ADMIN_API_KEY_HASH.
func HashAPIKey(key string) (string, error) {
	return hashAPIKeyCost(key, BCryptCost)
}

func hashAPIKeyCost(key string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash key: %w", err)
	}
	return string(hash), nil
}

// VerifyAPIKey reports whether key matches a bcrypt hash.
func VerifyAPIKey(key, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) == nil
}

// keysEqual compares a presented key with the configured plain key in
// constant time.
func keysEqual(got, expected string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(expected)) == 1
}

// ExtractBearerToken returns the token of an "Authorization: Bearer <token>"
// header. The scheme is matched case-insensitively; a header without it is
// returned trimmed.
func ExtractBearerToken(authHeader string) string {
	header := strings.TrimSpace(authHeader)
	scheme, token, found := strings.Cut(header, " ")
	if found && strings.EqualFold(scheme, "bearer") {
		return strings.TrimSpace(token)
	}
	return header
}
