package auth

import (
	"encoding/base64"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestGenerateAPIKey(t *testing.T) {
	a, err := GenerateAPIKey()
	if err != nil {
		t.Fatalf("GenerateAPIKey() error = %v", err)
	}
	b, _ := GenerateAPIKey()
	if a == b {
		t.Error("two generated keys are equal")
	}

	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(a, KeyPrefix))
	if !strings.HasPrefix(a, KeyPrefix) || err != nil || len(raw) != KeyLength {
		t.Errorf("key %q is not %s + %d url-safe random bytes", a, KeyPrefix, KeyLength)
	}
}

func TestExtractBearerToken(t *testing.T) {
	tests := map[string]string{
		"Bearer abc":     "abc",
		"bearer abc":     "abc",
		"BEARER  abc  ":  "abc",
		"abc":            "abc",
		"":               "",
		"Bearer":         "Bearer",
		"Basic dXNlcjpw": "Basic dXNlcjpw",
	}
	for header, want := range tests {
		if got := ExtractBearerToken(header); got != want {
			t.Errorf("ExtractBearerToken(%q) = %q, want %q", header, got, want)
		}
	}
}

func TestHashAPIKey(t *testing.T) {
	hash, err := hashAPIKeyCost("dsk_abc", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hashAPIKeyCost: %v", err)
	}
	if !VerifyAPIKey("dsk_abc", hash) {
		t.Error("hash does not verify its own key")
	}
	if VerifyAPIKey("dsk_abd", hash) || VerifyAPIKey("dsk_abc", "not-a-hash") {
		t.Error("VerifyAPIKey accepted a wrong key or hash")
	}
}

func TestKeysEqual(t *testing.T) {
	if !keysEqual("admin-123", "admin-123") || keysEqual("admin-123", "admin-12") || keysEqual("", "x") {
		t.Error("keysEqual mismatch")
	}
}
