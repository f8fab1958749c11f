package auth

import (
	"net/http"
)

// Authenticator checks bearer tokens against the configured admin key. When
// a bcrypt hash is configured it takes precedence over the plain key.
type Authenticator struct {
	adminKey     string
	adminKeyHash string

	// OnDenied writes the rejection response. Defaults to http.Error.
	OnDenied func(w http.ResponseWriter, r *http.Request, status int, msg string)
}

// NewAuthenticator creates an Authenticator. Either argument may be empty.
func NewAuthenticator(adminKey, adminKeyHash string) *Authenticator {
	return &Authenticator{adminKey: adminKey, adminKeyHash: adminKeyHash}
}

// AuthResult contains the result of an authentication attempt
type AuthResult struct {
	Authenticated bool
	Error         string
}

// Authenticate checks the Authorization header value.
func (a *Authenticator) Authenticate(authHeader string) AuthResult {
	token := ExtractBearerToken(authHeader)
	if token == "" {
		return AuthResult{Error: "missing bearer token"}
	}

	switch {
	case a.adminKeyHash != "":
		if VerifyAPIKey(token, a.adminKeyHash) {
			return AuthResult{Authenticated: true}
		}
	case a.adminKey != "":
		if keysEqual(token, a.adminKey) {
			return AuthResult{Authenticated: true}
		}
	default:
		return AuthResult{Error: "admin access is not configured"}
	}
	return AuthResult{Error: "invalid token"}
}

// RequireAdmin is a middleware that requires the admin key.
func (a *Authenticator) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		result := a.Authenticate(r.Header.Get("Authorization"))
		if !result.Authenticated {
			a.deny(w, r, http.StatusUnauthorized, result.Error)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *Authenticator) deny(w http.ResponseWriter, r *http.Request, status int, msg string) {
	if a.OnDenied != nil {
		a.OnDenied(w, r, status, msg)
		return
	}
	http.Error(w, msg, status)
}
