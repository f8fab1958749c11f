package auth

import (
	"net"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

// AuditEntry describes one administrative action.
type AuditEntry struct {
	Action    string
	Resource  string
	IPAddress string
	UserAgent string
	Status    int
	Details   map[string]any
}

// NewAuditEntry fills the request fields of an entry.
func NewAuditEntry(r *http.Request, action, resource string) AuditEntry {
	return AuditEntry{
		Action:    action,
		Resource:  resource,
		IPAddress: GetIPAddress(r),
		UserAgent: r.UserAgent(),
	}
}

// LogAudit writes entry to logger at info level, or warn for failed actions.
func LogAudit(logger zerolog.Logger, entry AuditEntry) {
	ev := logger.Info()
	if entry.Status >= http.StatusBadRequest {
		ev = logger.Warn()
	}
	ev = ev.Str("audit_action", entry.Action).
		Str("resource", entry.Resource).
		Str("ip", entry.IPAddress).
		Str("user_agent", entry.UserAgent).
		Int("status", entry.Status)
	if len(entry.Details) > 0 {
		ev = ev.Fields(entry.Details)
	}
	ev.Msg("admin action")
}

// GetIPAddress extracts the client IP address from the request
func GetIPAddress(r *http.Request) string {
	// Check X-Forwarded-For header first (for proxies)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// Take the first IP in the list
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	// Check X-Real-IP header
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	// Fall back to RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
