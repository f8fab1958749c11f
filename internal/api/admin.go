package api

import (
	"net/http"

	"github.com/TimurManjosov/decider/internal/auth"
)

// ReloadResponse is returned by POST /v1/admin/reload.
type ReloadResponse struct {
	OK       bool   `json:"ok"`
	ETag     string `json:"etag"`
	Changed  bool   `json:"changed"`
	Features int    `json:"features"`
}

// handleReload handles POST /v1/admin/reload. A failed reload leaves the
// active generation in place.
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	entry := auth.NewAuditEntry(r, "config.reload", s.decider.Source().String())
	prev := s.decider.Generation()

	if err := s.decider.Reload(r.Context()); err != nil {
		entry.Status = http.StatusInternalServerError
		entry.Details = map[string]any{"error": err.Error(), "etag": prev.ETag}
		auth.LogAudit(s.logger, entry)

		errResp := NewErrorResponse(http.StatusInternalServerError, ErrCodeReloadFailed, err.Error())
		writeErrorResponse(w, r, http.StatusInternalServerError, errResp)
		return
	}

	gen := s.decider.Generation()
	entry.Status = http.StatusOK
	entry.Details = map[string]any{"before_etag": prev.ETag, "after_etag": gen.ETag}
	auth.LogAudit(s.logger, entry)

	writeJSON(w, http.StatusOK, ReloadResponse{
		OK:       true,
		ETag:     gen.ETag,
		Changed:  gen != prev,
		Features: gen.Len(),
	})
}
