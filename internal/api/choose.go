package api

import (
	"net/http"
	"strings"

	"github.com/TimurManjosov/decider/internal/decider"
)

// ChooseRequest is the body of POST /v1/choose.
type ChooseRequest struct {
	Feature string         `json:"feature"`
	Context map[string]any `json:"context"`
}

// ChooseAllRequest is the body of POST /v1/choose/all. An empty feature list
// evaluates every feature.
type ChooseAllRequest struct {
	Features []string       `json:"features,omitempty"`
	Context  map[string]any `json:"context"`
}

// ChooseAllResponse carries one decision per successfully evaluated feature
// and the error code of each feature that failed.
type ChooseAllResponse struct {
	Decisions map[string]decider.Decision `json:"decisions"`
	Errors    map[string]*ErrorResponse   `json:"errors,omitempty"`
}

// handleChoose handles POST /v1/choose.
func (s *Server) handleChoose(w http.ResponseWriter, r *http.Request) {
	var req ChooseRequest
	if !decodeBody(w, r, &req) {
		return
	}

	name := strings.TrimSpace(req.Feature)
	if name == "" {
		ValidationError(w, r, "Missing required field", map[string]string{
			"feature": "feature is required",
		})
		return
	}

	dec, err := s.decider.Choose(name, req.Context)
	if err != nil {
		DecisionError(w, r, err)
		return
	}
	setNoCache(w)
	writeJSON(w, http.StatusOK, dec)
}

// handleChooseAll handles POST /v1/choose/all.
func (s *Server) handleChooseAll(w http.ResponseWriter, r *http.Request) {
	var req ChooseAllRequest
	if !decodeBody(w, r, &req) {
		return
	}

	names := make([]string, 0, len(req.Features))
	for _, n := range req.Features {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}

	outcomes, err := s.decider.ChooseAll(req.Context, names...)
	if err != nil {
		DecisionError(w, r, err)
		return
	}

	resp := ChooseAllResponse{Decisions: make(map[string]decider.Decision, len(outcomes))}
	for _, o := range outcomes {
		if o.Err != nil {
			if resp.Errors == nil {
				resp.Errors = make(map[string]*ErrorResponse)
			}
			status, code := decisionStatus(o.Err)
			resp.Errors[o.Feature] = NewErrorResponse(status, code, o.Err.Error())
			continue
		}
		resp.Decisions[o.Feature] = o.Decision
	}
	setNoCache(w)
	writeJSON(w, http.StatusOK, resp)
}
