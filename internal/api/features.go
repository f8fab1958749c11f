package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/TimurManjosov/decider/internal/snapshot"
	"github.com/TimurManjosov/decider/internal/store"
)

// FeaturesResponse lists the features of one generation.
type FeaturesResponse struct {
	ETag     string           `json:"etag"`
	Features []*store.Feature `json:"features"`
}

// GenerationResponse describes the active generation.
type GenerationResponse struct {
	*snapshot.Generation
	Features       int              `json:"features"`
	Versions       map[string]int64 `json:"versions"`
	DecisionMakers []string         `json:"decision_makers"`
}

// handleListFeatures handles GET /v1/features.
func (s *Server) handleListFeatures(w http.ResponseWriter, r *http.Request) {
	gen := s.decider.Generation()
	names := gen.Names()
	features := make([]*store.Feature, 0, len(names))
	for _, n := range names {
		e, _ := gen.Get(n)
		features = append(features, e.Feature)
	}

	w.Header().Set("ETag", gen.ETag)
	writeJSON(w, http.StatusOK, FeaturesResponse{ETag: gen.ETag, Features: features})
}

// handleGetFeature handles GET /v1/features/{name}.
func (s *Server) handleGetFeature(w http.ResponseWriter, r *http.Request) {
	f, err := s.decider.Feature(chi.URLParam(r, "name"))
	if err != nil {
		DecisionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// handleGeneration handles GET /v1/generation. Clients revalidate with
// If-None-Match and get 304 while the generation is unchanged.
func (s *Server) handleGeneration(w http.ResponseWriter, r *http.Request) {
	gen := s.decider.Generation()
	setNoCache(w)
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == gen.ETag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	stages := s.decider.DecisionMakers()
	names := make([]string, len(stages))
	for i, st := range stages {
		names[i] = string(st)
	}

	w.Header().Set("ETag", gen.ETag)
	writeJSON(w, http.StatusOK, GenerationResponse{
		Generation:     gen,
		Features:       gen.Len(),
		Versions:       gen.Versions(),
		DecisionMakers: names,
	})
}

// handleStream handles GET /v1/generation/stream. It sends an "init" event
// with the current ETag and an "update" event for every new generation.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		InternalError(w, r, "Streaming not supported")
		return
	}

	updates, unsubscribe := s.decider.Subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	writeEvent(w, "init", s.decider.Generation().ETag)
	flusher.Flush()

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case etag, ok := <-updates:
			if !ok {
				return
			}
			writeEvent(w, "update", etag)
			flusher.Flush()
		case <-heartbeat.C:
			_, _ = fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, event, etag string) {
	data, _ := json.Marshal(map[string]string{"etag": etag})
	_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}
