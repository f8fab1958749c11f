// Package testutil holds helpers shared by HTTP-level tests.
package testutil

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/TimurManjosov/decider/internal/api"
	"github.com/TimurManjosov/decider/internal/auth"
	"github.com/TimurManjosov/decider/internal/decider"
	"github.com/TimurManjosov/decider/internal/store"
)

// NewTestServer creates a server backed by an in-memory source serving doc.
// Replace the document with src.Set and trigger a reload to publish it.
func NewTestServer(t *testing.T, doc *store.Document, adminKey string) (*api.Server, *decider.Decider, *store.MemorySource) {
	t.Helper()
	src := store.NewMemorySource(doc)
	d, err := decider.New(context.Background(), decider.Options{Source: src, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("decider.New: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	server := api.NewServer(d, api.Options{
		Logger: zerolog.Nop(),
		Auth:   auth.NewAuthenticator(adminKey, ""),
	})
	return server, d, src
}

// HTTPRequest is a helper for making test HTTP requests.
type HTTPRequest struct {
	Method  string
	Path    string
	Body    string
	Headers map[string]string
}

// Do executes the HTTP request and returns the response recorder.
func (r *HTTPRequest) Do(t *testing.T, handler http.Handler) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if r.Body != "" {
		body = bytes.NewBufferString(r.Body)
	}
	req := httptest.NewRequest(r.Method, r.Path, body)
	if r.Body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func fraction(f float64) *float64 { return &f }

// RolloutDocument returns a document with a 50% rollout ("new_checkout"), a
// two-arm experiment with QA overrides ("checkout_experiment") and a
// country-targeted banner with a static value ("geo_banner").
func RolloutDocument() *store.Document {
	return &store.Document{Features: []store.Feature{
		{
			ID: 1, Name: "new_checkout", Version: 1,
			FractionalAvailability: fraction(0.5),
			Variants:               []store.Variant{{Name: "on", Weight: 1}},
		},
		{
			ID: 2, Name: "checkout_experiment", Version: 3,
			FractionalAvailability: fraction(1),
			Variants: []store.Variant{
				{Name: "control", Weight: 0.5, Value: "blue"},
				{Name: "treatment", Weight: 0.5, Value: "green"},
			},
			Overrides: []store.Override{{Field: "user_id", Values: []any{"qa-1"}, Variant: "treatment"}},
		},
		{
			ID: 3, Name: "geo_banner", Version: 1,
			Value: map[string]any{"text": "hello", "limit": 3},
		},
	}}
}
