// Package api exposes a Decider over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog"

	"github.com/TimurManjosov/decider/internal/auth"
	"github.com/TimurManjosov/decider/internal/decider"
	"github.com/TimurManjosov/decider/internal/telemetry"
	"github.com/TimurManjosov/decider/internal/tracing"
)

const (
	// maxRequestBodySize bounds choose request bodies.
	maxRequestBodySize = 1 << 20

	defaultRequestTimeout = 5 * time.Second
	streamHeartbeat       = 30 * time.Second
)

// Options configures NewServer. Zero values disable the optional parts.
type Options struct {
	Logger         zerolog.Logger
	Auth           *auth.Authenticator // nil disables the admin routes
	Metrics        *telemetry.Metrics
	RateLimitPerIP int // requests per minute; 0 disables limiting
	RequestTimeout time.Duration
}

type Server struct {
	decider *decider.Decider
	auth    *auth.Authenticator
	metrics *telemetry.Metrics
	logger  zerolog.Logger

	rateLimit int
	timeout   time.Duration
}

func NewServer(d *decider.Decider, opts Options) *Server {
	s := &Server{
		decider:   d,
		auth:      opts.Auth,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		rateLimit: opts.RateLimitPerIP,
		timeout:   opts.RequestTimeout,
	}
	if s.timeout <= 0 {
		s.timeout = defaultRequestTimeout
	}
	if s.auth != nil && s.auth.OnDenied == nil {
		s.auth.OnDenied = s.denied
	}
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
	}
	r.Use(tracing.Middleware)
	if s.rateLimit > 0 {
		r.Use(httprate.Limit(s.rateLimit, time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(RateLimitedError),
		))
	}

	// health
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// long-lived; outside the request timeout
	r.Get("/v1/generation/stream", s.handleStream)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(s.timeout))

		r.Post("/v1/choose", s.handleChoose)
		r.Post("/v1/choose/all", s.handleChooseAll)

		r.Get("/v1/features", s.handleListFeatures)
		r.Get("/v1/features/{name}", s.handleGetFeature)
		r.Get("/v1/generation", s.handleGeneration)

		if s.auth != nil {
			r.With(s.auth.RequireAdmin).Post("/v1/admin/reload", s.handleReload)
		}
	})

	return r
}

// denied writes auth failures in the API error format and audits them.
func (s *Server) denied(w http.ResponseWriter, r *http.Request, status int, msg string) {
	entry := auth.NewAuditEntry(r, "admin.denied", r.URL.Path)
	entry.Status = status
	entry.Details = map[string]any{"reason": msg}
	auth.LogAudit(s.logger, entry)

	writeErrorResponse(w, r, status, NewErrorResponse(status, ErrCodeUnauthorized, msg))
}
