// Package telemetry provides Prometheus instrumentation for the decider
// service. Collectors live in a dedicated registry so that /metrics only
// exposes decider metrics.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/TimurManjosov/decider/internal/snapshot"
)

// Metrics holds all collectors.
type Metrics struct {
	Registry *prometheus.Registry

	httpReqs        *prometheus.CounterVec
	httpDur         *prometheus.HistogramVec
	operations      *prometheus.CounterVec
	operationDur    *prometheus.HistogramVec
	features        prometheus.Gauge
	generationLoads prometheus.Counter
	lastLoad        prometheus.Gauge
	webhooks        *prometheus.CounterVec
}

// New creates and registers all metrics in a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		httpReqs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "decider_http_requests_total",
				Help: "Total HTTP requests",
			},
			[]string{"route", "method", "status"},
		),
		httpDur: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "decider_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "decider_operations_total",
				Help: "Decider operations by outcome",
			},
			[]string{"operation", "success", "error_type"},
		),
		operationDur: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "decider_operation_duration_seconds",
				Help:    "Decider operation duration in seconds",
				Buckets: []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05, .1, .5, 1},
			},
			[]string{"operation"},
		),
		features: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "decider_features",
			Help: "Number of features in the active configuration generation",
		}),
		generationLoads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "decider_generations_published_total",
			Help: "Configuration generations published",
		}),
		lastLoad: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "decider_generation_loaded_timestamp_seconds",
			Help: "Unix time the active configuration generation was loaded",
		}),
		webhooks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "decider_webhook_deliveries_total",
				Help: "Generation webhook deliveries by outcome",
			},
			[]string{"success"},
		),
	}
	m.Registry.MustRegister(m.httpReqs, m.httpDur, m.operations, m.operationDur,
		m.features, m.generationLoads, m.lastLoad, m.webhooks)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Observe implements decider.Observer.
func (m *Metrics) Observe(operation string, success bool, errorType string, elapsed time.Duration) {
	m.operations.WithLabelValues(operation, strconv.FormatBool(success), errorType).Inc()
	m.operationDur.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// ObserveGeneration records a newly published generation.
func (m *Metrics) ObserveGeneration(g *snapshot.Generation) {
	m.features.Set(float64(g.Len()))
	m.lastLoad.Set(float64(g.LoadedAt.Unix()))
	m.generationLoads.Inc()
}

// ObserveWebhook counts one webhook delivery.
func (m *Metrics) ObserveWebhook(success bool) {
	m.webhooks.WithLabelValues(strconv.FormatBool(success)).Inc()
}

// RegisterPool exposes live pgxpool statistics on every scrape.
func (m *Metrics) RegisterPool(pool *pgxpool.Pool) {
	m.Registry.MustRegister(newPoolCollector(pool))
}

// Middleware records request count and latency per chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(ww, r)

		// get route pattern if available
		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		m.httpReqs.WithLabelValues(route, r.Method, strconv.Itoa(ww.status)).Inc()
		m.httpDur.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
