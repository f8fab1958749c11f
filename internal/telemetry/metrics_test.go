package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/TimurManjosov/decider/internal/snapshot"
	"github.com/TimurManjosov/decider/internal/store"
)

func TestObserve(t *testing.T) {
	m := New()
	m.Observe("choose", true, "", time.Millisecond)
	m.Observe("choose", true, "", time.Millisecond)
	m.Observe("choose", false, "feature_not_found", time.Millisecond)

	if got := testutil.ToFloat64(m.operations.WithLabelValues("choose", "true", "")); got != 2 {
		t.Errorf("successful choose = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.operations.WithLabelValues("choose", "false", "feature_not_found")); got != 1 {
		t.Errorf("failed choose = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.operationDur); got != 1 {
		t.Errorf("duration series = %d, want 1", got)
	}
}

func TestObserveGeneration(t *testing.T) {
	m := New()
	doc := &store.Document{Features: []store.Feature{
		{ID: 1, Name: "a", Version: 1, Value: true},
		{ID: 2, Name: "b", Version: 1, Value: false},
	}}
	loaded := time.Unix(1_700_000_000, 0)
	g, err := snapshot.Build(doc, snapshot.Options{Now: func() time.Time { return loaded }}, nil)
	if err != nil {
		t.Fatal(err)
	}
	m.ObserveGeneration(g)

	if got := testutil.ToFloat64(m.features); got != 2 {
		t.Errorf("features = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.lastLoad); got != 1_700_000_000 {
		t.Errorf("last load = %v", got)
	}
	if got := testutil.ToFloat64(m.generationLoads); got != 1 {
		t.Errorf("generations = %v, want 1", got)
	}
}

func TestObserveWebhook(t *testing.T) {
	m := New()
	m.ObserveWebhook(true)
	m.ObserveWebhook(false)
	m.ObserveWebhook(false)

	if got := testutil.ToFloat64(m.webhooks.WithLabelValues("true")); got != 1 {
		t.Errorf("delivered = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.webhooks.WithLabelValues("false")); got != 2 {
		t.Errorf("failed = %v, want 2", got)
	}
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/v1/features/{name}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, name := range []string{"a", "b", "c"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/features/"+name, nil))
	}

	if got := testutil.ToFloat64(m.httpReqs.WithLabelValues("/v1/features/{name}", "GET", "404")); got != 3 {
		t.Errorf("requests = %v, want 3", got)
	}
}

func TestHandlerExposesDeciderMetrics(t *testing.T) {
	m := New()
	m.Observe("reload", true, "", time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	if !strings.Contains(body, `decider_operations_total{error_type="",operation="reload",success="true"} 1`) {
		t.Errorf("metrics output missing operation counter:\n%s", body)
	}
	if strings.Contains(body, "go_goroutines") {
		t.Error("custom registry should not expose default Go collectors")
	}
}

func TestPoolCollector(t *testing.T) {
	pool, err := pgxpool.New(context.Background(), "postgres://decider@127.0.0.1:1/decider")
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()

	m := New()
	m.RegisterPool(pool)
	if got := testutil.CollectAndCount(newPoolCollector(pool)); got != 4 {
		t.Errorf("pool series = %d, want 4", got)
	}
}
