package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/factorybooks/factorybooks/internal/posting"
)

var _ posting.Recorder = (*Metrics)(nil)

func scrape(t *testing.T, metrics *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	return rr.Body.String()
}

func TestMetricsHandlerExposesPostingMetrics(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObservePosting("post", "ok")
	metrics.ObservePosting("post", "validation")
	metrics.ObserveDeadLetter("journal_intent")

	body := scrape(t, metrics)
	if !strings.Contains(body, `factorybooks_postings_total{operation="post",outcome="ok"} 1`) {
		t.Fatalf("expected posting counter, got: %s", body)
	}
	if !strings.Contains(body, `factorybooks_dead_letters_total{operation="journal_intent"} 1`) {
		t.Fatalf("expected dead letter counter, got: %s", body)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var metrics *Metrics
	metrics.ObservePosting("post", "ok")
	metrics.ObserveDeadLetter("delete")

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 from nil metrics, got %d", rr.Code)
	}
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/transactions")

	req := httptest.NewRequest(http.MethodPost, "/transactions", nil)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rr.Code)
	}

	body := scrape(t, metrics)
	if !strings.Contains(body, "factorybooks_http_requests_total{code=\"418\",route=\"/transactions\"} 1") {
		t.Fatalf("expected metrics to record request, got: %s", body)
	}
	if !strings.Contains(body, "factorybooks_http_request_duration_seconds_bucket{route=\"/transactions\"") {
		t.Fatalf("expected duration histogram to be present, got: %s", body)
	}
}
