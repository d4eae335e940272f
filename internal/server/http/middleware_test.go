package httpserver

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/helixir/item-service/internal/observability"
)

func TestCorrelationIDMiddleware_UsesExistingHeader(t *testing.T) {
	handler := correlationIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cid := observability.RequestIDFromContext(r.Context())
		if cid != "test-correlation-123" {
			t.Errorf("expected correlation ID test-correlation-123, got %s", cid)
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("X-Correlation-ID", "test-correlation-123")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Header().Get("X-Correlation-ID") != "test-correlation-123" {
		t.Errorf("expected X-Correlation-ID header to be set")
	}
}

func TestCorrelationIDMiddleware_FallsBackToRequestID(t *testing.T) {
	var seen string
	handler := middleware.RequestID(correlationIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = observability.RequestIDFromContext(r.Context())
		if seen != middleware.GetReqID(r.Context()) {
			t.Errorf("expected correlation ID %q to equal chi request ID %q", seen, middleware.GetReqID(r.Context()))
		}
	})))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/test", nil))

	if seen == "" || rr.Header().Get("X-Correlation-ID") != seen {
		t.Errorf("expected header %q, got %q", seen, rr.Header().Get("X-Correlation-ID"))
	}
}

func TestCorrelationIDMiddleware_GeneratesIfMissing(t *testing.T) {
	handler := correlationIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cid := observability.RequestIDFromContext(r.Context())
		if _, err := uuid.Parse(cid); err != nil {
			t.Errorf("expected generated UUID correlation ID, got %q", cid)
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/test", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Header().Get("X-Correlation-ID") == "" {
		t.Error("expected X-Correlation-ID header to be set")
	}
}

func TestJSONContentTypeMiddleware(t *testing.T) {
	handler := jsonContentTypeMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/test", nil))

	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected application/json, got %q", ct)
	}
}

func TestRequestLogger_RecordsRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := &Server{
		metrics: observability.NewMetricsWithRegistry("mw_test", reg),
		logger:  zerolog.Nop(),
	}

	r := chi.NewRouter()
	r.Use(s.requestLogger)
	r.Get("/things/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	for _, path := range []string{"/things/1", "/things/2", "/nowhere"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", path, nil))
	}

	if got := testutil.ToFloat64(s.metrics.HTTPRequestsTotal.WithLabelValues("GET", "/things/{id}", "418")); got != 2 {
		t.Errorf("expected 2 requests under the route pattern, got %v", got)
	}
	if got := testutil.ToFloat64(s.metrics.HTTPRequestsTotal.WithLabelValues("GET", "unmatched", "404")); got != 1 {
		t.Errorf("expected 1 unmatched request, got %v", got)
	}
}

func TestRequestLogger_DefaultsStatusToOK(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := &Server{
		metrics: observability.NewMetricsWithRegistry("mw_default", reg),
		logger:  zerolog.Nop(),
	}

	r := chi.NewRouter()
	r.Use(s.requestLogger)
	r.Get("/silent", func(w http.ResponseWriter, r *http.Request) {})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/silent", nil))

	if got := testutil.ToFloat64(s.metrics.HTTPRequestsTotal.WithLabelValues("GET", "/silent", "200")); got != 1 {
		t.Errorf("expected request recorded with status 200, got %v", got)
	}
}
