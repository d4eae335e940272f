package httpserver

import (
	"crypto/rand"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/helixir/item-service/internal/observability"
)

// correlationIDHeader carries the request's correlation ID in both directions.
const correlationIDHeader = "X-Correlation-ID"

// correlationIDMiddleware ensures every request has a correlation ID.
// A client supplied ID wins over chi's request ID; a fresh UUID is the
// fallback. The ID is echoed back and stored in the request context.
func correlationIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		correlationID := r.Header.Get(correlationIDHeader)
		if correlationID == "" {
			correlationID = middleware.GetReqID(r.Context())
		}
		if correlationID == "" {
			correlationID = newCorrelationID()
		}

		w.Header().Set(correlationIDHeader, correlationID)
		ctx := observability.WithRequestID(r.Context(), correlationID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func newCorrelationID() string {
	id, err := uuid.NewRandom()
	if err == nil {
		return id.String()
	}
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		// Fallback to timestamp-based ID if crypto/rand fails.
		return fmt.Sprintf("%x", time.Now().UnixNano())
	}
	return fmt.Sprintf("%x", buf)
}

// jsonContentTypeMiddleware sets Content-Type: application/json for all responses.
func jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// requestLogger logs each request once it has been served and records the
// request metrics under the matched route pattern.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			duration := time.Since(start)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			route := routePattern(r)
			if s.metrics != nil {
				s.metrics.RecordHTTPRequest(r.Method, route, status, duration.Seconds())
			}

			logger := observability.WithRequestContext(s.logger, middleware.GetReqID(r.Context()), r.Method, r.URL.Path)
			event := logger.Info()
			switch {
			case status >= http.StatusInternalServerError:
				event = logger.Error()
			case status >= http.StatusBadRequest:
				event = logger.Warn()
			}
			event.
				Str("route", route).
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", duration).
				Msg("request completed")
		}()

		next.ServeHTTP(ww, r)
	})
}

// routePattern returns the chi route pattern that matched r, or "unmatched"
// so unknown paths do not create one metric series per URL.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}
