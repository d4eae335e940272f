package httpserver

import (
	"math"
	"net/http"
	"strconv"

	"golang.org/x/time/rate"
)

// RateLimiter wraps a token bucket shared by every request the server
// handles. It is safe for concurrent use because the underlying rate.Limiter
// is goroutine-safe for all operations.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter creates a rate limiter admitting ratePerSecond requests per
// second on average with bursts of up to burst requests. It returns nil when
// ratePerSecond is not positive, which disables limiting.
func NewRateLimiter(ratePerSecond float64, burst int) *RateLimiter {
	if ratePerSecond <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst),
	}
}

// Allow returns true if a request is allowed without waiting.
// It consumes one token if allowed, and returns false if no tokens are available.
func (l *RateLimiter) Allow() bool {
	return l.limiter.Allow()
}

// Middleware rejects requests with 429 once the bucket is empty. A nil
// limiter lets every request through.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	if l == nil {
		return next
	}
	retryAfter := strconv.Itoa(max(1, int(math.Ceil(1/float64(l.limiter.Limit())))))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow() {
			w.Header().Set("Retry-After", retryAfter)
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
