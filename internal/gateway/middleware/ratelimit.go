package middleware

import (
	"net/http"
	"strings"

	"github.com/briarshard/shardsearch/internal/auth/ratelimit"
)

// RateLimit enforces each key's configured requests-per-window budget.
// It runs after Auth, so a request with no key in context is passed
// through for Auth's 401 to have already handled; health endpoints are
// never limited.
func RateLimit(limiter *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/health") {
				next.ServeHTTP(w, r)
				return
			}
			key := KeyFromContext(r.Context())
			if key == nil {
				next.ServeHTTP(w, r)
				return
			}
			if !limiter.Allow(key.ID, key.RateLimit) {
				w.Header().Set("Retry-After", "60")
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
