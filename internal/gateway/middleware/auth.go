// Package middleware holds the gateway-specific HTTP middleware:
// API-key authentication, per-key rate limiting, and CORS.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/briarshard/shardsearch/internal/auth/apikey"
)

type keyCtx struct{}

// Auth validates the API key on every request except the health
// endpoints, storing the resolved key metadata in the request context
// for the rate limiter downstream. Keys may arrive as a bearer token,
// an X-API-Key header, or an api_key query parameter.
func Auth(keys *apikey.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/health") {
				next.ServeHTTP(w, r)
				return
			}

			raw := presentedKey(r)
			if raw == "" {
				writeError(w, http.StatusUnauthorized, "missing api key")
				return
			}

			key, err := keys.Validate(r.Context(), raw)
			switch {
			case errors.Is(err, apikey.ErrUnknownKey):
				writeError(w, http.StatusUnauthorized, "invalid api key")
				return
			case errors.Is(err, apikey.ErrExpiredKey):
				writeError(w, http.StatusUnauthorized, "expired api key")
				return
			case err != nil:
				writeError(w, http.StatusInternalServerError, "authentication error")
				return
			}

			next.ServeHTTP(w, r.WithContext(
				context.WithValue(r.Context(), keyCtx{}, key)))
		})
	}
}

// KeyFromContext returns the key metadata Auth stored, or nil.
func KeyFromContext(ctx context.Context) *apikey.Key {
	k, _ := ctx.Value(keyCtx{}).(*apikey.Key)
	return k
}

// presentedKey extracts the raw key, preferring the Authorization
// header, then X-API-Key, then the query string.
func presentedKey(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	if k := r.Header.Get("X-API-Key"); k != "" {
		return k
	}
	return r.URL.Query().Get("api_key")
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":"` + message + `"}`))
}
