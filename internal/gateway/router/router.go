// Package router assembles the gateway's route table and middleware
// chain.
package router

import (
	"net/http"

	"github.com/briarshard/shardsearch/internal/auth/apikey"
	"github.com/briarshard/shardsearch/internal/auth/ratelimit"
	gwhandler "github.com/briarshard/shardsearch/internal/gateway/handler"
	gwmw "github.com/briarshard/shardsearch/internal/gateway/middleware"
	pkgmw "github.com/briarshard/shardsearch/pkg/middleware"
)

// New returns the gateway's complete HTTP handler.
//
//	POST /api/v1/documents        → ingestion service
//	GET  /api/v1/documents        → document records (PostgreSQL)
//	GET  /api/v1/documents/{id}   → one record (PostgreSQL)
//	POST /api/v1/search           → searcher service
//	GET  /api/v1/search           → searcher service
//	GET  /api/v1/analytics        → searcher service
//	GET  /api/v1/cache/stats      → searcher service
//	POST /api/v1/cache/invalidate → searcher service
//	POST /api/v1/admin/keys       → issue API key
//	GET  /api/v1/admin/keys       → list API keys
//	GET  /health                  → gateway itself
//
// Requests flow RequestID → CORS → Auth → RateLimit → route.
func New(h *gwhandler.Handler, keys *apikey.Store, limiter *ratelimit.Limiter) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.Health)

	mux.HandleFunc("POST /api/v1/documents", h.ProxyIngest)
	mux.HandleFunc("GET /api/v1/documents", h.ListDocuments)
	mux.HandleFunc("GET /api/v1/documents/{id}", h.GetDocument)

	mux.HandleFunc("GET /api/v1/search", h.ProxySearch)
	mux.HandleFunc("POST /api/v1/search", h.ProxySearch)

	mux.HandleFunc("GET /api/v1/analytics", h.ProxySearcherAux)
	mux.HandleFunc("GET /api/v1/cache/stats", h.ProxySearcherAux)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.ProxySearcherAux)

	mux.HandleFunc("POST /api/v1/admin/keys", h.IssueAPIKey)
	mux.HandleFunc("GET /api/v1/admin/keys", h.ListAPIKeys)

	var chain http.Handler = mux
	chain = gwmw.RateLimit(limiter)(chain)
	chain = gwmw.Auth(keys)(chain)
	chain = gwmw.CORS(gwmw.DefaultCORSConfig())(chain)
	chain = pkgmw.RequestID(chain)
	return chain
}
