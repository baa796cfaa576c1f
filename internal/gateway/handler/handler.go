// Package handler implements the gateway's endpoints: reverse proxies
// to the ingestion and searcher services (each behind its own circuit
// breaker), direct document-metadata reads from PostgreSQL, and API-key
// administration.
package handler

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"time"

	"github.com/briarshard/shardsearch/internal/auth/apikey"
	"github.com/briarshard/shardsearch/pkg/postgres"
	"github.com/briarshard/shardsearch/pkg/resilience"
)

// Config points the gateway at its upstreams.
type Config struct {
	IngestionURL string
	SearcherURL  string
}

// upstream couples a reverse proxy with the breaker guarding it.
type upstream struct {
	proxy   *httputil.ReverseProxy
	breaker *resilience.Breaker
}

func newUpstream(name, target string, onState func(string, resilience.BreakerState)) *upstream {
	u, _ := url.Parse(target)
	return &upstream{
		proxy: httputil.NewSingleHostReverseProxy(u),
		breaker: resilience.NewBreaker(name, resilience.BreakerSettings{
			OnStateChange: onState,
		}),
	}
}

// serve forwards the request through the breaker. A 5xx from the
// upstream counts as a failure; an open breaker answers 503 locally
// without touching the upstream.
func (u *upstream) serve(w http.ResponseWriter, r *http.Request) {
	err := u.breaker.Do(func() error {
		rec := &proxyRecorder{ResponseWriter: w}
		u.proxy.ServeHTTP(rec, r)
		if rec.status >= http.StatusInternalServerError {
			return errors.New("upstream returned " + strconv.Itoa(rec.status))
		}
		return nil
	})
	if errors.Is(err, resilience.ErrBreakerOpen) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":"upstream unavailable"}`))
	}
}

type proxyRecorder struct {
	http.ResponseWriter
	status int
}

func (pr *proxyRecorder) WriteHeader(code int) {
	pr.status = code
	pr.ResponseWriter.WriteHeader(code)
}

// Handler serves the gateway's routes.
type Handler struct {
	ingestion *upstream
	searcher  *upstream
	db        *postgres.Client
	keys      *apikey.Store
	logger    *slog.Logger
}

// New wires the handler's upstreams and storage. onBreakerState, when
// non-nil, receives breaker transitions (the metrics gauge hook).
func New(cfg Config, db *postgres.Client, keys *apikey.Store, onBreakerState func(string, resilience.BreakerState)) *Handler {
	return &Handler{
		ingestion: newUpstream("ingestion", cfg.IngestionURL, onBreakerState),
		searcher:  newUpstream("searcher", cfg.SearcherURL, onBreakerState),
		db:        db,
		keys:      keys,
		logger:    slog.Default().With("component", "gateway"),
	}
}

// ProxyIngest forwards document writes to the ingestion service.
func (h *Handler) ProxyIngest(w http.ResponseWriter, r *http.Request) {
	h.ingestion.serve(w, r)
}

// ProxySearch forwards query execution to the searcher service.
func (h *Handler) ProxySearch(w http.ResponseWriter, r *http.Request) {
	h.searcher.serve(w, r)
}

// ProxySearcherAux forwards the searcher's auxiliary endpoints
// (analytics, cache stats, cache invalidation).
func (h *Handler) ProxySearcherAux(w http.ResponseWriter, r *http.Request) {
	h.searcher.serve(w, r)
}

// GetDocument reads one document's ingest record straight from
// PostgreSQL, bypassing the searcher.
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "document id is required")
		return
	}

	var doc struct {
		ID         string          `json:"id"`
		Document   json.RawMessage `json:"document"`
		SizeBytes  int             `json:"size_bytes"`
		ShardIndex int             `json:"shard_index"`
		Status     string          `json:"status"`
		CreatedAt  time.Time       `json:"created_at"`
		IndexedAt  *time.Time      `json:"indexed_at,omitempty"`
	}
	err := h.db.DB.QueryRowContext(r.Context(),
		`SELECT id, document, content_size, shard_index, status, created_at, indexed_at
		 FROM documents WHERE id = $1`, id,
	).Scan(&doc.ID, &doc.Document, &doc.SizeBytes, &doc.ShardIndex,
		&doc.Status, &doc.CreatedAt, &doc.IndexedAt)
	if errors.Is(err, sql.ErrNoRows) {
		h.writeError(w, http.StatusNotFound, "document not found")
		return
	}
	if err != nil {
		h.logger.Error("document lookup failed", "id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "document lookup failed")
		return
	}
	h.writeJSON(w, http.StatusOK, doc)
}

// ListDocuments pages through document ingest records, newest first.
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20, 1, 100)
	offset := queryInt(r, "offset", 0, 0, 1<<30)

	rows, err := h.db.DB.QueryContext(r.Context(),
		`SELECT id, content_size, shard_index, status, created_at
		 FROM documents ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		h.logger.Error("document listing failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "document listing failed")
		return
	}
	defer rows.Close()

	type row struct {
		ID         string    `json:"id"`
		SizeBytes  int       `json:"size_bytes"`
		ShardIndex int       `json:"shard_index"`
		Status     string    `json:"status"`
		CreatedAt  time.Time `json:"created_at"`
	}
	docs := make([]row, 0, limit)
	for rows.Next() {
		var d row
		if err := rows.Scan(&d.ID, &d.SizeBytes, &d.ShardIndex, &d.Status, &d.CreatedAt); err != nil {
			h.logger.Error("row scan failed", "error", err)
			continue
		}
		docs = append(docs, d)
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"documents": docs,
		"count":     len(docs),
		"limit":     limit,
		"offset":    offset,
	})
}

func queryInt(r *http.Request, name string, def, lo, hi int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < lo || n > hi {
		return def
	}
	return n
}

// IssueAPIKey mints a key and returns the raw value, shown exactly
// once.
func (h *Handler) IssueAPIKey(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name      string `json:"name"`
		RateLimit int    `json:"rate_limit"`
		ExpiresIn string `json:"expires_in,omitempty"` // Go duration, e.g. "720h"
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Name == "" {
		h.writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.RateLimit <= 0 {
		req.RateLimit = 100
	}

	var expiresAt *time.Time
	if req.ExpiresIn != "" {
		d, err := time.ParseDuration(req.ExpiresIn)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid expires_in duration")
			return
		}
		t := time.Now().Add(d)
		expiresAt = &t
	}

	raw, err := h.keys.Issue(r.Context(), req.Name, req.RateLimit, expiresAt)
	if err != nil {
		h.logger.Error("key issue failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "key issue failed")
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]string{
		"api_key": raw,
		"name":    req.Name,
		"message": "store this key now; it cannot be shown again",
	})
}

// ListAPIKeys returns active key metadata, never hashes.
func (h *Handler) ListAPIKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.keys.List(r.Context())
	if err != nil {
		h.logger.Error("key listing failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "key listing failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"keys": keys, "count": len(keys)})
}

// Health answers the gateway's own liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "gateway"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("response write failed", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
