// Package handler exposes the ingestion service's HTTP surface.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/briarshard/shardsearch/internal/ingestion"
	"github.com/briarshard/shardsearch/internal/ingestion/publisher"
	"github.com/briarshard/shardsearch/internal/ingestion/validator"
	apperrors "github.com/briarshard/shardsearch/pkg/errors"
	"github.com/briarshard/shardsearch/pkg/logger"
)

// Handler decodes, validates, and hands ingest requests to the
// publisher.
type Handler struct {
	publisher *publisher.Publisher
	logger    *slog.Logger
}

// New returns a Handler over pub.
func New(pub *publisher.Publisher) *Handler {
	return &Handler{
		publisher: pub,
		logger:    slog.Default().With("component", "ingestion-handler"),
	}
}

// Ingest accepts one document, answering 202 once it is persisted and
// queued for indexing.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	var req ingestion.IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validator.ValidateIngestRequest(&req); err != nil {
		var verr *validator.ValidationError
		if errors.As(err, &verr) {
			h.writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "validation failed",
				"fields": verr.Fields,
			})
			return
		}
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.publisher.Ingest(r.Context(), &req)
	if err != nil {
		status := apperrors.HTTPStatusCode(err)
		log.Error("ingest failed", "error", err, "status", status)
		h.writeError(w, status, "ingest failed")
		return
	}
	log.Info("document accepted",
		"document_id", resp.DocumentID, "shard_index", resp.ShardIndex)
	h.writeJSON(w, http.StatusAccepted, resp)
}

// Health answers the service's liveness endpoint.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
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
