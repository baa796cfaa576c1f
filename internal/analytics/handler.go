package analytics

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Handler serves the aggregated analytics snapshot.
type Handler struct {
	aggregator *Aggregator
	logger     *slog.Logger
}

// NewHandler returns a Handler over agg.
func NewHandler(agg *Aggregator) *Handler {
	return &Handler{
		aggregator: agg,
		logger:     slog.Default().With("component", "analytics-handler"),
	}
}

// Stats writes the current Snapshot as JSON.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.aggregator.Stats()); err != nil {
		h.logger.Error("response write failed", "error", err)
	}
}
