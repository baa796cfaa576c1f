// Package validator checks ingestion requests before they reach
// storage: the document must be a JSON object within size bounds.
package validator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/briarshard/shardsearch/internal/ingestion"
)

const (
	maxDocumentBytes       = 1 << 20 // 1 MiB
	maxIdempotencyKeyChars = 255
)

// ValidationError collects per-field failures.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, field+": "+msg)
	}
	return strings.Join(parts, "; ")
}

// ValidateIngestRequest returns a *ValidationError describing every
// problem with req, or nil when it is acceptable.
func ValidateIngestRequest(req *ingestion.IngestRequest) error {
	fields := make(map[string]string)

	switch {
	case len(req.Document) == 0:
		fields["document"] = "document is required"
	case len(req.Document) > maxDocumentBytes:
		fields["document"] = fmt.Sprintf("document exceeds %d bytes", maxDocumentBytes)
	default:
		var obj map[string]any
		if err := json.Unmarshal(req.Document, &obj); err != nil {
			fields["document"] = "document must be a JSON object"
		}
	}

	if len(req.IdempotencyKey) > maxIdempotencyKeyChars {
		fields["idempotency_key"] = fmt.Sprintf("idempotency key exceeds %d characters", maxIdempotencyKeyChars)
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}
