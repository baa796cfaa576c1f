package validator

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/briarshard/shardsearch/internal/ingestion"
)

func TestValidObjectPasses(t *testing.T) {
	req := &ingestion.IngestRequest{
		Document: json.RawMessage(`{"title":"red fox","price":10}`),
	}
	assert.NoError(t, ValidateIngestRequest(req))
}

func TestEmptyDocumentRejected(t *testing.T) {
	err := ValidateIngestRequest(&ingestion.IngestRequest{})
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "document")
}

func TestNonObjectDocumentRejected(t *testing.T) {
	for _, doc := range []string{`"just a string"`, `42`, `[1,2,3]`, `{broken`} {
		req := &ingestion.IngestRequest{Document: json.RawMessage(doc)}
		assert.Error(t, ValidateIngestRequest(req), "document %s", doc)
	}
}

func TestOversizedDocumentRejected(t *testing.T) {
	big := `{"body":"` + strings.Repeat("x", maxDocumentBytes) + `"}`
	req := &ingestion.IngestRequest{Document: json.RawMessage(big)}

	var verr *ValidationError
	require.ErrorAs(t, ValidateIngestRequest(req), &verr)
	assert.Contains(t, verr.Fields, "document")
}

func TestOverlongIdempotencyKeyRejected(t *testing.T) {
	req := &ingestion.IngestRequest{
		Document:       json.RawMessage(`{"a":1}`),
		IdempotencyKey: strings.Repeat("k", maxIdempotencyKeyChars+1),
	}
	var verr *ValidationError
	require.ErrorAs(t, ValidateIngestRequest(req), &verr)
	assert.Contains(t, verr.Fields, "idempotency_key")
}
