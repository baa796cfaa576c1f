// Package parser decodes the HTTP search request body into the query
// DSL plus predicate filter and pagination that internal/searchengine
// expects, clamping pagination into the configured bounds.
package parser

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Request is a decoded search call: a query-DSL object, an optional
// base64-encoded compiled predicate filter, and pagination.
type Request struct {
	Query  json.RawMessage `json:"query"`
	Filter string          `json:"filter,omitempty"`
	From   int             `json:"from"`
	Size   int             `json:"size"`
}

// Parse decodes body into a Request. Invalid pagination is clamped,
// never rejected: from floors at 0, size defaults to defaultSize and
// caps at maxResults.
func Parse(body []byte, defaultSize, maxResults int) (*Request, error) {
	var req Request
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, fmt.Errorf("parser: invalid request body: %w", err)
		}
	}
	if len(req.Query) == 0 {
		req.Query = json.RawMessage(`{"match_all":{}}`)
	}
	if req.From < 0 {
		req.From = 0
	}
	if req.Size <= 0 {
		req.Size = defaultSize
	}
	if req.Size > maxResults {
		req.Size = maxResults
	}
	return &req, nil
}

// DecodeFilter base64-decodes the Request's Filter field, if present.
func (r *Request) DecodeFilter() ([]byte, error) {
	if r.Filter == "" {
		return nil, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(r.Filter)
	if err != nil {
		return nil, fmt.Errorf("parser: invalid base64 filter: %w", err)
	}
	return decoded, nil
}

// SimpleMatch builds a single-field match query, the shape the legacy
// GET ?q=&field= convenience endpoint produces.
func SimpleMatch(field, text string) json.RawMessage {
	body, _ := json.Marshal(map[string]any{
		"match": map[string]string{field: text},
	})
	return body
}
