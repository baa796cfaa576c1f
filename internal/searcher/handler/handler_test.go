package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/briarshard/shardsearch/internal/searchengine/query"
	"github.com/briarshard/shardsearch/internal/searcher/parser"
)

// stubExecutor returns a canned result and records the last request.
type stubExecutor struct {
	result *query.Result
	err    error
	last   *parser.Request
}

func (s *stubExecutor) Execute(ctx context.Context, req *parser.Request) (*query.Result, error) {
	s.last = req
	return s.result, s.err
}

func okResult() *query.Result {
	return &query.Result{
		TotalHits: 1,
		MaxScore:  1.5,
		Hits: []query.Hit{
			{ID: "a", Score: 1.5, Source: map[string]any{"title": "red fox"}},
		},
	}
}

func TestSearchPostRunsQueryDSL(t *testing.T) {
	exec := &stubExecutor{result: okResult()}
	h := New(exec, nil, nil, nil, 10, 100)

	body := `{"query":{"term":{"title":"fox"}},"from":0,"size":5}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/search", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Search(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, exec.last)
	assert.JSONEq(t, `{"term":{"title":"fox"}}`, string(exec.last.Query))
	assert.Equal(t, 5, exec.last.Size)

	var result query.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 1, result.TotalHits)
	require.Len(t, result.Hits, 1)
	assert.Equal(t, "a", result.Hits[0].ID)
}

func TestSearchGetBuildsMatchClause(t *testing.T) {
	exec := &stubExecutor{result: okResult()}
	h := New(exec, nil, nil, nil, 10, 100)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/search?q=red+fox&field=title&limit=3", nil)
	rec := httptest.NewRecorder()
	h.Search(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, exec.last)
	assert.JSONEq(t, `{"match":{"title":"red fox"}}`, string(exec.last.Query))
	assert.Equal(t, 3, exec.last.Size)
}

func TestSearchGetRequiresQueryParameter(t *testing.T) {
	h := New(&stubExecutor{result: okResult()}, nil, nil, nil, 10, 100)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/search", nil)
	rec := httptest.NewRecorder()
	h.Search(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchExecutorErrorIs500(t *testing.T) {
	h := New(&stubExecutor{err: errors.New("boom")}, nil, nil, nil, 10, 100)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/search", strings.NewReader(`{"query":{"match_all":{}}}`))
	rec := httptest.NewRecorder()
	h.Search(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestSearchSizeClampedToMaxResults(t *testing.T) {
	exec := &stubExecutor{result: okResult()}
	h := New(exec, nil, nil, nil, 10, 50)

	body := `{"query":{"match_all":{}},"size":10000}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/search", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Search(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 50, exec.last.Size)
}

func TestCacheStatsReportsDisabledWithoutCache(t *testing.T) {
	h := New(&stubExecutor{result: okResult()}, nil, nil, nil, 10, 100)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cache/stats", nil)
	rec := httptest.NewRecorder()
	h.CacheStats(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "disabled", body["status"])
}
