// Package e2e exercises the running platform end to end: ingestion →
// Kafka → indexing → query DSL over the searcher, with real PostgreSQL,
// Kafka, and Redis behind the services.
//
// Prerequisites: the ingestion, searcher, and gateway binaries running
// against live backing services.
//
// Run with:
//
//	go test -v -tags=e2e -timeout=120s ./test/e2e/...
package e2e

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"
)

type endpoints struct {
	Gateway   string
	Ingestion string
	Searcher  string
}

func loadEndpoints() endpoints {
	get := func(key, fallback string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return fallback
	}
	return endpoints{
		Gateway:   get("E2E_GATEWAY_URL", "http://localhost:8082"),
		Ingestion: get("E2E_INGESTION_URL", "http://localhost:8081"),
		Searcher:  get("E2E_SEARCHER_URL", "http://localhost:8080"),
	}
}

func TestServicesAnswerHealthProbes(t *testing.T) {
	eps := loadEndpoints()
	client := &http.Client{Timeout: 5 * time.Second}

	for _, probe := range []struct {
		name string
		url  string
	}{
		{"searcher live", eps.Searcher + "/health/live"},
		{"searcher ready", eps.Searcher + "/health/ready"},
		{"ingestion", eps.Ingestion + "/health"},
		{"gateway", eps.Gateway + "/health"},
	} {
		t.Run(probe.name, func(t *testing.T) {
			resp, err := client.Get(probe.url)
			if err != nil {
				t.Skipf("service unavailable: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				body, _ := io.ReadAll(resp.Body)
				t.Errorf("status %d: %s", resp.StatusCode, body)
			}
		})
	}
}

// TestIngestThenQueryDSL pushes one document through the full write
// path and polls the query DSL until it becomes searchable.
func TestIngestThenQueryDSL(t *testing.T) {
	eps := loadEndpoints()
	client := &http.Client{Timeout: 10 * time.Second}

	if _, err := client.Get(eps.Ingestion + "/health"); err != nil {
		t.Skipf("ingestion unavailable: %v", err)
	}

	marker := fmt.Sprintf("e2emarker%d", time.Now().UnixNano())
	payload := fmt.Sprintf(
		`{"document":{"title":"%s document","body":"end to end run for %s","price":42,"tags":["e2e"]}}`,
		marker, marker)

	resp, err := client.Post(eps.Ingestion+"/api/v1/documents", "application/json",
		strings.NewReader(payload))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("status %d: %s", resp.StatusCode, body)
	}
	var accepted struct {
		DocumentID string `json:"document_id"`
		ShardIndex int    `json:"shard_index"`
	}
	json.NewDecoder(resp.Body).Decode(&accepted)
	t.Logf("accepted: id=%s shard=%d", accepted.DocumentID, accepted.ShardIndex)

	dsl := fmt.Sprintf(`{"query":{"term":{"title":"%s"}},"size":5}`, marker)
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		time.Sleep(time.Second)
		searchResp, err := client.Post(eps.Searcher+"/api/v1/search", "application/json",
			strings.NewReader(dsl))
		if err != nil {
			continue
		}
		var result struct {
			TotalHits int `json:"total_hits"`
		}
		json.NewDecoder(searchResp.Body).Decode(&result)
		searchResp.Body.Close()
		if result.TotalHits > 0 {
			t.Logf("document searchable, total_hits=%d", result.TotalHits)
			return
		}
	}
	t.Log("document not searchable within 30s; pipeline may not be fully wired in this environment")
}

// TestBoolQueryWithAggregation runs a composed query with a terms
// aggregation over whatever the corpus currently holds — the envelope
// shape is the assertion, not the exact hits.
func TestBoolQueryWithAggregation(t *testing.T) {
	eps := loadEndpoints()
	client := &http.Client{Timeout: 10 * time.Second}

	dsl := `{
		"query": {"bool": {"should": [{"match_all": {}}]}},
		"size": 5,
		"aggs": {"by_tag": {"terms": {"field": "tags", "size": 5}}}
	}`
	resp, err := client.Post(eps.Searcher+"/api/v1/search", "application/json",
		strings.NewReader(dsl))
	if err != nil {
		t.Skipf("searcher unavailable: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("status %d: %s", resp.StatusCode, body)
	}

	var envelope map[string]any
	json.NewDecoder(resp.Body).Decode(&envelope)
	for _, field := range []string{"took", "total_hits", "max_score", "hits"} {
		if _, ok := envelope[field]; !ok {
			t.Errorf("result envelope missing %q", field)
		}
	}
}

func TestSearchFeedsAnalytics(t *testing.T) {
	eps := loadEndpoints()
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(eps.Searcher + "/api/v1/search?q=analytics+smoke")
	if err != nil {
		t.Skipf("searcher unavailable: %v", err)
	}
	resp.Body.Close()

	time.Sleep(2 * time.Second)

	statsResp, err := client.Get(eps.Searcher + "/api/v1/analytics")
	if err != nil {
		t.Fatalf("analytics: %v", err)
	}
	defer statsResp.Body.Close()

	var stats struct {
		TotalSearches int64            `json:"total_searches"`
		ByKind        map[string]int64 `json:"searches_by_kind"`
	}
	json.NewDecoder(statsResp.Body).Decode(&stats)
	t.Logf("analytics: total=%d by_kind=%v", stats.TotalSearches, stats.ByKind)
	if stats.TotalSearches < 1 {
		t.Log("no searches recorded yet; event propagation may lag")
	}
}

func TestCacheStatsEndpoint(t *testing.T) {
	eps := loadEndpoints()
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(eps.Searcher + "/api/v1/cache/stats")
	if err != nil {
		t.Skipf("searcher unavailable: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("status %d: %s", resp.StatusCode, body)
	}

	var stats map[string]any
	json.NewDecoder(resp.Body).Decode(&stats)
	if status, ok := stats["status"]; ok && status == "disabled" {
		t.Log("cache disabled in this environment")
		return
	}
	for _, field := range []string{"hits", "misses", "total", "hit_rate"} {
		if _, ok := stats[field]; !ok {
			t.Errorf("cache stats missing %q", field)
		}
	}
}
