package shard

import (
	"testing"

	"github.com/briarshard/shardsearch/internal/searchengine/expr"
)

func seedShard(t *testing.T) *Shard {
	t.Helper()
	sh := New("products", 0, true)
	docs := map[string]string{
		"a": `{"title":"red fox","price":10}`,
		"b": `{"title":"quick brown fox","price":25}`,
		"c": `{"title":"slow turtle","price":5}`,
	}
	for id, j := range docs {
		if err := sh.IndexDocument(id, j); err != nil {
			t.Fatalf("IndexDocument(%s): %v", id, err)
		}
	}
	return sh
}

func TestShardSearchUnfiltered(t *testing.T) {
	sh := seedShard(t)
	result, err := sh.Search([]byte(`{"term":{"title":"fox"}}`), Options{Size: 10})
	if err != nil {
		t.Fatal(err)
	}
	if result.TotalHits != 2 {
		t.Fatalf("got %d hits, want 2", result.TotalHits)
	}
}

func TestShardSearchWithFilterDropsNonMatching(t *testing.T) {
	sh := seedShard(t)
	// price > 15
	filter := expr.FilterFromNode(expr.NewBinaryOp(expr.OpGreaterThan,
		expr.NewField("price", expr.DataTypeFloat64),
		expr.NewConstFloat(15),
		expr.DataTypeBool,
	))
	result, err := sh.Search([]byte(`{"match_all":{}}`), Options{Size: 10, Filter: filter})
	if err != nil {
		t.Fatal(err)
	}
	for _, h := range result.Hits {
		if h.ID == "a" || h.ID == "c" {
			t.Fatalf("expected %s to be filtered out, hits: %+v", h.ID, result.Hits)
		}
	}
	if result.TotalHits != 1 {
		t.Fatalf("got %d hits, want 1 (only b)", result.TotalHits)
	}
	evals, matches := filter.Stats()
	if evals != 3 || matches != 1 {
		t.Fatalf("filter stats = (%d, %d), want (3, 1)", evals, matches)
	}
}

func TestShardDeleteDocument(t *testing.T) {
	sh := seedShard(t)
	if !sh.DeleteDocument("a") {
		t.Fatalf("expected a to exist")
	}
	if sh.DeleteDocument("a") {
		t.Fatalf("expected second delete to report false")
	}
}

func TestShardStatsReflectsDocCount(t *testing.T) {
	sh := seedShard(t)
	stats := sh.Stats()
	if stats.DocCount != 3 {
		t.Fatalf("DocCount = %d, want 3", stats.DocCount)
	}
	if stats.State != StateStarted {
		t.Fatalf("State = %v, want started", stats.State)
	}
}

func TestShardSearchAfterCloseFails(t *testing.T) {
	sh := seedShard(t)
	sh.Close()
	if _, err := sh.Search([]byte(`{"match_all":{}}`), Options{Size: 10}); err == nil {
		t.Fatalf("expected error after close")
	}
}
