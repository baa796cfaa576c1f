package embed

import (
	"testing"

	"github.com/briarshard/shardsearch/internal/searchengine/expr"
)

func encodePriceOver(threshold float64) ([]byte, error) {
	node := expr.NewBinaryOp(expr.OpGreaterThan,
		expr.NewField("price", expr.DataTypeFloat64),
		expr.NewConstFloat(threshold),
		expr.DataTypeBool,
	)
	return expr.Encode(node)
}

func openEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := Open("node-1", "products", 3)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return e
}

func TestIndexAndGetDocumentRoutesConsistently(t *testing.T) {
	e := openEngine(t)
	if err := e.IndexDocument("p1", `{"title":"red fox","price":10}`); err != nil {
		t.Fatalf("IndexDocument: %v", err)
	}
	doc, ok, err := e.GetDocument("p1")
	if err != nil || !ok {
		t.Fatalf("GetDocument: ok=%v err=%v", ok, err)
	}
	if doc == nil {
		t.Fatalf("expected non-nil document")
	}
}

func TestSearchAcrossShardsFindsDocument(t *testing.T) {
	e := openEngine(t)
	docs := map[string]string{
		"p1": `{"title":"red fox"}`,
		"p2": `{"title":"quick fox"}`,
		"p3": `{"title":"slow turtle"}`,
	}
	for id, j := range docs {
		if err := e.IndexDocument(id, j); err != nil {
			t.Fatalf("IndexDocument(%s): %v", id, err)
		}
	}
	result, err := e.Search([]byte(`{"term":{"title":"fox"}}`), nil, 0, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(result.Hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(result.Hits))
	}
}

func TestDeleteDocumentReportsExistence(t *testing.T) {
	e := openEngine(t)
	if err := e.IndexDocument("p1", `{"title":"fox"}`); err != nil {
		t.Fatal(err)
	}
	existed, err := e.DeleteDocument("p1")
	if err != nil || !existed {
		t.Fatalf("expected delete to report existed=true, got %v err=%v", existed, err)
	}
	existed, err = e.DeleteDocument("p1")
	if err != nil || existed {
		t.Fatalf("expected second delete to report existed=false, got %v err=%v", existed, err)
	}
}

func TestOperationsAfterCloseFailAndSetLastError(t *testing.T) {
	e := openEngine(t)
	if err := e.Close(); err != nil {
		t.Fatal(err)
	}
	if err := e.IndexDocument("p1", `{"title":"fox"}`); err == nil {
		t.Fatalf("expected error after close")
	}
	if e.LastError() == nil {
		t.Fatalf("expected LastError to be set after failed call")
	}
	e.ClearError()
	if e.LastError() != nil {
		t.Fatalf("expected LastError to be nil after ClearError")
	}
}

func TestFilterMatchesEvaluatesPredicate(t *testing.T) {
	e := openEngine(t)
	if err := e.IndexDocument("p1", `{"price":20}`); err != nil {
		t.Fatal(err)
	}
	encoded, err := encodePriceOver(10)
	if err != nil {
		t.Fatal(err)
	}
	filter, err := e.CreateFilter(encoded)
	if err != nil {
		t.Fatal(err)
	}
	matched, err := e.FilterMatches(filter, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if !matched {
		t.Fatalf("expected price=20 to match price > 10")
	}
	evals, matches := e.FilterStats(filter)
	if evals != 1 || matches != 1 {
		t.Fatalf("FilterStats = (%d, %d), want (1, 1)", evals, matches)
	}
}

func TestSearchWithPriceWindowFilter(t *testing.T) {
	e := openEngine(t)
	docs := map[string]string{
		"a": `{"id":"a","title":"red fox","price":10,"tags":["new"]}`,
		"b": `{"id":"b","title":"quick brown fox","price":25,"tags":["sale"]}`,
		"c": `{"id":"c","title":"slow green turtle","price":5,"tags":["new","sale"]}`,
		"d": `{"id":"d","title":"red fox racing","price":40,"tags":[]}`,
	}
	for id, j := range docs {
		if err := e.IndexDocument(id, j); err != nil {
			t.Fatalf("IndexDocument(%s): %v", id, err)
		}
	}

	// price >= 20 && price <= 40
	window := expr.NewBinaryOp(expr.OpAnd,
		expr.NewBinaryOp(expr.OpGreaterEqual, expr.NewField("price", expr.DataTypeFloat64), expr.NewConstFloat(20), expr.DataTypeBool),
		expr.NewBinaryOp(expr.OpLessEqual, expr.NewField("price", expr.DataTypeFloat64), expr.NewConstFloat(40), expr.DataTypeBool),
		expr.DataTypeBool,
	)
	encoded, err := expr.Encode(window)
	if err != nil {
		t.Fatal(err)
	}
	filter, err := e.CreateFilter(encoded)
	if err != nil {
		t.Fatal(err)
	}

	result, err := e.Search([]byte(`{"match_all":{}}`), filter, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	got := map[string]bool{}
	for _, h := range result.Hits {
		got[h.ID] = true
	}
	if len(got) != 2 || !got["b"] || !got["d"] {
		t.Fatalf("hits = %v, want {b, d}", got)
	}
	evals, matches := e.FilterStats(filter)
	if evals != 4 || matches != 2 {
		t.Fatalf("FilterStats = (%d, %d), want (4, 2)", evals, matches)
	}
}

func TestGetStatsAggregatesShardDocCounts(t *testing.T) {
	e := openEngine(t)
	for i, id := range []string{"p1", "p2", "p3", "p4"} {
		_ = i
		if err := e.IndexDocument(id, `{"n":1}`); err != nil {
			t.Fatal(err)
		}
	}
	stats := e.GetStats()
	if stats.TotalDocs != 4 {
		t.Fatalf("TotalDocs = %d, want 4", stats.TotalDocs)
	}
	if len(stats.Shards) != 3 {
		t.Fatalf("got %d shard stats, want 3", len(stats.Shards))
	}
}
