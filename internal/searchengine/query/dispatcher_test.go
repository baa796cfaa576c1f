package query

import (
	"sort"
	"testing"

	"github.com/briarshard/shardsearch/internal/searchengine/docstore"
)

func seedStore(t *testing.T) *docstore.Store {
	t.Helper()
	s := docstore.New()
	docs := map[string]string{
		"a": `{"title":"red fox","price":10,"tags":["new"]}`,
		"b": `{"title":"quick brown fox","price":25,"tags":["sale"]}`,
		"c": `{"title":"slow green turtle","price":5,"tags":["new","sale"]}`,
		"d": `{"title":"red fox racing","price":40,"tags":[]}`,
	}
	for id, j := range docs {
		if err := s.Add(id, j); err != nil {
			t.Fatalf("Add(%s): %v", id, err)
		}
	}
	return s
}

func hitIDs(hits []Hit) []string {
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	sort.Strings(ids)
	return ids
}

func TestTermQuery(t *testing.T) {
	s := seedStore(t)
	result, err := Execute(s, []byte(`{"term":{"title":"fox"}}`), 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if got := hitIDs(result.Hits); len(got) != 3 {
		t.Fatalf("got %v, want 3 hits", got)
	}
	for _, h := range result.Hits {
		if h.Score <= 0 {
			t.Fatalf("expected positive score for %s", h.ID)
		}
	}
}

func TestPhraseQueryExcludesNonConsecutive(t *testing.T) {
	s := seedStore(t)
	result, err := Execute(s, []byte(`{"phrase":{"title":"red fox"}}`), 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	got := hitIDs(result.Hits)
	want := []string{"a", "d"}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestRangeQueryScoresOne(t *testing.T) {
	s := seedStore(t)
	result, err := Execute(s, []byte(`{"range":{"price":{"gte":10,"lte":25}}}`), 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	got := hitIDs(result.Hits)
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("got %v, want [a b]", got)
	}
	for _, h := range result.Hits {
		if h.Score != 1.0 {
			t.Fatalf("range query score = %v, want 1.0", h.Score)
		}
	}
}

func TestBoolMustNotExcludes(t *testing.T) {
	s := seedStore(t)
	q := `{"bool":{"must":[{"term":{"title":"fox"}}],"must_not":[{"term":{"tags":"sale"}}]}}`
	result, err := Execute(s, []byte(q), 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	got := hitIDs(result.Hits)
	if len(got) != 2 || got[0] != "a" || got[1] != "d" {
		t.Fatalf("got %v, want [a d]", got)
	}
}

func TestMatchAllFallbackForUnknownForm(t *testing.T) {
	s := seedStore(t)
	result, err := Execute(s, []byte(`{"not_a_real_form":{}}`), 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if result.TotalHits != 4 {
		t.Fatalf("unknown form should fall back to match_all, got %d hits", result.TotalHits)
	}
}

func TestMatchQueryReturnsRequestedAggregation(t *testing.T) {
	s := seedStore(t)
	q := `{"match":{"title":"quick fox"},"aggs":{"t":{"terms":{"field":"tags"}}}}`
	result, err := Execute(s, []byte(q), 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := result.Aggregations["t"]; !ok {
		t.Fatalf("expected aggregation %q in result", "t")
	}
}

func TestPaginationConcatenationMatchesLargerPage(t *testing.T) {
	s := seedStore(t)
	q := []byte(`{"match_all":{}}`)
	first, err := Execute(s, q, 0, 2)
	if err != nil {
		t.Fatal(err)
	}
	second, err := Execute(s, q, 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	combined, err := Execute(s, q, 0, 4)
	if err != nil {
		t.Fatal(err)
	}
	var concatenated []string
	for _, h := range first.Hits {
		concatenated = append(concatenated, h.ID)
	}
	for _, h := range second.Hits {
		concatenated = append(concatenated, h.ID)
	}
	var full []string
	for _, h := range combined.Hits {
		full = append(full, h.ID)
	}
	if len(concatenated) != len(full) {
		t.Fatalf("concatenated pages len %d != full page len %d", len(concatenated), len(full))
	}
	for i := range full {
		if concatenated[i] != full[i] {
			t.Fatalf("pagination mismatch at %d: %v vs %v", i, concatenated, full)
		}
	}
}
