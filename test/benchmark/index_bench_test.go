package benchmark

import (
	"fmt"
	"testing"

	"github.com/briarshard/shardsearch/internal/indexer"
	"github.com/briarshard/shardsearch/internal/searchengine/docstore"
	"github.com/briarshard/shardsearch/pkg/config"
)

func benchDoc(i int) string {
	return fmt.Sprintf(`{"title":"benchmark title %d","body":"this is a benchmark document with several terms for testing the indexing performance of our document store"}`, i)
}

// BenchmarkDocstoreAdd measures per-document insert throughput into the
// in-memory document store.
func BenchmarkDocstoreAdd(b *testing.B) {
	store := docstore.New()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		docID := fmt.Sprintf("doc-%d", i)
		if err := store.Add(docID, benchDoc(i)); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkDocstoreTermQuery measures single-term posting lookup latency
// over 10,000 documents.
func BenchmarkDocstoreTermQuery(b *testing.B) {
	store := docstore.New()
	for i := 0; i < 10000; i++ {
		docID := fmt.Sprintf("doc-%d", i)
		store.Add(docID, `{"title":"distributed search","body":"search engine with distributed indexing and query processing"}`)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		results := store.BM25("search", "")
		_ = results
	}
}

// BenchmarkDocstoreTermQueryParallel measures concurrent read throughput.
func BenchmarkDocstoreTermQueryParallel(b *testing.B) {
	store := docstore.New()
	for i := 0; i < 10000; i++ {
		docID := fmt.Sprintf("doc-%d", i)
		store.Add(docID, `{"title":"distributed search","body":"search engine with distributed indexing and query processing"}`)
	}

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			results := store.BM25("search", "")
			_ = results
		}
	})
}

// BenchmarkEngineIndex measures full embedded-engine indexing throughput at
// various pre-loaded corpus sizes.
func BenchmarkEngineIndex(b *testing.B) {
	sizes := []int{100, 1000, 5000}
	for _, preload := range sizes {
		b.Run(fmt.Sprintf("preload_%d", preload), func(b *testing.B) {
			cfg := config.EngineConfig{NodeID: "bench", IndexName: "bench", TotalShards: 4}
			engine, err := indexer.NewEngine(cfg, nil)
			if err != nil {
				b.Fatal(err)
			}
			defer engine.Close()

			for i := 0; i < preload; i++ {
				docID := fmt.Sprintf("preload-%d", i)
				engine.IndexDocument(docID, benchDoc(i))
			}

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				docID := fmt.Sprintf("bench-%d", i)
				if err := engine.IndexDocument(docID, benchDoc(i)); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkEngineSearch measures end-to-end distributed search latency
// across 10,000 documents spread over the engine's shards.
func BenchmarkEngineSearch(b *testing.B) {
	cfg := config.EngineConfig{NodeID: "bench", IndexName: "bench", TotalShards: 4}
	engine, err := indexer.NewEngine(cfg, nil)
	if err != nil {
		b.Fatal(err)
	}
	defer engine.Close()

	terms := []string{"distributed", "search", "analytics", "platform", "indexing", "query", "engine", "ranking"}
	for i := 0; i < 10000; i++ {
		docID := fmt.Sprintf("doc-%d", i)
		doc := fmt.Sprintf(`{"title":"document about %s and %s","body":"this document covers %s %s %s in production systems"}`,
			terms[i%len(terms)], terms[(i+1)%len(terms)],
			terms[i%len(terms)], terms[(i+2)%len(terms)], terms[(i+3)%len(terms)])
		engine.IndexDocument(docID, doc)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		term := terms[i%len(terms)]
		query := []byte(fmt.Sprintf(`{"term":{"title":%q}}`, term))
		result, err := engine.Search(query, nil, 0, 10)
		if err != nil {
			b.Fatal(err)
		}
		_ = result
	}
}
