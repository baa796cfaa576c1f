package query

import (
	"encoding/json"
	"fmt"

	"github.com/briarshard/shardsearch/internal/searchengine/docstore"
)

// Hit is one scored document in a result envelope.
type Hit struct {
	ID     string  `json:"_id"`
	Score  float64 `json:"_score"`
	Source any     `json:"_source"`
}

// Result is the JSON result envelope returned by Execute, matching the
// embedding boundary's documented shape.
type Result struct {
	TookMs       int64          `json:"took"`
	TotalHits    int            `json:"total_hits"`
	MaxScore     float64        `json:"max_score"`
	Hits         []Hit          `json:"hits"`
	Aggregations map[string]any `json:"aggregations,omitempty"`
}

var administrativeKeys = map[string]bool{
	"aggs":         true,
	"aggregations": true,
}

// Parsed is a raw query split into its clause object and its (optional)
// aggregation block. Pagination never comes from the body — the body's
// own from/size keys, if any, are ignored so a shard fan-out can
// override pagination without rewriting the query JSON.
type Parsed struct {
	Clause map[string]any
	Aggs   map[string]any
}

// Parse unmarshals rawQuery and separates the clause keys from the
// aggs/aggregations block.
func Parse(rawQuery []byte) (*Parsed, error) {
	var parsed map[string]any
	if err := json.Unmarshal(rawQuery, &parsed); err != nil {
		return nil, fmt.Errorf("query: invalid query json: %w", err)
	}
	clause := make(map[string]any, len(parsed))
	for k, v := range parsed {
		if !administrativeKeys[k] {
			clause[k] = v
		}
	}
	return &Parsed{Clause: clause, Aggs: firstAggsBlock(parsed)}, nil
}

// BuildResult ranks candidates, applies from/size pagination, computes
// any requested aggregations over the full (unpaginated) candidate set,
// and assembles the result envelope. Callers that prune candidates
// between selection and this call (the shard's predicate-filter stage)
// get aggregations over the pruned set, matching what the hits report.
func BuildResult(store *docstore.Store, candidates CandidateSet, aggs map[string]any, from, size int) (*Result, error) {
	ranked := RankedIDs(candidates, 0, len(candidates.Scores))
	page := RankedIDs(candidates, from, size)

	hits := make([]Hit, 0, len(page))
	maxScore := 0.0
	for _, id := range page {
		doc, _ := store.Get(id)
		score := candidates.Scores[id]
		if score > maxScore {
			maxScore = score
		}
		hits = append(hits, Hit{ID: id, Score: score, Source: doc})
	}

	result := &Result{
		TotalHits: len(ranked),
		MaxScore:  maxScore,
		Hits:      hits,
	}

	if aggs != nil {
		computed, err := computeAggregations(store, ranked, aggs)
		if err != nil {
			return nil, err
		}
		result.Aggregations = computed
	}

	return result, nil
}

// Execute is Parse + EvalClause + BuildResult in one call, the path a
// shard takes when no predicate filter is in play.
func Execute(store *docstore.Store, rawQuery []byte, from, size int) (*Result, error) {
	p, err := Parse(rawQuery)
	if err != nil {
		return nil, err
	}
	candidates, err := EvalClause(store, p.Clause)
	if err != nil {
		return nil, err
	}
	return BuildResult(store, candidates, p.Aggs, from, size)
}

func firstAggsBlock(parsed map[string]any) map[string]any {
	if v, ok := parsed["aggs"]; ok {
		if m, ok := asObject(v); ok {
			return m
		}
	}
	if v, ok := parsed["aggregations"]; ok {
		if m, ok := asObject(v); ok {
			return m
		}
	}
	return nil
}

// computeAggregations evaluates every named aggregation block against
// the full (pre-pagination) candidate id set.
func computeAggregations(store *docstore.Store, candidateIDs []string, aggs map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(aggs))
	for name, spec := range aggs {
		specObj, ok := asObject(spec)
		if !ok {
			return nil, fmt.Errorf("query: aggregation %q must be an object", name)
		}
		kind, body, ok := firstKV(specObj)
		if !ok {
			continue
		}
		result, err := evalAggregation(store, candidateIDs, kind, body)
		if err != nil {
			return nil, fmt.Errorf("query: aggregation %q: %w", name, err)
		}
		out[name] = result
	}
	return out, nil
}

func evalAggregation(store *docstore.Store, candidateIDs []string, kind string, body any) (any, error) {
	bodyObj, _ := asObject(body)
	field := asString(bodyObj["field"])

	switch kind {
	case "terms":
		size := 10
		if v, ok := bodyObj["size"]; ok {
			size = int(asFloat(v))
		}
		return store.TermsAgg(candidateIDs, field, size), nil
	case "stats":
		return store.StatsAgg(candidateIDs, field), nil
	case "extended_stats":
		return store.ExtendedStatsAgg(candidateIDs, field), nil
	case "histogram":
		interval := asFloat(bodyObj["interval"])
		if interval <= 0 {
			interval = 1
		}
		return store.HistogramAgg(candidateIDs, field, interval), nil
	case "date_histogram":
		return store.DateHistogramAgg(candidateIDs, field, asString(bodyObj["interval"])), nil
	case "percentiles":
		percentiles := []float64{1, 5, 25, 50, 75, 95, 99}
		if raw, ok := bodyObj["percents"].([]any); ok {
			percentiles = percentiles[:0]
			for _, p := range raw {
				percentiles = append(percentiles, asFloat(p))
			}
		}
		return store.PercentilesAgg(candidateIDs, field, percentiles), nil
	case "cardinality":
		return store.CardinalityAgg(candidateIDs, field), nil
	case "avg", "min", "max", "sum", "value_count":
		return store.SingleMetricAgg(candidateIDs, field, kind), nil
	default:
		return nil, fmt.Errorf("unknown aggregation kind %q", kind)
	}
}
