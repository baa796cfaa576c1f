package cluster

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"

	"github.com/briarshard/shardsearch/internal/searchengine/docstore"
	"github.com/briarshard/shardsearch/internal/searchengine/expr"
	"github.com/briarshard/shardsearch/internal/searchengine/query"
	"github.com/briarshard/shardsearch/internal/searchengine/shard"
)

// Coordinator fans a query out to every local shard concurrently, one
// goroutine per shard, and merges the per-shard result envelopes into
// one.
type Coordinator struct {
	manager *ShardManager
	shards  map[int]*shard.Shard
	mu      sync.RWMutex
	logger  *slog.Logger
}

// NewCoordinator creates a coordinator over manager's shard topology.
func NewCoordinator(manager *ShardManager) *Coordinator {
	return &Coordinator{
		manager: manager,
		shards:  make(map[int]*shard.Shard),
		logger:  slog.Default().With("component", "coordinator", "node_id", manager.NodeID()),
	}
}

// AddLocalShard makes sh reachable by the coordinator under shardIndex.
// Only shards actually hosted on this node are added; remote shards on
// other nodes are out of scope for this embeddable, single-process
// coordinator.
func (c *Coordinator) AddLocalShard(shardIndex int, sh *shard.Shard) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shards[shardIndex] = sh
}

type shardOutcome struct {
	shardIndex int
	result     *query.Result
	err        error
}

// Search fans rawQuery out to every shard the manager says the query
// needs, over-fetching (from is always applied
// at merge time, not per shard, so a shard is asked for from=0,
// size=(from+size)*numShards) so the globally correct top (from, size)
// window can be reconstructed after merging. A per-shard failure is
// captured and logged rather than aborting the whole query; the merged
// result reflects whichever shards answered.
func (c *Coordinator) Search(rawQuery []byte, filter *expr.Filter, from, size int) (*query.Result, error) {
	shardIndices := c.manager.ShardsForQuery(rawQuery)

	c.mu.RLock()
	targets := make(map[int]*shard.Shard, len(shardIndices))
	for _, idx := range shardIndices {
		if sh, ok := c.shards[idx]; ok {
			targets[idx] = sh
		}
	}
	c.mu.RUnlock()

	if len(targets) == 0 {
		return nil, fmt.Errorf("cluster: no local shards available to answer query")
	}

	perShardSize := (from + size) * len(targets)
	opts := shard.Options{From: 0, Size: perShardSize, Filter: filter}

	outcomes := make([]shardOutcome, 0, len(targets))
	var wg sync.WaitGroup
	var mu sync.Mutex
	for idx, sh := range targets {
		wg.Add(1)
		go func(shardIndex int, s *shard.Shard) {
			defer wg.Done()
			result, err := s.Search(rawQuery, opts)
			mu.Lock()
			outcomes = append(outcomes, shardOutcome{shardIndex: shardIndex, result: result, err: err})
			mu.Unlock()
		}(idx, sh)
	}
	wg.Wait()

	var answered []shardOutcome
	for _, o := range outcomes {
		if o.err != nil {
			c.logger.Error("shard query failed", "shard_index", o.shardIndex, "error", o.err)
			continue
		}
		answered = append(answered, o)
	}
	if len(answered) == 0 {
		return nil, fmt.Errorf("cluster: all %d targeted shards failed", len(targets))
	}

	return mergeResults(answered, from, size), nil
}

// mergeResults concatenates every shard's hits, sorts by score
// descending (id ascending as a tiebreak, matching the single-shard
// ranking order), applies the global (from, size) window, sums
// total_hits across shards, takes the largest max_score, and merges any
// aggregations.
func mergeResults(outcomes []shardOutcome, from, size int) *query.Result {
	var allHits []query.Hit
	var totalHits int
	var maxScore float64
	var tookMs int64
	aggsByShard := make([]map[string]any, 0, len(outcomes))

	for _, o := range outcomes {
		allHits = append(allHits, o.result.Hits...)
		totalHits += o.result.TotalHits
		if o.result.MaxScore > maxScore {
			maxScore = o.result.MaxScore
		}
		if o.result.TookMs > tookMs {
			tookMs = o.result.TookMs
		}
		if o.result.Aggregations != nil {
			aggsByShard = append(aggsByShard, o.result.Aggregations)
		}
	}

	sort.SliceStable(allHits, func(i, j int) bool {
		if allHits[i].Score != allHits[j].Score {
			return allHits[i].Score > allHits[j].Score
		}
		return allHits[i].ID < allHits[j].ID
	})

	if from < 0 {
		from = 0
	}
	var page []query.Hit
	if from < len(allHits) {
		end := from + size
		if size < 0 || end > len(allHits) {
			end = len(allHits)
		}
		page = allHits[from:end]
	}

	merged := &query.Result{
		TookMs:    tookMs,
		TotalHits: totalHits,
		MaxScore:  maxScore,
		Hits:      page,
	}
	if len(aggsByShard) > 0 {
		merged.Aggregations = mergeAggregations(aggsByShard)
	}
	return merged
}

// mergeAggregations combines same-named aggregation results across
// shards by the monoid appropriate to each aggregation's concrete type.
func mergeAggregations(perShard []map[string]any) map[string]any {
	names := make(map[string]bool)
	for _, m := range perShard {
		for name := range m {
			names[name] = true
		}
	}

	merged := make(map[string]any, len(names))
	for name := range names {
		var values []any
		for _, m := range perShard {
			if v, ok := m[name]; ok {
				values = append(values, v)
			}
		}
		merged[name] = mergeAggregationValues(values)
	}
	return merged
}

func mergeAggregationValues(values []any) any {
	if len(values) == 0 {
		return nil
	}
	switch values[0].(type) {
	case docstore.TermsResult:
		return mergeTerms(values)
	case docstore.StatsResult:
		return mergeStats(values)
	case docstore.ExtendedStatsResult:
		return mergeExtendedStats(values)
	case docstore.HistogramResult:
		return mergeHistograms(values)
	case docstore.PercentilesResult:
		return mergePercentiles(values)
	case docstore.SingleMetricResult:
		return mergeSingleMetric(values)
	default:
		return values[0]
	}
}

func mergeTerms(values []any) docstore.TermsResult {
	counts := make(map[string]int)
	for _, v := range values {
		t := v.(docstore.TermsResult)
		for _, b := range t.Buckets {
			counts[b.Key] += b.DocCount
		}
	}
	buckets := make([]docstore.TermsBucket, 0, len(counts))
	for k, c := range counts {
		buckets = append(buckets, docstore.TermsBucket{Key: k, DocCount: c})
	}
	sort.Slice(buckets, func(i, j int) bool {
		if buckets[i].DocCount != buckets[j].DocCount {
			return buckets[i].DocCount > buckets[j].DocCount
		}
		return buckets[i].Key < buckets[j].Key
	})
	return docstore.TermsResult{Type: "terms", Buckets: buckets}
}

func mergeStats(values []any) docstore.StatsResult {
	var count int64
	var sum float64
	min, max := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		s := v.(docstore.StatsResult)
		if s.Count == 0 {
			continue
		}
		count += s.Count
		sum += s.Sum
		if s.Min < min {
			min = s.Min
		}
		if s.Max > max {
			max = s.Max
		}
	}
	if count == 0 {
		return docstore.StatsResult{}
	}
	return docstore.StatsResult{Count: count, Min: min, Max: max, Sum: sum, Avg: sum / float64(count)}
}

func mergeExtendedStats(values []any) docstore.ExtendedStatsResult {
	base := make([]any, len(values))
	var sumSquares float64
	var count int64
	for i, v := range values {
		e := v.(docstore.ExtendedStatsResult)
		base[i] = e.StatsResult
		sumSquares += e.SumOfSquares
		count += e.StatsResult.Count
	}
	merged := mergeStats(base)
	if count == 0 {
		return docstore.ExtendedStatsResult{StatsResult: merged}
	}
	variance := sumSquares/float64(count) - merged.Avg*merged.Avg
	if variance < 0 {
		variance = 0
	}
	stddev := math.Sqrt(variance)
	return docstore.ExtendedStatsResult{
		StatsResult:    merged,
		SumOfSquares:   sumSquares,
		Variance:       variance,
		StdDeviation:   stddev,
		StdDevBoundsUp: merged.Avg + 2*stddev,
		StdDevBoundsLo: merged.Avg - 2*stddev,
	}
}

func mergeHistograms(values []any) docstore.HistogramResult {
	counts := make(map[float64]int)
	keyStrings := make(map[float64]string)
	for _, v := range values {
		h := v.(docstore.HistogramResult)
		for _, b := range h.Buckets {
			counts[b.Key] += b.DocCount
			if b.KeyAsString != "" {
				keyStrings[b.Key] = b.KeyAsString
			}
		}
	}
	keys := make([]float64, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Float64s(keys)
	buckets := make([]docstore.HistogramBucket, 0, len(keys))
	for _, k := range keys {
		buckets = append(buckets, docstore.HistogramBucket{Key: k, DocCount: counts[k], KeyAsString: keyStrings[k]})
	}
	return docstore.HistogramResult{Buckets: buckets}
}

// mergePercentiles has no exact cross-shard merge without the raw
// values (true percentile merging needs a mergeable sketch like
// t-digest, which this engine does not carry); it approximates by
// averaging each shard's estimate for the same percentile key, which is
// only accurate when shards hold similarly-distributed, similarly-sized
// slices of the data.
func mergePercentiles(values []any) docstore.PercentilesResult {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, v := range values {
		p := v.(docstore.PercentilesResult)
		for k, val := range p.Values {
			sums[k] += val
			counts[k]++
		}
	}
	out := make(map[string]float64, len(sums))
	for k, sum := range sums {
		out[k] = sum / float64(counts[k])
	}
	return docstore.PercentilesResult{Values: out}
}

// mergeSingleMetric sums per-shard values, which is exact for sum and
// value_count. avg/min/max single-metric aggregations carry no kind tag
// in SingleMetricResult to merge correctly by; callers that need exact
// cross-shard avg/min/max should use stats instead, which preserves the
// components mergeStats needs.
func mergeSingleMetric(values []any) docstore.SingleMetricResult {
	var sum float64
	for _, v := range values {
		sum += v.(docstore.SingleMetricResult).Value
	}
	return docstore.SingleMetricResult{Value: sum}
}
