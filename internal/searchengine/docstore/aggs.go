package docstore

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/briarshard/shardsearch/internal/searchengine/docfield"
)

// TermsBucket is one bucket of a terms aggregation.
type TermsBucket struct {
	Key      string `json:"key"`
	DocCount int    `json:"doc_count"`
}

// TermsResult is the terms aggregation's result envelope.
type TermsResult struct {
	Type    string        `json:"type"`
	Buckets []TermsBucket `json:"buckets"`
}

// StatsResult is the flat numeric envelope for the stats aggregation.
type StatsResult struct {
	Count int64   `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Sum   float64 `json:"sum"`
	Avg   float64 `json:"avg"`
}

// ExtendedStatsResult extends StatsResult with variance/stddev bounds.
type ExtendedStatsResult struct {
	StatsResult
	SumOfSquares   float64 `json:"sum_of_squares"`
	Variance       float64 `json:"variance"`
	StdDeviation   float64 `json:"std_deviation"`
	StdDevBoundsUp float64 `json:"std_deviation_bounds_upper"`
	StdDevBoundsLo float64 `json:"std_deviation_bounds_lower"`
}

// HistogramBucket is one bucket of a histogram/date_histogram.
type HistogramBucket struct {
	Key         float64 `json:"key"`
	KeyAsString string  `json:"key_as_string,omitempty"`
	DocCount    int     `json:"doc_count"`
}

// HistogramResult wraps histogram/date_histogram buckets.
type HistogramResult struct {
	Buckets []HistogramBucket `json:"buckets"`
}

// PercentilesResult maps a percentile's string key ("50", "95", ...) to
// its interpolated value.
type PercentilesResult struct {
	Values map[string]float64 `json:"values"`
}

// SingleMetricResult wraps avg/min/max/sum/value_count/cardinality.
type SingleMetricResult struct {
	Value float64 `json:"value"`
}

// numericValues resolves field on every candidate doc id and returns
// the ones that coerce to a float64, silently skipping the rest.
func (s *Store) numericValues(candidates []string, field string) []float64 {
	values := make([]float64, 0, len(candidates))
	for _, id := range candidates {
		doc, ok := s.Get(id)
		if !ok {
			continue
		}
		if v, ok := fieldAsFloat(doc, field); ok {
			values = append(values, v)
		}
	}
	return values
}

// TermsAgg counts, per distinct index term appearing in field, how many
// of the candidate documents contain it, and returns the top size terms
// by count descending (ties broken by term ascending for determinism).
func (s *Store) TermsAgg(candidates []string, field string, size int) TermsResult {
	candidateSet := make(map[string]struct{}, len(candidates))
	for _, id := range candidates {
		candidateSet[id] = struct{}{}
	}

	counts := make(map[string]int)
	for _, term := range s.Terms() {
		byDoc := s.positionsByDoc(term, field)
		n := 0
		for docID := range byDoc {
			if _, ok := candidateSet[docID]; ok {
				n++
			}
		}
		if n > 0 {
			counts[term] = n
		}
	}

	buckets := make([]TermsBucket, 0, len(counts))
	for term, count := range counts {
		buckets = append(buckets, TermsBucket{Key: term, DocCount: count})
	}
	sort.Slice(buckets, func(i, j int) bool {
		if buckets[i].DocCount != buckets[j].DocCount {
			return buckets[i].DocCount > buckets[j].DocCount
		}
		return buckets[i].Key < buckets[j].Key
	})
	if size > 0 && len(buckets) > size {
		buckets = buckets[:size]
	}
	return TermsResult{Type: "terms", Buckets: buckets}
}

// StatsAgg computes count/min/max/sum/avg over field's numeric values
// across candidates.
func (s *Store) StatsAgg(candidates []string, field string) StatsResult {
	values := s.numericValues(candidates, field)
	return computeStats(values)
}

func computeStats(values []float64) StatsResult {
	if len(values) == 0 {
		return StatsResult{}
	}
	min, max, sum := values[0], values[0], 0.0
	for _, v := range values {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
		sum += v
	}
	return StatsResult{
		Count: int64(len(values)),
		Min:   min,
		Max:   max,
		Sum:   sum,
		Avg:   sum / float64(len(values)),
	}
}

// ExtendedStatsAgg adds sum-of-squares, variance, standard deviation,
// and +-2 sigma bounds to StatsAgg.
func (s *Store) ExtendedStatsAgg(candidates []string, field string) ExtendedStatsResult {
	values := s.numericValues(candidates, field)
	base := computeStats(values)
	if base.Count == 0 {
		return ExtendedStatsResult{StatsResult: base}
	}
	var sumSquares float64
	for _, v := range values {
		sumSquares += v * v
	}
	variance := sumSquares/float64(base.Count) - base.Avg*base.Avg
	if variance < 0 {
		variance = 0
	}
	stddev := math.Sqrt(variance)
	return ExtendedStatsResult{
		StatsResult:    base,
		SumOfSquares:   sumSquares,
		Variance:       variance,
		StdDeviation:   stddev,
		StdDevBoundsUp: base.Avg + 2*stddev,
		StdDevBoundsLo: base.Avg - 2*stddev,
	}
}

// HistogramAgg buckets field's numeric values into fixed-width
// intervals, bucket key = floor(v/interval)*interval.
func (s *Store) HistogramAgg(candidates []string, field string, interval float64) HistogramResult {
	values := s.numericValues(candidates, field)
	counts := make(map[float64]int)
	for _, v := range values {
		key := math.Floor(v/interval) * interval
		counts[key]++
	}
	return HistogramResult{Buckets: sortedHistogramBuckets(counts, false)}
}

// DateHistogramAgg buckets a millisecond-epoch numeric field by the
// parsed interval literal ("<int>(ms|s|m|h|d)", default 1h), rendering
// bucket keys as ISO-8601 UTC.
func (s *Store) DateHistogramAgg(candidates []string, field, intervalLiteral string) HistogramResult {
	intervalMs := parseDateInterval(intervalLiteral)
	values := s.numericValues(candidates, field)
	counts := make(map[float64]int)
	for _, v := range values {
		key := math.Floor(v/float64(intervalMs)) * float64(intervalMs)
		counts[key]++
	}
	return HistogramResult{Buckets: sortedHistogramBuckets(counts, true)}
}

func sortedHistogramBuckets(counts map[float64]int, withDateString bool) []HistogramBucket {
	keys := make([]float64, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Float64s(keys)
	buckets := make([]HistogramBucket, 0, len(keys))
	for _, k := range keys {
		b := HistogramBucket{Key: k, DocCount: counts[k]}
		if withDateString {
			b.KeyAsString = time.UnixMilli(int64(k)).UTC().Format("2006-01-02T15:04:05.000Z")
		}
		buckets = append(buckets, b)
	}
	return buckets
}

// parseDateInterval parses "<int>(ms|s|m|h|d)" into milliseconds,
// defaulting to one hour on anything unparsable.
func parseDateInterval(literal string) int64 {
	const defaultMs = int64(time.Hour / time.Millisecond)
	if literal == "" {
		return defaultMs
	}
	var n int64
	var unit string
	if _, err := fmt.Sscanf(literal, "%d%s", &n, &unit); err != nil || n <= 0 {
		return defaultMs
	}
	switch unit {
	case "ms":
		return n
	case "s":
		return n * 1000
	case "m":
		return n * 60 * 1000
	case "h":
		return n * 60 * 60 * 1000
	case "d":
		return n * 24 * 60 * 60 * 1000
	default:
		return defaultMs
	}
}

// PercentilesAgg computes linear-interpolation percentiles of field's
// numeric values over candidates.
func (s *Store) PercentilesAgg(candidates []string, field string, percentiles []float64) PercentilesResult {
	values := s.numericValues(candidates, field)
	sort.Float64s(values)
	result := PercentilesResult{Values: make(map[string]float64, len(percentiles))}
	for _, p := range percentiles {
		result.Values[formatPercentileKey(p)] = interpolatePercentile(values, p)
	}
	return result
}

func formatPercentileKey(p float64) string {
	if p == math.Trunc(p) {
		return fmt.Sprintf("%d", int64(p))
	}
	return fmt.Sprintf("%g", p)
}

func interpolatePercentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := (p / 100) * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo < 0 {
		lo = 0
	}
	if hi >= len(sorted) {
		hi = len(sorted) - 1
	}
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// CardinalityAgg returns the exact count of distinct values field takes
// across candidates. A real deployment at scale would replace this with
// an approximate sketch (HyperLogLog); this store always computes it
// exactly.
func (s *Store) CardinalityAgg(candidates []string, field string) SingleMetricResult {
	seen := make(map[string]struct{})
	for _, id := range candidates {
		doc, ok := s.Get(id)
		if !ok {
			continue
		}
		v, ok := docfield.GetField(doc, field)
		if !ok {
			continue
		}
		seen[fmt.Sprintf("%v", v)] = struct{}{}
	}
	return SingleMetricResult{Value: float64(len(seen))}
}

// SingleMetricAgg computes avg/min/max/sum/value_count over field's
// numeric values across candidates.
func (s *Store) SingleMetricAgg(candidates []string, field, kind string) SingleMetricResult {
	values := s.numericValues(candidates, field)
	if kind == "value_count" {
		return SingleMetricResult{Value: float64(len(values))}
	}
	if len(values) == 0 {
		return SingleMetricResult{Value: 0}
	}
	stats := computeStats(values)
	switch kind {
	case "avg":
		return SingleMetricResult{Value: stats.Avg}
	case "min":
		return SingleMetricResult{Value: stats.Min}
	case "max":
		return SingleMetricResult{Value: stats.Max}
	case "sum":
		return SingleMetricResult{Value: stats.Sum}
	default:
		return SingleMetricResult{Value: 0}
	}
}
