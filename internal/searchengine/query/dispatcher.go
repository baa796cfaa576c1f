// Package query translates the JSON query DSL into document-store
// operations: it resolves a query clause to a candidate doc-id set with
// per-document scores, composing boolean clauses recursively, then
// assembles the paginated result envelope plus any requested
// aggregations.
package query

import (
	"fmt"
	"math"
	"sort"

	"github.com/briarshard/shardsearch/internal/searchengine/docstore"
	"github.com/briarshard/shardsearch/internal/searchengine/tokenizer"
)

// CandidateSet is a doc-id set with a per-document score, the common
// currency every clause evaluator returns.
type CandidateSet struct {
	Scores map[string]float64
}

func newCandidateSet() CandidateSet {
	return CandidateSet{Scores: make(map[string]float64)}
}

// IDs returns the set's document ids in no particular order.
func (c CandidateSet) IDs() []string {
	ids := make([]string, 0, len(c.Scores))
	for id := range c.Scores {
		ids = append(ids, id)
	}
	return ids
}

func firstKV(m map[string]any) (string, any, bool) {
	for k, v := range m {
		return k, v, true
	}
	return "", nil, false
}

func asObject(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asFloat(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int:
		return float64(x)
	default:
		return 0
	}
}

// EvalClause resolves a single query clause object to a candidate set.
// Unknown top-level forms fall back to match-all, a compatibility
// contract rather than an error.
func EvalClause(store *docstore.Store, clause map[string]any) (CandidateSet, error) {
	if v, ok := clause["bool"]; ok {
		obj, ok := asObject(v)
		if !ok {
			return CandidateSet{}, fmt.Errorf("query: bool clause must be an object")
		}
		return evalBool(store, obj)
	}
	if _, ok := clause["match_all"]; ok {
		return matchAll(store), nil
	}
	if v, ok := clause["term"]; ok {
		return evalFieldClause(v, func(field, value string) CandidateSet {
			return scoredSet(store.MatchTerm(value, field), store.BM25(value, field))
		})
	}
	if v, ok := clause["match"]; ok {
		return evalFieldClause(v, func(field, text string) CandidateSet {
			return matchText(store, field, text)
		})
	}
	if v, ok := clause["phrase"]; ok {
		return evalFieldClause(v, func(field, text string) CandidateSet {
			ids := store.Phrase(tokenizer.Terms(text), field)
			return flatScored(ids, 2.0)
		})
	}
	if v, ok := clause["range"]; ok {
		return evalRange(store, v)
	}
	if v, ok := clause["prefix"]; ok {
		return evalFieldClause(v, func(field, p string) CandidateSet {
			return flatScored(store.Prefix(p, field), 1.0)
		})
	}
	if v, ok := clause["wildcard"]; ok {
		return evalFieldClause(v, func(field, pattern string) CandidateSet {
			return flatScored(store.Wildcard(pattern, field), 1.0)
		})
	}
	if v, ok := clause["fuzzy"]; ok {
		return evalFuzzy(store, v)
	}
	return matchAll(store), nil
}

func matchAll(store *docstore.Store) CandidateSet {
	set := newCandidateSet()
	for _, id := range store.AllDocIDs() {
		set.Scores[id] = 1.0
	}
	return set
}

func scoredSet(ids []string, scores map[string]float64) CandidateSet {
	set := newCandidateSet()
	for _, id := range ids {
		if s, ok := scores[id]; ok {
			set.Scores[id] = s
		} else {
			set.Scores[id] = 0
		}
	}
	return set
}

func flatScored(ids []string, score float64) CandidateSet {
	set := newCandidateSet()
	for _, id := range ids {
		set.Scores[id] = score
	}
	return set
}

func matchText(store *docstore.Store, field, text string) CandidateSet {
	set := newCandidateSet()
	for _, term := range tokenizer.Terms(text) {
		for id, score := range store.BM25(term, field) {
			set.Scores[id] += score
		}
	}
	return set
}

func evalFieldClause(v any, fn func(field string, value string) CandidateSet) (CandidateSet, error) {
	obj, ok := asObject(v)
	if !ok {
		return CandidateSet{}, fmt.Errorf("query: clause must be an object of {field: value}")
	}
	field, val, ok := firstKV(obj)
	if !ok {
		return newCandidateSet(), nil
	}
	return fn(field, fmt.Sprintf("%v", val)), nil
}

func evalRange(store *docstore.Store, v any) (CandidateSet, error) {
	obj, ok := asObject(v)
	if !ok {
		return CandidateSet{}, fmt.Errorf("query: range clause must be an object")
	}
	field, bounds, ok := firstKV(obj)
	if !ok {
		return newCandidateSet(), nil
	}
	boundsObj, ok := asObject(bounds)
	if !ok {
		return CandidateSet{}, fmt.Errorf("query: range bounds must be an object")
	}

	min, max := math.Inf(-1), math.Inf(1)
	includeMin, includeMax := true, true
	if v, ok := boundsObj["gte"]; ok {
		min, includeMin = asFloat(v), true
	} else if v, ok := boundsObj["gt"]; ok {
		min, includeMin = asFloat(v), false
	}
	if v, ok := boundsObj["lte"]; ok {
		max, includeMax = asFloat(v), true
	} else if v, ok := boundsObj["lt"]; ok {
		max, includeMax = asFloat(v), false
	}

	ids := store.Range(field, min, max, includeMin, includeMax)
	return flatScored(ids, 1.0), nil
}

func evalFuzzy(store *docstore.Store, v any) (CandidateSet, error) {
	obj, ok := asObject(v)
	if !ok {
		return CandidateSet{}, fmt.Errorf("query: fuzzy clause must be an object")
	}
	field, raw, ok := firstKV(obj)
	if !ok {
		return newCandidateSet(), nil
	}

	value := ""
	fuzziness := 2.0
	switch x := raw.(type) {
	case string:
		value = x
	case map[string]any:
		value = asString(x["value"])
		if f, ok := x["fuzziness"]; ok {
			fuzziness = asFloat(f)
		}
	default:
		value = fmt.Sprintf("%v", raw)
	}

	ids := store.Fuzzy(value, field, int(fuzziness))
	return flatScored(ids, 1-0.2*fuzziness), nil
}

func clauseList(obj map[string]any, key string) []map[string]any {
	raw, ok := obj[key]
	if !ok {
		return nil
	}
	arr, ok := raw.([]any)
	if !ok {
		return nil
	}
	clauses := make([]map[string]any, 0, len(arr))
	for _, item := range arr {
		if m, ok := asObject(item); ok {
			clauses = append(clauses, m)
		}
	}
	return clauses
}

// evalBool implements the six-step bool composition: intersect must
// (summing scores), union should (summing scores), union must_not into
// an exclusion set, pick must-intersection as the working set if
// non-empty else the should-union, subtract the exclusion set, then
// intersect with filter clauses (which contribute no score).
func evalBool(store *docstore.Store, obj map[string]any) (CandidateSet, error) {
	mustSets, err := evalAll(store, clauseList(obj, "must"))
	if err != nil {
		return CandidateSet{}, err
	}
	shouldSets, err := evalAll(store, clauseList(obj, "should"))
	if err != nil {
		return CandidateSet{}, err
	}
	mustNotSets, err := evalAll(store, clauseList(obj, "must_not"))
	if err != nil {
		return CandidateSet{}, err
	}
	filterSets, err := evalAll(store, clauseList(obj, "filter"))
	if err != nil {
		return CandidateSet{}, err
	}

	mustResult := intersectScored(mustSets)
	shouldResult := unionScored(shouldSets)

	var working CandidateSet
	if len(mustSets) > 0 {
		working = mustResult
	} else {
		working = shouldResult
	}

	exclude := unionScored(mustNotSets)
	for id := range exclude.Scores {
		delete(working.Scores, id)
	}

	for _, f := range filterSets {
		for id := range working.Scores {
			if _, ok := f.Scores[id]; !ok {
				delete(working.Scores, id)
			}
		}
	}

	return working, nil
}

func evalAll(store *docstore.Store, clauses []map[string]any) ([]CandidateSet, error) {
	sets := make([]CandidateSet, 0, len(clauses))
	for _, c := range clauses {
		set, err := EvalClause(store, c)
		if err != nil {
			return nil, err
		}
		sets = append(sets, set)
	}
	return sets, nil
}

func intersectScored(sets []CandidateSet) CandidateSet {
	result := newCandidateSet()
	if len(sets) == 0 {
		return result
	}
	smallest := 0
	for i, s := range sets {
		if len(s.Scores) < len(sets[smallest].Scores) {
			smallest = i
		}
	}
	for id, score := range sets[smallest].Scores {
		inAll := true
		total := score
		for i, s := range sets {
			if i == smallest {
				continue
			}
			other, ok := s.Scores[id]
			if !ok {
				inAll = false
				break
			}
			total += other
		}
		if inAll {
			result.Scores[id] = total
		}
	}
	return result
}

func unionScored(sets []CandidateSet) CandidateSet {
	result := newCandidateSet()
	for _, s := range sets {
		for id, score := range s.Scores {
			result.Scores[id] += score
		}
	}
	return result
}

// RankedIDs sorts candidate ids by score descending, breaking ties by
// id ascending for determinism, and applies from/size pagination.
func RankedIDs(set CandidateSet, from, size int) []string {
	ids := set.IDs()
	sort.Slice(ids, func(i, j int) bool {
		if set.Scores[ids[i]] != set.Scores[ids[j]] {
			return set.Scores[ids[i]] > set.Scores[ids[j]]
		}
		return ids[i] < ids[j]
	})
	if from < 0 {
		from = 0
	}
	if size < 0 {
		size = 0
	}
	if from >= len(ids) {
		return nil
	}
	end := from + size
	if end > len(ids) {
		end = len(ids)
	}
	return ids[from:end]
}
