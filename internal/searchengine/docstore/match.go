package docstore

import (
	"math"
	"sort"
	"strings"

	"github.com/briarshard/shardsearch/internal/searchengine/docfield"
	"github.com/briarshard/shardsearch/internal/searchengine/tokenizer"
)

func fieldAsFloat(doc any, field string) (float64, bool) {
	v, ok := docfield.GetField(doc, field)
	if !ok {
		return 0, false
	}
	return docfield.AsFloat64(v)
}

const (
	// DefaultK1 and DefaultB are the BM25 tuning constants used when a
	// caller does not override them.
	DefaultK1 = 1.2
	DefaultB  = 0.75
)

// positionsByDoc groups a term's postings by document id, restricted to
// field when non-empty, with ordinals kept in a membership set for O(1)
// phrase-adjacency checks.
func (s *Store) positionsByDoc(term, field string) map[string]map[int]struct{} {
	s.idxMu.RLock()
	defer s.idxMu.RUnlock()
	entry := s.index[term]
	if entry == nil {
		return nil
	}
	out := make(map[string]map[int]struct{})
	for _, p := range entry.postings {
		if field != "" && p.Field != field {
			continue
		}
		set := out[p.DocID]
		if set == nil {
			set = make(map[int]struct{})
			out[p.DocID] = set
		}
		set[p.Ordinal] = struct{}{}
	}
	return out
}

// MatchTerm looks up term (lowercased) in the index and returns the
// distinct set of matching document ids, optionally restricted to
// field.
func (s *Store) MatchTerm(term, field string) []string {
	term = tokenizer.TokenizeOne(term)
	if term == "" {
		return nil
	}
	byDoc := s.positionsByDoc(term, field)
	ids := make([]string, 0, len(byDoc))
	for id := range byDoc {
		ids = append(ids, id)
	}
	return ids
}

// BM25 scores every document containing term (restricted to field when
// non-empty) using idf = log(((N-df+0.5)/(df+0.5))+1) and the standard
// length-normalized term-frequency factor, with k1=DefaultK1, b=DefaultB.
func (s *Store) BM25(term, field string) map[string]float64 {
	return s.BM25WithParams(term, field, DefaultK1, DefaultB)
}

// BM25WithParams is BM25 with caller-supplied k1/b constants.
func (s *Store) BM25WithParams(term, field string, k1, b float64) map[string]float64 {
	term = tokenizer.TokenizeOne(term)
	if term == "" {
		return nil
	}
	byDoc := s.positionsByDoc(term, field)
	if len(byDoc) == 0 {
		return nil
	}

	n := float64(s.DocCount())
	df := float64(len(byDoc))
	idf := math.Log(((n-df+0.5)/(df+0.5))+1)
	avgdl := s.AverageDocumentLength()

	scores := make(map[string]float64, len(byDoc))
	for docID, positions := range byDoc {
		tf := float64(len(positions))
		doclen := float64(s.DocLength(docID, field))
		lengthRatio := 0.0
		if avgdl > 0 {
			lengthRatio = doclen / avgdl
		} else {
			lengthRatio = 1
		}
		tfNorm := (tf * (k1 + 1)) / (tf + k1*(1-b+b*lengthRatio))
		scores[docID] = idf * tfNorm
	}
	return scores
}

// Phrase tokenizes nothing itself — terms must already be lowercased,
// in phrase order — and returns every document where term i occurs at
// anchor+i (same field) for some anchor position of term 0. It returns
// nil immediately if any term is absent from the index.
func (s *Store) Phrase(terms []string, field string) []string {
	if len(terms) == 0 {
		return nil
	}
	byTerm := make([]map[string]map[int]struct{}, len(terms))
	for i, t := range terms {
		positions := s.positionsByDoc(t, field)
		if len(positions) == 0 {
			return nil
		}
		byTerm[i] = positions
	}

	var result []string
	for docID, anchors := range byTerm[0] {
		present := true
		for i := 1; i < len(byTerm); i++ {
			if _, ok := byTerm[i][docID]; !ok {
				present = false
				break
			}
		}
		if !present {
			continue
		}
		for anchor := range anchors {
			matched := true
			for i := 1; i < len(terms); i++ {
				if _, ok := byTerm[i][docID][anchor+i]; !ok {
					matched = false
					break
				}
			}
			if matched {
				result = append(result, docID)
				break
			}
		}
	}
	return result
}

// Range scans every document (there is no index over numeric fields in
// this design) and returns those whose field, coerced to float64,
// satisfies the requested bounds.
func (s *Store) Range(field string, min, max float64, includeMin, includeMax bool) []string {
	var result []string
	s.ForEachDoc(func(docID string, doc any) {
		v, ok := fieldAsFloat(doc, field)
		if !ok {
			return
		}
		if includeMin {
			if v < min {
				return
			}
		} else if v <= min {
			return
		}
		if includeMax {
			if v > max {
				return
			}
		} else if v >= max {
			return
		}
		result = append(result, docID)
	})
	return result
}

// Prefix lowercases prefix, scans every index term, and unions the
// documents of every term sharing that prefix (field-filtered).
func (s *Store) Prefix(prefix, field string) []string {
	prefix = strings.ToLower(prefix)
	seen := make(map[string]struct{})
	for _, term := range s.Terms() {
		if !strings.HasPrefix(term, prefix) {
			continue
		}
		for _, id := range s.MatchTerm(term, field) {
			seen[id] = struct{}{}
		}
	}
	return setToSlice(seen)
}

// Wildcard matches pattern (where * is zero-or-more and ? is exactly
// one character) against every index term via dynamic programming, and
// unions the matched terms' documents (field-filtered, deduplicated).
func (s *Store) Wildcard(pattern, field string) []string {
	pattern = strings.ToLower(pattern)
	seen := make(map[string]struct{})
	for _, term := range s.Terms() {
		if wildcardMatch(pattern, term) {
			for _, id := range s.MatchTerm(term, field) {
				seen[id] = struct{}{}
			}
		}
	}
	return setToSlice(seen)
}

// Fuzzy includes every document whose index term is within maxDistance
// Levenshtein edits of term (lowercased), field-filtered.
func (s *Store) Fuzzy(term, field string, maxDistance int) []string {
	term = strings.ToLower(term)
	seen := make(map[string]struct{})
	for _, candidate := range s.Terms() {
		if abs(len(candidate)-len(term)) > maxDistance {
			continue
		}
		if levenshtein(term, candidate) <= maxDistance {
			for _, id := range s.MatchTerm(candidate, field) {
				seen[id] = struct{}{}
			}
		}
	}
	return setToSlice(seen)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func setToSlice(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// wildcardMatch evaluates a glob pattern (* and ?) against s with the
// classic O(len(pattern)*len(s)) dynamic-programming table.
func wildcardMatch(pattern, s string) bool {
	pr, sr := []rune(pattern), []rune(s)
	dp := make([][]bool, len(pr)+1)
	for i := range dp {
		dp[i] = make([]bool, len(sr)+1)
	}
	dp[0][0] = true
	for i := 1; i <= len(pr); i++ {
		if pr[i-1] == '*' {
			dp[i][0] = dp[i-1][0]
		}
	}
	for i := 1; i <= len(pr); i++ {
		for j := 1; j <= len(sr); j++ {
			switch pr[i-1] {
			case '*':
				dp[i][j] = dp[i-1][j] || dp[i][j-1]
			case '?':
				dp[i][j] = dp[i-1][j-1]
			default:
				dp[i][j] = dp[i-1][j-1] && pr[i-1] == sr[j-1]
			}
		}
	}
	return dp[len(pr)][len(sr)]
}

// levenshtein computes the classic edit distance between a and b over
// runes.
func levenshtein(a, b string) int {
	ar, br := []rune(a), []rune(b)
	if len(ar) == 0 {
		return len(br)
	}
	if len(br) == 0 {
		return len(ar)
	}
	prev := make([]int, len(br)+1)
	curr := make([]int, len(br)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ar); i++ {
		curr[0] = i
		for j := 1; j <= len(br); j++ {
			cost := 1
			if ar[i-1] == br[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(br)]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
