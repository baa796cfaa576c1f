package expr

import "sync/atomic"

// Filter wraps a decoded predicate tree with the evaluation and match
// counters a caller can read back after a query. A document whose
// evaluation errors (division by zero) counts as evaluated but never as
// matched. Counters are atomic so one filter instance can be handed to a
// coordinator fan-out where several shards evaluate it concurrently.
type Filter struct {
	node Node

	evaluations atomic.Int64
	matches     atomic.Int64
}

// NewFilter decodes a serialized predicate (the Encode/Decode binary
// form) into a Filter. Malformed bytes return ErrMalformedPredicate.
func NewFilter(encoded []byte) (*Filter, error) {
	node, err := Decode(encoded)
	if err != nil {
		return nil, err
	}
	return &Filter{node: node}, nil
}

// FilterFromNode wraps an already-built tree, used by tests and callers
// that construct predicates programmatically.
func FilterFromNode(node Node) *Filter {
	return &Filter{node: node}
}

// Node returns the underlying expression tree.
func (f *Filter) Node() Node { return f.node }

// Matches evaluates the predicate against doc (a parsed JSON tree) and
// reports whether the result is truthy. An evaluation failure is a
// non-match, not an error: degraded data yields degraded results, never
// a failed query. The evaluation counter increments either way.
func (f *Filter) Matches(doc any) bool {
	f.evaluations.Add(1)
	v, err := Eval(f.node, doc)
	if err != nil {
		return false
	}
	if truthy(v) {
		f.matches.Add(1)
		return true
	}
	return false
}

// Stats returns how many documents this filter has evaluated and how
// many of those matched.
func (f *Filter) Stats() (evaluations, matches int64) {
	return f.evaluations.Load(), f.matches.Load()
}
