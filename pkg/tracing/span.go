// Package tracing records parent-child span trees through context
// propagation and emits them as structured slog lines — enough to see
// where a slow search spent its time without an external collector.
package tracing

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type spanCtxKey struct{}

// Span is one timed operation in a trace tree.
type Span struct {
	Name    string
	TraceID string

	start time.Time
	end   time.Time

	mu       sync.Mutex
	children []*Span
	attrs    map[string]any
}

func newSpan(name, traceID string) *Span {
	return &Span{
		Name:    name,
		TraceID: traceID,
		start:   time.Now(),
		attrs:   make(map[string]any),
	}
}

// Start opens a root span under traceID and stores it in the returned
// context.
func Start(ctx context.Context, name, traceID string) (context.Context, *Span) {
	s := newSpan(name, traceID)
	return context.WithValue(ctx, spanCtxKey{}, s), s
}

// StartChild opens a span nested under the one carried in ctx. Without
// a parent it behaves like a root span with an empty trace id.
func StartChild(ctx context.Context, name string) (context.Context, *Span) {
	child := newSpan(name, "")
	if parent := FromContext(ctx); parent != nil {
		child.TraceID = parent.TraceID
		parent.mu.Lock()
		parent.children = append(parent.children, child)
		parent.mu.Unlock()
	}
	return context.WithValue(ctx, spanCtxKey{}, child), child
}

// FromContext returns the span stored in ctx, or nil.
func FromContext(ctx context.Context) *Span {
	s, _ := ctx.Value(spanCtxKey{}).(*Span)
	return s
}

// SetAttr attaches an attribute reported when the span is emitted.
func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	s.attrs[key] = value
	s.mu.Unlock()
}

// End stamps the span's finish time.
func (s *Span) End() {
	s.end = time.Now()
}

// Duration is the elapsed time between Start and End (or until now for
// an unfinished span).
func (s *Span) Duration() time.Duration {
	if s.end.IsZero() {
		return time.Since(s.start)
	}
	return s.end.Sub(s.start)
}

// Emit logs the span and its children depth-first at debug level, so
// per-request traces only appear when a deployment turns them on.
func (s *Span) Emit() {
	s.emit(0)
}

func (s *Span) emit(depth int) {
	s.mu.Lock()
	attrs := []any{
		"trace_id", s.TraceID,
		"span", s.Name,
		"duration_ms", s.Duration().Milliseconds(),
		"depth", depth,
	}
	for k, v := range s.attrs {
		attrs = append(attrs, k, v)
	}
	children := append([]*Span(nil), s.children...)
	s.mu.Unlock()

	slog.Debug("span", attrs...)
	for _, c := range children {
		c.emit(depth + 1)
	}
}
