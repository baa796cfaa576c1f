// Package embed is the embedding boundary: the surface an in-process
// caller (or a thin FFI shim sitting in front of another language)
// drives to open an engine instance, write and read documents, run
// distributed search across local shards, and evaluate standalone
// predicate filters. Ordinary Go callers use the returned errors
// directly; callers behind a C-style ABI with no room for a second
// return value use the LastError/ClearError handshake instead.
package embed

import (
	"fmt"
	"sync"

	"github.com/briarshard/shardsearch/internal/searchengine/cluster"
	"github.com/briarshard/shardsearch/internal/searchengine/expr"
	"github.com/briarshard/shardsearch/internal/searchengine/query"
	"github.com/briarshard/shardsearch/internal/searchengine/shard"
)

// State is an engine instance's lifecycle: open from Open until Close,
// closed afterwards.
type State string

const (
	StateOpen   State = "open"
	StateClosed State = "closed"
)

// Engine is one embeddable search-engine instance: a node id, a set of
// local shards, the shard manager that routes documents/queries to
// them, and the coordinator that fans queries out and merges results.
type Engine struct {
	mu      sync.RWMutex
	state   State
	nodeID  string
	manager *cluster.ShardManager
	coord   *cluster.Coordinator
	shards  map[int]*shard.Shard
	index   string

	lastErrMu sync.Mutex
	lastErr   error
}

// Open creates and starts an Engine instance with totalShards local
// shards, all primary (there is no replication in a single embedded
// process). index names the logical index these shards belong to.
func Open(nodeID, index string, totalShards int) (*Engine, error) {
	manager, err := cluster.NewShardManager(nodeID, totalShards)
	if err != nil {
		return nil, fmt.Errorf("embed: open: %w", err)
	}

	e := &Engine{
		state:   StateOpen,
		nodeID:  nodeID,
		index:   index,
		manager: manager,
		shards:  make(map[int]*shard.Shard, totalShards),
	}
	e.coord = cluster.NewCoordinator(manager)

	for i := 0; i < totalShards; i++ {
		sh := shard.New(index, i, true)
		if err := manager.RegisterShard(i, true, nil); err != nil {
			return nil, fmt.Errorf("embed: open: registering shard %d: %w", i, err)
		}
		e.shards[i] = sh
		e.coord.AddLocalShard(i, sh)
	}
	manager.Heartbeat(nodeID, "embedded", e.manager.LocalShards())

	return e, nil
}

func (e *Engine) checkOpen() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.state != StateOpen {
		return fmt.Errorf("embed: engine is not open (state: %s)", e.state)
	}
	return nil
}

func (e *Engine) setLastError(err error) error {
	e.lastErrMu.Lock()
	e.lastErr = err
	e.lastErrMu.Unlock()
	return err
}

// LastError returns the most recent error recorded by a write/read/
// distributed/filter operation, or nil if the last such call succeeded.
// This exists for callers at a boundary (C ABI, WASM host import) where
// an out-of-band error channel is the only option; ordinary Go callers
// should just use the returned error.
func (e *Engine) LastError() error {
	e.lastErrMu.Lock()
	defer e.lastErrMu.Unlock()
	return e.lastErr
}

// ClearError resets LastError to nil.
func (e *Engine) ClearError() {
	e.lastErrMu.Lock()
	e.lastErr = nil
	e.lastErrMu.Unlock()
}

// shardFor resolves the local shard responsible for docID.
func (e *Engine) shardFor(docID string) (*shard.Shard, error) {
	idx := e.manager.ShardForDocument(docID)
	e.mu.RLock()
	sh, ok := e.shards[idx]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("embed: no local shard registered for index %d", idx)
	}
	return sh, nil
}

// IndexDocument routes docID to its shard (by consistent hash) and
// indexes docJSON there.
func (e *Engine) IndexDocument(docID, docJSON string) error {
	if err := e.checkOpen(); err != nil {
		return e.setLastError(err)
	}
	sh, err := e.shardFor(docID)
	if err != nil {
		return e.setLastError(err)
	}
	if err := sh.IndexDocument(docID, docJSON); err != nil {
		return e.setLastError(fmt.Errorf("embed: index document %s: %w", docID, err))
	}
	e.ClearError()
	return nil
}

// DeleteDocument routes docID to its shard and removes it there,
// reporting whether it existed.
func (e *Engine) DeleteDocument(docID string) (bool, error) {
	if err := e.checkOpen(); err != nil {
		return false, e.setLastError(err)
	}
	sh, err := e.shardFor(docID)
	if err != nil {
		return false, e.setLastError(err)
	}
	existed := sh.DeleteDocument(docID)
	e.ClearError()
	return existed, nil
}

// GetDocument retrieves docID's parsed document from its shard.
func (e *Engine) GetDocument(docID string) (any, bool, error) {
	if err := e.checkOpen(); err != nil {
		return nil, false, e.setLastError(err)
	}
	sh, err := e.shardFor(docID)
	if err != nil {
		return nil, false, e.setLastError(err)
	}
	doc, ok := sh.GetDocument(docID)
	e.ClearError()
	return doc, ok, nil
}

// Refresh is a no-op for this in-memory engine (there is no write
// buffer to flush into visibility), kept so callers ported from a
// disk-backed engine's lifecycle compile unchanged.
func (e *Engine) Refresh() error {
	return e.checkOpen()
}

// Flush is likewise a no-op: there is no on-disk segment to persist.
func (e *Engine) Flush() error {
	return e.checkOpen()
}

// Search fans rawQuery out across this engine's local shards and
// returns the merged, paginated result envelope. filterPredicate, when
// non-nil, is applied per-document on every shard before pagination.
func (e *Engine) Search(rawQuery []byte, filterPredicate *expr.Filter, from, size int) (*query.Result, error) {
	if err := e.checkOpen(); err != nil {
		return nil, e.setLastError(err)
	}
	result, err := e.coord.Search(rawQuery, filterPredicate, from, size)
	if err != nil {
		return nil, e.setLastError(fmt.Errorf("embed: search: %w", err))
	}
	e.ClearError()
	return result, nil
}

// CreateFilter compiles a serialized predicate expression (the binary
// format expr.Encode/expr.Decode produce) into a counting Filter.
func (e *Engine) CreateFilter(encoded []byte) (*expr.Filter, error) {
	f, err := expr.NewFilter(encoded)
	if err != nil {
		return nil, e.setLastError(fmt.Errorf("embed: create filter: %w", err))
	}
	e.ClearError()
	return f, nil
}

// FilterMatches evaluates a compiled predicate against a single stored
// document, routed to its shard by id. An evaluation failure is a
// non-match, mirroring the shard's own filter stage.
func (e *Engine) FilterMatches(f *expr.Filter, docID string) (bool, error) {
	if err := e.checkOpen(); err != nil {
		return false, e.setLastError(err)
	}
	sh, err := e.shardFor(docID)
	if err != nil {
		return false, e.setLastError(err)
	}
	doc, ok := sh.GetDocument(docID)
	if !ok {
		return false, e.setLastError(fmt.Errorf("embed: filter matches: document %s not found", docID))
	}
	e.ClearError()
	return sh.MatchesFilter(f, doc), nil
}

// FilterStats reports how many documents f has evaluated and matched
// since it was created.
func (e *Engine) FilterStats(f *expr.Filter) (evaluations, matches int64) {
	return f.Stats()
}

// Stats is the engine-wide aggregate of every local shard's Stats.
type Stats struct {
	Index       string        `json:"index"`
	TotalShards int           `json:"total_shards"`
	TotalDocs   int64         `json:"total_docs"`
	Shards      []shard.Stats `json:"shards"`
}

// GetStats snapshots every local shard's counters and the engine total.
func (e *Engine) GetStats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	stats := Stats{Index: e.index, TotalShards: e.manager.TotalShards(), Shards: make([]shard.Stats, 0, len(e.shards))}
	for i := 0; i < e.manager.TotalShards(); i++ {
		sh, ok := e.shards[i]
		if !ok {
			continue
		}
		s := sh.Stats()
		stats.TotalDocs += s.DocCount
		stats.Shards = append(stats.Shards, s)
	}
	return stats
}

// CreateShardManager exposes the engine's shard manager for callers
// that need direct access to placement/topology operations (registering
// a remote node, inspecting shard assignment) beyond what the
// convenience methods above cover.
func (e *Engine) CreateShardManager() *cluster.ShardManager {
	return e.manager
}

// Close transitions the engine to closed; further operations fail.
// Local shards are closed too so any in-flight Search sees the error
// rather than racing a concurrent write.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateClosed {
		return nil
	}
	for _, sh := range e.shards {
		sh.Close()
	}
	e.state = StateClosed
	return nil
}
