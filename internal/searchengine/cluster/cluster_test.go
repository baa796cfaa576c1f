package cluster

import (
	"testing"
	"time"

	"github.com/briarshard/shardsearch/internal/searchengine/shard"
)

func TestShardForKeyDeterministic(t *testing.T) {
	a := ShardForKey("doc-123", 8)
	b := ShardForKey("doc-123", 8)
	if a != b {
		t.Fatalf("hash not deterministic: %d != %d", a, b)
	}
	if a < 0 || a >= 8 {
		t.Fatalf("shard index %d out of range [0,8)", a)
	}
}

func TestShardForKeyDistributes(t *testing.T) {
	seen := make(map[int]bool)
	for i := 0; i < 200; i++ {
		key := time.Now().Add(time.Duration(i)).String() + string(rune(i))
		seen[ShardForKey(key, 4)] = true
	}
	if len(seen) < 2 {
		t.Fatalf("expected keys to spread across multiple shards, got %v", seen)
	}
}

func TestRegisterShardRejectsOutOfRange(t *testing.T) {
	m, err := NewShardManager("node-1", 4)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.RegisterShard(4, true, nil); err == nil {
		t.Fatalf("expected error for out-of-range shard index")
	}
}

func TestRegisterShardRoleConflict(t *testing.T) {
	m, err := NewShardManager("node-1", 4)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.RegisterShard(0, true, nil); err != nil {
		t.Fatal(err)
	}
	if err := m.RegisterShard(0, false, nil); err == nil {
		t.Fatalf("expected role-conflict error re-registering shard 0 as replica")
	}
}

func TestLocalShardsSorted(t *testing.T) {
	m, _ := NewShardManager("node-1", 4)
	_ = m.RegisterShard(3, true, nil)
	_ = m.RegisterShard(1, true, nil)
	got := m.LocalShards()
	if len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Fatalf("got %v, want [1 3]", got)
	}
}

func TestActiveNodesExcludesStale(t *testing.T) {
	m, _ := NewShardManager("node-1", 4)
	m.Heartbeat("node-1", "localhost:9000", []int{0, 1})
	m.nodes["node-2"] = &NodeInfo{NodeID: "node-2", IsActive: true, LastHeartbeat: time.Now().Add(-time.Hour)}
	active := m.ActiveNodes()
	if len(active) != 1 || active[0] != "node-1" {
		t.Fatalf("got %v, want [node-1]", active)
	}
}

func seedShard(t *testing.T, docs map[string]string) *shard.Shard {
	t.Helper()
	sh := shard.New("products", 0, true)
	for id, j := range docs {
		if err := sh.IndexDocument(id, j); err != nil {
			t.Fatalf("IndexDocument(%s): %v", id, err)
		}
	}
	return sh
}

func TestCoordinatorMergesAcrossShards(t *testing.T) {
	m, err := NewShardManager("node-1", 2)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.RegisterShard(0, true, nil); err != nil {
		t.Fatal(err)
	}
	if err := m.RegisterShard(1, true, nil); err != nil {
		t.Fatal(err)
	}

	coord := NewCoordinator(m)
	coord.AddLocalShard(0, seedShard(t, map[string]string{
		"a": `{"title":"red fox"}`,
		"b": `{"title":"quick fox"}`,
	}))
	coord.AddLocalShard(1, seedShard(t, map[string]string{
		"c": `{"title":"lazy fox"}`,
		"d": `{"title":"slow turtle"}`,
	}))

	result, err := coord.Search([]byte(`{"term":{"title":"fox"}}`), nil, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Hits) != 3 {
		t.Fatalf("got %d hits, want 3 (a,b,c)", len(result.Hits))
	}
	for i := 1; i < len(result.Hits); i++ {
		if result.Hits[i].Score > result.Hits[i-1].Score {
			t.Fatalf("hits not sorted by score descending: %+v", result.Hits)
		}
	}
}

func TestCoordinatorPaginationAcrossShards(t *testing.T) {
	m, _ := NewShardManager("node-1", 2)
	_ = m.RegisterShard(0, true, nil)
	_ = m.RegisterShard(1, true, nil)
	coord := NewCoordinator(m)
	coord.AddLocalShard(0, seedShard(t, map[string]string{"a": `{"title":"fox"}`, "b": `{"title":"fox"}`}))
	coord.AddLocalShard(1, seedShard(t, map[string]string{"c": `{"title":"fox"}`, "d": `{"title":"fox"}`}))

	all, err := coord.Search([]byte(`{"term":{"title":"fox"}}`), nil, 0, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(all.Hits) != 4 {
		t.Fatalf("got %d hits, want 4", len(all.Hits))
	}

	page, err := coord.Search([]byte(`{"term":{"title":"fox"}}`), nil, 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(page.Hits))
	}
}

func TestCoordinatorPaginationConcatenationMatchesLargerPage(t *testing.T) {
	m, _ := NewShardManager("node-1", 2)
	_ = m.RegisterShard(0, true, nil)
	_ = m.RegisterShard(1, true, nil)
	coord := NewCoordinator(m)
	coord.AddLocalShard(0, seedShard(t, map[string]string{
		"a": `{"title":"fox"}`, "b": `{"title":"fox fox"}`, "c": `{"title":"red fox"}`,
	}))
	coord.AddLocalShard(1, seedShard(t, map[string]string{
		"d": `{"title":"fox den"}`, "e": `{"title":"a fox ran far"}`, "f": `{"title":"fox"}`,
	}))

	q := []byte(`{"term":{"title":"fox"}}`)
	var paged []string
	for from := 0; from < 6; from += 2 {
		page, err := coord.Search(q, nil, from, 2)
		if err != nil {
			t.Fatal(err)
		}
		for _, h := range page.Hits {
			paged = append(paged, h.ID)
		}
	}
	full, err := coord.Search(q, nil, 0, 6)
	if err != nil {
		t.Fatal(err)
	}
	if len(paged) != len(full.Hits) {
		t.Fatalf("paged ids %v, full has %d hits", paged, len(full.Hits))
	}
	for i, h := range full.Hits {
		if paged[i] != h.ID {
			t.Fatalf("page concatenation diverges at %d: %v vs %s", i, paged, h.ID)
		}
	}
}

func TestCoordinatorNoShardsFails(t *testing.T) {
	m, _ := NewShardManager("node-1", 2)
	coord := NewCoordinator(m)
	if _, err := coord.Search([]byte(`{"match_all":{}}`), nil, 0, 10); err == nil {
		t.Fatalf("expected error with no registered shards")
	}
}
