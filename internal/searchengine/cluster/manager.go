// Package cluster provides shard placement, cluster topology tracking,
// and the distributed coordinator that fans a query out across shards
// and merges the per-shard results.
package cluster

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// ShardInfo describes one shard's placement in the cluster.
type ShardInfo struct {
	ShardIndex   int      `json:"shard_index"`
	TotalShards  int      `json:"total_shards"`
	NodeID       string   `json:"node_id"`
	IsPrimary    bool     `json:"is_primary"`
	ReplicaNodes []string `json:"replica_nodes,omitempty"`
}

// NodeInfo describes one node's liveness in the cluster topology.
type NodeInfo struct {
	NodeID        string    `json:"node_id"`
	Address       string    `json:"address"`
	IsActive      bool      `json:"is_active"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
	ShardIndices  []int     `json:"shard_indices"`
}

// heartbeatTimeout is how stale a node's last heartbeat may be before
// ActiveNodes stops reporting it.
const heartbeatTimeout = 30 * time.Second

// ShardManager tracks which shards exist in the cluster, where the
// primary and replicas for each live, and routes document ids and
// queries to shard indices using consistent hashing.
type ShardManager struct {
	nodeID      string
	totalShards int
	logger      *slog.Logger

	mu        sync.RWMutex
	shardInfo map[int]*ShardInfo

	nodesMu sync.RWMutex
	nodes   map[string]*NodeInfo
}

// NewShardManager creates a manager for a cluster with totalShards
// shards, identifying this process as nodeID.
func NewShardManager(nodeID string, totalShards int) (*ShardManager, error) {
	if totalShards <= 0 {
		return nil, fmt.Errorf("cluster: totalShards must be positive, got %d", totalShards)
	}
	return &ShardManager{
		nodeID:      nodeID,
		totalShards: totalShards,
		shardInfo:   make(map[int]*ShardInfo),
		nodes:       make(map[string]*NodeInfo),
		logger:      slog.Default().With("component", "shard-manager", "node_id", nodeID),
	}, nil
}

// NodeID returns this manager's node id.
func (m *ShardManager) NodeID() string { return m.nodeID }

// TotalShards returns the cluster's configured shard count.
func (m *ShardManager) TotalShards() int { return m.totalShards }

// ShardForDocument returns the shard index a document id routes to.
func (m *ShardManager) ShardForDocument(docID string) int {
	return ShardForKey(docID, m.totalShards)
}

// ShardsForQuery returns the shard indices a query must be sent to. The
// current dispatcher has no per-query shard pruning (no query type
// narrows candidates to a single shard), so every query broadcasts to
// all shards.
func (m *ShardManager) ShardsForQuery(query []byte) []int {
	shards := make([]int, m.totalShards)
	for i := range shards {
		shards[i] = i
	}
	return shards
}

// RegisterShard records shardIndex as hosted on this manager's node,
// replacing any prior registration for the same index. A second
// registration for the same index with a different primary/replica role
// than what's already recorded is rejected — a shard has exactly one
// current role assignment.
func (m *ShardManager) RegisterShard(shardIndex int, isPrimary bool, replicaNodes []string) error {
	if shardIndex < 0 || shardIndex >= m.totalShards {
		return fmt.Errorf("cluster: shard index %d out of range [0,%d)", shardIndex, m.totalShards)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.shardInfo[shardIndex]; ok && existing.NodeID == m.nodeID && existing.IsPrimary != isPrimary {
		return fmt.Errorf("cluster: shard %d already registered on %s with is_primary=%v", shardIndex, m.nodeID, existing.IsPrimary)
	}

	m.shardInfo[shardIndex] = &ShardInfo{
		ShardIndex:   shardIndex,
		TotalShards:  m.totalShards,
		NodeID:       m.nodeID,
		IsPrimary:    isPrimary,
		ReplicaNodes: replicaNodes,
	}
	m.logger.Info("registered shard", "shard_index", shardIndex, "is_primary", isPrimary)
	return nil
}

// ShardInfo returns the recorded placement for shardIndex.
func (m *ShardManager) ShardInfo(shardIndex int) (ShardInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info, ok := m.shardInfo[shardIndex]
	if !ok {
		return ShardInfo{}, false
	}
	return *info, true
}

// LocalShards returns the shard indices registered on this node, sorted.
func (m *ShardManager) LocalShards() []int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	shards := make([]int, 0, len(m.shardInfo))
	for idx, info := range m.shardInfo {
		if info.NodeID == m.nodeID {
			shards = append(shards, idx)
		}
	}
	sort.Ints(shards)
	return shards
}

// Heartbeat records or refreshes a node's liveness in the topology.
func (m *ShardManager) Heartbeat(nodeID, address string, shardIndices []int) {
	m.nodesMu.Lock()
	defer m.nodesMu.Unlock()
	m.nodes[nodeID] = &NodeInfo{
		NodeID:        nodeID,
		Address:       address,
		IsActive:      true,
		LastHeartbeat: time.Now(),
		ShardIndices:  shardIndices,
	}
}

// RemoveNode evicts a node from the topology immediately (a graceful
// shutdown or administrative removal), rather than waiting out the
// heartbeat timeout.
func (m *ShardManager) RemoveNode(nodeID string) {
	m.nodesMu.Lock()
	defer m.nodesMu.Unlock()
	delete(m.nodes, nodeID)
}

// Node returns the recorded info for nodeID.
func (m *ShardManager) Node(nodeID string) (NodeInfo, bool) {
	m.nodesMu.RLock()
	defer m.nodesMu.RUnlock()
	n, ok := m.nodes[nodeID]
	if !ok {
		return NodeInfo{}, false
	}
	return *n, true
}

// ActiveNodes returns the ids of nodes whose last heartbeat is within
// the liveness window.
func (m *ShardManager) ActiveNodes() []string {
	m.nodesMu.RLock()
	defer m.nodesMu.RUnlock()
	now := time.Now()
	ids := make([]string, 0, len(m.nodes))
	for id, n := range m.nodes {
		if n.IsActive && now.Sub(n.LastHeartbeat) < heartbeatTimeout {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
