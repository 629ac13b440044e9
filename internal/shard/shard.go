// Package shard implements the up-to-32-shard lifecycle and cycling
// rule. Shards are append targets chosen by *when* a record was
// written, not by key hash: there is exactly one "current" shard,
// advanced when it outgrows the configured unit size.
package shard

import (
	"fmt"
	"sort"
	"sync"

	"github.com/hillegass/fts/internal/kv"
	"github.com/hillegass/fts/internal/primary"
)

// Manager owns the set of shard buckets opened inside a single kv.Store
// and the current-shard pointer, generalized from "one file" to "up to
// 32 cycling buckets".
type Manager struct {
	store    *kv.Store
	unitSize int64

	mu      sync.Mutex
	count   int // number of shards opened so far, 0..32
	current int // 0-based index of the active shard
}

// Open scans store for already-opened shard buckets (named per
// primary.ShardFileName) and resumes from them; if none exist yet, the
// manager starts empty and lazily creates shard 0001 on first use: "A
// shard file is created on first flush targeting it".
func Open(store *kv.Store, unitSize int64) (*Manager, error) {
	names, err := store.BucketNames()
	if err != nil {
		return nil, err
	}
	present := make(map[string]bool, len(names))
	for _, n := range names {
		present[n] = true
	}
	count := 0
	for i := 0; i < primary.MaxShards; i++ {
		if present[primary.ShardFileName(i)] {
			count = i + 1
		}
	}
	current := 0
	if count > 0 {
		current = count - 1
	}
	return &Manager{store: store, unitSize: unitSize, count: count, current: current}, nil
}

// SetUnitSize overrides the per-shard cycling threshold used by
// MaybeCycle. Intended for pre-write tuning only; changing it after
// shards already hold data just changes the cycling point going
// forward.
func (m *Manager) SetUnitSize(n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unitSize = n
}

// Count returns the number of shards opened so far.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}

// Current returns the 0-based index of the active shard.
func (m *Manager) Current() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// EnsureCurrent guarantees shard 0 exists (lazy-creating it on first
// use) and returns the active shard's index.
func (m *Manager) EnsureCurrent() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.count == 0 {
		if err := m.store.EnsureBucket(primary.ShardFileName(0)); err != nil {
			return 0, err
		}
		m.count = 1
		m.current = 0
	}
	return m.current, nil
}

// Bucket returns the bucket handle for shard index i. The shard must
// already have been created (via EnsureCurrent or a prior cycle).
func (m *Manager) Bucket(i int) *kv.Bucket {
	return m.store.Bucket(primary.ShardFileName(i))
}

// CurrentBucket is a convenience wrapper around Bucket(Current()).
func (m *Manager) CurrentBucket() *kv.Bucket {
	return m.Bucket(m.Current())
}

// All returns bucket handles for every shard opened so far, in index
// order -- the cross-shard merge fans out over this.
func (m *Manager) All() []*kv.Bucket {
	m.mu.Lock()
	n := m.count
	m.mu.Unlock()
	buckets := make([]*kv.Bucket, n)
	for i := 0; i < n; i++ {
		buckets[i] = m.Bucket(i)
	}
	return buckets
}

// MaybeCycle implements the shard-cycling rule, to be called at the
// "sync finished" point of a flush:
//
//	(a) clear that shard's cache -- a no-op here, bbolt's mmap page
//	    cache has no user-addressable per-bucket eviction (see
//	    DESIGN.md);
//	(b) rescan all shard sizes and choose the smallest as the new
//	    active shard;
//	(c) if all shards already exceed iusiz and the shard count is
//	    below 32, open a new shard and make it active instead.
func (m *Manager) MaybeCycle() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	curSize, err := m.store.Bucket(primary.ShardFileName(m.current)).ByteSize()
	if err != nil {
		return fmt.Errorf("shard: size of current shard: %w", err)
	}
	if curSize <= m.unitSize {
		return nil
	}

	type sized struct {
		idx  int
		size int64
	}
	sizes := make([]sized, m.count)
	for i := 0; i < m.count; i++ {
		sz, err := m.store.Bucket(primary.ShardFileName(i)).ByteSize()
		if err != nil {
			return fmt.Errorf("shard: size of shard %d: %w", i, err)
		}
		sizes[i] = sized{i, sz}
	}
	sort.Slice(sizes, func(a, b int) bool { return sizes[a].size < sizes[b].size })
	smallest := sizes[0]

	if smallest.size > m.unitSize && m.count < primary.MaxShards {
		newIdx := m.count
		if err := m.store.EnsureBucket(primary.ShardFileName(newIdx)); err != nil {
			return fmt.Errorf("shard: create shard %d: %w", newIdx, err)
		}
		m.count++
		m.current = newIdx
		return nil
	}

	m.current = smallest.idx
	return nil
}

// Sizes returns the approximate byte size of every opened shard, for the
// RecordCount/ShardSizes introspection.
func (m *Manager) Sizes() ([]int64, error) {
	m.mu.Lock()
	n := m.count
	m.mu.Unlock()
	sizes := make([]int64, n)
	for i := 0; i < n; i++ {
		sz, err := m.store.Bucket(primary.ShardFileName(i)).ByteSize()
		if err != nil {
			return nil, err
		}
		sizes[i] = sz
	}
	return sizes, nil
}
