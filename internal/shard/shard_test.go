package shard

import (
	"path/filepath"
	"testing"

	"github.com/hillegass/fts/internal/kv"
	"github.com/hillegass/fts/internal/primary"
)

func openStore(t *testing.T) *kv.Store {
	t.Helper()
	s, err := kv.Open(filepath.Join(t.TempDir(), "shards.db"), false, false, false)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestEnsureCurrentCreatesShardZero(t *testing.T) {
	m, err := Open(openStore(t), 1024)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	idx, err := m.EnsureCurrent()
	if err != nil || idx != 0 {
		t.Fatalf("idx=%d err=%v", idx, err)
	}
	if m.Count() != 1 {
		t.Fatalf("expected 1 shard, got %d", m.Count())
	}
}

func TestResumeFromExistingBuckets(t *testing.T) {
	store := openStore(t)
	if err := store.EnsureBucket(primary.ShardFileName(0)); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if err := store.EnsureBucket(primary.ShardFileName(1)); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	m, err := Open(store, 1024)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if m.Count() != 2 || m.Current() != 1 {
		t.Fatalf("count=%d current=%d", m.Count(), m.Current())
	}
}

func TestMaybeCycleOpensNewShardWhenSmallExceeded(t *testing.T) {
	m, err := Open(openStore(t), 8) // tiny unit size
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	idx, err := m.EnsureCurrent()
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	b := m.Bucket(idx)
	for i := 0; i < 50; i++ {
		if err := b.Put([]byte{byte(i)}, []byte("xxxxxxxxxxxxxxxxxxxxxxxx")); err != nil {
			t.Fatalf("put: %v", err)
		}
	}
	if err := m.MaybeCycle(); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if m.Count() != 2 {
		t.Fatalf("expected cycling to open shard 2, count=%d", m.Count())
	}
	if m.Current() != 1 {
		t.Fatalf("expected new shard to become current, got %d", m.Current())
	}
}

func TestMaybeCycleStopsAtMaxShards(t *testing.T) {
	store := openStore(t)
	for i := 0; i < primary.MaxShards; i++ {
		if err := store.EnsureBucket(primary.ShardFileName(i)); err != nil {
			t.Fatalf("ensure: %v", err)
		}
	}
	m, err := Open(store, 4)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	b := m.CurrentBucket()
	for i := 0; i < 50; i++ {
		if err := b.Put([]byte{byte(i)}, []byte("xxxxxxxxxxxxxxxxxxxxxxxx")); err != nil {
			t.Fatalf("put: %v", err)
		}
	}
	if err := m.MaybeCycle(); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if m.Count() != primary.MaxShards {
		t.Fatalf("shard count must stay capped at 32, got %d", m.Count())
	}
}
