package kv

import (
	"path/filepath"
	"testing"
)

func open(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, false, false, false)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.EnsureBucket("b"); err != nil {
		t.Fatalf("ensure bucket: %v", err)
	}
	return s
}

func TestPutGetDelete(t *testing.T) {
	s := open(t)
	b := s.Bucket("b")
	if _, found, err := b.Get([]byte("k")); err != nil || found {
		t.Fatalf("expected absent key, found=%v err=%v", found, err)
	}
	if err := b.Put([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("put: %v", err)
	}
	v, found, err := b.Get([]byte("k"))
	if err != nil || !found || string(v) != "v" {
		t.Fatalf("got %q found=%v err=%v", v, found, err)
	}
	if err := b.Delete([]byte("k")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, found, _ := b.Get([]byte("k")); found {
		t.Fatal("expected key gone after delete")
	}
}

func TestPutKeep(t *testing.T) {
	s := open(t)
	b := s.Bucket("b")
	inserted, err := b.PutKeep([]byte("k"), []byte("first"))
	if err != nil || !inserted {
		t.Fatalf("expected first insert to succeed, inserted=%v err=%v", inserted, err)
	}
	inserted, err = b.PutKeep([]byte("k"), []byte("second"))
	if err != nil || inserted {
		t.Fatalf("expected second insert to be a no-op, inserted=%v err=%v", inserted, err)
	}
	v, _, _ := b.Get([]byte("k"))
	if string(v) != "first" {
		t.Fatalf("PutKeep should not overwrite, got %q", v)
	}
}

func TestPutCatAppends(t *testing.T) {
	s := open(t)
	b := s.Bucket("b")
	if err := b.PutCat([]byte("k"), []byte("a")); err != nil {
		t.Fatalf("putcat 1: %v", err)
	}
	if err := b.PutCat([]byte("k"), []byte("b")); err != nil {
		t.Fatalf("putcat 2: %v", err)
	}
	v, _, _ := b.Get([]byte("k"))
	if string(v) != "ab" {
		t.Fatalf("got %q want ab", v)
	}
}

func TestWalkOrderAndPrefix(t *testing.T) {
	s := open(t)
	b := s.Bucket("b")
	for _, k := range []string{"ab", "ac", "b", "ba"} {
		if err := b.Put([]byte(k), []byte("v")); err != nil {
			t.Fatalf("put %s: %v", k, err)
		}
	}
	var got []string
	err := b.WalkPrefix([]byte("a"), func(k, v []byte) (bool, error) {
		got = append(got, string(k))
		return false, nil
	})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	if len(got) != 2 || got[0] != "ab" || got[1] != "ac" {
		t.Fatalf("got %v", got)
	}
}

func TestDropBucketKeepsNameUsable(t *testing.T) {
	s := open(t)
	b := s.Bucket("b")
	if err := b.Put([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.DropBucket("b"); err != nil {
		t.Fatalf("drop: %v", err)
	}
	n, err := b.KeyCount()
	if err != nil || n != 0 {
		t.Fatalf("expected empty bucket after drop, n=%d err=%v", n, err)
	}
	// bucket must still be usable (name not actually removed)
	if err := b.Put([]byte("k2"), []byte("v2")); err != nil {
		t.Fatalf("put after drop: %v", err)
	}
}
