package engine

import "testing"

func TestWriteBufferAppendAndDrain(t *testing.T) {
	b := newWriteBuffer(16)
	b.AppendPosting("ab", []byte{1})
	b.AppendPosting("ab", []byte{2})
	b.AppendPosting("cd", []byte{3})

	keys := b.AppendKeysSorted()
	if len(keys) != 2 || keys[0] != "ab" || keys[1] != "cd" {
		t.Fatalf("got %v", keys)
	}
	if got := string(b.TakeAppendValue("ab")); got != "\x01\x02" {
		t.Fatalf("got %q", got)
	}
	b.RemoveAppend("ab")
	if len(b.AppendKeysSorted()) != 1 {
		t.Fatalf("expected ab removed")
	}
}

func TestWriteBufferDeleteKeyRoundTrip(t *testing.T) {
	b := newWriteBuffer(16)
	b.MarkDeleteToken(2, "tok")
	b.MarkDeleteToken(0, "tok")
	keys := b.DeleteKeysSorted()
	if len(keys) != 2 {
		t.Fatalf("expected shard-scoped keys to stay distinct, got %v", keys)
	}
	shardIdx, token, ok := parseDeleteKey(keys[0])
	if !ok || token != "tok" {
		t.Fatalf("parse failed: idx=%d token=%q ok=%v", shardIdx, token, ok)
	}
	b.RemoveDelete(keys[0])
	if len(b.DeleteKeysSorted()) != 1 {
		t.Fatalf("expected one key left")
	}
}

func TestWriteBufferDeletedIDs(t *testing.T) {
	b := newWriteBuffer(16)
	b.MarkDeletedID(42)
	if !b.IsDeletedID(42) {
		t.Fatal("expected 42 marked deleted")
	}
	b.clearDeletedIDs()
	if b.IsDeletedID(42) {
		t.Fatal("expected clear to drop tombstone")
	}
}

func TestWriteBufferDirty(t *testing.T) {
	b := newWriteBuffer(16)
	if b.Dirty() {
		t.Fatal("fresh buffer should not be dirty")
	}
	b.AppendPosting("x", []byte{1})
	if !b.Dirty() {
		t.Fatal("buffer with a pending append should be dirty")
	}
}
