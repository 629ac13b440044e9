package idset

import "testing"

func TestAddHasRemove(t *testing.T) {
	s := New(8)
	if s.Has(5) {
		t.Fatal("empty set should not have 5")
	}
	s.Add(5)
	if !s.Has(5) {
		t.Fatal("expected 5 to be present")
	}
	s.Remove(5)
	if s.Has(5) {
		t.Fatal("expected 5 to be removed")
	}
}

func TestCollisionGoesToOverflow(t *testing.T) {
	s := New(4)
	// 1 and 5 both hash to bucket 1 with bnum=4.
	s.Add(1)
	s.Add(5)
	if !s.Has(1) || !s.Has(5) {
		t.Fatal("expected both colliding ids present")
	}
	s.Add(9) // also bucket 1
	if !s.Has(9) {
		t.Fatal("expected third colliding id present")
	}
	if s.Has(13) {
		t.Fatal("did not add 13, should be absent")
	}
}

func TestLenCountsOverflow(t *testing.T) {
	s := New(2)
	for _, id := range []uint64{1, 2, 3, 4, 5} {
		s.Add(id)
	}
	if s.Len() != 5 {
		t.Fatalf("got len %d, want 5", s.Len())
	}
}

func TestResetClears(t *testing.T) {
	s := New(4)
	s.Add(1)
	s.Add(5)
	s.Reset()
	if s.Has(1) || s.Has(5) || s.Len() != 0 {
		t.Fatal("expected empty set after reset")
	}
}

func TestZeroIDIgnored(t *testing.T) {
	s := New(4)
	s.Add(0)
	if s.Has(0) || s.Len() != 0 {
		t.Fatal("id 0 is the empty sentinel and must never be stored")
	}
}
