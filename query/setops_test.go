package query

import (
	"reflect"
	"testing"
)

func TestUnion(t *testing.T) {
	got := Union([]uint64{1, 3}, []uint64{2, 3, 5})
	want := []uint64{1, 2, 3, 5}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestIntersect2(t *testing.T) {
	got := Intersect2([]uint64{1, 2, 3}, []uint64{2, 3, 4})
	want := []uint64{2, 3}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestIntersectN(t *testing.T) {
	got := IntersectN([]uint64{1, 2, 3}, []uint64{2, 3, 4}, []uint64{2, 3, 9})
	want := []uint64{2, 3}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestDifference(t *testing.T) {
	got := Difference([]uint64{1, 2, 3}, []uint64{2})
	want := []uint64{1, 3}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestUnionStableAcrossShardCount(t *testing.T) {
	oneShard := Union([]uint64{5, 1, 1, 3})
	twoShards := Union([]uint64{1, 3}, []uint64{5, 1})
	if !reflect.DeepEqual(oneShard, twoShards) {
		t.Fatalf("expected same result regardless of shard split: %v vs %v", oneShard, twoShards)
	}
}
