// Package query implements the compound-expression grammar and set
// algebra: infix &&/||/!! combinators over per-term result sets,
// evaluated as a left fold of intersect/union/difference over sorted
// ID slices.
package query

import "sort"

// Union concatenates, sorts, and uniques id slices: "concatenate, sort
// by ID, unique-in-place."
func Union(sets ...[]uint64) []uint64 {
	total := 0
	for _, s := range sets {
		total += len(s)
	}
	merged := make([]uint64, 0, total)
	for _, s := range sets {
		merged = append(merged, s...)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i] < merged[j] })
	return uniqueSorted(merged)
}

// Intersect2 hash-joins two sets using the smaller one as the probe
// table: "Intersect (2 sets): hash-join using the smaller set".
func Intersect2(a, b []uint64) []uint64 {
	small, large := a, b
	if len(b) < len(a) {
		small, large = b, a
	}
	set := make(map[uint64]struct{}, len(small))
	for _, id := range small {
		set[id] = struct{}{}
	}
	out := make([]uint64, 0, min(len(small), len(large)))
	seen := make(map[uint64]struct{}, len(out))
	for _, id := range large {
		if _, ok := set[id]; ok {
			if _, dup := seen[id]; !dup {
				seen[id] = struct{}{}
				out = append(out, id)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// IntersectN implements N>2 intersection: "concat all, sort, then a
// single pass keeping IDs whose contiguous run length equals N."
func IntersectN(sets ...[]uint64) []uint64 {
	if len(sets) == 0 {
		return nil
	}
	if len(sets) == 1 {
		return uniqueSorted(append([]uint64(nil), sets[0]...))
	}
	if len(sets) == 2 {
		return Intersect2(sets[0], sets[1])
	}
	total := 0
	for _, s := range sets {
		total += len(s)
	}
	merged := make([]uint64, 0, total)
	for _, s := range sets {
		merged = append(merged, uniqueSorted(append([]uint64(nil), s...))...)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i] < merged[j] })

	n := len(sets)
	out := make([]uint64, 0)
	i := 0
	for i < len(merged) {
		j := i
		for j < len(merged) && merged[j] == merged[i] {
			j++
		}
		if j-i == n {
			out = append(out, merged[i])
		}
		i = j
	}
	return out
}

// Difference marks every id in subtrahend in a set, then filters
// minuend.
func Difference(minuend, subtrahend []uint64) []uint64 {
	drop := make(map[uint64]struct{}, len(subtrahend))
	for _, id := range subtrahend {
		drop[id] = struct{}{}
	}
	out := make([]uint64, 0, len(minuend))
	for _, id := range minuend {
		if _, ok := drop[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

func uniqueSorted(sorted []uint64) []uint64 {
	if len(sorted) == 0 {
		return sorted
	}
	out := sorted[:1]
	for _, id := range sorted[1:] {
		if id != out[len(out)-1] {
			out = append(out, id)
		}
	}
	return out
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
