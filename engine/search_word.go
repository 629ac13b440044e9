package engine

import (
	"context"
	"sort"
	"strings"

	"github.com/hillegass/fts/internal/kv"
	"github.com/hillegass/fts/query"
)

// searchWord implements the word-variant evaluation: exact token/full
// lookups hit a shard bucket directly, while the three
// expanding modes (prefix/suffix/substring, and their token-* aliases)
// first resolve the matching set of whole words from the vocabulary
// dictionary, then union each matched word's postings.
func searchWord(ctx context.Context, b *base, vocab *kv.Store, normalized string, mode query.Mode) ([]uint64, error) {
	switch mode {
	case query.ModeToken, query.ModeFull:
		m, err := fetchTokenAcrossShards(ctx, b, normalized)
		if err != nil {
			return nil, err
		}
		return idsOf(m), nil

	case query.ModeTokenPrefix, query.ModePrefix:
		words, err := vocabMatch(vocab, func(w string) bool { return strings.HasPrefix(w, normalized) }, normalized, b.cfg.fwmMax)
		if err != nil {
			return nil, err
		}
		return unionWords(ctx, b, words)

	case query.ModeTokenSuffix, query.ModeSuffix:
		words, err := vocabMatch(vocab, func(w string) bool { return strings.HasSuffix(w, normalized) }, "", b.cfg.fwmMax)
		if err != nil {
			return nil, err
		}
		return unionWords(ctx, b, words)

	case query.ModeSubstring:
		words, err := vocabMatch(vocab, func(w string) bool { return strings.Contains(w, normalized) }, "", b.cfg.fwmMax)
		if err != nil {
			return nil, err
		}
		return unionWords(ctx, b, words)

	default:
		return nil, nil
	}
}

// vocabMatch scans the vocabulary dictionary for every word satisfying
// keep. A non-empty seekPrefix lets the caller use a cursor seek instead
// of a full scan, used for the prefix mode. The scan stops once limit
// keys have been examined, bounding the cost of a wide expansion against
// a large vocabulary.
func vocabMatch(vocab *kv.Store, keep func(string) bool, seekPrefix string, limit int) ([]string, error) {
	var words []string
	var scanned int
	bucket := vocab.Bucket(vocabBucket)
	walk := func(k, _ []byte) (bool, error) {
		if limit > 0 && scanned >= limit {
			return true, nil
		}
		scanned++
		w := string(k)
		if keep(w) {
			words = append(words, w)
		}
		return false, nil
	}
	var err error
	if seekPrefix != "" {
		err = bucket.WalkPrefix([]byte(seekPrefix), walk)
	} else {
		err = bucket.Walk(walk)
	}
	if err != nil {
		return nil, newErr(CodeRead, err.Error())
	}
	return words, nil
}

func unionWords(ctx context.Context, b *base, words []string) ([]uint64, error) {
	merged := make(map[uint64]struct{})
	for _, w := range words {
		m, err := fetchTokenAcrossShards(ctx, b, w)
		if err != nil {
			return nil, err
		}
		for id := range m {
			merged[id] = struct{}{}
		}
	}
	out := make([]uint64, 0, len(merged))
	for id := range merged {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func idsOf(m map[uint64][]uint32) []uint64 {
	out := make([]uint64, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
