package engine

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/hillegass/fts/internal/tokenize"
	"github.com/hillegass/fts/internal/varint"
	"github.com/hillegass/fts/query"
)

// win is one step of a q-gram chain-match: a 2-codepoint token and its
// position relative to the first window of the chain.
type win struct {
	token string
	rel   uint32
}

// searchQGram implements the per-mode q-gram evaluation: an empty query
// matches nothing, a one-codepoint query is answered by searchSingleRune
// (a single gram can't express a lone character), and queries of two or
// more codepoints are answered by chain-matching consecutive windows
// across every shard in parallel.
//
// The q-gram index carries no word-boundary information, so the three
// token-* modes degrade to their non-token counterparts here (token ~=
// full, token-prefix ~= prefix, token-suffix ~= suffix); true token
// semantics are only meaningful for WordEngine.
func searchQGram(ctx context.Context, b *base, normalized string, mode query.Mode) ([]uint64, error) {
	switch mode {
	case query.ModeToken:
		mode = query.ModeFull
	case query.ModeTokenPrefix:
		mode = query.ModePrefix
	case query.ModeTokenSuffix:
		mode = query.ModeSuffix
	}

	runes := []rune(normalized)
	n := len(runes)
	if n == 0 {
		return nil, nil
	}
	if n == 1 {
		return searchSingleRune(ctx, b, runes[0], mode)
	}

	switch mode {
	case query.ModeSubstring:
		return chainMatch(ctx, b, pairwiseWindows(runes), false)
	case query.ModePrefix:
		return chainMatch(ctx, b, pairwiseWindows(runes), true)
	case query.ModeFull:
		return chainMatch(ctx, b, fullWindows(runes), true)
	case query.ModeSuffix:
		return chainMatch(ctx, b, fullWindows(runes), false)
	default:
		return chainMatch(ctx, b, pairwiseWindows(runes), false)
	}
}

// pairwiseWindows builds the n-1 consecutive 2-gram windows of runes,
// used for substring/prefix matching: it never forces a match to land
// on a record's true end.
func pairwiseWindows(runes []rune) []win {
	n := len(runes)
	wins := make([]win, 0, n-1)
	for i := 0; i < n-1; i++ {
		wins = append(wins, win{token: string([]rune{runes[i], runes[i+1]}), rel: uint32(i)})
	}
	return wins
}

// fullWindows builds the chain including the trailing (lastRune, 0)
// end-of-text marker that tokenize.QGram naturally produces for the
// last codepoint, used by full/suffix matching to require the match end
// at the record's actual end.
func fullWindows(runes []rune) []win {
	postings := tokenize.QGram(string(runes))
	wins := make([]win, 0, len(postings))
	for _, p := range postings {
		wins = append(wins, win{token: p.Token, rel: p.Offset})
	}
	return wins
}

// chainMatch fetches every window's posting map (merged across shards)
// and keeps ids whose offsets line up consecutively across all windows.
// requireZeroStart restricts matches to id occurrences starting at
// offset 0 of the record (prefix/full modes).
func chainMatch(ctx context.Context, b *base, wins []win, requireZeroStart bool) ([]uint64, error) {
	if len(wins) == 0 {
		return nil, nil
	}
	maps := make([]map[uint64][]uint32, len(wins))
	g, gctx := errgroup.WithContext(ctx)
	for i, w := range wins {
		i, w := i, w
		g.Go(func() error {
			m, err := fetchTokenAcrossShards(gctx, b, w.token)
			if err != nil {
				return err
			}
			maps[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, newErr(CodeRead, err.Error())
	}

	base0 := wins[0].rel
	var out []uint64
	for id, offs0 := range maps[0] {
		for _, o0 := range offs0 {
			if requireZeroStart && o0 != 0 {
				continue
			}
			matched := true
			for i := 1; i < len(wins); i++ {
				want := o0 + (wins[i].rel - base0)
				if !containsOffset(maps[i][id], want) {
					matched = false
					break
				}
			}
			if matched {
				out = append(out, id)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func containsOffset(offs []uint32, want uint32) bool {
	for _, o := range offs {
		if o == want {
			return true
		}
	}
	return false
}

// searchSingleRune answers a one-codepoint query, which a 2-gram index
// cannot express as a single token lookup: substring scans every token
// whose first codepoint is r; prefix further restricts to offset 0;
// suffix/full look up the exact (r, 0) end-of-text gram.
func searchSingleRune(ctx context.Context, b *base, r rune, mode query.Mode) ([]uint64, error) {
	switch mode {
	case query.ModeSuffix, query.ModeFull:
		token := string([]rune{r, 0})
		m, err := fetchTokenAcrossShards(ctx, b, token)
		if err != nil {
			return nil, err
		}
		var out []uint64
		for id, offs := range m {
			if mode == query.ModeFull && !containsOffset(offs, 0) {
				continue
			}
			out = append(out, id)
		}
		sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
		return out, nil
	default: // substring, prefix
		m, err := fetchPrefixAcrossShards(ctx, b, string(r))
		if err != nil {
			return nil, err
		}
		var out []uint64
		for id, offs := range m {
			if mode == query.ModePrefix && !containsOffset(offs, 0) {
				continue
			}
			out = append(out, id)
		}
		sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
		return out, nil
	}
}

// fetchTokenAcrossShards reads one exact token's posting list from every
// opened shard in parallel and merges them into a single id->offsets
// map.
func fetchTokenAcrossShards(ctx context.Context, b *base, token string) (map[uint64][]uint32, error) {
	buckets := b.shardMgr.All()
	var mu sync.Mutex
	result := make(map[uint64][]uint32)
	g, _ := errgroup.WithContext(ctx)
	for _, bucket := range buckets {
		bucket := bucket
		g.Go(func() error {
			val, found, err := bucket.Get([]byte(token))
			if err != nil {
				return err
			}
			if !found {
				return nil
			}
			m := decodePostings(val)
			mu.Lock()
			for id, offs := range m {
				result[id] = append(result[id], offs...)
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

// fetchPrefixAcrossShards merges the posting lists of every token whose
// bytes start with prefix, across every opened shard. The scan stops
// once b.cfg.fwmMax keys have been examined in total, bounding the cost
// of a wide prefix against a large vocabulary.
func fetchPrefixAcrossShards(ctx context.Context, b *base, prefix string) (map[uint64][]uint32, error) {
	buckets := b.shardMgr.All()
	var mu sync.Mutex
	result := make(map[uint64][]uint32)
	var scanned int64
	limit := int64(b.cfg.fwmMax)
	g, _ := errgroup.WithContext(ctx)
	for _, bucket := range buckets {
		bucket := bucket
		g.Go(func() error {
			return bucket.WalkPrefix([]byte(prefix), func(_, v []byte) (bool, error) {
				if limit > 0 && atomic.AddInt64(&scanned, 1) > limit {
					return true, nil
				}
				m := decodePostings(v)
				mu.Lock()
				for id, offs := range m {
					result[id] = append(result[id], offs...)
				}
				mu.Unlock()
				return false, nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

// decodePostings splits a shard value into its varint(id)||varint(offset)
// pairs, grouping offsets by id.
func decodePostings(data []byte) map[uint64][]uint32 {
	out := make(map[uint64][]uint32)
	for len(data) > 0 {
		id, n := varint.Uint64(data)
		if n <= 0 {
			break
		}
		data = data[n:]
		off, n2 := varint.Uint32(data)
		if n2 <= 0 {
			break
		}
		data = data[n2:]
		out[id] = append(out[id], off)
	}
	return out
}
