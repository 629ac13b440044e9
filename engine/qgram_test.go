package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hillegass/fts/query"
)

func openQGram(t *testing.T, opts ...Option) *QGramEngine {
	t.Helper()
	dir := t.TempDir()
	e, err := OpenQGram(dir, ModeWriter|ModeCreate, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func TestQGramPutGetRoundTrip(t *testing.T) {
	e := openQGram(t)
	require.NoError(t, e.Put(1, "Hello World"))
	text, found, err := e.Get(1)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "hello world", text)
}

func TestQGramPutOverwriteDropsOldPostings(t *testing.T) {
	e := openQGram(t)
	require.NoError(t, e.Put(1, "apple pie"))
	require.NoError(t, e.Flush())
	ids, err := e.Search(context.Background(), "apple", query.ModeSubstring)
	require.NoError(t, err)
	require.Equal(t, []uint64{1}, ids)

	require.NoError(t, e.Put(1, "orange juice"))
	require.NoError(t, e.Flush())
	ids, err = e.Search(context.Background(), "apple", query.ModeSubstring)
	require.NoError(t, err)
	require.Empty(t, ids)
	ids, err = e.Search(context.Background(), "orange", query.ModeSubstring)
	require.NoError(t, err)
	require.Equal(t, []uint64{1}, ids)
}

func TestQGramRemove(t *testing.T) {
	e := openQGram(t)
	require.NoError(t, e.Put(5, "banana split"))
	require.NoError(t, e.Remove(5))
	_, found, err := e.Get(5)
	require.NoError(t, err)
	require.False(t, found)
	require.NoError(t, e.Flush())
	ids, err := e.Search(context.Background(), "banana", query.ModeSubstring)
	require.NoError(t, err)
	require.Empty(t, ids)
}

func TestQGramSearchModes(t *testing.T) {
	e := openQGram(t)
	require.NoError(t, e.Put(1, "apple"))
	require.NoError(t, e.Put(2, "pineapple"))
	require.NoError(t, e.Put(3, "applesauce"))
	require.NoError(t, e.Flush())

	sub, err := e.Search(context.Background(), "apple", query.ModeSubstring)
	require.NoError(t, err)
	require.ElementsMatch(t, []uint64{1, 2, 3}, sub)

	prefix, err := e.Search(context.Background(), "apple", query.ModePrefix)
	require.NoError(t, err)
	require.ElementsMatch(t, []uint64{1, 3}, prefix)

	suffix, err := e.Search(context.Background(), "apple", query.ModeSuffix)
	require.NoError(t, err)
	require.ElementsMatch(t, []uint64{1, 2}, suffix)

	full, err := e.Search(context.Background(), "apple", query.ModeFull)
	require.NoError(t, err)
	require.Equal(t, []uint64{1}, full)
}

func TestQGramSingleCharacterQuery(t *testing.T) {
	e := openQGram(t)
	require.NoError(t, e.Put(1, "a"))
	require.NoError(t, e.Put(2, "ba"))
	require.NoError(t, e.Put(3, "ab"))
	require.NoError(t, e.Flush())

	sub, err := e.Search(context.Background(), "a", query.ModeSubstring)
	require.NoError(t, err)
	require.ElementsMatch(t, []uint64{1, 2, 3}, sub)

	full, err := e.Search(context.Background(), "a", query.ModeFull)
	require.NoError(t, err)
	require.Equal(t, []uint64{1}, full)
}

// TestQGramCompoundExpr exercises compound-query scenarios against a
// live index instead of the in-memory query.Eval table used by the
// query package's own tests.
func TestQGramCompoundExpr(t *testing.T) {
	e := openQGram(t)
	require.NoError(t, e.Put(1, "red apple"))
	require.NoError(t, e.Put(2, "green apple"))
	require.NoError(t, e.Put(3, "red car"))
	require.NoError(t, e.Flush())

	ids, err := e.SearchExpr(context.Background(), "apple && red")
	require.NoError(t, err)
	require.Equal(t, []uint64{1}, ids)

	ids, err = e.SearchExpr(context.Background(), "apple || car")
	require.NoError(t, err)
	require.ElementsMatch(t, []uint64{1, 2, 3}, ids)

	ids, err = e.SearchExpr(context.Background(), "red !! car")
	require.NoError(t, err)
	require.Equal(t, []uint64{1}, ids)
}

func TestQGramIterator(t *testing.T) {
	e := openQGram(t)
	require.NoError(t, e.Put(1, "one"))
	require.NoError(t, e.Put(2, "two"))
	require.NoError(t, e.Put(3, "three"))

	e.IterInit()
	seen := map[uint64]string{}
	for {
		id, text, done, err := e.IterNext()
		require.NoError(t, err)
		if done {
			break
		}
		seen[id] = text
	}
	require.Equal(t, map[uint64]string{1: "one", 2: "two", 3: "three"}, seen)
}

func TestQGramReadOnlyRejectsWrites(t *testing.T) {
	dir := t.TempDir()
	w, err := OpenQGram(dir, ModeWriter|ModeCreate)
	require.NoError(t, err)
	require.NoError(t, w.Put(1, "hello"))
	require.NoError(t, w.Close())

	ro, err := OpenQGram(dir, ModeReader)
	require.NoError(t, err)
	defer ro.Close()
	require.Error(t, ro.Put(2, "nope"))
	text, found, err := ro.Get(1)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "hello", text)
}

func TestQGramVanish(t *testing.T) {
	e := openQGram(t)
	require.NoError(t, e.Put(1, "alpha"))
	require.NoError(t, e.Put(2, "beta"))
	require.NoError(t, e.Vanish())
	n, err := e.RecordCount()
	require.NoError(t, err)
	require.Zero(t, n)
	_, found, err := e.Get(1)
	require.NoError(t, err)
	require.False(t, found)
}

func TestQGramSetTuningBeforeFirstWrite(t *testing.T) {
	e := openQGram(t)
	require.NoError(t, e.SetTuning(TuningOpts{ShardUnitSize: 4096, ExpectedTokenCount: 1024}))
	require.NoError(t, e.Put(1, "alpha"))
	require.NoError(t, e.Flush())
	require.Error(t, e.SetTuning(TuningOpts{ShardUnitSize: 8192}))
}

func TestQGramRemoveOnAbsentIDFails(t *testing.T) {
	e := openQGram(t)
	err := e.Remove(99)
	require.ErrorIs(t, err, ErrNoRecord)
}

func TestQGramPutTwiceWithoutFlushPreservesOverlappingTokens(t *testing.T) {
	e := openQGram(t)
	require.NoError(t, e.Put(1, "apple"))
	require.NoError(t, e.Put(1, "apple"))
	require.NoError(t, e.Flush())

	ids, err := e.Search(context.Background(), "apple", query.ModeFull)
	require.NoError(t, err)
	require.Equal(t, []uint64{1}, ids)
}

func TestQGramFwmMaxBoundsPrefixScan(t *testing.T) {
	e := openQGram(t, WithFwmMax(2))
	require.NoError(t, e.Put(1, "ab"))
	require.NoError(t, e.Put(2, "ac"))
	require.NoError(t, e.Put(3, "ad"))
	require.NoError(t, e.Put(4, "ae"))
	require.NoError(t, e.Flush())

	ids, err := e.Search(context.Background(), "a", query.ModeSubstring)
	require.NoError(t, err)
	require.LessOrEqual(t, len(ids), 2)
}

func TestQGramRecordCountAndShardSizes(t *testing.T) {
	e := openQGram(t)
	require.NoError(t, e.Put(1, "alpha"))
	require.NoError(t, e.Put(2, "beta"))
	n, err := e.RecordCount()
	require.NoError(t, err)
	require.Equal(t, 2, n)

	sizes, err := e.ShardSizes()
	require.NoError(t, err)
	require.NotEmpty(t, sizes)
}
