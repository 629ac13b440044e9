package engine

import (
	"context"
	"path/filepath"

	"github.com/hillegass/fts/internal/kv"
	"github.com/hillegass/fts/internal/normalize"
	"github.com/hillegass/fts/internal/primary"
	"github.com/hillegass/fts/internal/tokenize"
	"github.com/hillegass/fts/internal/varint"
	"github.com/hillegass/fts/query"
)

const vocabBucket = "vocab"

// WordEngine is the word-indexed variant: records are split on
// whitespace-class separators into whole-word tokens, each posted once
// per record, and a side vocabulary dictionary lets substring/prefix/
// suffix queries expand to the matching whole words before falling
// back to direct postings lookups.
type WordEngine struct {
	*base
	vocab *kv.Store
}

// OpenWord opens or creates a word index at dir.
func OpenWord(dir string, mode Mode, opts ...Option) (*WordEngine, error) {
	b, err := openBase(dir, mode, MagicWord, opts)
	if err != nil {
		return nil, err
	}

	vocab, err := kv.Open(filepath.Join(dir, "vocab.db"), !mode.has(ModeWriter), mode.has(ModeNoLock), mode.has(ModeLockNonblock))
	if err != nil {
		b.primary.Close()
		b.shards.Close()
		return nil, newErr(CodeOpen, err.Error())
	}
	if mode.has(ModeWriter) {
		if err := vocab.EnsureBucket(vocabBucket); err != nil {
			b.primary.Close()
			b.shards.Close()
			vocab.Close()
			return nil, newErr(CodeOpen, err.Error())
		}
	}

	e := &WordEngine{base: b, vocab: vocab}
	e.onTokensAdded = e.insertVocabulary
	e.Start()
	return e, nil
}

func (e *WordEngine) insertVocabulary(tokens []string) error {
	bucket := e.vocab.Bucket(vocabBucket)
	for _, t := range tokens {
		if _, err := bucket.PutKeep([]byte(t), []byte{}); err != nil {
			return newErr(CodeWrite, err.Error())
		}
	}
	return nil
}

// Close flushes and closes the word index, including its vocabulary
// database.
func (e *WordEngine) Close() error {
	berr := e.base.Close()
	if err := e.vocab.Close(); err != nil && berr == nil {
		berr = newErr(CodeClose, err.Error())
	}
	return berr
}

// Vanish empties the index, including the vocabulary dictionary.
func (e *WordEngine) Vanish() error {
	if err := e.base.Vanish(); err != nil {
		return err
	}
	if err := e.vocab.DropBucket(vocabBucket); err != nil {
		return newErr(CodeWrite, err.Error())
	}
	return nil
}

// Copy snapshots the word index's three database files.
func (e *WordEngine) Copy(dstDir string) error {
	if err := e.base.Copy(dstDir); err != nil {
		return err
	}
	if err := copyFile(e.vocab.Path(), filepath.Join(dstDir, "vocab.db")); err != nil {
		return newErr(CodeWrite, err.Error())
	}
	return nil
}

// Optimize compacts all three database files.
func (e *WordEngine) Optimize() error {
	if err := e.base.Optimize(); err != nil {
		return err
	}
	return compactInPlace(&e.vocab)
}

func (e *WordEngine) wordSeparators() string {
	return e.cfg.wordSeparators
}

// Put indexes id under text's whole words, replacing any prior content
// for id.
func (e *WordEngine) Put(id uint64, text string) error {
	if err := e.checkWriter(); err != nil {
		return err
	}
	if id == 0 {
		return ErrBadID
	}
	if _, err := e.removeLocked(id, false); err != nil {
		if CodeOf(err) == CodeRecordHeader {
			// an existing record whose stored value cannot be decoded
			return newErr(CodeMisc, "cannot decode stored record for re-put")
		}
		return err
	}
	if e.buf.IsDeletedID(id) {
		if err := e.Flush(); err != nil {
			return err
		}
	}

	normalized := normalize.Text(text, e.cfg.normalizeOpts)
	postings := tokenize.Words(normalized, e.wordSeparators())
	shardIdx, err := e.shardMgr.EnsureCurrent()
	if err != nil {
		return newErr(CodeWrite, err.Error())
	}

	words := make([]string, 0, len(postings))
	for _, p := range postings {
		sanitized := tokenize.SanitizeWord(p.Token)
		words = append(words, sanitized)
		packed := varint.AppendUint64(nil, id)
		packed = varint.AppendUint32(packed, 0)
		e.buf.AppendPosting(sanitized, packed)
	}

	val := primary.EncodeWordValue(shardIdx, words)
	if err := e.primary.Bucket(recordsBucket).Put(idKey(id), val); err != nil {
		return newErr(CodeWrite, err.Error())
	}
	e.maybeAutoFlush()
	return nil
}

// Remove deletes id's postings and primary record. It fails with
// ErrNoRecord if id is not currently indexed.
func (e *WordEngine) Remove(id uint64) error {
	if err := e.checkWriter(); err != nil {
		return err
	}
	if id == 0 {
		return ErrBadID
	}
	if _, err := e.removeLocked(id, true); err != nil {
		return err
	}
	e.maybeAutoFlush()
	return nil
}

// removeLocked stages the deletion of id's current postings (if any) and
// deletes its primary entry, reporting whether id was found. Put calls
// this with mustExist false, so an overwriting Put on an id that was
// never indexed is a silent no-op; Remove calls it with mustExist true
// and surfaces ErrNoRecord when id isn't found.
func (e *WordEngine) removeLocked(id uint64, mustExist bool) (bool, error) {
	val, found, err := e.primary.Bucket(recordsBucket).Get(idKey(id))
	if err != nil {
		return false, newErr(CodeRead, err.Error())
	}
	if !found {
		if mustExist {
			return false, ErrNoRecord
		}
		return false, nil
	}
	shardIdx, words, err := primary.DecodeWordValue(val)
	if err != nil {
		return false, newErr(CodeRecordHeader, err.Error())
	}
	seen := make(map[string]struct{}, len(words))
	for _, w := range words {
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		e.buf.MarkDeleteToken(shardIdx, w)
	}
	e.buf.MarkDeletedID(id)
	if err := e.primary.Bucket(recordsBucket).Delete(idKey(id)); err != nil {
		return false, newErr(CodeWrite, err.Error())
	}
	return true, nil
}

// Get returns the words stored for id, joined back with single spaces.
func (e *WordEngine) Get(id uint64) (string, bool, error) {
	val, found, err := e.primary.Bucket(recordsBucket).Get(idKey(id))
	if err != nil {
		return "", false, newErr(CodeRead, err.Error())
	}
	if !found {
		return "", false, nil
	}
	_, words, err := primary.DecodeWordValue(val)
	if err != nil {
		return "", false, newErr(CodeRecordHeader, err.Error())
	}
	out := ""
	for i, w := range words {
		if i > 0 {
			out += " "
		}
		out += w
	}
	return out, true, nil
}

// IterNext returns the next (id, words joined by spaces) pair.
func (e *WordEngine) IterNext() (id uint64, text string, done bool, err error) {
	id, raw, done, err := e.iterNextRaw()
	if err != nil || done {
		return id, "", done, err
	}
	_, words, decErr := primary.DecodeWordValue(raw)
	if decErr != nil {
		return 0, "", false, newErr(CodeRecordHeader, decErr.Error())
	}
	out := ""
	for i, w := range words {
		if i > 0 {
			out += " "
		}
		out += w
	}
	return id, out, false, nil
}

// Vocabulary returns every distinct word currently indexed, in sorted
// order.
func (e *WordEngine) Vocabulary() ([]string, error) {
	if err := e.Flush(); err != nil {
		return nil, err
	}
	var words []string
	err := e.vocab.Bucket(vocabBucket).Walk(func(k, _ []byte) (bool, error) {
		words = append(words, string(k))
		return false, nil
	})
	if err != nil {
		return nil, newErr(CodeRead, err.Error())
	}
	return words, nil
}

// Search runs a single search over term using mode: direct token
// lookups plus vocabulary expansion for the substring/prefix/suffix
// modes.
func (e *WordEngine) Search(ctx context.Context, term string, mode query.Mode) ([]uint64, error) {
	if err := e.Flush(); err != nil {
		return nil, err
	}
	normalized := normalize.Text(term, e.cfg.normalizeOpts)
	return searchWord(ctx, e.base, e.vocab, normalized, mode)
}

// SearchExpr evaluates a compound query expression against the word
// index.
func (e *WordEngine) SearchExpr(ctx context.Context, expr string) ([]uint64, error) {
	if err := e.Flush(); err != nil {
		return nil, err
	}
	parsed, err := query.Parse(expr)
	if err != nil {
		return nil, err
	}
	return query.Eval(parsed, func(t query.Term) ([]uint64, error) {
		normalized := normalize.Text(t.Word, e.cfg.normalizeOpts)
		return searchWord(ctx, e.base, e.vocab, normalized, t.Mode)
	})
}
