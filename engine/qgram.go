package engine

import (
	"context"

	"github.com/hillegass/fts/internal/normalize"
	"github.com/hillegass/fts/internal/primary"
	"github.com/hillegass/fts/internal/tokenize"
	"github.com/hillegass/fts/internal/varint"
	"github.com/hillegass/fts/query"
)

// QGramEngine is the q-gram-indexed variant: every record's normalized
// text is windowed into overlapping 2-codepoint tokens, which makes
// substring, prefix, suffix, and full-text search all expressible as
// chained window lookups.
type QGramEngine struct {
	*base
}

// OpenQGram opens or creates a q-gram index at dir.
func OpenQGram(dir string, mode Mode, opts ...Option) (*QGramEngine, error) {
	b, err := openBase(dir, mode, MagicQGram, opts)
	if err != nil {
		return nil, err
	}
	e := &QGramEngine{base: b}
	e.Start()
	return e, nil
}

// Put indexes id under text, replacing any prior content for id: Put
// supersedes, it does not accumulate.
func (e *QGramEngine) Put(id uint64, text string) error {
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
	shardIdx, err := e.shardMgr.EnsureCurrent()
	if err != nil {
		return newErr(CodeWrite, err.Error())
	}

	for _, p := range tokenize.QGram(normalized) {
		packed := varint.AppendUint64(nil, id)
		packed = varint.AppendUint32(packed, p.Offset)
		e.buf.AppendPosting(p.Token, packed)
	}

	val := primary.EncodeQGramValue(normalized, shardIdx)
	if err := e.primary.Bucket(recordsBucket).Put(idKey(id), val); err != nil {
		return newErr(CodeWrite, err.Error())
	}
	e.maybeAutoFlush()
	return nil
}

// Remove deletes id's postings and primary record. It fails with
// ErrNoRecord if id is not currently indexed.
func (e *QGramEngine) Remove(id uint64) error {
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
func (e *QGramEngine) removeLocked(id uint64, mustExist bool) (bool, error) {
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
	text, shardIdx, err := primary.DecodeQGramValue(val)
	if err != nil {
		return false, newErr(CodeRecordHeader, err.Error())
	}
	seen := make(map[string]struct{})
	for _, p := range tokenize.QGram(text) {
		if _, ok := seen[p.Token]; ok {
			continue
		}
		seen[p.Token] = struct{}{}
		e.buf.MarkDeleteToken(shardIdx, p.Token)
	}
	e.buf.MarkDeletedID(id)
	if err := e.primary.Bucket(recordsBucket).Delete(idKey(id)); err != nil {
		return false, newErr(CodeWrite, err.Error())
	}
	return true, nil
}

// Get returns the normalized text stored for id.
func (e *QGramEngine) Get(id uint64) (string, bool, error) {
	val, found, err := e.primary.Bucket(recordsBucket).Get(idKey(id))
	if err != nil {
		return "", false, newErr(CodeRead, err.Error())
	}
	if !found {
		return "", false, nil
	}
	text, _, err := primary.DecodeQGramValue(val)
	if err != nil {
		return "", false, newErr(CodeRecordHeader, err.Error())
	}
	return text, true, nil
}

// IterNext returns the next (id, text) pair, done=true once exhausted.
func (e *QGramEngine) IterNext() (id uint64, text string, done bool, err error) {
	id, raw, done, err := e.iterNextRaw()
	if err != nil || done {
		return id, "", done, err
	}
	text, _, decErr := primary.DecodeQGramValue(raw)
	if decErr != nil {
		return 0, "", false, newErr(CodeRecordHeader, decErr.Error())
	}
	return id, text, false, nil
}

// Search runs a single search over term using mode via per-mode
// chained q-gram window lookups.
func (e *QGramEngine) Search(ctx context.Context, term string, mode query.Mode) ([]uint64, error) {
	if err := e.Flush(); err != nil {
		return nil, err
	}
	normalized := normalize.Text(term, e.cfg.normalizeOpts)
	return searchQGram(ctx, e.base, normalized, mode)
}

// SearchExpr evaluates a compound query expression against the
// q-gram index.
func (e *QGramEngine) SearchExpr(ctx context.Context, expr string) ([]uint64, error) {
	if err := e.Flush(); err != nil {
		return nil, err
	}
	parsed, err := query.Parse(expr)
	if err != nil {
		return nil, err
	}
	return query.Eval(parsed, func(t query.Term) ([]uint64, error) {
		normalized := normalize.Text(t.Word, e.cfg.normalizeOpts)
		return searchQGram(ctx, e.base, normalized, t.Mode)
	})
}
