package engine

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hillegass/fts/internal/kv"
	"github.com/hillegass/fts/internal/primary"
	"github.com/hillegass/fts/internal/shard"
	"github.com/hillegass/fts/internal/varint"
)

const recordsBucket = "records"

// base is the shared machinery behind QGramEngine and WordEngine:
// Open/Close lifecycle, the write buffer and its flush pipeline, the
// background sync goroutine, and the last-error accessor: stateLk-
// guarded open/running bools, closed/closing/flushNow channels, run()'s
// ticker loop, and the LastError()/setErr() pair.
type base struct {
	dir    string
	magic  byte
	writer bool
	cfg    config
	log    *zap.SugaredLogger

	primary  *kv.Store
	shards   *kv.Store
	shardMgr *shard.Manager
	buf      *writeBuffer

	// onTokensAdded is the word variant's vocabulary-insertion hook,
	// called with the sorted set of newly-appended tokens at the start
	// of every flush's storing-tokens phase. Left nil for the q-gram
	// variant, which carries no vocabulary.
	onTokensAdded func(tokens []string) error

	stateLk sync.RWMutex
	open    bool
	running bool
	err     error

	flushMu sync.Mutex

	closed   chan struct{}
	closing  chan struct{}
	flushNow chan struct{}

	iterMu      sync.Mutex
	iterStarted bool
	iterDone    bool
	iterLastKey []byte
}

func openBase(dir string, mode Mode, magic byte, opts []Option) (*base, error) {
	cfg := defaultConfig()
	cfg.apply(opts)

	writer := mode.has(ModeWriter)
	readOnly := !writer

	if mode.has(ModeCreate) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, newErr(CodeMkdir, err.Error())
		}
	}
	if mode.has(ModeTruncate) {
		for _, name := range []string{"primary.db", "shards.db"} {
			_ = os.Remove(filepath.Join(dir, name))
		}
	}

	log, err := newLogger(cfg.devLogger)
	if err != nil {
		return nil, fmt.Errorf("engine: logger: %w", err)
	}

	primaryStore, err := kv.Open(filepath.Join(dir, "primary.db"), readOnly, mode.has(ModeNoLock), mode.has(ModeLockNonblock))
	if err != nil {
		return nil, newErr(CodeOpen, err.Error())
	}
	shardStore, err := kv.Open(filepath.Join(dir, "shards.db"), readOnly, mode.has(ModeNoLock), mode.has(ModeLockNonblock))
	if err != nil {
		primaryStore.Close()
		return nil, newErr(CodeOpen, err.Error())
	}

	if writer {
		if err := primaryStore.EnsureBucket(recordsBucket); err != nil {
			primaryStore.Close()
			shardStore.Close()
			return nil, newErr(CodeOpen, err.Error())
		}
	}

	shardMgr, err := shard.Open(shardStore, cfg.shardUnitSize)
	if err != nil {
		primaryStore.Close()
		shardStore.Close()
		return nil, newErr(CodeOpen, err.Error())
	}

	b := &base{
		dir:      dir,
		magic:    magic,
		writer:   writer,
		cfg:      cfg,
		log:      log,
		primary:  primaryStore,
		shards:   shardStore,
		shardMgr: shardMgr,
		buf:      newWriteBuffer(int(bitmapSize)),
		closed:   make(chan struct{}),
		closing:  make(chan struct{}),
		flushNow: make(chan struct{}, 1),
	}

	hdr, found, err := b.readHeader()
	if err != nil {
		b.primary.Close()
		b.shards.Close()
		return nil, err
	}
	switch {
	case found && hdr.magic != magic:
		b.primary.Close()
		b.shards.Close()
		return nil, ErrBadMagic
	case !found && writer:
		hdr = header{
			magic:          magic,
			shardCount:     0,
			tuningOpts:     0,
			expectedTokens: cfg.expectedTokens,
			shardUnitSize:  cfg.shardUnitSize,
		}
		if err := b.writeHeader(hdr); err != nil {
			b.primary.Close()
			b.shards.Close()
			return nil, err
		}
	case !found && !writer:
		b.primary.Close()
		b.shards.Close()
		return nil, newErr(CodeNoFile, "index has no header and was opened read-only")
	}

	b.open = true
	return b, nil
}

func newLogger(dev bool) (*zap.SugaredLogger, error) {
	var l *zap.Logger
	var err error
	if dev {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	return l.Sugar(), nil
}

func (b *base) readHeader() (header, bool, error) {
	val, found, err := b.primary.Bucket(recordsBucket).Get(headerKey)
	if err != nil {
		return header{}, false, newErr(CodeRead, err.Error())
	}
	if !found {
		return header{}, false, nil
	}
	hdr, err := decodeHeader(val)
	if err != nil {
		return header{}, false, newErr(CodeMetadata, err.Error())
	}
	return hdr, true, nil
}

func (b *base) writeHeader(h header) error {
	if err := b.primary.Bucket(recordsBucket).Put(headerKey, encodeHeader(h)); err != nil {
		return newErr(CodeWrite, err.Error())
	}
	return nil
}

// SetTuning applies tcqdbtune/tcwdbtune-style settings after Open but
// before any record has been written, mirroring the original's
// "fails if tuned after use" rule.
func (b *base) SetTuning(t TuningOpts) error {
	if err := b.checkWriter(); err != nil {
		return err
	}
	n, err := b.RecordCount()
	if err != nil {
		return err
	}
	if n > 0 || b.buf.Dirty() || b.shardMgr.Count() > 1 {
		return ErrTuneAfterOpen
	}
	hdr, found, err := b.readHeader()
	if err != nil {
		return err
	}
	if !found {
		hdr = header{magic: b.magic, expectedTokens: b.cfg.expectedTokens, shardUnitSize: b.cfg.shardUnitSize}
	}
	if t.ExpectedTokenCount > 0 {
		b.cfg.expectedTokens = t.ExpectedTokenCount
		hdr.expectedTokens = t.ExpectedTokenCount
	}
	if t.ShardUnitSize > 0 {
		b.cfg.shardUnitSize = t.ShardUnitSize
		hdr.shardUnitSize = t.ShardUnitSize
		b.shardMgr.SetUnitSize(t.ShardUnitSize)
	}
	return b.writeHeader(hdr)
}

// Start launches the background sync goroutine.
func (b *base) Start() {
	b.stateLk.Lock()
	running := b.running
	b.running = true
	b.stateLk.Unlock()
	if !running {
		go b.run()
	}
}

func (b *base) run() {
	defer close(b.closed)
	d := time.NewTicker(b.cfg.syncInterval)
	defer d.Stop()
	for {
		select {
		case <-b.flushNow:
			if err := b.Flush(); err != nil {
				b.setErr(err)
			}
		case <-b.closing:
			return
		case <-d.C:
			select {
			case b.flushNow <- struct{}{}:
			default:
				// a flush is already pending
			}
		}
	}
}

// requestFlush signals the background goroutine without blocking the
// caller, used once the buffer crosses the icsiz threshold.
func (b *base) requestFlush() {
	select {
	case b.flushNow <- struct{}{}:
	default:
	}
}

func (b *base) maybeAutoFlush() {
	if b.buf.Size() >= b.cfg.bufferBytes {
		b.requestFlush()
	}
}

// Close stops the background goroutine (if running), flushes, and
// closes both database files.
func (b *base) Close() error {
	b.stateLk.Lock()
	if !b.open {
		b.stateLk.Unlock()
		return nil
	}
	b.open = false
	running := b.running
	b.running = false
	b.stateLk.Unlock()

	if running {
		close(b.closing)
		<-b.closed
	}

	cerr := b.LastError()
	if b.writer {
		if err := b.Flush(); err != nil {
			cerr = err
		}
		if err := b.primary.Sync(b.cfg.syncOnClose); err != nil {
			cerr = newErr(CodeWrite, err.Error())
		}
		if err := b.shards.Sync(b.cfg.syncOnClose); err != nil {
			cerr = newErr(CodeWrite, err.Error())
		}
	}
	if err := b.primary.Close(); err != nil {
		cerr = newErr(CodeClose, err.Error())
	}
	if err := b.shards.Close(); err != nil {
		cerr = newErr(CodeClose, err.Error())
	}
	return cerr
}

func (b *base) LastError() error {
	b.stateLk.RLock()
	defer b.stateLk.RUnlock()
	return b.err
}

func (b *base) setErr(err error) {
	b.stateLk.Lock()
	b.err = err
	b.stateLk.Unlock()
}

func (b *base) checkWriter() error {
	if !b.writer {
		return ErrReadOnly
	}
	return nil
}

// Flush runs the write-buffer flush pipeline: sorted additions are
// appended to the current shard, sorted deletions are rewritten out of
// their owning shard, the deleted-id set is cleared, both databases are
// synced, and the shard manager is given a chance to cycle. Each
// declared phase is offered to the configured progress callback; a
// false return aborts the flush, leaving whatever has not yet been
// durably written still staged in the buffer.
func (b *base) Flush() error {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()
	return b.flushLocked()
}

// errFlushAborted is returned by the flush phases when the progress
// callback declines a phase; flushLocked stops there and reports success.
var errFlushAborted = errors.New("engine: flush aborted by progress callback")

func (b *base) flushLocked() error {
	if !b.cfg.callProgress(PhaseStarted) {
		return nil
	}
	if err := b.flushAdditions(); err == errFlushAborted {
		return nil
	} else if err != nil {
		return err
	}
	if err := b.flushDeletions(); err == errFlushAborted {
		return nil
	} else if err != nil {
		return err
	}
	b.buf.clearDeletedIDs()

	if !b.cfg.callProgress(PhaseSynchronizingDatabase) {
		return nil
	}
	if err := b.primary.Sync(0); err != nil {
		return newErr(CodeWrite, err.Error())
	}
	if err := b.shards.Sync(0); err != nil {
		return newErr(CodeWrite, err.Error())
	}
	if err := b.shardMgr.MaybeCycle(); err != nil {
		return newErr(CodeMisc, err.Error())
	}
	b.cfg.callProgress(PhaseFinished)
	return nil
}

func (b *base) flushAdditions() error {
	keys := b.buf.AppendKeysSorted()
	if !b.cfg.callProgress(PhaseGettingTokens) {
		return errFlushAborted
	}
	if !b.cfg.callProgress(PhaseSortingTokens) {
		return errFlushAborted
	}
	if b.onTokensAdded != nil && len(keys) > 0 {
		if err := b.onTokensAdded(keys); err != nil {
			return err
		}
	}
	if !b.cfg.callProgress(PhaseStoringTokens) {
		return errFlushAborted
	}
	shardIdx, err := b.shardMgr.EnsureCurrent()
	if err != nil {
		return newErr(CodeWrite, err.Error())
	}
	bucket := b.shardMgr.Bucket(shardIdx)
	for _, k := range keys {
		val := b.buf.TakeAppendValue(k)
		if err := bucket.PutCat([]byte(k), val); err != nil {
			return newErr(CodeWrite, err.Error())
		}
		b.buf.RemoveAppend(k)
	}
	return nil
}

func (b *base) flushDeletions() error {
	keys := b.buf.DeleteKeysSorted()
	if !b.cfg.callProgress(PhaseGettingDeletedTokens) {
		return errFlushAborted
	}
	if !b.cfg.callProgress(PhaseSortingDeletedTokens) {
		return errFlushAborted
	}
	if !b.cfg.callProgress(PhaseStoringDeletedTokens) {
		return errFlushAborted
	}
	for _, k := range keys {
		shardIdx, token, ok := parseDeleteKey(k)
		if !ok {
			b.buf.RemoveDelete(k)
			continue
		}
		bucket := b.shardMgr.Bucket(shardIdx)
		val, found, err := bucket.Get([]byte(token))
		if err != nil {
			return newErr(CodeRead, err.Error())
		}
		if found {
			kept := filterPostings(val, b.buf.IsDeletedID)
			if len(kept) == 0 {
				if err := bucket.Delete([]byte(token)); err != nil {
					return newErr(CodeWrite, err.Error())
				}
			} else if err := bucket.Put([]byte(token), kept); err != nil {
				return newErr(CodeWrite, err.Error())
			}
		}
		b.buf.RemoveDelete(k)
	}
	return nil
}

// filterPostings decodes a shard value as a run of varint(id)||varint(offset)
// pairs and drops every pair whose id satisfies isDeleted, preserving the
// order of the pairs that remain.
func filterPostings(data []byte, isDeleted func(uint64) bool) []byte {
	out := make([]byte, 0, len(data))
	for len(data) > 0 {
		id, n := varint.Uint64(data)
		if n <= 0 {
			break
		}
		data = data[n:]
		_, n2 := varint.Uint32(data)
		if n2 <= 0 {
			break
		}
		pair := data[:n2]
		data = data[n2:]
		if !isDeleted(id) {
			out = varint.AppendUint64(out, id)
			out = append(out, pair...)
		}
	}
	return out
}

// Sync forces an immediate flush and then asks both databases to sync
// at level (memsync: 0=cache, 1=buffer->file, 2=fsync).
func (b *base) Sync(level int) error {
	if err := b.checkWriter(); err != nil {
		return err
	}
	b.flushMu.Lock()
	err := b.flushLocked()
	b.flushMu.Unlock()
	if err != nil {
		return err
	}
	if err := b.primary.Sync(level); err != nil {
		return newErr(CodeWrite, err.Error())
	}
	if err := b.shards.Sync(level); err != nil {
		return newErr(CodeWrite, err.Error())
	}
	return nil
}

// Vanish empties every record and shard bucket without deleting the
// shard files themselves: shard files are never removed, only
// truncated-and-recreated.
func (b *base) Vanish() error {
	if err := b.checkWriter(); err != nil {
		return err
	}
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	hdr, _, err := b.readHeader()
	if err != nil {
		return err
	}
	if err := b.primary.DropBucket(recordsBucket); err != nil {
		return newErr(CodeWrite, err.Error())
	}
	if err := b.writeHeader(hdr); err != nil {
		return err
	}
	for i := 0; i < b.shardMgr.Count(); i++ {
		if err := b.shards.DropBucket(primary.ShardFileName(i)); err != nil {
			return newErr(CodeWrite, err.Error())
		}
	}
	mgr, err := shard.Open(b.shards, b.cfg.shardUnitSize)
	if err != nil {
		return newErr(CodeMisc, err.Error())
	}
	b.shardMgr = mgr
	b.buf = newWriteBuffer(int(bitmapSize))
	return nil
}

// Optimize compacts both database files in place, reclaiming the space
// left behind by deleted/rewritten postings. It forces a flush first so
// the compaction sees a fully up to date tree.
func (b *base) Optimize() error {
	if err := b.checkWriter(); err != nil {
		return err
	}
	if err := b.Sync(1); err != nil {
		return err
	}
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	if err := compactInPlace(&b.primary); err != nil {
		return newErr(CodeMisc, err.Error())
	}
	if err := compactInPlace(&b.shards); err != nil {
		return newErr(CodeMisc, err.Error())
	}
	mgr, err := shard.Open(b.shards, b.cfg.shardUnitSize)
	if err != nil {
		return newErr(CodeMisc, err.Error())
	}
	b.shardMgr = mgr
	return nil
}

// compactInPlace rewrites *store into a fresh compacted file at the same
// path and swaps the handle, via a tmp-file-then-rename swap.
func compactInPlace(store **kv.Store) error {
	path := (*store).Path()
	tmp := path + ".compact"
	_ = os.Remove(tmp)
	if err := (*store).CompactTo(tmp); err != nil {
		return err
	}
	if err := (*store).Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return err
	}
	reopened, err := kv.Open(path, false, false, false)
	if err != nil {
		return err
	}
	*store = reopened
	return nil
}

// Copy snapshots the engine's two database files into dstDir after
// forcing a flush.
func (b *base) Copy(dstDir string) error {
	if err := b.Sync(1); err != nil {
		return err
	}
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return newErr(CodeMkdir, err.Error())
	}
	for _, name := range []string{"primary.db", "shards.db"} {
		if err := copyFile(filepath.Join(b.dir, name), filepath.Join(dstDir, name)); err != nil {
			return newErr(CodeWrite, err.Error())
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}

// IterInit resets the record iterator to the start of the primary
// bucket.
func (b *base) IterInit() {
	b.iterMu.Lock()
	b.iterStarted = false
	b.iterDone = false
	b.iterLastKey = nil
	b.iterMu.Unlock()
}

// iterNextRaw advances the cursor and returns the next record's id and
// raw (variant-encoded) primary value, skipping the reserved header key.
func (b *base) iterNextRaw() (id uint64, raw []byte, done bool, err error) {
	b.iterMu.Lock()
	defer b.iterMu.Unlock()
	if b.iterDone {
		return 0, nil, true, nil
	}

	seek := headerKey
	if b.iterStarted {
		seek = b.iterLastKey
	}
	var gotKey, gotVal []byte
	walkErr := b.primary.Bucket(recordsBucket).WalkFrom(seek, func(k, v []byte) (bool, error) {
		if bytes.Equal(k, headerKey) {
			return false, nil
		}
		if b.iterStarted && bytes.Equal(k, b.iterLastKey) {
			return false, nil
		}
		gotKey = append([]byte(nil), k...)
		gotVal = append([]byte(nil), v...)
		return true, nil
	})
	if walkErr != nil {
		return 0, nil, false, newErr(CodeRead, walkErr.Error())
	}
	if gotKey == nil {
		b.iterDone = true
		return 0, nil, true, nil
	}
	b.iterStarted = true
	b.iterLastKey = gotKey
	return keyToID(gotKey), gotVal, false, nil
}

// RecordCount reports the number of live records, i.e. the primary
// bucket's key count minus the one reserved header key.
func (b *base) RecordCount() (int, error) {
	n, err := b.primary.Bucket(recordsBucket).KeyCount()
	if err != nil {
		return 0, newErr(CodeRead, err.Error())
	}
	if n > 0 {
		n--
	}
	return n, nil
}

// ShardSizes reports the approximate on-disk footprint of each opened
// shard.
func (b *base) ShardSizes() ([]int64, error) {
	sizes, err := b.shardMgr.Sizes()
	if err != nil {
		return nil, newErr(CodeRead, err.Error())
	}
	return sizes, nil
}

// DropPageCacheHint is a documented no-op: bbolt's mmap'd page cache has
// no user-addressable per-database eviction call, so the cache-clear
// step of the shard-cycling rule has nothing to do here (see DESIGN.md's
// Open Question decisions).
func (b *base) DropPageCacheHint() {}
