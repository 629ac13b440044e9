package engine

import (
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/hillegass/fts/internal/idset"
)

// writeBuffer is the in-memory staging area: pending postings to
// append, tokens pending deletion-rewrite, and the deleted-id set used
// to filter obsolete postings at flush time.
//
// pendingDelete is keyed by a shard-scoped composite key rather than by
// bare token: a token's postings written by different put() calls can
// have landed in different shards, so the deletion-rewrite pass must
// address (shard, token), not token alone, or it would rewrite the
// wrong shard's bucket.
type writeBuffer struct {
	mu            sync.Mutex
	pendingAppend map[string][]byte
	pendingDelete map[string]struct{}
	deletedIDs    *idset.Set
	size          int64
}

func newWriteBuffer(idBuckets int) *writeBuffer {
	return &writeBuffer{
		pendingAppend: make(map[string][]byte),
		pendingDelete: make(map[string]struct{}),
		deletedIDs:    idset.New(idBuckets),
	}
}

// deleteKey composes the shard-scoped key used by pendingDelete.
func deleteKey(shardIdx int, token string) string {
	return strconv.Itoa(shardIdx) + "\x00" + token
}

// parseDeleteKey splits a composite key back into shard index and token.
func parseDeleteKey(k string) (shardIdx int, token string, ok bool) {
	i := strings.IndexByte(k, 0)
	if i < 0 {
		return 0, "", false
	}
	n, err := strconv.Atoi(k[:i])
	if err != nil {
		return 0, "", false
	}
	return n, k[i+1:], true
}

// AppendPosting stages packed (varint id ++ varint offset) bytes to be
// concat-appended to token's shard value at the next flush.
func (w *writeBuffer) AppendPosting(token string, packed []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()
	cur, existed := w.pendingAppend[token]
	next := make([]byte, 0, len(cur)+len(packed))
	next = append(next, cur...)
	next = append(next, packed...)
	w.pendingAppend[token] = next
	w.size += int64(len(packed))
	if !existed {
		w.size += int64(len(token))
	}
}

// MarkDeleteToken stages (shardIdx, token) for the deletion rewrite
// pass.
func (w *writeBuffer) MarkDeleteToken(shardIdx int, token string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	k := deleteKey(shardIdx, token)
	if _, ok := w.pendingDelete[k]; !ok {
		w.pendingDelete[k] = struct{}{}
		w.size += int64(len(k))
	}
}

// MarkDeletedID records id as tombstoned pending the next flush.
func (w *writeBuffer) MarkDeletedID(id uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.deletedIDs.Add(id)
}

// IsDeletedID reports whether id is tombstoned in the buffer.
func (w *writeBuffer) IsDeletedID(id uint64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.deletedIDs.Has(id)
}

// Size returns the approximate byte footprint driving the icsiz flush
// trigger.
func (w *writeBuffer) Size() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.size
}

// Dirty reports whether the buffer has anything a read would need
// flushed first.
func (w *writeBuffer) Dirty() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pendingAppend) > 0 || len(w.pendingDelete) > 0
}

// AppendKeysSorted returns the currently staged append tokens in sorted
// order without removing them, so the flush pipeline can process one at
// a time and cooperatively abort mid-pass.
func (w *writeBuffer) AppendKeysSorted() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return sortedKeys(w.pendingAppend)
}

// TakeAppendValue returns the staged value for an append key.
func (w *writeBuffer) TakeAppendValue(key string) []byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pendingAppend[key]
}

// RemoveAppend drops key once its bytes have been durably written.
func (w *writeBuffer) RemoveAppend(key string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if v, ok := w.pendingAppend[key]; ok {
		w.size -= int64(len(key) + len(v))
		delete(w.pendingAppend, key)
	}
}

// DeleteKeysSorted returns the currently staged (shard,token) deletion
// keys in sorted order without removing them.
func (w *writeBuffer) DeleteKeysSorted() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return sortedKeysSet(w.pendingDelete)
}

// RemoveDelete drops a deletion key once its shard's bucket has been
// rewritten.
func (w *writeBuffer) RemoveDelete(key string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.pendingDelete[key]; ok {
		w.size -= int64(len(key))
		delete(w.pendingDelete, key)
	}
}

func (w *writeBuffer) clearDeletedIDs() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.deletedIDs.Reset()
}

func sortedKeys(m map[string][]byte) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedKeysSet(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
