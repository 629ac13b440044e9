// Package kv adapts go.etcd.io/bbolt to the ordered key-value primitives
// the engine needs of its backing store: get/put/out (delete), put-keep
// (insert-if-absent), put-cat (append to existing value), a forward
// cursor (first/next/key/value), and a durable memsync with levels
// 0=cache, 1=buffer->file, 2=fsync. See DESIGN.md for why bbolt was
// chosen over hand-rolling a B+Tree.
package kv

import (
	"bytes"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

// Store owns one bbolt database file and the buckets opened within it.
type Store struct {
	db       *bbolt.DB
	readOnly bool
}

// Open opens (creating if needed, unless readOnly) the bbolt file at
// path.
func Open(path string, readOnly bool, noLock, lockNonblock bool) (*Store, error) {
	opts := &bbolt.Options{
		ReadOnly:       readOnly,
		NoGrowSync:     false,
		NoFreelistSync: true,
	}
	_ = noLock // bbolt has no "no flock" switch exposed in this version; accepted for open-mode bitset parity and otherwise ignored
	if lockNonblock {
		opts.Timeout = 1 * time.Nanosecond
	}
	db, err := bbolt.Open(path, 0o644, opts)
	if err != nil {
		return nil, fmt.Errorf("kv: open %s: %w", path, err)
	}
	return &Store{db: db, readOnly: readOnly}, nil
}

// Close closes the underlying database file.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Sync implements the memsync(level) primitive: level 0 is a
// cache-only no-op (bbolt always keeps its mmap resident, so there is no
// weaker level to hit), and levels 1 and 2 both call DB.Sync(), which
// fdatasyncs the database file. bbolt commits are always fsync'd unless
// NoSync is set, so levels 1 and 2 are indistinguishable here.
func (s *Store) Sync(level int) error {
	if level <= 0 {
		return nil
	}
	return s.db.Sync()
}

// EnsureBucket creates the named top-level bucket if it does not exist.
func (s *Store) EnsureBucket(name string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(name))
		return err
	})
}

// DropBucket deletes all keys in the named bucket but keeps its name
// reserved by recreating it empty, matching the "shard files are never
// deleted" rule at the bucket level.
func (s *Store) DropBucket(name string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte(name)) == nil {
			return nil
		}
		if err := tx.DeleteBucket([]byte(name)); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists([]byte(name))
		return err
	})
}

// CompactTo rewrites the database into a fresh file at dstPath with its
// free pages reclaimed, implementing the optimize/defragment primitive
// (bbolt never shrinks its backing file on its own; Compact is its
// documented answer). The destination must not already exist.
func (s *Store) CompactTo(dstPath string) error {
	dst, err := bbolt.Open(dstPath, 0o644, nil)
	if err != nil {
		return fmt.Errorf("kv: open compaction target %s: %w", dstPath, err)
	}
	defer dst.Close()
	return bbolt.Compact(dst, s.db, 0)
}

// Path returns the backing file's path, for callers that need to
// replace a store's file on disk (e.g. after CompactTo).
func (s *Store) Path() string {
	return s.db.Path()
}

// BucketNames lists every top-level bucket currently present.
func (s *Store) BucketNames() ([]string, error) {
	var names []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bbolt.Bucket) error {
			names = append(names, string(name))
			return nil
		})
	})
	return names, err
}

// Bucket is a handle to one named bucket, used for point operations.
// Each method opens its own short transaction; a cursor walk across
// many keys runs inside one read transaction via Walk, WalkFrom or
// WalkPrefix.
type Bucket struct {
	store *Store
	name  []byte
}

// Bucket returns a handle to the named bucket (must already exist).
func (s *Store) Bucket(name string) *Bucket {
	return &Bucket{store: s, name: []byte(name)}
}

// Get returns the value for key, or found=false if absent.
func (b *Bucket) Get(key []byte) (value []byte, found bool, err error) {
	err = b.store.db.View(func(tx *bbolt.Tx) error {
		bk := tx.Bucket(b.name)
		if bk == nil {
			return fmt.Errorf("kv: no such bucket %q", b.name)
		}
		v := bk.Get(key)
		if v != nil {
			value = append([]byte(nil), v...)
			found = true
		}
		return nil
	})
	return value, found, err
}

// Put unconditionally sets key to value.
func (b *Bucket) Put(key, value []byte) error {
	return b.store.db.Update(func(tx *bbolt.Tx) error {
		bk := tx.Bucket(b.name)
		if bk == nil {
			return fmt.Errorf("kv: no such bucket %q", b.name)
		}
		return bk.Put(key, value)
	})
}

// PutKeep inserts key=value only if key is absent, implementing the
// put-keep primitive. inserted is false if key was already present.
func (b *Bucket) PutKeep(key, value []byte) (inserted bool, err error) {
	err = b.store.db.Update(func(tx *bbolt.Tx) error {
		bk := tx.Bucket(b.name)
		if bk == nil {
			return fmt.Errorf("kv: no such bucket %q", b.name)
		}
		if bk.Get(key) != nil {
			return nil
		}
		inserted = true
		return bk.Put(key, value)
	})
	return inserted, err
}

// PutCat appends appendage to the existing value for key (or creates it),
// implementing the put-cat / concat-value primitive the write-buffer
// flush pipeline uses for posting-list appends.
func (b *Bucket) PutCat(key, appendage []byte) error {
	return b.store.db.Update(func(tx *bbolt.Tx) error {
		bk := tx.Bucket(b.name)
		if bk == nil {
			return fmt.Errorf("kv: no such bucket %q", b.name)
		}
		cur := bk.Get(key)
		next := make([]byte, 0, len(cur)+len(appendage))
		next = append(next, cur...)
		next = append(next, appendage...)
		return bk.Put(key, next)
	})
}

// Delete removes key, implementing the "out" primitive.
func (b *Bucket) Delete(key []byte) error {
	return b.store.db.Update(func(tx *bbolt.Tx) error {
		bk := tx.Bucket(b.name)
		if bk == nil {
			return fmt.Errorf("kv: no such bucket %q", b.name)
		}
		return bk.Delete(key)
	})
}

// ByteSize approximates the on-disk footprint of the bucket, used by
// the shard-cycling rule in place of an OS file size stat.
func (b *Bucket) ByteSize() (int64, error) {
	var size int64
	err := b.store.db.View(func(tx *bbolt.Tx) error {
		bk := tx.Bucket(b.name)
		if bk == nil {
			return fmt.Errorf("kv: no such bucket %q", b.name)
		}
		st := bk.Stats()
		size = int64(st.LeafInuse + st.BranchInuse)
		return nil
	})
	return size, err
}

// WalkFunc is called for each key/value pair during a forward walk;
// returning stop=true ends the walk early.
type WalkFunc func(key, value []byte) (stop bool, err error)

// Walk performs a forward cursor walk over the whole bucket, starting at
// the first key, implementing the "first/next" half of the cursor
// primitive.
func (b *Bucket) Walk(fn WalkFunc) error {
	return b.store.db.View(func(tx *bbolt.Tx) error {
		bk := tx.Bucket(b.name)
		if bk == nil {
			return fmt.Errorf("kv: no such bucket %q", b.name)
		}
		c := bk.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			stop, err := fn(k, v)
			if err != nil {
				return err
			}
			if stop {
				return nil
			}
		}
		return nil
	})
}

// WalkFrom performs a forward cursor walk starting at the first key >=
// seek. It is the entry point of WalkPrefix (single-codepoint q-gram
// scans, word-prefix vocabulary expansion) and of the record iterator.
func (b *Bucket) WalkFrom(seek []byte, fn WalkFunc) error {
	return b.store.db.View(func(tx *bbolt.Tx) error {
		bk := tx.Bucket(b.name)
		if bk == nil {
			return fmt.Errorf("kv: no such bucket %q", b.name)
		}
		c := bk.Cursor()
		for k, v := c.Seek(seek); k != nil; k, v = c.Next() {
			stop, err := fn(k, v)
			if err != nil {
				return err
			}
			if stop {
				return nil
			}
		}
		return nil
	})
}

// WalkPrefix walks every key with the given prefix, implementing the
// forward-match-keys primitive used for word-prefix expansion.
func (b *Bucket) WalkPrefix(prefix []byte, fn WalkFunc) error {
	return b.WalkFrom(prefix, func(k, v []byte) (bool, error) {
		if !bytes.HasPrefix(k, prefix) {
			return true, nil
		}
		return fn(k, v)
	})
}

// KeyCount reports the number of keys currently in the bucket.
func (b *Bucket) KeyCount() (int, error) {
	var n int
	err := b.store.db.View(func(tx *bbolt.Tx) error {
		bk := tx.Bucket(b.name)
		if bk == nil {
			return fmt.Errorf("kv: no such bucket %q", b.name)
		}
		n = bk.Stats().KeyN
		return nil
	})
	return n, err
}
