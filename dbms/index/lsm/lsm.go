// Package lsm wraps Pebble (CockroachDB's LSM storage engine) behind the
// common Index interface so it can be benchmarked alongside the disk B-tree.
package lsm

import (
	"encoding/binary"

	"github.com/btree-query-bench/slotindex/dbms/index"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
)

var _ index.Index = (*LSM)(nil)

type LSM struct {
	db *pebble.DB
}

// DefaultOptions returns the tuning the benchmark runs Pebble with.
func DefaultOptions() *pebble.Options {
	return &pebble.Options{
		MemTableSize: 16 << 20,
		// Keep memtables around so one can be flushed while another is active.
		MemTableStopWritesThreshold: 4,
		// L0 compaction trigger.
		L0CompactionThreshold: 4,
		L0StopWritesThreshold: 12,
	}
}

// Open opens (or creates) a Pebble database at dir. A nil opts uses
// DefaultOptions.
func Open(dir string, opts *pebble.Options) (*LSM, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, errors.Wrap(err, "lsm: open")
	}
	return &LSM{db: db}, nil
}

// Close cleanly shuts down Pebble, flushing any in-memory state.
func (l *LSM) Close() error {
	return l.db.Close()
}

// Insert stores or replaces the address for key.
func (l *LSM) Insert(key, addr int64) error {
	if err := l.db.Set(encodeKey(key), encodeKey(addr), pebble.NoSync); err != nil {
		return errors.Wrap(err, "lsm: insert")
	}
	return nil
}

func (l *LSM) Search(key int64) (int64, error) {
	val, closer, err := l.db.Get(encodeKey(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, errors.Wrapf(index.ErrNotFound, "key %d", key)
	}
	if err != nil {
		return 0, errors.Wrap(err, "lsm: get")
	}
	defer closer.Close()
	if len(val) != 8 {
		return 0, errors.Newf("lsm: value for key %d has %d bytes", key, len(val))
	}
	return decodeKey(val), nil
}

// Delete removes key. Pebble deletes blindly, so the key is looked up first
// to report absent keys like the other indexes do.
func (l *LSM) Delete(key int64) error {
	if _, err := l.Search(key); err != nil {
		return err
	}
	if err := l.db.Delete(encodeKey(key), pebble.NoSync); err != nil {
		return errors.Wrap(err, "lsm: delete")
	}
	return nil
}

// Count iterates the whole keyspace.
func (l *LSM) Count() (int, error) {
	iter, err := l.db.NewIter(nil)
	if err != nil {
		return 0, errors.Wrap(err, "lsm: count")
	}
	n := 0
	for valid := iter.First(); valid; valid = iter.Next() {
		n++
	}
	return n, iter.Close()
}

// encodeKey encodes an int64 as a big-endian 8-byte slice.
// Big-endian preserves sort order for non-negative keys.
func encodeKey(k int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(k))
	return b
}

func decodeKey(b []byte) int64 {
	return int64(binary.BigEndian.Uint64(b))
}
