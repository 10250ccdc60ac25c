// Package heap is the data store the index addresses point into. Values are
// appended under increasing addresses and kept snappy-compressed in Pebble.
package heap

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
	"github.com/golang/snappy"
)

var ErrNotFound = errors.New("heap: no value at address")

const recordPrefix = 'r'

var nextAddrKey = []byte("m/next")

type Heap struct {
	db   *pebble.DB
	next int64
}

// Open opens (or creates) a heap at dir. A nil opts uses Pebble's defaults.
func Open(dir string, opts *pebble.Options) (*Heap, error) {
	if opts == nil {
		opts = &pebble.Options{}
	}
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, errors.Wrap(err, "heap: open")
	}
	h := &Heap{db: db, next: 1}

	val, closer, err := db.Get(nextAddrKey)
	switch {
	case errors.Is(err, pebble.ErrNotFound):
	case err != nil:
		db.Close()
		return nil, errors.Wrap(err, "heap: read address counter")
	default:
		h.next = int64(binary.BigEndian.Uint64(val))
		closer.Close()
	}
	return h, nil
}

func (h *Heap) Close() error { return h.db.Close() }

// Put stores value and returns its address. The value and the advanced
// address counter are committed together.
func (h *Heap) Put(value []byte) (int64, error) {
	addr := h.next
	b := h.db.NewBatch()
	defer b.Close()
	if err := b.Set(recordKey(addr), snappy.Encode(nil, value), nil); err != nil {
		return 0, errors.Wrap(err, "heap: put")
	}
	if err := b.Set(nextAddrKey, encodeAddr(addr+1), nil); err != nil {
		return 0, errors.Wrap(err, "heap: put")
	}
	if err := b.Commit(pebble.NoSync); err != nil {
		return 0, errors.Wrap(err, "heap: put")
	}
	h.next = addr + 1
	return addr, nil
}

// Get returns a copy of the value stored at addr.
func (h *Heap) Get(addr int64) ([]byte, error) {
	val, closer, err := h.db.Get(recordKey(addr))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, errors.Wrapf(ErrNotFound, "address %d", addr)
	}
	if err != nil {
		return nil, errors.Wrap(err, "heap: get")
	}
	defer closer.Close()
	out, err := snappy.Decode(nil, val)
	if err != nil {
		return nil, errors.Wrapf(err, "heap: decode address %d", addr)
	}
	return out, nil
}

func (h *Heap) Delete(addr int64) error {
	if _, err := h.Get(addr); err != nil {
		return err
	}
	return errors.Wrap(h.db.Delete(recordKey(addr), pebble.NoSync), "heap: delete")
}

// Count returns the number of stored values.
func (h *Heap) Count() (int, error) {
	iter, err := h.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte{recordPrefix},
		UpperBound: []byte{recordPrefix + 1},
	})
	if err != nil {
		return 0, errors.Wrap(err, "heap: count")
	}
	n := 0
	for valid := iter.First(); valid; valid = iter.Next() {
		n++
	}
	return n, iter.Close()
}

// NextAddr is the address the next Put will return.
func (h *Heap) NextAddr() int64 { return h.next }

func recordKey(addr int64) []byte {
	k := make([]byte, 9)
	k[0] = recordPrefix
	binary.BigEndian.PutUint64(k[1:], uint64(addr))
	return k
}

func encodeAddr(addr int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(addr))
	return b
}
