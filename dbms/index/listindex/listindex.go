// Package listindex is an unsorted in-memory list behind the Index
// interface. It is the baseline every other index is measured against and
// the reference the tests compare them to.
package listindex

import (
	"slices"

	"github.com/btree-query-bench/slotindex/dbms/index"
	"github.com/cockroachdb/errors"
)

var _ index.Index = (*ListIndex)(nil)

type Entry struct {
	Key  int64
	Addr int64
}

type ListIndex struct {
	Data []Entry
}

func NewListIndex() *ListIndex {
	return &ListIndex{
		Data: make([]Entry, 0),
	}
}

// Insert adds key or replaces the address stored for it.
func (l *ListIndex) Insert(key, addr int64) error {
	for i := range l.Data {
		if l.Data[i].Key == key {
			l.Data[i].Addr = addr
			return nil
		}
	}
	l.Data = append(l.Data, Entry{Key: key, Addr: addr})
	return nil
}

func (l *ListIndex) Search(key int64) (int64, error) {
	for _, e := range l.Data {
		if e.Key == key {
			return e.Addr, nil
		}
	}
	return 0, errors.Wrapf(index.ErrNotFound, "key %d", key)
}

func (l *ListIndex) Delete(key int64) error {
	for i, e := range l.Data {
		if e.Key == key {
			l.Data = slices.Delete(l.Data, i, i+1)
			return nil
		}
	}
	return errors.Wrapf(index.ErrNotFound, "key %d", key)
}

func (l *ListIndex) Len() int { return len(l.Data) }

// Sorted returns a copy of the entries in key order.
func (l *ListIndex) Sorted() []Entry {
	out := slices.Clone(l.Data)
	slices.SortFunc(out, func(a, b Entry) int {
		switch {
		case a.Key < b.Key:
			return -1
		case a.Key > b.Key:
			return 1
		}
		return 0
	})
	return out
}

func (l *ListIndex) Close() error { return nil }
