package main

import (
	"math/rand"

	"github.com/btree-query-bench/slotindex/dbms/heap"
	"github.com/btree-query-bench/slotindex/dbms/index"
	"github.com/btree-query-bench/slotindex/dbms/index/btree"
	"github.com/cockroachdb/errors"
	"github.com/go-faker/faker/v4"
)

type WorkloadType string

const (
	OLTP  WorkloadType = "OLTP (90/10)"
	OLAP  WorkloadType = "OLAP (10/90)"
	Churn WorkloadType = "Churn (50/50 insert/delete)"
)

// ExecuteWorkload runs a mixed distribution of ops over keys [0, keys).
// Misses and duplicate inserts are part of the mix; any other failure stops
// the run and is returned.
func ExecuteWorkload(idx index.Index, wType WorkloadType, ops, keys int, rng *rand.Rand) error {
	for i := 0; i < ops; i++ {
		choice := rng.Intn(100)
		key := int64(rng.Intn(keys))

		var err error
		switch wType {
		case OLTP:
			if choice < 90 {
				_, err = idx.Search(key)
			} else {
				err = idx.Insert(key, key+1)
			}
		case OLAP:
			if choice < 10 {
				_, err = idx.Search(key)
			} else {
				err = idx.Insert(key, key+1)
			}
		case Churn:
			if choice < 50 {
				err = idx.Insert(key, key+1)
			} else {
				err = idx.Delete(key)
			}
		}
		if err != nil && !errors.Is(err, index.ErrNotFound) && !errors.Is(err, btree.ErrDuplicateKey) {
			return errors.Wrapf(err, "%s op %d on key %d", wType, i, key)
		}
	}
	return nil
}

// Seed inserts n random keys below maxKey. With a heap each key points at a
// stored faker phrase; without one the address is synthetic. Keys already
// present are skipped. It returns how many keys went in.
func Seed(idx index.Index, h *heap.Heap, n int, maxKey int64, rng *rand.Rand) (int, error) {
	inserted := 0
	for attempts := 0; inserted < n && attempts < 4*n; attempts++ {
		key := rng.Int63n(maxKey)
		if _, err := idx.Search(key); err == nil {
			continue
		} else if !errors.Is(err, index.ErrNotFound) {
			return inserted, err
		}

		addr := rng.Int63n(maxKey)
		if h != nil {
			a, err := h.Put([]byte(faker.Word() + " " + faker.Word()))
			if err != nil {
				return inserted, err
			}
			addr = a
		}
		if err := idx.Insert(key, addr); err != nil {
			if h != nil {
				_ = h.Delete(addr)
			}
			return inserted, err
		}
		inserted++
	}
	return inserted, nil
}
