package lsm

import (
	"testing"

	"github.com/btree-query-bench/slotindex/dbms/index"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble/vfs"
)

func openMem(t *testing.T) *LSM {
	t.Helper()
	opts := DefaultOptions()
	opts.FS = vfs.NewMem()
	l, err := Open("", opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestLSMIndex(t *testing.T) {
	l := openMem(t)
	for k := int64(0); k < 50; k++ {
		if err := l.Insert(k, k*100); err != nil {
			t.Fatal(err)
		}
	}
	if err := l.Insert(7, 7); err != nil {
		t.Fatal(err)
	}
	if got, err := l.Search(7); err != nil || got != 7 {
		t.Fatalf("Search(7) = %d, %v", got, err)
	}
	if got, err := l.Search(49); err != nil || got != 4900 {
		t.Fatalf("Search(49) = %d, %v", got, err)
	}

	if err := l.Delete(10); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Search(10); !errors.Is(err, index.ErrNotFound) {
		t.Fatalf("Search deleted key: %v", err)
	}
	if err := l.Delete(10); !errors.Is(err, index.ErrNotFound) {
		t.Fatalf("Delete missing key: %v", err)
	}
	if n, err := l.Count(); err != nil || n != 49 {
		t.Fatalf("Count = %d, %v", n, err)
	}
}

func TestOpenWithNilOptions(t *testing.T) {
	l, err := Open(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	if err := l.Insert(1, 2); err != nil {
		t.Fatal(err)
	}
}
