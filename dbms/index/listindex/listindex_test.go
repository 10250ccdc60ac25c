package listindex

import (
	"testing"

	"github.com/btree-query-bench/slotindex/dbms/index"
	"github.com/cockroachdb/errors"
	"github.com/kr/pretty"
)

func TestListIndex(t *testing.T) {
	l := NewListIndex()
	for _, e := range []Entry{{30, 3}, {10, 1}, {20, 2}, {10, 11}} {
		if err := l.Insert(e.Key, e.Addr); err != nil {
			t.Fatal(err)
		}
	}
	if l.Len() != 3 {
		t.Fatalf("Len = %d, want 3", l.Len())
	}
	if addr, err := l.Search(10); err != nil || addr != 11 {
		t.Fatalf("Search(10) = %d, %v; want 11", addr, err)
	}
	if err := l.Delete(20); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Search(20); !errors.Is(err, index.ErrNotFound) {
		t.Fatalf("Search after delete: %v", err)
	}
	if err := l.Delete(20); !errors.Is(err, index.ErrNotFound) {
		t.Fatalf("second Delete: %v", err)
	}
	if diff := pretty.Diff([]Entry{{10, 11}, {30, 3}}, l.Sorted()); len(diff) > 0 {
		t.Fatalf("Sorted: %v", diff)
	}
}
