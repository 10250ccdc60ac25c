package pager

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/btree-query-bench/slotindex/dbms/index/btpage"
	"github.com/cockroachdb/errors"
	"github.com/kr/pretty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func openFormatted(t *testing.T, records int64, l Layout, opts ...Option) (*Pager, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.bin")
	if err := Format(path, records, l); err != nil {
		t.Fatalf("Format: %v", err)
	}
	p, err := Open(path, l, opts...)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p, path
}

func TestFormatChainsEveryRecord(t *testing.T) {
	p, path := openFormatted(t, 10, DefaultLayout)

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != 4*11*10 {
		t.Fatalf("file size = %d, want 440", info.Size())
	}

	rows, err := p.Dump()
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}
	if len(rows) != 10 {
		t.Fatalf("Dump returned %d rows", len(rows))
	}
	for rec, row := range rows {
		want := make([]int64, 11)
		for i := range want {
			want[i] = -1
		}
		if rec < 9 {
			want[1] = int64(rec + 1)
		}
		if diff := pretty.Diff(want, row); len(diff) > 0 {
			t.Errorf("record %d: %v", rec, diff)
		}
	}

	head, err := p.FreeHead()
	if err != nil || head != 1 {
		t.Fatalf("FreeHead = %d, %v; want 1", head, err)
	}
	free, err := p.FreeList()
	if err != nil {
		t.Fatalf("FreeList: %v", err)
	}
	if diff := pretty.Diff([]int64{1, 2, 3, 4, 5, 6, 7, 8, 9}, free); len(diff) > 0 {
		t.Fatalf("free list: %v", diff)
	}
}

func TestFieldsUseNativeByteOrder(t *testing.T) {
	_, path := openFormatted(t, 3, DefaultLayout)
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := int32(binary.NativeEndian.Uint32(raw[4:8])); got != 1 {
		t.Fatalf("sentinel head field = %d, want 1", got)
	}
	if got := int32(binary.NativeEndian.Uint32(raw[0:4])); got != -1 {
		t.Fatalf("sentinel tag field = %d, want -1", got)
	}
}

func TestOffsets(t *testing.T) {
	l := Layout{Order: 5, FieldSize: 4}
	if got := l.RecordOffset(3); got != 132 {
		t.Errorf("RecordOffset(3) = %d, want 132", got)
	}
	if got := l.SlotOffset(3, 2); got != 152 {
		t.Errorf("SlotOffset(3, 2) = %d, want 152", got)
	}
	wide := Layout{Order: 4, FieldSize: 8}
	if got := wide.RecordOffset(2); got != 144 {
		t.Errorf("wide RecordOffset(2) = %d, want 144", got)
	}
}

func TestLayoutValidate(t *testing.T) {
	tests := []struct {
		l  Layout
		ok bool
	}{
		{Layout{Order: 3, FieldSize: 4}, true},
		{Layout{Order: 9, FieldSize: 8}, true},
		{Layout{Order: 2, FieldSize: 4}, false},
		{Layout{Order: 5, FieldSize: 2}, false},
	}
	for _, tt := range tests {
		err := tt.l.Validate()
		if (err == nil) != tt.ok {
			t.Errorf("Validate(%+v) = %v", tt.l, err)
		}
		if err != nil && !errors.Is(err, ErrBadLayout) {
			t.Errorf("Validate(%+v) error not marked ErrBadLayout: %v", tt.l, err)
		}
	}
	if DefaultLayout.Fits(1 << 40) {
		t.Errorf("4-byte layout claims to fit 1<<40")
	}
	if !(Layout{Order: 5, FieldSize: 8}).Fits(1 << 40) {
		t.Errorf("8-byte layout rejects 1<<40")
	}
}

func TestSlotAndNodeAccess(t *testing.T) {
	p, _ := openFormatted(t, 4, DefaultLayout)

	rec, err := p.Allocate()
	if err != nil {
		t.Fatal(err)
	}
	if err := p.WriteNode(rec, btpage.NewLeaf(btpage.Slot{Key: 10, Addr: 100}, btpage.Slot{Key: 20, Addr: 200})); err != nil {
		t.Fatal(err)
	}
	if err := p.WriteSlot(rec, 2, btpage.Slot{Key: 30, Addr: 300}); err != nil {
		t.Fatal(err)
	}

	s, off, err := p.ReadSlot(rec, 1)
	if err != nil {
		t.Fatal(err)
	}
	if s != (btpage.Slot{Key: 20, Addr: 200}) || off != p.RecordOffset(rec)+12 {
		t.Fatalf("ReadSlot = %v at %d", s, off)
	}

	n, err := p.ReadNode(rec)
	if err != nil {
		t.Fatal(err)
	}
	want := btpage.NewLeaf(
		btpage.Slot{Key: 10, Addr: 100},
		btpage.Slot{Key: 20, Addr: 200},
		btpage.Slot{Key: 30, Addr: 300},
	)
	if diff := pretty.Diff(want, n); len(diff) > 0 {
		t.Fatalf("ReadNode: %v", diff)
	}
	if c, _ := p.CountOccupied(rec); c != 3 {
		t.Fatalf("CountOccupied = %d", c)
	}
	if m, _ := p.MaxSlot(rec); m.Key != 30 {
		t.Fatalf("MaxSlot = %v", m)
	}

	if err := p.SetTag(rec, btpage.TagInternal); err != nil {
		t.Fatal(err)
	}
	if tag, _ := p.Tag(rec); tag != btpage.TagInternal {
		t.Fatalf("Tag = %v", tag)
	}
	row, err := p.ReadRow(rec)
	if err != nil {
		t.Fatal(err)
	}
	if diff := pretty.Diff([]int64{1, 10, 100, 20, 200, 30, 300, -1, -1, -1, -1}, row); len(diff) > 0 {
		t.Fatalf("ReadRow: %v", diff)
	}

	if err := p.WriteSlot(rec, 5, btpage.Empty); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("WriteSlot past order: %v", err)
	}
	if _, err := p.ReadNode(4); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("ReadNode past end: %v", err)
	}
}

func TestAllocateFreeIsLIFO(t *testing.T) {
	p, _ := openFormatted(t, 4, DefaultLayout)

	for want := int64(1); want <= 3; want++ {
		got, err := p.Allocate()
		if err != nil || got != want {
			t.Fatalf("Allocate = %d, %v; want %d", got, err, want)
		}
	}
	if head, err := p.FreeHead(); err != nil || head != btpage.Nil {
		t.Fatalf("FreeHead on full file = %d, %v", head, err)
	}
	if _, err := p.Allocate(); !errors.Is(err, ErrOutOfSpace) {
		t.Fatalf("Allocate on full file: %v", err)
	}
	if err := p.Reserve(1); !errors.Is(err, ErrOutOfSpace) {
		t.Fatalf("Reserve on full file: %v", err)
	}

	if err := p.Free(2); err != nil {
		t.Fatal(err)
	}
	if err := p.Free(3); err != nil {
		t.Fatal(err)
	}
	free, err := p.FreeList()
	if err != nil {
		t.Fatal(err)
	}
	if diff := pretty.Diff([]int64{3, 2}, free); len(diff) > 0 {
		t.Fatalf("free list after frees: %v", diff)
	}
	if err := p.Reserve(2); err != nil {
		t.Fatalf("Reserve(2): %v", err)
	}
	if err := p.Reserve(3); !errors.Is(err, ErrOutOfSpace) {
		t.Fatalf("Reserve(3): %v", err)
	}
	if got, _ := p.Allocate(); got != 3 {
		t.Fatalf("Allocate after free = %d, want 3", got)
	}

	row, err := p.ReadRow(2)
	if err != nil {
		t.Fatal(err)
	}
	if row[0] != -1 || row[1] != -1 {
		t.Fatalf("freed record 2 = %v", row)
	}

	if err := p.Free(SentinelRecord); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("Free(0): %v", err)
	}
}

func TestShortOrClosedFileIsIOError(t *testing.T) {
	p, path := openFormatted(t, 10, DefaultLayout)
	if err := os.Truncate(path, 5*DefaultLayout.RecordSize()); err != nil {
		t.Fatal(err)
	}
	if _, _, err := p.ReadSlot(8, 0); !errors.Is(err, ErrIO) {
		t.Fatalf("ReadSlot past the end: %v", err)
	}
	if _, err := p.ReadNode(9); !errors.Is(err, ErrIO) {
		t.Fatalf("ReadNode past the end: %v", err)
	}

	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	if err := p.WriteSlot(2, 0, btpage.Slot{Key: 1, Addr: 1}); !errors.Is(err, ErrIO) {
		t.Fatalf("WriteSlot on closed file: %v", err)
	}
	if _, err := p.Tag(1); !errors.Is(err, ErrIO) {
		t.Fatalf("Tag on closed file: %v", err)
	}
}

func TestAllocateRejectsLiveHead(t *testing.T) {
	p, _ := openFormatted(t, 4, DefaultLayout)
	if err := p.WriteNode(1, btpage.NewLeaf(btpage.Slot{Key: 1, Addr: 1})); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Allocate(); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("Allocate with live head: %v", err)
	}
	if _, err := p.FreeList(); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("FreeList with live member: %v", err)
	}
}

func TestWideFields(t *testing.T) {
	l := Layout{Order: 3, FieldSize: 8}
	p, _ := openFormatted(t, 3, l)
	big := int64(1) << 40
	if err := p.WriteNode(1, btpage.NewLeaf(btpage.Slot{Key: big, Addr: -big})); err != nil {
		t.Fatal(err)
	}
	s, _, err := p.ReadSlot(1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if s.Key != big || s.Addr != -big {
		t.Fatalf("ReadSlot = %v", s)
	}
}

func TestOpenRejectsForeignFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "odd.bin")
	if err := os.WriteFile(path, make([]byte, 45), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path, DefaultLayout); !errors.Is(err, ErrBadLayout) {
		t.Fatalf("Open odd-sized file: %v", err)
	}
	if _, err := Open(filepath.Join(dir, "missing.bin"), DefaultLayout); !errors.Is(err, ErrIO) {
		t.Fatalf("Open missing file: %v", err)
	}
	if err := Format(filepath.Join(dir, "tiny.bin"), 1, DefaultLayout); !errors.Is(err, ErrBadLayout) {
		t.Fatalf("Format with one record: %v", err)
	}
}

func TestMetricsCountIO(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "test")
	p, _ := openFormatted(t, 4, DefaultLayout, WithMetrics(m))

	before := m.Snapshot()
	rec, err := p.Allocate()
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Free(rec); err != nil {
		t.Fatal(err)
	}
	if got := testutil.ToFloat64(m.Allocs); got != 1 {
		t.Errorf("allocations = %v", got)
	}
	if got := testutil.ToFloat64(m.Frees); got != 1 {
		t.Errorf("frees = %v", got)
	}
	delta := m.Snapshot().Sub(before)
	if delta.Reads == 0 || delta.Writes == 0 {
		t.Errorf("no I/O counted: %+v", delta)
	}

	var none *Metrics
	if none.Snapshot() != (Snapshot{}) {
		t.Errorf("nil metrics snapshot not zero")
	}
}
