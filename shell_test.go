package main

import (
	"bytes"
	"math/rand"
	"path/filepath"
	"strings"
	"testing"

	"github.com/btree-query-bench/slotindex/dbms/heap"
	"github.com/btree-query-bench/slotindex/dbms/index/btree"
	"github.com/btree-query-bench/slotindex/dbms/index/listindex"
	"github.com/btree-query-bench/slotindex/dbms/pager"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
)

func newShell(t *testing.T, script string, withHeap bool) (*Shell, *bytes.Buffer) {
	t.Helper()
	color.NoColor = true
	tr, err := btree.Create(filepath.Join(t.TempDir(), "index.bin"), 32, pager.DefaultLayout, btree.Options{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { tr.Close() })

	var h *heap.Heap
	if withHeap {
		h, err = heap.Open("", &pebble.Options{FS: vfs.NewMem()})
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { h.Close() })
	}
	var out bytes.Buffer
	m := pager.NewMetrics(prometheus.NewRegistry(), "shell")
	return NewShell(strings.NewReader(script), &out, tr, h, m), &out
}

func TestShellCommands(t *testing.T) {
	script := strings.Join([]string{
		"insert 50 100",
		"insert 30 200",
		"insert 30 999",
		"search 30",
		"search 31",
		"delete 50",
		"delete 50",
		"insert x 1",
		"frobnicate",
		"check",
		"display",
		"exit",
		"search 30",
	}, "\n")
	sh, out := newShell(t, script, false)
	if err := sh.Start(); err != nil {
		t.Fatal(err)
	}

	got := out.String()
	for _, want := range []string{
		"Inserted 50 -> 100",
		"error: key 30: btree: key already indexed",
		"30 -> 200",
		"Key not found.",
		"Deleted 50",
		"Usage: insert <key> <addr>",
		`Unknown command "frobnicate"`,
		"OK: depth=1 leaves=1 internal=0 keys=1",
		"LEAF",
		"head",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output lacks %q:\n%s", want, got)
		}
	}
	if strings.Count(got, "> 30 -> 200") != 1 {
		t.Errorf("commands after exit ran:\n%s", got)
	}
}

func TestShellHeapCommands(t *testing.T) {
	sh, out := newShell(t, "put 7 hello world\nget 7\nget 8\nseed 5\nstats\n", true)
	if err := sh.Start(); err != nil {
		t.Fatal(err)
	}
	got := out.String()
	for _, want := range []string{
		"Stored 7 at address 1",
		"hello world",
		"Key not found.",
		"Seeded 5 keys",
		"keys=6",
		"values 6, next address 7",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output lacks %q:\n%s", want, got)
		}
	}
}

func TestShellSeedReportsPartialRun(t *testing.T) {
	sh, out := newShell(t, "seed 200\n", false)
	if err := sh.Start(); err != nil {
		t.Fatal(err)
	}
	got := out.String()
	if !strings.Contains(got, " of 200 keys") || !strings.Contains(got, "no free records left") {
		t.Errorf("output lacks the partial count or the cause:\n%s", got)
	}
	if strings.Contains(got, "Seeded 200 keys") {
		t.Errorf("full-file seed reported as complete:\n%s", got)
	}
}

func TestShellWithoutHeap(t *testing.T) {
	sh, out := newShell(t, "get 1\n", false)
	if err := sh.Start(); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "no heap open") {
		t.Fatalf("output: %s", out.String())
	}
}

func TestExecuteWorkloadKeepsTreeValid(t *testing.T) {
	tr, err := btree.Create(filepath.Join(t.TempDir(), "index.bin"), benchRecords(200, 4),
		pager.Layout{Order: 4, FieldSize: 4}, btree.Options{Duplicates: btree.OverwriteDuplicates})
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Close()
	ref := listindex.NewListIndex()

	for _, wt := range []WorkloadType{OLAP, Churn, OLTP} {
		if err := ExecuteWorkload(tr, wt, 300, 200, rand.New(rand.NewSource(3))); err != nil {
			t.Fatalf("%s on tree: %v", wt, err)
		}
		if err := ExecuteWorkload(ref, wt, 300, 200, rand.New(rand.NewSource(3))); err != nil {
			t.Fatalf("%s on list: %v", wt, err)
		}
		st, err := tr.Check()
		if err != nil {
			t.Fatalf("%s: Check: %+v", wt, err)
		}
		if st.Keys != ref.Len() {
			t.Fatalf("%s: tree has %d keys, list %d", wt, st.Keys, ref.Len())
		}
	}
}

func TestTreeOptions(t *testing.T) {
	opts, err := treeOptions("ceil", "overwrite", "uniform")
	if err != nil || opts.MinOccupancy != btree.CeilHalf || opts.Duplicates != btree.OverwriteDuplicates ||
		opts.Collapse != btree.UniformDepth {
		t.Fatalf("treeOptions = %+v, %v", opts, err)
	}
	if opts, err := treeOptions("floor", "reject", "child"); err != nil || opts != (btree.Options{}) {
		t.Fatalf("default treeOptions = %+v, %v", opts, err)
	}
	if _, err := treeOptions("half", "reject", "child"); err == nil {
		t.Fatal("accepted -min half")
	}
	if _, err := treeOptions("floor", "reject", "never"); err == nil {
		t.Fatal("accepted -collapse never")
	}
	if orders, err := parseOrders("3, 16"); err != nil || len(orders) != 2 || orders[1] != 16 {
		t.Fatalf("parseOrders = %v, %v", orders, err)
	}
	if _, err := parseOrders("2"); err == nil {
		t.Fatal("accepted order 2")
	}
}
