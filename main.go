package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/btree-query-bench/slotindex/dbms/heap"
	"github.com/btree-query-bench/slotindex/dbms/index/btree"
	"github.com/btree-query-bench/slotindex/dbms/pager"
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	indexPath  *string
	numRecords *int64
	order      *int
	fieldSize  *int
	minPolicy  *string
	dupPolicy  *string
	collapse   *string
	reformat   *bool
	syncWrites *bool
	heapDir    *string
	bench      *bool
	benchN     *int
	benchOut   *string
	benchOrder *string
)

func setupFlags() {
	indexPath = flag.String("file", "index.bin", "Index file to open or create.")
	numRecords = flag.Int64("records", 1024, "Capacity in records when the index file is created.")
	order = flag.Int("order", pager.DefaultLayout.Order, "Maximum slots per node (m).")
	fieldSize = flag.Int("field-size", pager.DefaultLayout.FieldSize, "Width of one integer field in bytes (4 or 8).")
	minPolicy = flag.String("min", "floor", "Minimum occupancy of non-root nodes: floor (m/2) or ceil ((m+1)/2).")
	dupPolicy = flag.String("dup", "reject", "Inserting an existing key: reject or overwrite.")
	collapse = flag.String("collapse", "child", "A one-child parent after a merge: child (take over the child) or uniform (keep leaf depth even).")
	reformat = flag.Bool("format", false, "Format the index file before starting, erasing its contents.")
	syncWrites = flag.Bool("sync", false, "fsync the index file after every write.")
	heapDir = flag.String("heap", "", "Pebble directory of the value heap used by put/get; empty disables them.")
	bench = flag.Bool("bench", false, "Run the benchmark suite instead of the shell.")
	benchN = flag.Int("n", 10000, "Keys per benchmark run.")
	benchOut = flag.String("out", "results", "Directory for benchmark CSV and chart.")
	benchOrder = flag.String("orders", "8,32,128", "Comma-separated B-tree orders to benchmark.")
	flag.Usage = func() {
		fmt.Println("\nslotindex: disk B-tree secondary index\n\nArguments:")
		flag.PrintDefaults()
	}
	flag.Parse()
}

func treeOptions(minArg, dupArg, collapseArg string) (btree.Options, error) {
	var opts btree.Options
	switch minArg {
	case "floor":
		opts.MinOccupancy = btree.FloorHalf
	case "ceil":
		opts.MinOccupancy = btree.CeilHalf
	default:
		return opts, errors.Newf("unknown -min %q", minArg)
	}
	switch dupArg {
	case "reject":
		opts.Duplicates = btree.RejectDuplicates
	case "overwrite":
		opts.Duplicates = btree.OverwriteDuplicates
	default:
		return opts, errors.Newf("unknown -dup %q", dupArg)
	}
	switch collapseArg {
	case "child":
		opts.Collapse = btree.CollapseOneChild
	case "uniform":
		opts.Collapse = btree.UniformDepth
	default:
		return opts, errors.Newf("unknown -collapse %q", collapseArg)
	}
	return opts, nil
}

func parseOrders(s string) ([]int, error) {
	var out []int
	for _, f := range strings.Split(s, ",") {
		m, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return nil, errors.Wrapf(err, "-orders %q", s)
		}
		if m < 3 {
			return nil, errors.Newf("-orders: order %d is below 3", m)
		}
		out = append(out, m)
	}
	return out, nil
}

// openTree opens the index file, formatting it first when asked to or when
// it does not exist yet.
func openTree(path string, l pager.Layout, opts btree.Options, pagerOpts ...pager.Option) (*btree.BTree, error) {
	_, err := os.Stat(path)
	if *reformat || errors.Is(err, os.ErrNotExist) {
		log.Printf("formatting %s: %d records, order %d, %d-byte fields", path, *numRecords, l.Order, l.FieldSize)
		return btree.Create(path, *numRecords, l, opts, pagerOpts...)
	}
	return btree.Open(path, l, opts, pagerOpts...)
}

func main() {
	setupFlags()

	layout := pager.Layout{Order: *order, FieldSize: *fieldSize}
	if err := layout.Validate(); err != nil {
		log.Fatal(err)
	}
	opts, err := treeOptions(*minPolicy, *dupPolicy, *collapse)
	if err != nil {
		log.Fatal(err)
	}

	if *bench {
		if *benchN < 2 {
			log.Fatalf("-n must be at least 2, got %d", *benchN)
		}
		orders, err := parseOrders(*benchOrder)
		if err != nil {
			log.Fatal(err)
		}
		cfg := benchConfig{n: *benchN, outDir: *benchOut, fieldSize: *fieldSize, orders: orders, seed: 42}
		if err := runBenchmarks(cfg); err != nil {
			log.Fatalf("benchmark: %+v", err)
		}
		fmt.Println("Benchmark complete. Data ready for analysis.")
		return
	}

	metrics := pager.NewMetrics(prometheus.NewRegistry(), *indexPath)
	tree, err := openTree(*indexPath, layout, opts, pager.WithSync(*syncWrites), pager.WithMetrics(metrics))
	if err != nil {
		log.Fatalf("open %s: %v", *indexPath, err)
	}
	defer tree.Close()

	var h *heap.Heap
	if *heapDir != "" {
		if h, err = heap.Open(*heapDir, nil); err != nil {
			log.Fatalf("open heap %s: %v", *heapDir, err)
		}
		defer h.Close()
	}

	sh := NewShell(os.Stdin, os.Stdout, tree, h, metrics)
	if err := commandHelp(sh, nil); err != nil {
		log.Fatal(err)
	}
	if err := sh.Start(); err != nil {
		log.Printf("reading input: %v", err)
	}
}
