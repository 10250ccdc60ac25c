package main

import (
	"encoding/csv"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/btree-query-bench/slotindex/dbms/index"
	"github.com/btree-query-bench/slotindex/dbms/index/btree"
	"github.com/btree-query-bench/slotindex/dbms/index/listindex"
	"github.com/btree-query-bench/slotindex/dbms/index/lsm"
	"github.com/btree-query-bench/slotindex/dbms/pager"
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

type BenchResult struct {
	Name        string
	Config      string
	Operation   string
	LatencyNs   int64
	MemMB       uint64
	Objects     uint64
	ReadsPerOp  float64
	WritesPerOp float64
}

type MemoryStats struct {
	AllocMB      uint64
	TotalAllocMB uint64
	HeapObjects  uint64
}

func GetDetailedMem() MemoryStats {
	var m runtime.MemStats
	// Force GC to ensure we measure actual live data, not garbage
	runtime.GC()
	runtime.ReadMemStats(&m)
	return MemoryStats{
		AllocMB:      m.Alloc / 1024 / 1024,
		TotalAllocMB: m.TotalAlloc / 1024 / 1024,
		HeapObjects:  m.HeapObjects,
	}
}

var csvHeader = []string{"Structure", "Config", "TestType", "LatencyNs", "MemMB", "HeapObjects", "ReadsPerOp", "WritesPerOp"}

func Record(w *csv.Writer, res BenchResult) error {
	return w.Write([]string{
		res.Name,
		res.Config,
		res.Operation,
		strconv.FormatInt(res.LatencyNs, 10),
		strconv.FormatUint(res.MemMB, 10),
		strconv.FormatUint(res.Objects, 10),
		strconv.FormatFloat(res.ReadsPerOp, 'f', 2, 64),
		strconv.FormatFloat(res.WritesPerOp, 'f', 2, 64),
	})
}

type benchConfig struct {
	n         int
	outDir    string
	fieldSize int
	orders    []int
	seed      int64
}

// suite is one index under test. metrics is nil for indexes without a pager.
type suite struct {
	name    string
	config  string
	idx     index.Index
	metrics *pager.Metrics
}

// runBenchmarks measures the disk B-tree at several orders against Pebble
// and the list baseline, writes results.csv and latency.png into outDir.
func runBenchmarks(cfg benchConfig) error {
	if err := os.MkdirAll(cfg.outDir, 0755); err != nil {
		return err
	}
	scratch, err := os.MkdirTemp("", "slotindex-bench")
	if err != nil {
		return err
	}
	defer os.RemoveAll(scratch)

	f, err := os.Create(filepath.Join(cfg.outDir, "results.csv"))
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	var all []BenchResult
	run := func(s suite) error {
		defer s.idx.Close()
		fmt.Printf("Testing %s (Config: %s)\n", s.name, s.config)
		results, err := runSuite(s, cfg.n, rand.New(rand.NewSource(cfg.seed)))
		if err != nil {
			return errors.Wrapf(err, "%s %s", s.name, s.config)
		}
		for _, r := range results {
			if err := Record(w, r); err != nil {
				return err
			}
		}
		all = append(all, results...)
		return nil
	}

	for _, m := range cfg.orders {
		l := pager.Layout{Order: m, FieldSize: cfg.fieldSize}
		name := fmt.Sprintf("btree-m%d", m)
		metrics := pager.NewMetrics(reg, name)
		tr, err := btree.Create(filepath.Join(scratch, name+".bin"), benchRecords(cfg.n, m), l,
			btree.Options{Duplicates: btree.OverwriteDuplicates}, pager.WithMetrics(metrics))
		if err != nil {
			return err
		}
		if err := run(suite{name: "B-Tree", config: strconv.Itoa(m), idx: tr, metrics: metrics}); err != nil {
			return err
		}
	}

	db, err := lsm.Open(filepath.Join(scratch, "pebble"), nil)
	if err != nil {
		return err
	}
	if err := run(suite{name: "LSM-Tree", config: "pebble", idx: db}); err != nil {
		return err
	}
	if err := run(suite{name: "List", config: "-", idx: listindex.NewListIndex()}); err != nil {
		return err
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return plotLatency(all, filepath.Join(cfg.outDir, "latency.png"))
}

// benchRecords sizes an index file for n keys. Nodes normally keep at least
// m/2 slots, but collapses can leave short leaves behind, so the file never
// gets fewer than 2n records.
func benchRecords(n, order int) int64 {
	return int64(max(4*n/(order/2), 2*n) + 16)
}

func runSuite(s suite, n int, rng *rand.Rand) ([]BenchResult, error) {
	var results []BenchResult
	measure := func(op string, ops int, fn func() error) error {
		before := s.metrics.Snapshot()
		start := time.Now()
		if err := fn(); err != nil {
			return errors.Wrap(err, op)
		}
		elapsed := time.Since(start)
		delta := s.metrics.Snapshot().Sub(before)
		stats := GetDetailedMem()
		results = append(results, BenchResult{
			Name:        s.name,
			Config:      s.config,
			Operation:   op,
			LatencyNs:   elapsed.Nanoseconds() / int64(ops),
			MemMB:       stats.AllocMB,
			Objects:     stats.HeapObjects,
			ReadsPerOp:  delta.Reads / float64(ops),
			WritesPerOp: delta.Writes / float64(ops),
		})
		return nil
	}

	keys := rng.Perm(n)

	// 1. Pure Insert (Initial Load)
	if err := measure("Insert", n, func() error {
		for _, k := range keys {
			if err := s.idx.Insert(int64(k), int64(k)+1); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return nil, err
	}

	// 2. Point lookups of every key
	if err := measure("Search", n, func() error {
		for _, k := range keys {
			if _, err := s.idx.Search(int64(k)); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return nil, err
	}

	// 3. Mixed workloads
	for _, wt := range []WorkloadType{OLTP, OLAP, Churn} {
		if err := measure("Workload_"+string(wt), n/2, func() error {
			return ExecuteWorkload(s.idx, wt, n/2, n, rng)
		}); err != nil {
			return nil, err
		}
	}

	// 4. Delete whatever is left
	if err := measure("Delete", n, func() error {
		for _, k := range keys {
			if err := s.idx.Delete(int64(k)); err != nil && !errors.Is(err, index.ErrNotFound) {
				return err
			}
		}
		return nil
	}); err != nil {
		return nil, err
	}

	if tr, ok := s.idx.(*btree.BTree); ok {
		if _, err := tr.Check(); err != nil {
			return nil, err
		}
	}
	return results, nil
}

// plotLatency draws one group of bars per operation, one bar per structure.
func plotLatency(results []BenchResult, path string) error {
	if len(results) == 0 {
		return errors.New("no benchmark results to plot")
	}
	var ops, series []string
	seenOp := map[string]bool{}
	seenSeries := map[string]bool{}
	latency := map[[2]string]float64{}
	for _, r := range results {
		label := r.Name + " " + r.Config
		if !seenOp[r.Operation] {
			seenOp[r.Operation] = true
			ops = append(ops, r.Operation)
		}
		if !seenSeries[label] {
			seenSeries[label] = true
			series = append(series, label)
		}
		latency[[2]string{label, r.Operation}] = float64(r.LatencyNs)
	}

	p := plot.New()
	p.Title.Text = "Latency per operation"
	p.Y.Label.Text = "ns/op"

	width := vg.Points(8)
	for i, label := range series {
		vals := make(plotter.Values, len(ops))
		for j, op := range ops {
			vals[j] = latency[[2]string{label, op}]
		}
		bars, err := plotter.NewBarChart(vals, width)
		if err != nil {
			return err
		}
		bars.LineStyle.Width = vg.Length(0)
		bars.Color = plotutil.Color(i)
		bars.Offset = width * vg.Length(i-len(series)/2)
		p.Add(bars)
		p.Legend.Add(label, bars)
	}
	p.Legend.Top = true
	p.NominalX(ops...)
	return p.Save(vg.Length(len(ops))*2*vg.Inch, 5*vg.Inch, path)
}
