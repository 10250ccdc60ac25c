package main

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func TestRunBenchmarksWritesResultsAndChart(t *testing.T) {
	out := t.TempDir()
	cfg := benchConfig{n: 20, outDir: out, fieldSize: 4, orders: []int{3, 8}, seed: 7}
	if err := runBenchmarks(cfg); err != nil {
		t.Fatalf("runBenchmarks: %+v", err)
	}

	f, err := os.Open(filepath.Join(out, "results.csv"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	// Two B-tree orders, pebble and the list, six measured phases each.
	if len(rows) != 1+4*6 {
		t.Fatalf("results.csv has %d rows, want %d", len(rows), 1+4*6)
	}
	if rows[0][0] != csvHeader[0] || len(rows[0]) != len(csvHeader) {
		t.Fatalf("header = %v", rows[0])
	}

	reads := map[string]float64{}
	for _, row := range rows[1:] {
		if row[2] != "Search" {
			continue
		}
		v, err := strconv.ParseFloat(row[6], 64)
		if err != nil {
			t.Fatal(err)
		}
		reads[row[0]+" "+row[1]] = v
	}
	if reads["B-Tree 3"] < 1 || reads["B-Tree 8"] < 1 {
		t.Errorf("B-tree searches should read records: %v", reads)
	}
	if reads["List -"] != 0 || reads["LSM-Tree pebble"] != 0 {
		t.Errorf("indexes without a pager report reads: %v", reads)
	}

	info, err := os.Stat(filepath.Join(out, "latency.png"))
	if err != nil || info.Size() == 0 {
		t.Fatalf("latency.png: %v, %v", info, err)
	}
}

func TestPlotLatencyRejectsEmptyResults(t *testing.T) {
	if err := plotLatency(nil, filepath.Join(t.TempDir(), "empty.png")); err == nil {
		t.Fatal("plotLatency drew a chart without results")
	}
}
