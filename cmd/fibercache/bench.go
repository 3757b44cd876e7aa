// Copyright 2023 The FiberCache Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/fibercache/fibercache"
	"github.com/fibercache/fibercache/fibermgr"
	"github.com/fibercache/fibercache/fiberio"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"
)

var (
	benchBackend string
	benchPMemDir string
	benchMemory  = int64(1 << 30)
)

var benchCmd = &cobra.Command{
	Use:   "bench <file>",
	Short: "benchmark cached fiber reads",
	Args:  cobra.ExactArgs(1),
	RunE:  runBench,
}

const (
	minLatency = 10 * time.Microsecond
	maxLatency = 10 * time.Second
)

func newHistogram() *hdrhistogram.Histogram {
	return hdrhistogram.New(minLatency.Nanoseconds(), maxLatency.Nanoseconds(), 1)
}

func benchOptions() (*fibercache.Options, error) {
	backend, err := fibercache.BackendKindFromString(benchBackend)
	if err != nil {
		return nil, err
	}
	opts := &fibercache.Options{
		Backend:         backend,
		TotalMemorySize: benchMemory,
	}
	if backend == fibercache.PersistentMemory || backend == fibercache.Mixed {
		opts.PMem = fibercache.PMemOptions{
			Dirs:        []string{benchPMemDir},
			InitialSize: benchMemory,
		}
	}
	if backend == fibercache.Mixed {
		opts.SeparateIndexAndData = true
		opts.Mixed = fibercache.MixedOptions{
			IndexBackend: fibercache.OffHeap,
			DataBackend:  fibercache.PersistentMemory,
		}
	}
	return opts, nil
}

func runBench(cmd *cobra.Command, args []string) error {
	opts, err := benchOptions()
	if err != nil {
		return err
	}
	mm, err := fibercache.Open(opts)
	if err != nil {
		return err
	}
	defer func() { _ = mm.Stop() }()

	mgr, err := fibermgr.NewManager(fibermgr.Options{MemoryManager: mm})
	if err != nil {
		return err
	}
	d, err := fiberio.Open(args[0], mm)
	if err != nil {
		return err
	}
	cf := fibermgr.NewCachedFile(mgr, d, 1)
	defer func() { _ = cf.Close() }()

	numGroups := d.NumGroups()
	numCols := len(d.Schema())
	deadline := time.Now().Add(duration)

	var g errgroup.Group
	hists := make([]*hdrhistogram.Histogram, concurrency)
	ops := make([]int64, concurrency)
	for w := 0; w < concurrency; w++ {
		w := w
		hists[w] = newHistogram()
		g.Go(func() error {
			rng := rand.New(rand.NewSource(uint64(w) + 1))
			for time.Now().Before(deadline) {
				group := rng.Intn(numGroups)
				col := rng.Intn(numCols)
				start := time.Now()
				fc, err := cf.ReadColumnFiber(group, col)
				if err != nil {
					return err
				}
				fc.Release()
				if err := hists[w].RecordValue(time.Since(start).Nanoseconds()); err != nil {
					return err
				}
				ops[w]++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		_ = mgr.Close()
		return err
	}

	merged := newHistogram()
	var totalOps int64
	for w := 0; w < concurrency; w++ {
		merged.Merge(hists[w])
		totalOps += ops[w]
	}
	snap := mgr.Metrics()
	if err := mgr.Close(); err != nil {
		return err
	}

	fmt.Printf("%s\n", snap)
	if verbose {
		fmt.Printf("%s\n", mm.Metrics())
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ops", "ops/sec", "p50", "p95", "p99", "max", "hit rate"})
	table.Append([]string{
		strconv.FormatInt(totalOps, 10),
		fmt.Sprintf("%.0f", float64(totalOps)/duration.Seconds()),
		formatNanos(merged.ValueAtQuantile(50)),
		formatNanos(merged.ValueAtQuantile(95)),
		formatNanos(merged.ValueAtQuantile(99)),
		formatNanos(merged.Max()),
		fmt.Sprintf("%.1f%%", 100*snap.HitRate()),
	})
	table.Render()
	return nil
}

func formatNanos(n int64) string {
	return time.Duration(n).Round(time.Microsecond).String()
}
