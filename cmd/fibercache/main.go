// Copyright 2023 The FiberCache Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

// fibercache is a benchmarking and introspection tool for fiber files.
package main

import (
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	codecName   string
	concurrency int
	duration    time.Duration
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "fibercache [command] (flags)",
	Short: "fiber cache benchmarking/introspection tool",
	Long:  ``,
}

func main() {
	log.SetFlags(0)

	cobra.EnableCommandSorting = false
	rootCmd.AddCommand(
		genCmd,
		inspectCmd,
		benchCmd,
	)

	genCmd.Flags().IntVar(
		&genRows, "rows", genRows, "rows per row-group")
	genCmd.Flags().IntVar(
		&genGroups, "groups", genGroups, "number of row-groups")
	genCmd.Flags().StringVar(
		&genSchema, "schema", genSchema, "comma-separated column types")
	genCmd.Flags().StringVar(
		&codecName, "codec", "snappy", "compression codec (none, snappy, zstd, minlz)")

	benchCmd.Flags().IntVarP(
		&concurrency, "concurrency", "c", 1, "number of concurrent workers")
	benchCmd.Flags().DurationVarP(
		&duration, "duration", "d", 10*time.Second, "the duration to run")
	benchCmd.Flags().BoolVarP(
		&verbose, "verbose", "v", false, "enable per-second progress output")
	benchCmd.Flags().StringVar(
		&benchBackend, "backend", "offheap", "memory backend (offheap, pmem, mixed)")
	benchCmd.Flags().StringVar(
		&benchPMemDir, "pmem-dir", "", "persistent memory directory (pmem, mixed backends)")
	benchCmd.Flags().Int64Var(
		&benchMemory, "memory", benchMemory, "total cache memory in bytes")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
