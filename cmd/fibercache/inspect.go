// Copyright 2023 The FiberCache Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/fibercache/fibercache/fiberio"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "print a fiber file's schema and row-group layout",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

func runInspect(cmd *cobra.Command, args []string) error {
	// Metadata-only: no fibers are materialized, so no memory manager is
	// needed.
	d, err := fiberio.Open(args[0], nil)
	if err != nil {
		return err
	}
	defer func() { _ = d.Close() }()

	schema := d.Schema()
	fmt.Printf("%s: %d columns, %d row-groups, %d rows",
		args[0], len(schema), d.NumGroups(), d.RowCount())
	if d.HasIndex() {
		fmt.Printf(", %d-byte index fiber", d.IndexFiberSize())
	}
	fmt.Println()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"group", "rows", "column", "type", "fiber bytes"})
	for g := 0; g < d.NumGroups(); g++ {
		for c := range schema {
			table.Append([]string{
				strconv.Itoa(g),
				strconv.Itoa(d.GroupRowCount(g)),
				strconv.Itoa(c),
				schema[c].String(),
				strconv.FormatInt(d.ColumnFiberSize(g, c), 10),
			})
		}
	}
	table.Render()
	return nil
}
