// Copyright 2023 The FiberCache Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package fiberio

import (
	"github.com/cockroachdb/errors"
	"github.com/fibercache/fibercache/fibercol"
)

// ScanOptions configures a Scanner.
type ScanOptions struct {
	// Columns selects which columns to decode, by schema position. Nil
	// selects all of them.
	Columns []int
	// SkipGroup, if set, is consulted before a row-group is loaded. Returning
	// true skips the whole group without touching its chunks.
	SkipGroup func(group, rowCount int) bool
}

// Scanner iterates over a fiber file's rows group by group. Each group's
// columns are materialized only when the scan reaches the group, and
// released when the scan moves past it.
//
//	s, err := fiberio.NewScanner(d, fiberio.ScanOptions{})
//	defer s.Close()
//	for s.Next() {
//		row := s.Row()
//		...
//	}
//	if err := s.Err(); err != nil { ... }
type Scanner struct {
	d    *DataFile
	cols []int
	skip func(group, rowCount int) bool

	group int
	held  []*Column
	view  *fibercol.RowView
	err   error
}

// NewScanner starts a scan over d.
func NewScanner(d *DataFile, opts ScanOptions) (*Scanner, error) {
	cols := opts.Columns
	if cols == nil {
		cols = make([]int, len(d.meta.schema))
		for i := range cols {
			cols[i] = i
		}
	}
	for _, c := range cols {
		if c < 0 || c >= len(d.meta.schema) {
			return nil, errors.Newf("fiberio: column %d out of range [0, %d)", c, len(d.meta.schema))
		}
	}
	return &Scanner{d: d, cols: cols, skip: opts.SkipGroup, group: -1}, nil
}

// Next advances to the next row, loading the next row-group as needed. It
// returns false at the end of the file or on error; Err distinguishes the
// two.
func (s *Scanner) Next() bool {
	if s.err != nil {
		return false
	}
	for {
		if s.view != nil && s.view.Next() {
			return true
		}
		if !s.nextGroup() {
			return false
		}
	}
}

// nextGroup releases the current group and loads the next unskipped one.
func (s *Scanner) nextGroup() bool {
	s.releaseGroup()
	for {
		s.group++
		if s.group >= s.d.NumGroups() {
			return false
		}
		rowCount := s.d.GroupRowCount(s.group)
		if s.skip != nil && s.skip(s.group, rowCount) {
			continue
		}
		readers := make([]fibercol.ColumnReader, len(s.cols))
		for i, c := range s.cols {
			col, err := s.d.ReadColumn(s.group, c)
			if err != nil {
				s.releaseGroup()
				s.err = err
				return false
			}
			s.held = append(s.held, col)
			readers[i] = col.Reader
		}
		s.view = fibercol.NewRowView(readers, rowCount)
		return true
	}
}

// Row returns the view positioned on the current row. The view is only
// valid until the next call to Next or Close.
func (s *Scanner) Row() *fibercol.RowView { return s.view }

// Group returns the row-group the scan is currently in.
func (s *Scanner) Group() int { return s.group }

// Err returns the error that stopped the scan, if any.
func (s *Scanner) Err() error { return s.err }

func (s *Scanner) releaseGroup() {
	for _, col := range s.held {
		col.Release()
	}
	s.held = s.held[:0]
	s.view = nil
}

// Close releases the fibers held by the current group. It does not close
// the underlying file.
func (s *Scanner) Close() {
	s.releaseGroup()
}
