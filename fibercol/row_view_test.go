// Copyright 2023 The FiberCache Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package fibercol

import (
	"fmt"
	"testing"

	"github.com/fibercache/fibercache"
	"github.com/stretchr/testify/require"
)

// buildRowView assembles a three-column (long, string, double) view of rows
// rows, with the string column null on every fourth row.
func buildRowView(t *testing.T, mm *fibercache.MemoryManager, rows int) *RowView {
	longs, err := NewColumnBuilder(LongType, rows)
	require.NoError(t, err)
	strs, err := NewColumnBuilder(StringType, rows)
	require.NoError(t, err)
	doubles, err := NewColumnBuilder(DoubleType, rows)
	require.NoError(t, err)
	for row := 0; row < rows; row++ {
		longs.PutLong(row, int64(row)*11)
		if row%4 != 3 {
			strs.PutString(row, fmt.Sprintf("row-%04d", row))
		}
		doubles.PutDouble(row, float64(row)/2)
	}

	cols := make([]ColumnReader, 3)
	for i, spec := range []struct {
		b   *ColumnBuilder
		typ DataType
	}{{longs, LongType}, {strs, StringType}, {doubles, DoubleType}} {
		col, err := NewColumnValues(toFiber(t, mm, spec.b.Finish()), rows, spec.typ)
		require.NoError(t, err)
		cols[i] = col
	}
	return NewRowView(cols, rows)
}

func TestRowViewSequentialScan(t *testing.T) {
	mm := newTestManager(t)
	defer func() { require.NoError(t, mm.Stop()) }()

	const rows = 57
	rv := buildRowView(t, mm, rows)
	require.Equal(t, rows, rv.NumRows())
	require.Equal(t, 3, rv.NumColumns())

	seen := 0
	for rv.Next() {
		require.Equal(t, seen, rv.RowIndex())
		require.Equal(t, int64(seen)*11, rv.GetLong(0))
		if seen%4 == 3 {
			require.True(t, rv.IsNullAt(1))
			require.True(t, rv.AnyNull())
		} else {
			require.Equal(t, fmt.Sprintf("row-%04d", seen), rv.GetString(1))
			require.False(t, rv.AnyNull())
		}
		require.Equal(t, float64(seen)/2, rv.GetDouble(2))
		seen++
	}
	require.Equal(t, rows, seen)
	// The scan does not restart.
	require.False(t, rv.Next())
}

func TestRowViewSeek(t *testing.T) {
	mm := newTestManager(t)
	defer func() { require.NoError(t, mm.Stop()) }()

	rv := buildRowView(t, mm, 40)
	require.NoError(t, rv.SeekToRow(17))
	require.Equal(t, int64(187), rv.GetLong(0))
	// Seeking backwards is allowed.
	require.NoError(t, rv.SeekToRow(2))
	require.Equal(t, "row-0002", rv.GetString(1))

	require.Error(t, rv.SeekToRow(-1))
	require.Error(t, rv.SeekToRow(40))
}

func TestRowViewImmutable(t *testing.T) {
	mm := newTestManager(t)
	defer func() { require.NoError(t, mm.Stop()) }()

	rv := buildRowView(t, mm, 4)
	require.True(t, rv.Next())
	require.Panics(t, func() { rv.SetNullAt(0) })
	require.Panics(t, func() { rv.Update(0, int64(99)) })
}

func TestCopyRowOutlivesFiber(t *testing.T) {
	mm := newTestManager(t)
	defer func() { require.NoError(t, mm.Stop()) }()

	b, err := NewColumnBuilder(StringType, 2)
	require.NoError(t, err)
	b.PutString(0, "materialized")
	fc, err := mm.ToDataFiberCache(b.Finish())
	require.NoError(t, err)
	col, err := NewColumnValues(fc, 2, StringType)
	require.NoError(t, err)
	rv := NewRowView([]ColumnReader{col}, 2)

	require.True(t, rv.Next())
	row := rv.CopyRow()
	require.True(t, rv.Next())
	nullRow := rv.CopyRow()

	// The copies stay valid after the fiber is gone.
	fc.Release()
	require.True(t, fc.Disposed())

	require.Equal(t, 1, row.NumColumns())
	require.False(t, row.IsNullAt(0))
	require.False(t, row.AnyNull())
	require.Equal(t, "materialized", row.GetString(0))
	require.True(t, nullRow.IsNullAt(0))
	require.True(t, nullRow.AnyNull())
}
