// Copyright 2023 The FiberCache Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package fibercol

import (
	"slices"

	"github.com/cockroachdb/errors"
)

// ColumnReader is the read surface shared by plain and dictionary-decoded
// columns. Getters perform no type checking: calling a getter that does not
// match the column's type misreads the payload, exactly as reading a raw
// offset with the wrong width would.
type ColumnReader interface {
	DataType() DataType
	IsNullAt(row int) bool
	GetBoolean(row int) bool
	GetByte(row int) int8
	GetShort(row int) int16
	GetInt(row int) int32
	GetLong(row int) int64
	GetFloat(row int) float32
	GetDouble(row int) float64
	GetBytes(row int) []byte
	GetString(row int) string
}

// RowView composes an ordered list of column readers sharing one row-group
// into a positional cursor over logical rows. The view owns no buffers; it
// becomes invalid once any underlying fiber cache is disposed.
//
// Two access modes are supported: a forward-only sequential scan via Next,
// and random positional access via SeekToRow. Field accessors read the row
// under the cursor. Fiber data is immutable once materialized, so the view
// has no mutation surface; SetNullAt and Update fail rather than silently
// doing nothing.
type RowView struct {
	cols     []ColumnReader
	rowCount int
	cursor   int
}

// NewRowView returns a view over cols with the row-group's row count. The
// cursor starts before the first row.
func NewRowView(cols []ColumnReader, rowCount int) *RowView {
	return &RowView{cols: cols, rowCount: rowCount, cursor: -1}
}

// Next advances the cursor to the next row, returning false once the rows
// are exhausted. The scan is forward-only and non-restartable.
func (rv *RowView) Next() bool {
	if rv.cursor+1 >= rv.rowCount {
		rv.cursor = rv.rowCount
		return false
	}
	rv.cursor++
	return true
}

// SeekToRow repositions the cursor to an arbitrary row index.
func (rv *RowView) SeekToRow(row int) error {
	if row < 0 || row >= rv.rowCount {
		return errors.Newf("fibercol: row %d out of range [0, %d)", row, rv.rowCount)
	}
	rv.cursor = row
	return nil
}

// RowIndex returns the cursor position.
func (rv *RowView) RowIndex() int { return rv.cursor }

// NumRows returns the row-group's row count.
func (rv *RowView) NumRows() int { return rv.rowCount }

// NumColumns returns the number of composed columns.
func (rv *RowView) NumColumns() int { return len(rv.cols) }

// IsNullAt reports whether column col is null at the cursor.
func (rv *RowView) IsNullAt(col int) bool { return rv.cols[col].IsNullAt(rv.cursor) }

// AnyNull reports whether any column is null at the cursor.
func (rv *RowView) AnyNull() bool {
	for _, c := range rv.cols {
		if c.IsNullAt(rv.cursor) {
			return true
		}
	}
	return false
}

// GetBoolean returns column col at the cursor.
func (rv *RowView) GetBoolean(col int) bool { return rv.cols[col].GetBoolean(rv.cursor) }

// GetByte returns column col at the cursor.
func (rv *RowView) GetByte(col int) int8 { return rv.cols[col].GetByte(rv.cursor) }

// GetShort returns column col at the cursor.
func (rv *RowView) GetShort(col int) int16 { return rv.cols[col].GetShort(rv.cursor) }

// GetInt returns column col at the cursor.
func (rv *RowView) GetInt(col int) int32 { return rv.cols[col].GetInt(rv.cursor) }

// GetLong returns column col at the cursor.
func (rv *RowView) GetLong(col int) int64 { return rv.cols[col].GetLong(rv.cursor) }

// GetFloat returns column col at the cursor.
func (rv *RowView) GetFloat(col int) float32 { return rv.cols[col].GetFloat(rv.cursor) }

// GetDouble returns column col at the cursor.
func (rv *RowView) GetDouble(col int) float64 { return rv.cols[col].GetDouble(rv.cursor) }

// GetBytes returns column col at the cursor. The slice aliases fiber memory.
func (rv *RowView) GetBytes(col int) []byte { return rv.cols[col].GetBytes(rv.cursor) }

// GetString returns column col at the cursor, zero-copy from fiber memory.
func (rv *RowView) GetString(col int) string { return rv.cols[col].GetString(rv.cursor) }

// SetNullAt always panics: fiber data is immutable once materialized.
func (rv *RowView) SetNullAt(col int) {
	panic(errors.AssertionFailedf("fibercol: fiber rows are immutable"))
}

// Update always panics: fiber data is immutable once materialized.
func (rv *RowView) Update(col int, value interface{}) {
	panic(errors.AssertionFailedf("fibercol: fiber rows are immutable"))
}

// CopyRow materializes the row under the cursor into owned values, for rows
// that must outlive the cursor's current group.
func (rv *RowView) CopyRow() *MaterializedRow {
	row := &MaterializedRow{
		types:  make([]DataType, len(rv.cols)),
		nulls:  make([]bool, len(rv.cols)),
		values: make([]interface{}, len(rv.cols)),
	}
	for i, c := range rv.cols {
		row.types[i] = c.DataType()
		if c.IsNullAt(rv.cursor) {
			row.nulls[i] = true
			continue
		}
		switch c.DataType() {
		case BooleanType:
			row.values[i] = c.GetBoolean(rv.cursor)
		case ByteType:
			row.values[i] = c.GetByte(rv.cursor)
		case ShortType:
			row.values[i] = c.GetShort(rv.cursor)
		case IntegerType, DateType:
			row.values[i] = c.GetInt(rv.cursor)
		case LongType:
			row.values[i] = c.GetLong(rv.cursor)
		case FloatType:
			row.values[i] = c.GetFloat(rv.cursor)
		case DoubleType:
			row.values[i] = c.GetDouble(rv.cursor)
		case BinaryType:
			row.values[i] = slices.Clone(c.GetBytes(rv.cursor))
		case StringType:
			// strings.Clone is implicit: converting the zero-copy view
			// through []byte forces an owned copy.
			row.values[i] = string(slices.Clone(c.GetBytes(rv.cursor)))
		default:
			panic(errors.AssertionFailedf("fibercol: unreachable type %s", c.DataType()))
		}
	}
	return row
}

// MaterializedRow is a fully-owned copy of one logical row. Unlike the lazy
// row view, it remains valid after the underlying fiber caches are released.
type MaterializedRow struct {
	types  []DataType
	nulls  []bool
	values []interface{}
}

// NumColumns returns the number of columns in the row.
func (r *MaterializedRow) NumColumns() int { return len(r.values) }

// IsNullAt reports whether column col is null.
func (r *MaterializedRow) IsNullAt(col int) bool { return r.nulls[col] }

// AnyNull reports whether any column is null.
func (r *MaterializedRow) AnyNull() bool {
	for _, n := range r.nulls {
		if n {
			return true
		}
	}
	return false
}

// GetBoolean returns column col.
func (r *MaterializedRow) GetBoolean(col int) bool { return r.values[col].(bool) }

// GetByte returns column col.
func (r *MaterializedRow) GetByte(col int) int8 { return r.values[col].(int8) }

// GetShort returns column col.
func (r *MaterializedRow) GetShort(col int) int16 { return r.values[col].(int16) }

// GetInt returns column col.
func (r *MaterializedRow) GetInt(col int) int32 { return r.values[col].(int32) }

// GetLong returns column col.
func (r *MaterializedRow) GetLong(col int) int64 { return r.values[col].(int64) }

// GetFloat returns column col.
func (r *MaterializedRow) GetFloat(col int) float32 { return r.values[col].(float32) }

// GetDouble returns column col.
func (r *MaterializedRow) GetDouble(col int) float64 { return r.values[col].(float64) }

// GetBytes returns column col.
func (r *MaterializedRow) GetBytes(col int) []byte { return r.values[col].([]byte) }

// GetString returns column col.
func (r *MaterializedRow) GetString(col int) string { return r.values[col].(string) }
