// Copyright 2023 The FiberCache Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

// Package fibercol decodes typed column values directly out of a fiber
// cache's raw bytes.
//
// The physical layout of one fiber (one column's worth of one row-group):
//
//	+-------------------------------------------------------+
//	| null bitmap: ceil(rowCapacity/64) little-endian words |
//	+-------------------------------------------------------+
//	| fixed-width payload: rowCapacity * elementWidth bytes |
//	+-------------------------------------------------------+
//
// or, for variable-length columns:
//
//	+-------------------------------------------------------+
//	| null bitmap: ceil(rowCapacity/64) little-endian words |
//	+-------------------------------------------------------+
//	| rowCapacity pairs of (length int32, offset int32)     |
//	+-------------------------------------------------------+
//	| value payloads, referenced by the offset table        |
//	+-------------------------------------------------------+
//
// Offsets in the indirection table are 0-based from the start of the fiber.
// A clear bit in the bitmap marks the row null.
package fibercol

import (
	"github.com/fibercache/fibercache"
)

// DataOffset returns the byte offset of the payload for a fiber declared
// with the given row capacity: the null bitmap occupies ceil(rowCapacity/64)
// 8-byte words placed before the typed payload.
func DataOffset(rowCapacity int) int64 {
	return int64((rowCapacity-1)>>6<<3) + 8
}

// ColumnValues is a read-only projection of one column's typed values over a
// fiber cache's bytes. It does not own the underlying handle; the caller
// must keep the handle live for as long as the view is read.
type ColumnValues struct {
	fc          *fibercache.FiberCache
	typ         DataType
	rowCapacity int
	dataOffset  int64
}

var _ ColumnReader = (*ColumnValues)(nil)

// NewColumnValues constructs a view of fc's bytes as rowCapacity values of
// the given type. Types outside the raw fiber format are rejected here, not
// at first access.
func NewColumnValues(fc *fibercache.FiberCache, rowCapacity int, typ DataType) (*ColumnValues, error) {
	if err := typ.checkSupported(); err != nil {
		return nil, err
	}
	return &ColumnValues{
		fc:          fc,
		typ:         typ,
		rowCapacity: rowCapacity,
		dataOffset:  DataOffset(rowCapacity),
	}, nil
}

// DataType returns the column's logical type.
func (c *ColumnValues) DataType() DataType { return c.typ }

// RowCapacity returns the declared number of rows in the fiber.
func (c *ColumnValues) RowCapacity() int { return c.rowCapacity }

// IsNullAt reports whether the value at row is null: bit row%64 of bitmap
// word row/64 is clear.
func (c *ColumnValues) IsNullAt(row int) bool {
	word := uint64(c.fc.GetLong(int64(row>>6) << 3))
	return word&(1<<uint(row&63)) == 0
}

// GetBoolean returns the boolean at row.
func (c *ColumnValues) GetBoolean(row int) bool {
	return c.fc.GetBoolean(c.dataOffset + int64(row))
}

// GetByte returns the byte at row.
func (c *ColumnValues) GetByte(row int) int8 {
	return c.fc.GetByte(c.dataOffset + int64(row))
}

// GetShort returns the 16-bit integer at row.
func (c *ColumnValues) GetShort(row int) int16 {
	return c.fc.GetShort(c.dataOffset + int64(row)*2)
}

// GetInt returns the 32-bit integer at row. Date columns are read through
// GetInt as well; a date is stored as its 32-bit day ordinal.
func (c *ColumnValues) GetInt(row int) int32 {
	return c.fc.GetInt(c.dataOffset + int64(row)*4)
}

// GetLong returns the 64-bit integer at row.
func (c *ColumnValues) GetLong(row int) int64 {
	return c.fc.GetLong(c.dataOffset + int64(row)*8)
}

// GetFloat returns the 32-bit float at row.
func (c *ColumnValues) GetFloat(row int) float32 {
	return c.fc.GetFloat(c.dataOffset + int64(row)*4)
}

// GetDouble returns the 64-bit float at row.
func (c *ColumnValues) GetDouble(row int) float64 {
	return c.fc.GetDouble(c.dataOffset + int64(row)*8)
}

// varEntry resolves the (length, offset) pair for row. The pair table
// starts at dataOffset; offsets are absolute within the fiber.
func (c *ColumnValues) varEntry(row int) (length, offset int32) {
	length = c.fc.GetInt(c.dataOffset + int64(row)*8)
	offset = c.fc.GetInt(c.dataOffset + int64(row)*8 + 4)
	return length, offset
}

// GetBytes returns the variable-length value at row. The slice aliases the
// fiber's backing block.
func (c *ColumnValues) GetBytes(row int) []byte {
	length, offset := c.varEntry(row)
	return c.fc.GetBytes(int64(offset), int64(length))
}

// GetString returns the variable-length value at row as a string, zero-copy
// from the backing block.
func (c *ColumnValues) GetString(row int) string {
	length, offset := c.varEntry(row)
	return c.fc.GetString(int64(offset), int64(length))
}
