// Copyright 2023 The FiberCache Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package fibercol

import (
	"encoding/binary"
	"math"

	"github.com/cockroachdb/errors"
	"github.com/fibercache/fibercache/internal/invariants"
)

// ColumnBuilder encodes one column's worth of one row-group into the fiber
// layout decoded by ColumnValues. Rows not written through a Put method are
// null. Finish assembles the fiber bytes.
type ColumnBuilder struct {
	typ         DataType
	rowCapacity int
	nulls       []uint64 // set bit = value present
	fixed       []byte   // fixed-width payload
	varVals     [][]byte // per-row payloads for variable-length columns
}

// NewColumnBuilder returns a builder for rowCapacity values of the given
// type. Like the decoder, it rejects types outside the raw fiber format.
func NewColumnBuilder(typ DataType, rowCapacity int) (*ColumnBuilder, error) {
	if err := typ.checkSupported(); err != nil {
		return nil, err
	}
	if rowCapacity <= 0 {
		return nil, errors.Newf("fibercol: row capacity must be positive, got %d", rowCapacity)
	}
	b := &ColumnBuilder{
		typ:         typ,
		rowCapacity: rowCapacity,
		nulls:       make([]uint64, (rowCapacity+63)/64),
	}
	if typ.VariableLength() {
		b.varVals = make([][]byte, rowCapacity)
	} else {
		b.fixed = make([]byte, rowCapacity*typ.FixedWidth())
	}
	return b, nil
}

func (b *ColumnBuilder) setPresent(row int) {
	invariants.CheckBounds(row, b.rowCapacity)
	b.nulls[row>>6] |= 1 << uint(row&63)
}

// PutBoolean sets the value at row.
func (b *ColumnBuilder) PutBoolean(row int, v bool) {
	b.setPresent(row)
	if v {
		b.fixed[row] = 1
	} else {
		b.fixed[row] = 0
	}
}

// PutByte sets the value at row.
func (b *ColumnBuilder) PutByte(row int, v int8) {
	b.setPresent(row)
	b.fixed[row] = byte(v)
}

// PutShort sets the value at row.
func (b *ColumnBuilder) PutShort(row int, v int16) {
	b.setPresent(row)
	binary.LittleEndian.PutUint16(b.fixed[row*2:], uint16(v))
}

// PutInt sets the value at row. Date columns are written through PutInt.
func (b *ColumnBuilder) PutInt(row int, v int32) {
	b.setPresent(row)
	binary.LittleEndian.PutUint32(b.fixed[row*4:], uint32(v))
}

// PutLong sets the value at row.
func (b *ColumnBuilder) PutLong(row int, v int64) {
	b.setPresent(row)
	binary.LittleEndian.PutUint64(b.fixed[row*8:], uint64(v))
}

// PutFloat sets the value at row.
func (b *ColumnBuilder) PutFloat(row int, v float32) {
	b.setPresent(row)
	binary.LittleEndian.PutUint32(b.fixed[row*4:], math.Float32bits(v))
}

// PutDouble sets the value at row.
func (b *ColumnBuilder) PutDouble(row int, v float64) {
	b.setPresent(row)
	binary.LittleEndian.PutUint64(b.fixed[row*8:], math.Float64bits(v))
}

// PutBytes sets the variable-length value at row. The bytes are copied.
func (b *ColumnBuilder) PutBytes(row int, v []byte) {
	b.setPresent(row)
	b.varVals[row] = append([]byte(nil), v...)
}

// PutString sets the variable-length value at row.
func (b *ColumnBuilder) PutString(row int, v string) {
	b.setPresent(row)
	b.varVals[row] = []byte(v)
}

// Finish assembles and returns the fiber bytes. The builder must not be
// reused afterwards.
func (b *ColumnBuilder) Finish() []byte {
	bitmapLen := DataOffset(b.rowCapacity)
	if !b.typ.VariableLength() {
		out := make([]byte, bitmapLen+int64(len(b.fixed)))
		b.writeBitmap(out)
		copy(out[bitmapLen:], b.fixed)
		return out
	}
	pairsLen := int64(b.rowCapacity) * 8
	payloadLen := int64(0)
	for _, v := range b.varVals {
		payloadLen += int64(len(v))
	}
	out := make([]byte, bitmapLen+pairsLen+payloadLen)
	b.writeBitmap(out)
	payloadOff := bitmapLen + pairsLen
	for row, v := range b.varVals {
		pair := out[bitmapLen+int64(row)*8:]
		binary.LittleEndian.PutUint32(pair, uint32(len(v)))
		binary.LittleEndian.PutUint32(pair[4:], uint32(payloadOff))
		copy(out[payloadOff:], v)
		payloadOff += int64(len(v))
	}
	return out
}

func (b *ColumnBuilder) writeBitmap(out []byte) {
	for i, w := range b.nulls {
		binary.LittleEndian.PutUint64(out[i*8:], w)
	}
}
