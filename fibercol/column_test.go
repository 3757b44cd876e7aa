// Copyright 2023 The FiberCache Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package fibercol

import (
	"fmt"
	"math"
	"testing"

	"github.com/fibercache/fibercache"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *fibercache.MemoryManager {
	mm, err := fibercache.Open(&fibercache.Options{
		Backend:         fibercache.OffHeap,
		TotalMemorySize: 1 << 24,
	})
	require.NoError(t, err)
	return mm
}

// toFiber materializes builder output as a data fiber and schedules its
// release.
func toFiber(t *testing.T, mm *fibercache.MemoryManager, b []byte) *fibercache.FiberCache {
	fc, err := mm.ToDataFiberCache(b)
	require.NoError(t, err)
	t.Cleanup(fc.Release)
	return fc
}

func TestDataOffset(t *testing.T) {
	testCases := []struct {
		rowCapacity int
		want        int64
	}{
		{1, 8},
		{63, 8},
		{64, 8},
		{65, 16},
		{128, 16},
		{129, 24},
		{8192, 1024},
	}
	for _, tc := range testCases {
		require.Equal(t, tc.want, DataOffset(tc.rowCapacity), "DataOffset(%d)", tc.rowCapacity)
	}
}

func TestFixedWidthRoundTrip(t *testing.T) {
	mm := newTestManager(t)
	defer func() { require.NoError(t, mm.Stop()) }()

	const rows = 100
	put := map[DataType]func(b *ColumnBuilder, row int){
		BooleanType: func(b *ColumnBuilder, row int) { b.PutBoolean(row, row%3 == 0) },
		ByteType:    func(b *ColumnBuilder, row int) { b.PutByte(row, int8(row-50)) },
		ShortType:   func(b *ColumnBuilder, row int) { b.PutShort(row, int16(row*301-15000)) },
		IntegerType: func(b *ColumnBuilder, row int) { b.PutInt(row, int32(row*1_000_003)-50_000_000) },
		DateType:    func(b *ColumnBuilder, row int) { b.PutInt(row, int32(row+19000)) },
		LongType:    func(b *ColumnBuilder, row int) { b.PutLong(row, int64(row)*1_000_000_007-1e15) },
		FloatType:   func(b *ColumnBuilder, row int) { b.PutFloat(row, float32(row)/3) },
		DoubleType:  func(b *ColumnBuilder, row int) { b.PutDouble(row, float64(row)/7) },
	}
	check := map[DataType]func(t *testing.T, c *ColumnValues, row int){
		BooleanType: func(t *testing.T, c *ColumnValues, row int) { require.Equal(t, row%3 == 0, c.GetBoolean(row)) },
		ByteType:    func(t *testing.T, c *ColumnValues, row int) { require.Equal(t, int8(row-50), c.GetByte(row)) },
		ShortType: func(t *testing.T, c *ColumnValues, row int) {
			require.Equal(t, int16(row*301-15000), c.GetShort(row))
		},
		IntegerType: func(t *testing.T, c *ColumnValues, row int) {
			require.Equal(t, int32(row*1_000_003)-50_000_000, c.GetInt(row))
		},
		DateType: func(t *testing.T, c *ColumnValues, row int) { require.Equal(t, int32(row+19000), c.GetInt(row)) },
		LongType: func(t *testing.T, c *ColumnValues, row int) {
			require.Equal(t, int64(row)*1_000_000_007-1e15, c.GetLong(row))
		},
		FloatType:  func(t *testing.T, c *ColumnValues, row int) { require.Equal(t, float32(row)/3, c.GetFloat(row)) },
		DoubleType: func(t *testing.T, c *ColumnValues, row int) { require.Equal(t, float64(row)/7, c.GetDouble(row)) },
	}

	for typ, putFn := range put {
		t.Run(typ.String(), func(t *testing.T) {
			b, err := NewColumnBuilder(typ, rows)
			require.NoError(t, err)
			for row := 0; row < rows; row++ {
				if row%5 == 4 {
					continue // null
				}
				putFn(b, row)
			}
			col, err := NewColumnValues(toFiber(t, mm, b.Finish()), rows, typ)
			require.NoError(t, err)
			for row := 0; row < rows; row++ {
				if row%5 == 4 {
					require.True(t, col.IsNullAt(row), "row %d", row)
					continue
				}
				require.False(t, col.IsNullAt(row), "row %d", row)
				check[typ](t, col, row)
			}
		})
	}
}

func TestExtremeValues(t *testing.T) {
	mm := newTestManager(t)
	defer func() { require.NoError(t, mm.Stop()) }()

	b, err := NewColumnBuilder(LongType, 4)
	require.NoError(t, err)
	b.PutLong(0, math.MinInt64)
	b.PutLong(1, math.MaxInt64)
	b.PutLong(2, 0)
	b.PutLong(3, -1)
	col, err := NewColumnValues(toFiber(t, mm, b.Finish()), 4, LongType)
	require.NoError(t, err)
	require.Equal(t, int64(math.MinInt64), col.GetLong(0))
	require.Equal(t, int64(math.MaxInt64), col.GetLong(1))
	require.Equal(t, int64(0), col.GetLong(2))
	require.Equal(t, int64(-1), col.GetLong(3))

	d, err := NewColumnBuilder(DoubleType, 3)
	require.NoError(t, err)
	d.PutDouble(0, math.SmallestNonzeroFloat64)
	d.PutDouble(1, math.MaxFloat64)
	d.PutDouble(2, math.Inf(-1))
	dcol, err := NewColumnValues(toFiber(t, mm, d.Finish()), 3, DoubleType)
	require.NoError(t, err)
	require.Equal(t, math.SmallestNonzeroFloat64, dcol.GetDouble(0))
	require.Equal(t, math.MaxFloat64, dcol.GetDouble(1))
	require.True(t, math.IsInf(dcol.GetDouble(2), -1))
}

// TestNullBitmapBoundaries exercises the bitmap word seams, where the
// bit index wraps from one 64-bit word to the next.
func TestNullBitmapBoundaries(t *testing.T) {
	mm := newTestManager(t)
	defer func() { require.NoError(t, mm.Stop()) }()

	for _, rows := range []int{63, 64, 65, 127, 128, 129} {
		t.Run(fmt.Sprint(rows), func(t *testing.T) {
			b, err := NewColumnBuilder(IntegerType, rows)
			require.NoError(t, err)
			for row := 0; row < rows; row += 2 {
				b.PutInt(row, int32(row))
			}
			col, err := NewColumnValues(toFiber(t, mm, b.Finish()), rows, IntegerType)
			require.NoError(t, err)
			for row := 0; row < rows; row++ {
				require.Equal(t, row%2 == 1, col.IsNullAt(row), "row %d of %d", row, rows)
				if row%2 == 0 {
					require.Equal(t, int32(row), col.GetInt(row))
				}
			}
		})
	}
}

func TestVariableLengthRoundTrip(t *testing.T) {
	mm := newTestManager(t)
	defer func() { require.NoError(t, mm.Stop()) }()

	values := [][]byte{
		{},                       // empty value, distinct from null
		[]byte("a"),              // single byte
		[]byte("hello, fiber"),   // small
		make([]byte, 1<<16),      // large
		nil,                      // null (not written)
		[]byte("after the null"), // following entry unaffected
	}
	for i := range values[3] {
		values[3][i] = byte(i * 31)
	}

	b, err := NewColumnBuilder(BinaryType, len(values))
	require.NoError(t, err)
	for row, v := range values {
		if v == nil {
			continue
		}
		b.PutBytes(row, v)
	}
	col, err := NewColumnValues(toFiber(t, mm, b.Finish()), len(values), BinaryType)
	require.NoError(t, err)
	for row, v := range values {
		if v == nil {
			require.True(t, col.IsNullAt(row))
			continue
		}
		require.False(t, col.IsNullAt(row))
		require.Equal(t, v, append([]byte(nil), col.GetBytes(row)...), "row %d", row)
		require.Equal(t, len(v), len(col.GetString(row)))
	}
}

func TestUnsupportedTypesRejected(t *testing.T) {
	mm := newTestManager(t)
	defer func() { require.NoError(t, mm.Stop()) }()
	fc := toFiber(t, mm, make([]byte, 64))

	for _, typ := range []DataType{
		DecimalType, TimestampType, IntervalType, ArrayType, MapType, StructType,
	} {
		_, err := NewColumnValues(fc, 4, typ)
		require.ErrorContains(t, err, "not implemented", "%s", typ)
		_, err = NewColumnBuilder(typ, 4)
		require.ErrorContains(t, err, "not implemented", "%s", typ)
	}
}

func TestDataTypeFromString(t *testing.T) {
	for _, typ := range []DataType{
		BooleanType, ByteType, ShortType, IntegerType, LongType,
		FloatType, DoubleType, DateType, BinaryType, StringType,
	} {
		parsed, err := DataTypeFromString(typ.String())
		require.NoError(t, err)
		require.Equal(t, typ, parsed)
	}
	_, err := DataTypeFromString("decimal")
	require.Error(t, err)
	_, err = DataTypeFromString("uuid")
	require.Error(t, err)
}
