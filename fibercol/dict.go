// Copyright 2023 The FiberCache Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package fibercol

import (
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/fibercache/fibercache"
)

// Dictionary holds the distinct values of a dictionary-encoded column. The
// values live in their own fiber, laid out as a variable-length column of
// entryCount rows. Materialization into a Go slice is memoized lazily; a
// racing rebuild computes the same slice and is harmless, so no cross-thread
// handoff beyond the atomic pointer is needed.
type Dictionary struct {
	col  *ColumnValues
	n    int
	memo atomic.Pointer[[][]byte]
}

// NewDictionary wraps a dictionary fiber of entryCount values.
func NewDictionary(fc *fibercache.FiberCache, entryCount int) (*Dictionary, error) {
	col, err := NewColumnValues(fc, entryCount, BinaryType)
	if err != nil {
		return nil, err
	}
	return &Dictionary{col: col, n: entryCount}, nil
}

// Len returns the number of dictionary entries.
func (d *Dictionary) Len() int { return d.n }

// Value returns the dictionary entry for code. The returned bytes are owned
// by the dictionary and must not be mutated.
func (d *Dictionary) Value(code int32) []byte {
	vals := d.memo.Load()
	if vals == nil {
		material := make([][]byte, d.n)
		for i := range material {
			material[i] = append([]byte(nil), d.col.GetBytes(i)...)
		}
		d.memo.Store(&material)
		vals = &material
	}
	return (*vals)[code]
}

// DictionaryColumn decodes a dictionary-encoded variable-length column: the
// fiber holds 32-bit codes in the fixed-width layout, and the dictionary
// resolves each code to its value.
type DictionaryColumn struct {
	typ   DataType
	codes *ColumnValues
	dict  *Dictionary
}

var _ ColumnReader = (*DictionaryColumn)(nil)

// NewDictionaryColumn composes a code fiber and a dictionary into a
// variable-length column reader of the given type.
func NewDictionaryColumn(
	codes *fibercache.FiberCache, dict *Dictionary, rowCapacity int, typ DataType,
) (*DictionaryColumn, error) {
	if !typ.VariableLength() {
		return nil, errors.Newf("fibercol: dictionary encoding of %s columns is not implemented", typ)
	}
	codeCol, err := NewColumnValues(codes, rowCapacity, IntegerType)
	if err != nil {
		return nil, err
	}
	return &DictionaryColumn{typ: typ, codes: codeCol, dict: dict}, nil
}

// DataType returns the column's logical type.
func (c *DictionaryColumn) DataType() DataType { return c.typ }

// IsNullAt reports whether the value at row is null.
func (c *DictionaryColumn) IsNullAt(row int) bool { return c.codes.IsNullAt(row) }

// GetBytes returns the value at row.
func (c *DictionaryColumn) GetBytes(row int) []byte {
	return c.dict.Value(c.codes.GetInt(row))
}

// GetString returns the value at row.
func (c *DictionaryColumn) GetString(row int) string {
	return string(c.dict.Value(c.codes.GetInt(row)))
}

// The fixed-width getters do not apply to dictionary-encoded columns.

func (c *DictionaryColumn) GetBoolean(row int) bool { panic(errDictFixed(c.typ)) }
func (c *DictionaryColumn) GetByte(row int) int8    { panic(errDictFixed(c.typ)) }
func (c *DictionaryColumn) GetShort(row int) int16  { panic(errDictFixed(c.typ)) }
func (c *DictionaryColumn) GetInt(row int) int32    { panic(errDictFixed(c.typ)) }
func (c *DictionaryColumn) GetLong(row int) int64   { panic(errDictFixed(c.typ)) }
func (c *DictionaryColumn) GetFloat(row int) float32 {
	panic(errDictFixed(c.typ))
}
func (c *DictionaryColumn) GetDouble(row int) float64 {
	panic(errDictFixed(c.typ))
}

func errDictFixed(typ DataType) error {
	return errors.AssertionFailedf("fibercol: fixed-width read of dictionary-encoded %s column", typ)
}
