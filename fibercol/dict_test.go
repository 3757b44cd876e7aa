// Copyright 2023 The FiberCache Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package fibercol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDictionaryColumn(t *testing.T) {
	mm := newTestManager(t)
	defer func() { require.NoError(t, mm.Stop()) }()

	entries := []string{"alpha", "beta", "gamma", ""}
	db, err := NewColumnBuilder(BinaryType, len(entries))
	require.NoError(t, err)
	for i, e := range entries {
		db.PutString(i, e)
	}
	dict, err := NewDictionary(toFiber(t, mm, db.Finish()), len(entries))
	require.NoError(t, err)
	require.Equal(t, len(entries), dict.Len())

	const rows = 64
	cb, err := NewColumnBuilder(IntegerType, rows)
	require.NoError(t, err)
	for row := 0; row < rows; row++ {
		if row%7 == 6 {
			continue // null
		}
		cb.PutInt(row, int32(row%len(entries)))
	}
	col, err := NewDictionaryColumn(toFiber(t, mm, cb.Finish()), dict, rows, StringType)
	require.NoError(t, err)
	require.Equal(t, StringType, col.DataType())

	for row := 0; row < rows; row++ {
		if row%7 == 6 {
			require.True(t, col.IsNullAt(row))
			continue
		}
		require.False(t, col.IsNullAt(row))
		want := entries[row%len(entries)]
		require.Equal(t, want, col.GetString(row))
		require.Equal(t, []byte(want), append([]byte(nil), col.GetBytes(row)...))
	}
}

func TestDictionaryColumnRejectsFixedWidth(t *testing.T) {
	mm := newTestManager(t)
	defer func() { require.NoError(t, mm.Stop()) }()

	db, err := NewColumnBuilder(BinaryType, 1)
	require.NoError(t, err)
	db.PutBytes(0, []byte("x"))
	dict, err := NewDictionary(toFiber(t, mm, db.Finish()), 1)
	require.NoError(t, err)

	cb, err := NewColumnBuilder(IntegerType, 1)
	require.NoError(t, err)
	cb.PutInt(0, 0)
	codes := toFiber(t, mm, cb.Finish())

	_, err = NewDictionaryColumn(codes, dict, 1, LongType)
	require.Error(t, err)

	col, err := NewDictionaryColumn(codes, dict, 1, BinaryType)
	require.NoError(t, err)
	require.Panics(t, func() { col.GetLong(0) })
}
