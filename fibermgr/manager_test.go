// Copyright 2023 The FiberCache Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package fibermgr

import (
	"path/filepath"
	"testing"

	"github.com/fibercache/fibercache"
	"github.com/fibercache/fibercache/fibercol"
	"github.com/fibercache/fibercache/fiberio"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, total int64) (*Manager, *fibercache.MemoryManager) {
	mm, err := fibercache.Open(&fibercache.Options{
		Backend:         fibercache.OffHeap,
		TotalMemorySize: total,
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, mm.Stop()) })
	m, err := NewManager(Options{MemoryManager: mm})
	require.NoError(t, err)
	return m, mm
}

func dataKey(n uint64) FiberKey {
	return FiberKey{FileID: n, Group: 0, Column: 0, Kind: fibercache.DataFiber}
}

// loaderOf returns a Loader materializing size bytes and counts its calls.
func loaderOf(t *testing.T, mm *fibercache.MemoryManager, size int64, calls *int) Loader {
	return func() (*fibercache.FiberCache, error) {
		*calls++
		return mm.ToDataFiberCache(make([]byte, size))
	}
}

func TestManagerHitMiss(t *testing.T) {
	m, mm := newTestManager(t, 1<<20)

	calls := 0
	fc1, err := m.GetOrLoad(dataKey(1), 128, loaderOf(t, mm, 128, &calls))
	require.NoError(t, err)
	require.Equal(t, 1, calls)

	// Second lookup hits without loading, returning the same handle.
	fc2, err := m.GetOrLoad(dataKey(1), 128, loaderOf(t, mm, 128, &calls))
	require.NoError(t, err)
	require.Equal(t, 1, calls)
	require.Same(t, fc1, fc2)

	fc3 := m.Get(dataKey(1))
	require.Same(t, fc1, fc3)
	require.Nil(t, m.Get(dataKey(2)))

	snap := m.Metrics()
	require.Equal(t, int64(2), snap.Hits)
	require.Equal(t, int64(1), snap.Misses)
	require.Equal(t, 1, snap.Fibers)
	require.Equal(t, int64(128), snap.DataBytes)
	require.InDelta(t, 2.0/3.0, snap.HitRate(), 1e-9)
	fc1.Release()
	fc2.Release()
	fc3.Release()
	require.NoError(t, m.Close())
	require.Equal(t, int64(0), mm.MemoryUsed())
}

func TestManagerEvictionRespectsPins(t *testing.T) {
	// A small budget: the data region plus guardian headroom comes to
	// roughly 90KiB of the 100KiB total.
	m, mm := newTestManager(t, 100<<10)

	// Fill the cache with unpinned fibers.
	var calls int
	for i := uint64(0); i < 4; i++ {
		fc, err := m.GetOrLoad(dataKey(i), 16<<10, loaderOf(t, mm, 16<<10, &calls))
		require.NoError(t, err)
		fc.Release()
	}
	require.Equal(t, 4, m.Len())

	// Keep one fiber pinned and add enough to force eviction.
	pinned, err := m.GetOrLoad(dataKey(100), 40<<10, loaderOf(t, mm, 40<<10, &calls))
	require.NoError(t, err)
	other, err := m.GetOrLoad(dataKey(101), 40<<10, loaderOf(t, mm, 40<<10, &calls))
	require.NoError(t, err)
	other.Release()

	// The pinned fiber must still be resident and alive.
	require.False(t, pinned.Disposed())
	require.Same(t, pinned, func() *fibercache.FiberCache {
		fc := m.Get(dataKey(100))
		require.NotNil(t, fc)
		fc.Release()
		return fc
	}())
	require.Greater(t, m.Metrics().Evictions, int64(0))

	pinned.Release()
	if fc := m.Get(dataKey(101)); fc != nil {
		fc.Release()
	}
	require.NoError(t, m.Close())
	require.Equal(t, int64(0), mm.MemoryUsed())
}

func TestManagerEvictFile(t *testing.T) {
	m, mm := newTestManager(t, 1<<20)

	var calls int
	for file := uint64(1); file <= 2; file++ {
		for col := int32(0); col < 3; col++ {
			key := FiberKey{FileID: file, Column: col, Kind: fibercache.DataFiber}
			fc, err := m.GetOrLoad(key, 256, loaderOf(t, mm, 256, &calls))
			require.NoError(t, err)
			fc.Release()
		}
	}
	require.Equal(t, 6, m.Len())

	// A pinned fiber of the evicted file survives.
	pinnedKey := FiberKey{FileID: 1, Column: 0, Kind: fibercache.DataFiber}
	pinned := m.Get(pinnedKey)
	require.NotNil(t, pinned)

	require.Equal(t, 2, m.EvictFile(1))
	require.Equal(t, 4, m.Len())
	require.NotNil(t, func() *fibercache.FiberCache { fc := m.Get(pinnedKey); fc.Release(); return fc }())
	require.False(t, pinned.Disposed())

	pinned.Release()
	require.Equal(t, 1, m.EvictFile(1))
	require.Equal(t, 3, m.Len())
	require.Equal(t, 0, m.EvictFile(3))

	require.NoError(t, m.Close())
	require.Equal(t, int64(0), mm.MemoryUsed())
}

func TestManagerClosePinned(t *testing.T) {
	m, mm := newTestManager(t, 1<<20)

	var calls int
	fc, err := m.GetOrLoad(dataKey(1), 64, loaderOf(t, mm, 64, &calls))
	require.NoError(t, err)

	// Closing with an outstanding reference reports the leak but must not
	// free memory out from under the holder.
	require.Error(t, m.Close())
	require.False(t, fc.Disposed())
	fc.Release()
	require.True(t, fc.Disposed())
	require.Equal(t, int64(0), mm.MemoryUsed())
}

func TestCachedFile(t *testing.T) {
	m, mm := newTestManager(t, 1<<22)

	path := filepath.Join(t.TempDir(), "fibers")
	schema := []fibercol.DataType{fibercol.IntegerType}
	w, err := fiberio.NewWriter(path, schema, fiberio.Snappy)
	require.NoError(t, err)
	const rows = 64
	b, err := fibercol.NewColumnBuilder(fibercol.IntegerType, rows)
	require.NoError(t, err)
	for row := 0; row < rows; row++ {
		b.PutInt(row, int32(row*3))
	}
	require.NoError(t, w.WriteGroup(rows, []fiberio.Chunk{{Fiber: b.Finish()}}))
	w.SetIndex([]byte("idx"))
	require.NoError(t, w.Close())

	d, err := fiberio.Open(path, mm)
	require.NoError(t, err)
	cf := NewCachedFile(m, d, 7)

	fc1, err := cf.ReadColumnFiber(0, 0)
	require.NoError(t, err)
	fc2, err := cf.ReadColumnFiber(0, 0)
	require.NoError(t, err)
	require.Same(t, fc1, fc2)

	col, err := fibercol.NewColumnValues(fc1, rows, fibercol.IntegerType)
	require.NoError(t, err)
	for row := 0; row < rows; row++ {
		require.Equal(t, int32(row*3), col.GetInt(row))
	}

	idx1, err := cf.ReadIndexFiber()
	require.NoError(t, err)
	idx2, err := cf.ReadIndexFiber()
	require.NoError(t, err)
	require.Same(t, idx1, idx2)
	require.Equal(t, "idx", idx1.GetString(0, 3))

	snap := m.Metrics()
	require.Equal(t, int64(2), snap.Hits)
	require.Equal(t, int64(2), snap.Misses)
	require.Equal(t, 2, snap.Fibers)
	require.Greater(t, snap.IndexBytes, int64(0))

	fc1.Release()
	fc2.Release()
	idx1.Release()
	idx2.Release()
	require.NoError(t, cf.Close())
	require.NoError(t, m.Close())
	require.Equal(t, int64(0), mm.MemoryUsed())
}
