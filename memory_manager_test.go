// Copyright 2023 The FiberCache Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package fibercache

import (
	"bytes"
	"fmt"
	"strconv"
	"testing"

	"github.com/cockroachdb/datadriven"
	"github.com/fibercache/fibercache/internal/invariants"
	"github.com/stretchr/testify/require"
)

func TestComputeBudget(t *testing.T) {
	datadriven.RunTest(t, "testdata/budget", func(t *testing.T, d *datadriven.TestData) string {
		switch d.Cmd {
		case "budget":
			var total int64
			var dataRatioStr, guardianRatioStr string
			d.ScanArgs(t, "total", &total)
			d.ScanArgs(t, "data-ratio", &dataRatioStr)
			d.ScanArgs(t, "guardian-ratio", &guardianRatioStr)
			dataRatio, err := strconv.ParseFloat(dataRatioStr, 64)
			require.NoError(t, err)
			guardianRatio, err := strconv.ParseFloat(guardianRatioStr, 64)
			require.NoError(t, err)
			b := computeBudget(total, dataRatio, guardianRatio)
			if b.Data+b.Index+b.Guardian > b.Total {
				t.Fatalf("regions exceed total: %+v", b)
			}
			return fmt.Sprintf("total=%d data=%d index=%d guardian=%d",
				b.Total, b.Data, b.Index, b.Guardian)
		default:
			return fmt.Sprintf("unknown command: %s", d.Cmd)
		}
	})
}

func newOffHeapManager(t *testing.T, total int64) (*MemoryManager, *FixedArbiter) {
	arbiter := NewFixedArbiter(total)
	mm, err := Open(&Options{
		Backend:         OffHeap,
		TotalMemorySize: total,
		Arbiter:         arbiter,
	})
	require.NoError(t, err)
	return mm, arbiter
}

func TestOffHeapRoundTrip(t *testing.T) {
	mm, arbiter := newOffHeapManager(t, 1<<20)
	require.Equal(t, OffHeap, mm.Backend())
	require.Equal(t, int64(1<<20), arbiter.Used())

	// A pseudo-random pattern long enough to cross several cache lines.
	payload := make([]byte, 10240)
	for i := range payload {
		payload[i] = byte(i*7 + 13)
	}
	fc, err := mm.ToDataFiberCache(payload)
	require.NoError(t, err)
	require.Equal(t, DataFiber, fc.Kind())
	require.Equal(t, int64(len(payload)), fc.Size())
	// The off-heap backend never rounds allocations up.
	require.Equal(t, fc.Size(), fc.OccupiedSize())
	require.Equal(t, int64(len(payload)), mm.MemoryUsed())

	require.True(t, bytes.Equal(payload, fc.GetBytes(0, int64(len(payload)))))
	for _, off := range []int64{0, 1, 63, 64, 4095, 10239} {
		require.Equal(t, int8(payload[off]), fc.GetByte(off))
	}

	fc.Release()
	require.True(t, fc.Disposed())
	require.Equal(t, int64(0), mm.MemoryUsed())

	require.NoError(t, mm.Stop())
	require.Equal(t, int64(0), arbiter.Used())
}

func TestFiberCacheRefCounting(t *testing.T) {
	mm, _ := newOffHeapManager(t, 1<<20)
	defer func() { require.NoError(t, mm.Stop()) }()

	fc, err := mm.ToDataFiberCache([]byte("hello fiber"))
	require.NoError(t, err)
	fc.Acquire()
	require.Equal(t, int32(2), fc.Refs())
	fc.Release()
	require.False(t, fc.Disposed())
	require.Equal(t, int64(11), mm.MemoryUsed())
	fc.Release()
	require.True(t, fc.Disposed())
	require.Equal(t, int64(0), mm.MemoryUsed())

	if invariants.Enabled {
		require.Panics(t, func() { fc.Release() })
	} else {
		// A second dispose must never reach the backend.
		fc.Release()
		require.Equal(t, int64(0), mm.MemoryUsed())
	}
}

func TestToIndexFiberCacheFromReader(t *testing.T) {
	mm, _ := newOffHeapManager(t, 1<<20)
	defer func() { require.NoError(t, mm.Stop()) }()

	backing := []byte("....index bytes living at offset four....")
	fc, err := mm.ToIndexFiberCacheFromReader(bytes.NewReader(backing), 4, 11)
	require.NoError(t, err)
	defer fc.Release()
	require.Equal(t, IndexFiber, fc.Kind())
	require.Equal(t, "index bytes", fc.GetString(0, 11))
}

func TestMaterializeRejectsEmptyFiber(t *testing.T) {
	mm, _ := newOffHeapManager(t, 1<<20)
	defer func() { require.NoError(t, mm.Stop()) }()

	_, err := mm.ToDataFiberCache(nil)
	require.Error(t, err)
	_, err = mm.GetEmptyDataFiberCache(0)
	require.Error(t, err)
	_, err = mm.GetEmptyDataFiberCache(-1)
	require.Error(t, err)
}

func TestArbiterRefusesBudget(t *testing.T) {
	arbiter := NewFixedArbiter(1 << 10)
	_, err := Open(&Options{
		Backend:         OffHeap,
		TotalMemorySize: 1 << 20,
		Arbiter:         arbiter,
	})
	require.Error(t, err)
	require.Equal(t, int64(0), arbiter.Used())
}

func TestMixedBackendRouting(t *testing.T) {
	dir := t.TempDir()
	mm, err := Open(&Options{
		Backend:              Mixed,
		TotalMemorySize:      1 << 22,
		SeparateIndexAndData: true,
		Mixed: MixedOptions{
			IndexBackend: OffHeap,
			DataBackend:  PersistentMemory,
		},
		PMem: PMemOptions{
			Dirs:        []string{dir},
			InitialSize: 1 << 22,
			NUMANode:    new(int),
		},
	})
	require.NoError(t, err)
	require.Equal(t, Mixed, mm.Backend())

	idx, err := mm.ToIndexFiberCache([]byte("index payload"))
	require.NoError(t, err)
	data, err := mm.ToDataFiberCache([]byte("data payload"))
	require.NoError(t, err)

	require.Equal(t, IndexFiber, idx.Kind())
	require.Equal(t, DataFiber, data.Kind())
	// The off-heap side is exact; the persistent-memory side rounds up.
	require.Equal(t, idx.Size(), idx.OccupiedSize())
	require.GreaterOrEqual(t, data.OccupiedSize(), data.Size())
	require.Equal(t, idx.OccupiedSize()+data.OccupiedSize(), mm.MemoryUsed())

	// Untagged fibers have no sub-backend to land on.
	_, err = mm.alloc.allocateFiber(GeneralFiber, 16)
	require.Error(t, err)

	idx.Release()
	data.Release()
	require.Equal(t, int64(0), mm.MemoryUsed())
	require.NoError(t, mm.Stop())
}

func TestPMemBackendOccupiedRounding(t *testing.T) {
	dir := t.TempDir()
	mm, err := Open(&Options{
		Backend:         PersistentMemory,
		TotalMemorySize: 1 << 22,
		PMem: PMemOptions{
			Dirs:         []string{dir},
			InitialSize:  1 << 22,
			ReservedSize: 1 << 16,
			NUMANode:     new(int),
		},
	})
	require.NoError(t, err)

	fc, err := mm.ToDataFiberCache([]byte("shorter than a size class"))
	require.NoError(t, err)
	require.Greater(t, fc.OccupiedSize(), fc.Size())
	require.Equal(t, fc.OccupiedSize(), mm.MemoryUsed())

	fc.Release()
	require.Equal(t, int64(0), mm.MemoryUsed())
	require.NoError(t, mm.Stop())
}
