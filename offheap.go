// Copyright 2023 The FiberCache Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package fibercache

import (
	"sync/atomic"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/fibercache/fibercache/internal/base"
	"github.com/fibercache/fibercache/internal/invariants"
	"github.com/fibercache/fibercache/internal/manual"
)

// offHeapBudgetID is the sentinel identifier under which the off-heap
// backend acquires its whole budget from the host arbiter.
const offHeapBudgetID = "fibercache.offheap"

// offHeapAllocator serves fibers from memory outside the Go heap via
// internal/manual. The occupied size of a block always equals its requested
// size.
//
// The whole budget is acquired from the arbiter once at construction and
// released once at stop. Individual frees are not reported back, so the
// arbiter's ledger and the backend's own counter drift apart over the life
// of the process. This is a known accounting leak carried over from the
// design this backend reimplements; see DESIGN.md before "fixing" it.
type offHeapAllocator struct {
	logger   base.Logger
	arbiter  MemoryArbiter
	acquired int64
	used     atomic.Int64
	closed   invariants.CloseChecker
}

var _ allocator = (*offHeapAllocator)(nil)

func newOffHeapAllocator(arbiter MemoryArbiter, budget int64, logger base.Logger) (*offHeapAllocator, error) {
	if !arbiter.Acquire(offHeapBudgetID, budget) {
		return nil, errors.Newf(
			"fibercache: host arbiter refused %s of off-heap cache memory",
			base.FormatBytes(budget))
	}
	return &offHeapAllocator{logger: logger, arbiter: arbiter, acquired: budget}, nil
}

func (a *offHeapAllocator) kind() BackendKind { return OffHeap }

func purposeForKind(kind FiberKind) manual.Purpose {
	if kind == IndexFiber {
		return manual.IndexFiber
	}
	return manual.DataFiber
}

func (a *offHeapAllocator) allocateFiber(kind FiberKind, n int64) (memoryBlock, error) {
	a.closed.AssertNotClosed()
	buf := manual.New(purposeForKind(kind), int(n))
	a.used.Add(n)
	return memoryBlock{
		kind:     kind,
		ptr:      unsafe.Pointer(unsafe.SliceData(buf)),
		length:   n,
		occupied: n,
	}, nil
}

func (a *offHeapAllocator) free(b memoryBlock) {
	manual.Free(purposeForKind(b.kind), unsafe.Slice((*byte)(b.ptr), b.length))
	a.used.Add(-b.occupied)
}

func (a *offHeapAllocator) memoryUsed() int64 {
	return a.used.Load()
}

func (a *offHeapAllocator) stop() error {
	a.closed.Close()
	if leaked := a.used.Load(); leaked != 0 {
		a.logger.Errorf("fibercache: off-heap backend stopped with %s still allocated", base.FormatBytes(leaked))
	}
	a.arbiter.Release(a.acquired)
	return nil
}
