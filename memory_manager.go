// Copyright 2023 The FiberCache Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

// Package fibercache implements a fiber-granularity off-heap cache for
// columnar data-file readers. Raw memory blocks are allocated outside the Go
// heap (or on a persistent-memory device), wrapped in reference-counted
// FiberCache handles, and handed to column decoders that read typed values
// directly out of the raw bytes.
package fibercache

import (
	"io"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/fibercache/fibercache/internal/base"
	"github.com/fibercache/fibercache/internal/invariants"
)

// MemoryArbiter is the host engine's global memory ledger. The cache layer
// treats it as the single source of truth for whether there is room for the
// configured budget; a failed Acquire at startup is fatal.
type MemoryArbiter interface {
	// Acquire asks for n bytes on behalf of budgetID. It returns false if
	// the arbiter cannot grant the request.
	Acquire(budgetID string, n int64) bool
	// Release returns n bytes to the arbiter.
	Release(n int64)
}

// FixedArbiter is a MemoryArbiter over a fixed capacity. It stands in for
// the host engine's arbiter in standalone deployments and tests.
type FixedArbiter struct {
	capacity int64
	mu       sync.Mutex
	used     int64
}

var _ MemoryArbiter = (*FixedArbiter)(nil)

// NewFixedArbiter returns an arbiter that grants requests until capacity is
// exhausted.
func NewFixedArbiter(capacity int64) *FixedArbiter {
	return &FixedArbiter{capacity: capacity}
}

// Acquire is part of the MemoryArbiter interface.
func (a *FixedArbiter) Acquire(budgetID string, n int64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.used+n > a.capacity {
		return false
	}
	a.used += n
	return true
}

// Release is part of the MemoryArbiter interface.
func (a *FixedArbiter) Release(n int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.used -= n
	if a.used < 0 {
		a.used = 0
	}
}

// Used returns the bytes currently recorded against the arbiter.
func (a *FixedArbiter) Used() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.used
}

// MemoryBudget is the static partition of the acquired byte budget into the
// three cache regions. Partitioning happens once per process lifetime,
// before any allocation.
type MemoryBudget struct {
	// Total is the byte budget acquired from the host arbiter.
	Total int64
	// Data is the region holding data fibers.
	Data int64
	// Index is the region holding index fibers.
	Index int64
	// Guardian is headroom reserved for in-flight eviction.
	Guardian int64
}

// computeBudget splits total into the guardian region and the cache region,
// then splits the cache region between data and index fibers. The three
// regions never sum to more than total.
func computeBudget(total int64, dataCacheRatio, guardianRatio float64) MemoryBudget {
	guardian := int64(float64(total) * guardianRatio)
	cache := total - guardian
	data := int64(float64(cache) * dataCacheRatio)
	return MemoryBudget{
		Total:    total,
		Data:     data,
		Index:    cache - data,
		Guardian: guardian,
	}
}

// allocator is the SPI shared by the backend variants. A backend hands out
// raw memory blocks and takes them back; everything above the block level
// (reference counting, typed reads) lives in FiberCache.
type allocator interface {
	kind() BackendKind
	// allocateFiber returns a block of at least n bytes tagged with the given
	// fiber kind. n must be positive.
	allocateFiber(kind FiberKind, n int64) (memoryBlock, error)
	// free returns a block to the backend. Exactly one free per block.
	free(b memoryBlock)
	// memoryUsed returns the occupied bytes currently allocated.
	memoryUsed() int64
	stop() error
}

// MemoryManager owns one allocator backend and the budget partition, and
// materializes byte sequences into FiberCache handles. Construct one per
// process or executor with Open and keep it for the process lifetime.
type MemoryManager struct {
	logger base.Logger
	budget MemoryBudget
	alloc  allocator
	closed invariants.CloseChecker
}

// Open constructs the memory manager selected by opts. It acquires the
// configured budget from the host arbiter and partitions it into the data,
// index and guardian regions. Configuration and acquisition failures are
// returned to the caller and should abort that component's initialization.
func Open(opts *Options) (*MemoryManager, error) {
	opts = opts.EnsureDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	budget := computeBudget(opts.TotalMemorySize, opts.DataCacheRatio, opts.GuardianRatio)
	m := &MemoryManager{logger: opts.Logger, budget: budget}
	var err error
	switch opts.Backend {
	case OffHeap:
		m.alloc, err = newOffHeapAllocator(opts.Arbiter, budget.Total, opts.Logger)
	case PersistentMemory:
		m.alloc, err = newPMemAllocator(opts)
	case Mixed:
		m.alloc, err = newRouterAllocator(opts, budget)
	default:
		err = errors.AssertionFailedf("fibercache: unreachable backend %d", opts.Backend)
	}
	if err != nil {
		return nil, err
	}
	m.logger.Infof("fibercache: %s memory manager open; data %s, index %s, guardian %s",
		m.alloc.kind(), base.FormatBytes(budget.Data), base.FormatBytes(budget.Index),
		base.FormatBytes(budget.Guardian))
	return m, nil
}

// Stop shuts the manager down, releasing the acquired budget back to the
// arbiter and tearing down backend resources. Outstanding FiberCache handles
// are invalid after Stop.
func (m *MemoryManager) Stop() error {
	m.closed.Close()
	return m.alloc.stop()
}

// ToDataFiberCache copies b into a freshly allocated data fiber block and
// returns its handle.
func (m *MemoryManager) ToDataFiberCache(b []byte) (*FiberCache, error) {
	return m.fill(DataFiber, b)
}

// ToIndexFiberCache copies b into a freshly allocated index fiber block and
// returns its handle.
func (m *MemoryManager) ToIndexFiberCache(b []byte) (*FiberCache, error) {
	return m.fill(IndexFiber, b)
}

// ToIndexFiberCacheFromReader materializes n bytes at off from r directly
// into a freshly allocated index fiber block, avoiding an intermediate copy.
func (m *MemoryManager) ToIndexFiberCacheFromReader(r io.ReaderAt, off, n int64) (*FiberCache, error) {
	fc, err := m.materialize(IndexFiber, n)
	if err != nil {
		return nil, err
	}
	if _, err := r.ReadAt(fc.bytes(), off); err != nil {
		fc.Release()
		return nil, errors.Wrapf(err, "fibercache: reading %d-byte index fiber at offset %d", n, off)
	}
	return fc, nil
}

// GetEmptyDataFiberCache allocates an uninitialized data fiber block of n
// bytes. The caller fills it through the handle before sharing it.
func (m *MemoryManager) GetEmptyDataFiberCache(n int64) (*FiberCache, error) {
	return m.materialize(DataFiber, n)
}

func (m *MemoryManager) fill(kind FiberKind, b []byte) (*FiberCache, error) {
	fc, err := m.materialize(kind, int64(len(b)))
	if err != nil {
		return nil, err
	}
	copy(fc.bytes(), b)
	return fc, nil
}

func (m *MemoryManager) materialize(kind FiberKind, n int64) (*FiberCache, error) {
	m.closed.AssertNotClosed()
	if n <= 0 {
		return nil, errors.Newf("fibercache: fiber size must be positive, got %d", n)
	}
	block, err := m.alloc.allocateFiber(kind, n)
	if err != nil {
		return nil, err
	}
	return newFiberCache(m.alloc, block), nil
}

// TotalCacheMemory returns the combined size of the data and index regions.
func (m *MemoryManager) TotalCacheMemory() int64 {
	return m.budget.Data + m.budget.Index
}

// DataCacheMemory returns the size of the data fiber region.
func (m *MemoryManager) DataCacheMemory() int64 {
	return m.budget.Data
}

// IndexCacheMemory returns the size of the index fiber region.
func (m *MemoryManager) IndexCacheMemory() int64 {
	return m.budget.Index
}

// CacheGuardianMemory returns the size of the eviction headroom region.
func (m *MemoryManager) CacheGuardianMemory() int64 {
	return m.budget.Guardian
}

// MemoryUsed returns the occupied bytes currently allocated across the
// manager's backends.
func (m *MemoryManager) MemoryUsed() int64 {
	return m.alloc.memoryUsed()
}

// Backend returns the kind of the active backend.
func (m *MemoryManager) Backend() BackendKind {
	return m.alloc.kind()
}
