// Copyright 2023 The FiberCache Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package fibercache

import (
	"sync/atomic"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/fibercache/fibercache/internal/invariants"
)

// FiberKind tags a fiber with the traffic class it belongs to. The mixed
// backend uses the tag to route a block back to the sub-backend that
// allocated it.
type FiberKind int8

const (
	// GeneralFiber is a fiber without a traffic class. General fibers cannot
	// be allocated or freed through the mixed backend.
	GeneralFiber FiberKind = iota
	// IndexFiber holds index bytes.
	IndexFiber
	// DataFiber holds column data bytes.
	DataFiber
)

// String implements fmt.Stringer.
func (k FiberKind) String() string {
	switch k {
	case GeneralFiber:
		return "general"
	case IndexFiber:
		return "index"
	case DataFiber:
		return "data"
	default:
		return "unknown"
	}
}

// memoryBlock is one raw allocation from a backend. A block is owned by
// exactly one FiberCache and is destroyed exactly once by the matching free.
type memoryBlock struct {
	// kind routes free to the correct sub-backend in mixed mode.
	kind FiberKind
	// ptr is the base address of the block.
	ptr unsafe.Pointer
	// length is the requested size in bytes.
	length int64
	// occupied is the number of bytes actually consumed by the allocation.
	// Always >= length; equality holds for the off-heap backend, while the
	// persistent-memory backend rounds requests up to a size class.
	occupied int64
	// off is the block's offset within the persistent-memory pool. Unused by
	// the off-heap backend.
	off int64
}

// FiberCache is a reference-counted handle to one fiber's bytes in a
// manually managed memory block.
//
// A handle starts with one reference owned by the caller that materialized
// it. Additional readers call Acquire/Release in pairs; the final Release
// returns the block to its backend. The typed getters perform no bounds
// checking: the caller is responsible for offset validity, a deliberate
// trade-off inherited from the raw-memory design. Calling a getter after the
// final Release is undefined behavior; invariant builds turn it into a
// panic.
type FiberCache struct {
	owner allocator
	block memoryBlock
	refs  atomic.Int32
	// disposed guards the block against a second free. It flips exactly once,
	// when the last reference is released.
	disposed atomic.Bool
}

func newFiberCache(owner allocator, block memoryBlock) *FiberCache {
	fc := &FiberCache{owner: owner, block: block}
	fc.refs.Store(1)
	return fc
}

// Acquire adds a reference to the handle. Every Acquire must be paired with
// a Release.
func (fc *FiberCache) Acquire() {
	if invariants.Enabled && fc.disposed.Load() {
		panic(errors.AssertionFailedf("fibercache: acquire of disposed fiber cache"))
	}
	fc.refs.Add(1)
}

// Release drops a reference. When the last reference is released the backing
// block is returned to the backend that allocated it. Releasing an
// already-disposed handle is a no-op in production builds and panics in
// invariant builds; it must never free the block twice.
func (fc *FiberCache) Release() {
	if fc.disposed.Load() {
		if invariants.Enabled {
			panic(errors.AssertionFailedf("fibercache: release of disposed fiber cache"))
		}
		return
	}
	if v := fc.refs.Add(-1); v == 0 {
		fc.disposed.Store(true)
		fc.owner.free(fc.block)
	} else if invariants.Enabled && v < 0 {
		panic(errors.AssertionFailedf("fibercache: fiber cache reference count fell below zero"))
	}
}

// Refs returns the current reference count. The value is inherently racy;
// it is meant for eviction decisions made while holding the cache manager's
// lock, and for tests.
func (fc *FiberCache) Refs() int32 {
	return fc.refs.Load()
}

// Disposed reports whether the backing block has been returned to its
// backend.
func (fc *FiberCache) Disposed() bool {
	return fc.disposed.Load()
}

// Kind returns the fiber's traffic class.
func (fc *FiberCache) Kind() FiberKind {
	return fc.block.kind
}

// Size returns the requested length of the backing block.
func (fc *FiberCache) Size() int64 {
	return fc.block.length
}

// OccupiedSize returns the bytes actually consumed by the backing block.
func (fc *FiberCache) OccupiedSize() int64 {
	return fc.block.occupied
}

func (fc *FiberCache) assertLive() {
	if invariants.Enabled && fc.disposed.Load() {
		panic(errors.AssertionFailedf("fibercache: read of disposed fiber cache"))
	}
}

func (fc *FiberCache) at(off int64) unsafe.Pointer {
	fc.assertLive()
	if invariants.Enabled {
		invariants.CheckBounds(off, fc.block.length)
	}
	return unsafe.Add(fc.block.ptr, off)
}

// GetBoolean reads the byte at off as a boolean.
func (fc *FiberCache) GetBoolean(off int64) bool {
	return *(*byte)(fc.at(off)) != 0
}

// GetByte reads the signed byte at off.
func (fc *FiberCache) GetByte(off int64) int8 {
	return *(*int8)(fc.at(off))
}

// GetShort reads the 16-bit integer at off.
func (fc *FiberCache) GetShort(off int64) int16 {
	return *(*int16)(fc.at(off))
}

// GetInt reads the 32-bit integer at off.
func (fc *FiberCache) GetInt(off int64) int32 {
	return *(*int32)(fc.at(off))
}

// GetLong reads the 64-bit integer at off.
func (fc *FiberCache) GetLong(off int64) int64 {
	return *(*int64)(fc.at(off))
}

// GetFloat reads the 32-bit float at off.
func (fc *FiberCache) GetFloat(off int64) float32 {
	return *(*float32)(fc.at(off))
}

// GetDouble reads the 64-bit float at off.
func (fc *FiberCache) GetDouble(off int64) float64 {
	return *(*float64)(fc.at(off))
}

// GetBytes returns the n bytes starting at off. The returned slice aliases
// the backing block; it must not be used after the handle is released.
func (fc *FiberCache) GetBytes(off, n int64) []byte {
	if n == 0 {
		fc.assertLive()
		return nil
	}
	return unsafe.Slice((*byte)(fc.at(off)), n)
}

// GetString returns the n bytes starting at off as a string. Zero-copy: the
// string aliases the backing block and must not outlive the handle.
func (fc *FiberCache) GetString(off, n int64) string {
	if n == 0 {
		fc.assertLive()
		return ""
	}
	return unsafe.String((*byte)(fc.at(off)), n)
}

// bytes returns the whole block as a writable slice. Used to fill a freshly
// allocated block; the contents must not be mutated once the handle is
// shared.
func (fc *FiberCache) bytes() []byte {
	return unsafe.Slice((*byte)(fc.at(0)), fc.block.length)
}
