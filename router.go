// Copyright 2023 The FiberCache Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package fibercache

import (
	"github.com/cockroachdb/errors"
	"github.com/fibercache/fibercache/internal/base"
)

// routerAllocator is the mixed backend: two independently constructed
// sub-backends of different kinds, one for index fibers and one for data
// fibers. The fiber kind tag on each block routes its free back to the
// sub-backend that allocated it.
type routerAllocator struct {
	logger base.Logger
	index  allocator
	data   allocator
}

var _ allocator = (*routerAllocator)(nil)

func newRouterAllocator(opts *Options, budget MemoryBudget) (*routerAllocator, error) {
	newSub := func(kind BackendKind, region int64) (allocator, error) {
		switch kind {
		case OffHeap:
			return newOffHeapAllocator(opts.Arbiter, region, opts.Logger)
		case PersistentMemory:
			return newPMemAllocator(opts)
		default:
			return nil, errors.AssertionFailedf("fibercache: unreachable mixed sub-backend %d", kind)
		}
	}
	index, err := newSub(opts.Mixed.IndexBackend, budget.Index)
	if err != nil {
		return nil, err
	}
	data, err := newSub(opts.Mixed.DataBackend, budget.Data+budget.Guardian)
	if err != nil {
		_ = index.stop()
		return nil, err
	}
	return &routerAllocator{logger: opts.Logger, index: index, data: data}, nil
}

func (r *routerAllocator) kind() BackendKind { return Mixed }

func (r *routerAllocator) allocateFiber(kind FiberKind, n int64) (memoryBlock, error) {
	switch kind {
	case IndexFiber:
		return r.index.allocateFiber(kind, n)
	case DataFiber:
		return r.data.allocateFiber(kind, n)
	default:
		// Callers must go through the index/data entry points; there is no
		// sub-backend for untagged fibers.
		return memoryBlock{}, errors.AssertionFailedf(
			"fibercache: cannot allocate %s fibers on the mixed backend", kind)
	}
}

func (r *routerAllocator) free(b memoryBlock) {
	switch b.kind {
	case IndexFiber:
		r.index.free(b)
	case DataFiber:
		r.data.free(b)
	default:
		// A block without an index/data tag cannot have come from either
		// sub-backend. Freeing it into the wrong allocator would corrupt
		// memory, so this is fatal.
		r.logger.Fatalf("fibercache: %s fiber block reached the mixed backend's free", b.kind)
	}
}

func (r *routerAllocator) memoryUsed() int64 {
	return r.index.memoryUsed() + r.data.memoryUsed()
}

func (r *routerAllocator) stop() error {
	return errors.CombineErrors(r.index.stop(), r.data.stop())
}
