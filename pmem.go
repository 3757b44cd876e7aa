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
	"github.com/fibercache/fibercache/internal/pmempool"
)

// pmemAllocator serves fibers from a volatile pool placed on a
// persistent-memory device. The pool allocator rounds requests up to a size
// class, so a block's occupied size may exceed its requested size; this is
// the defining difference from the off-heap backend and the reason occupied
// sizes must be tracked per block.
type pmemAllocator struct {
	logger base.Logger
	pool   *pmempool.Pool
	used   atomic.Int64
	closed invariants.CloseChecker
}

var _ allocator = (*pmemAllocator)(nil)

func newPMemAllocator(opts *Options) (*pmemAllocator, error) {
	dir := selectPMemDir(opts)
	poolSize := opts.PMem.InitialSize - opts.PMem.ReservedSize
	pool, err := pmempool.Open(dir, poolSize)
	if err != nil {
		return nil, errors.Wrap(err, "fibercache: initializing persistent memory")
	}
	opts.Logger.Infof("fibercache: persistent memory pool of %s open under %q",
		base.FormatBytes(poolSize), dir)
	return &pmemAllocator{logger: opts.Logger, pool: pool}, nil
}

// selectPMemDir picks the persistent-memory directory for this executor.
// An explicitly configured NUMA node wins; otherwise the node is derived
// from the executor ID, which is a best-effort heuristic rather than a
// placement guarantee.
func selectPMemDir(opts *Options) string {
	dirs := opts.PMem.Dirs
	var node int
	if opts.PMem.NUMANode != nil {
		node = *opts.PMem.NUMANode
	} else {
		total := pmempool.NumNodes()
		node = opts.ExecutorID % total
		opts.Logger.Infof(
			"fibercache: persistent memory NUMA node not configured; falling back to executor %d mod %d nodes = node %d",
			opts.ExecutorID, total, node)
	}
	return dirs[node%len(dirs)]
}

func (a *pmemAllocator) kind() BackendKind { return PersistentMemory }

func (a *pmemAllocator) allocateFiber(kind FiberKind, n int64) (memoryBlock, error) {
	a.closed.AssertNotClosed()
	off, occupied, err := a.pool.Alloc(n)
	if err != nil {
		return memoryBlock{}, err
	}
	a.used.Add(occupied)
	return memoryBlock{
		kind:     kind,
		ptr:      unsafe.Pointer(unsafe.SliceData(a.pool.Bytes(off, occupied))),
		length:   n,
		occupied: occupied,
		off:      off,
	}, nil
}

func (a *pmemAllocator) free(b memoryBlock) {
	a.pool.Free(b.off, b.occupied)
	a.used.Add(-b.occupied)
}

func (a *pmemAllocator) memoryUsed() int64 {
	return a.used.Load()
}

// stop unmaps the pool. The original design left persistent-memory teardown
// undefined; we close the mapping explicitly so that repeated open/stop
// cycles within one process do not pin device space.
func (a *pmemAllocator) stop() error {
	a.closed.Close()
	if leaked := a.used.Load(); leaked != 0 {
		a.logger.Errorf("fibercache: persistent memory backend stopped with %s still allocated",
			base.FormatBytes(leaked))
	}
	return a.pool.Close()
}
