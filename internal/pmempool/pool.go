// Copyright 2023 The FiberCache Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

// Package pmempool implements a volatile memory pool backed by a file on a
// persistent-memory device. The pool is "volatile" in the sense that its
// contents do not survive the process: the backing file exists only to place
// the pages on the persistent-memory medium, mirroring memkind's PMEM kind.
//
// Allocations are rounded up to a size class, so the occupied size of an
// allocation may exceed the requested size. Freed extents are recycled
// through per-class free lists.
package pmempool

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/errors"
)

// poolFileName is the name of the backing file created under the configured
// persistent-memory directory. The file is unlinked immediately after it is
// mapped; the kernel reclaims the space when the pool is closed or the
// process exits.
const poolFileName = "fibercache.pool"

// alignment is the size-class quantum. Every allocation occupies a multiple
// of this many bytes.
const alignment = 64

// Pool is a volatile allocator over one file-backed memory mapping.
type Pool struct {
	dir  string
	data []byte

	mu struct {
		sync.Mutex
		next int64             // bump offset for fresh extents
		used int64             // occupied bytes currently allocated
		free map[int64][]int64 // size class -> free extent offsets
	}
}

// Open creates a pool of the given size backed by a file under dir. The
// directory must already exist and be writable; size must be positive.
func Open(dir string, size int64) (*Pool, error) {
	if size <= 0 {
		return nil, errors.Newf("pmempool: non-positive pool size %d", size)
	}
	path := filepath.Join(dir, poolFileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0600)
	if err != nil {
		return nil, errors.Wrapf(err, "pmempool: creating pool file in %q", dir)
	}
	if err := f.Truncate(size); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, errors.Wrapf(err, "pmempool: sizing pool file to %d bytes", size)
	}
	data, err := mmap(f, int(size))
	// The file descriptor is not needed once the mapping exists, and
	// unlinking the file lets the filesystem reclaim the space as soon as the
	// mapping goes away.
	_ = f.Close()
	_ = os.Remove(path)
	if err != nil {
		return nil, errors.Wrapf(err, "pmempool: mapping %d bytes from %q", size, dir)
	}
	p := &Pool{dir: dir, data: data}
	p.mu.free = make(map[int64][]int64)
	return p, nil
}

// classSize returns the occupied size for a request of n bytes.
func classSize(n int64) int64 {
	return (n + alignment - 1) &^ (alignment - 1)
}

// Alloc carves an extent of at least n bytes out of the pool. It returns the
// extent's offset within the pool and its occupied size, which is always
// >= n.
func (p *Pool) Alloc(n int64) (off int64, occupied int64, err error) {
	if n <= 0 {
		return 0, 0, errors.AssertionFailedf("pmempool: non-positive allocation size %d", n)
	}
	class := classSize(n)
	p.mu.Lock()
	defer p.mu.Unlock()
	if list := p.mu.free[class]; len(list) > 0 {
		off = list[len(list)-1]
		p.mu.free[class] = list[:len(list)-1]
		p.mu.used += class
		return off, class, nil
	}
	if p.mu.next+class > int64(len(p.data)) {
		return 0, 0, errors.Newf(
			"pmempool: out of persistent memory; requested %d bytes, %d of %d in use; "+
				"consider configuring a lower usable ratio",
			n, p.mu.used, len(p.data))
	}
	off = p.mu.next
	p.mu.next += class
	p.mu.used += class
	return off, class, nil
}

// Free returns the extent at off with the given occupied size to the pool.
// The occupied size must be exactly the value returned by Alloc.
func (p *Pool) Free(off, occupied int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mu.free[occupied] = append(p.mu.free[occupied], off)
	p.mu.used -= occupied
}

// Bytes returns the n bytes starting at off. The returned slice aliases the
// pool mapping.
func (p *Pool) Bytes(off, n int64) []byte {
	return p.data[off : off+n : off+n]
}

// Used returns the number of occupied bytes currently allocated.
func (p *Pool) Used() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mu.used
}

// Size returns the total capacity of the pool in bytes.
func (p *Pool) Size() int64 {
	return int64(len(p.data))
}

// Close unmaps the pool. All extents must have been freed or abandoned by
// the caller; any pointer into the pool is invalid after Close.
func (p *Pool) Close() error {
	data := p.data
	p.data = nil
	return munmap(data)
}
