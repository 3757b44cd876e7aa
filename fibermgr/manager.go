// Copyright 2023 The FiberCache Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

// Package fibermgr caches materialized fibers across reads.
//
// The memory manager hands out fiber blocks; this package decides which
// fibers stay resident. Fibers are keyed by (file, row-group, column) and
// held with one cache-owned reference. Readers that hit the cache acquire
// their own reference, so an evicted fiber stays alive until its last
// reader releases it.
package fibermgr

import (
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/crlib/crtime"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/swiss"
	"github.com/fibercache/fibercache"
	"github.com/fibercache/fibercache/internal/base"
	"github.com/fibercache/fibercache/internal/invariants"
	"github.com/fibercache/fibercache/internal/rate"
)

// FiberKey identifies one cached fiber.
type FiberKey struct {
	// FileID identifies the data file; the caller assigns it.
	FileID uint64
	// Group is the row-group ordinal within the file. It is -1 for a file's
	// index fiber.
	Group int32
	// Column is the column ordinal within the group.
	Column int32
	// Kind routes the fiber to its cache region.
	Kind fibercache.FiberKind
}

// Loader materializes a fiber on a cache miss. It returns a handle whose
// single reference is transferred to the caller of GetOrLoad.
type Loader func() (*fibercache.FiberCache, error)

// entry is one resident fiber. Entries form an intrusive LRU list; prev and
// next are guarded by the manager mutex.
type entry struct {
	key        FiberKey
	fc         *fibercache.FiberCache
	size       int64
	lastAccess crtime.Mono
	prev, next *entry
}

// Options configures a Manager.
type Options struct {
	// MemoryManager backs all fiber allocations. Required.
	MemoryManager *fibercache.MemoryManager
	// Logger defaults to base.DefaultLogger.
	Logger base.Logger
	// LoadBytesPerSec paces cache-miss loads, in uncompressed bytes per
	// second. Zero disables pacing.
	LoadBytesPerSec float64
	// LoadBurstBytes is the pacing burst. Defaults to LoadBytesPerSec.
	LoadBurstBytes float64
}

// Manager is the fiber cache manager. It is safe for concurrent use.
type Manager struct {
	mm      *fibercache.MemoryManager
	logger  base.Logger
	limiter *rate.Limiter

	mu struct {
		sync.Mutex
		entries swiss.Map[FiberKey, *entry]
		// lru is ordered most-recently-used first. Both pointers are nil when
		// the cache is empty.
		lruHead *entry
		lruTail *entry
		// usedData and usedIndex account the occupied bytes of resident
		// fibers per region.
		usedData  int64
		usedIndex int64
	}

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64

	closed invariants.CloseChecker
}

// NewManager returns a Manager caching fibers allocated through
// opts.MemoryManager.
func NewManager(opts Options) (*Manager, error) {
	if opts.MemoryManager == nil {
		return nil, errors.Newf("fibermgr: memory manager is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = base.DefaultLogger
	}
	m := &Manager{mm: opts.MemoryManager, logger: logger}
	if opts.LoadBytesPerSec > 0 {
		burst := opts.LoadBurstBytes
		if burst <= 0 {
			burst = opts.LoadBytesPerSec
		}
		m.limiter = rate.NewLimiter(opts.LoadBytesPerSec, burst)
	}
	m.mu.entries.Init(128)
	return m, nil
}

// GetOrLoad returns the cached fiber for key, loading it via load on a
// miss. size is the fiber's uncompressed length, used for pacing; it may be
// zero if unknown. The returned handle carries one reference owned by the
// caller, which must Release it.
func (m *Manager) GetOrLoad(key FiberKey, size int64, load Loader) (*fibercache.FiberCache, error) {
	m.closed.AssertNotClosed()
	m.mu.Lock()
	if e, ok := m.mu.entries.Get(key); ok {
		e.fc.Acquire()
		e.lastAccess = crtime.NowMono()
		m.moveToFront(e)
		m.mu.Unlock()
		m.hits.Add(1)
		return e.fc, nil
	}
	m.mu.Unlock()

	m.misses.Add(1)
	if m.limiter != nil && size > 0 {
		m.limiter.Wait(float64(size))
	}
	fc, err := load()
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if e, ok := m.mu.entries.Get(key); ok {
		// A racing loader won the insert. Use its fiber and drop ours.
		e.fc.Acquire()
		e.lastAccess = crtime.NowMono()
		m.moveToFront(e)
		m.mu.Unlock()
		fc.Release()
		return e.fc, nil
	}
	fc.Acquire() // cache-owned reference
	e := &entry{key: key, fc: fc, size: fc.OccupiedSize(), lastAccess: crtime.NowMono()}
	m.mu.entries.Put(key, e)
	m.pushFront(e)
	m.addUsed(key.Kind, e.size)
	m.evictLocked(key.Kind)
	m.mu.Unlock()
	return fc, nil
}

// Get returns the cached fiber for key without loading, or nil. A non-nil
// handle carries a caller-owned reference.
func (m *Manager) Get(key FiberKey) *fibercache.FiberCache {
	m.closed.AssertNotClosed()
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.mu.entries.Get(key)
	if !ok {
		return nil
	}
	e.fc.Acquire()
	e.lastAccess = crtime.NowMono()
	m.moveToFront(e)
	m.hits.Add(1)
	return e.fc
}

// regionBudget returns the memory budget of kind's cache region. The data
// region absorbs the guardian headroom, matching the mixed backend's
// partitioning.
func (m *Manager) regionBudget(kind fibercache.FiberKind) int64 {
	switch kind {
	case fibercache.IndexFiber:
		return m.mm.IndexCacheMemory()
	default:
		return m.mm.DataCacheMemory() + m.mm.CacheGuardianMemory()
	}
}

func (m *Manager) usedLocked(kind fibercache.FiberKind) int64 {
	if kind == fibercache.IndexFiber {
		return m.mu.usedIndex
	}
	return m.mu.usedData
}

func (m *Manager) addUsed(kind fibercache.FiberKind, n int64) {
	if kind == fibercache.IndexFiber {
		m.mu.usedIndex += n
	} else {
		m.mu.usedData += n
	}
}

// evictLocked walks the LRU tail releasing unpinned fibers of the given
// kind until the region fits its budget. Pinned fibers (any reference
// beyond the cache's own) are skipped; if everything resident is pinned the
// region is allowed to stay over budget.
func (m *Manager) evictLocked(kind fibercache.FiberKind) {
	budget := m.regionBudget(kind)
	e := m.mu.lruTail
	for e != nil && m.usedLocked(kind) > budget {
		prev := e.prev
		if e.key.Kind == kind && e.fc.Refs() == 1 {
			m.removeLocked(e)
			m.evictions.Add(1)
		}
		e = prev
	}
}

// removeLocked unlinks e and drops the cache-owned reference.
func (m *Manager) removeLocked(e *entry) {
	m.mu.entries.Delete(e.key)
	m.unlink(e)
	m.addUsed(e.key.Kind, -e.size)
	e.fc.Release()
}

// EvictFile drops every unpinned resident fiber of the given file. It
// returns the number of fibers evicted; pinned fibers stay resident.
func (m *Manager) EvictFile(fileID uint64) int {
	m.closed.AssertNotClosed()
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for e := m.mu.lruHead; e != nil; {
		next := e.next
		if e.key.FileID == fileID && e.fc.Refs() == 1 {
			m.removeLocked(e)
			m.evictions.Add(1)
			n++
		}
		e = next
	}
	return n
}

// Len returns the number of resident fibers.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mu.entries.Len()
}

// Close releases every cache-owned reference. Fibers still pinned by
// readers survive until their holders release them; Close reports how many
// were left pinned.
func (m *Manager) Close() error {
	m.closed.Close()
	m.mu.Lock()
	defer m.mu.Unlock()
	pinned := 0
	for e := m.mu.lruHead; e != nil; {
		next := e.next
		if e.fc.Refs() > 1 {
			pinned++
		}
		m.removeLocked(e)
		e = next
	}
	if pinned > 0 {
		m.logger.Errorf("fibermgr: closed with %d fiber(s) still pinned", pinned)
		return errors.Newf("fibermgr: %d fiber(s) still pinned at close", pinned)
	}
	return nil
}

func (m *Manager) pushFront(e *entry) {
	e.prev = nil
	e.next = m.mu.lruHead
	if m.mu.lruHead != nil {
		m.mu.lruHead.prev = e
	}
	m.mu.lruHead = e
	if m.mu.lruTail == nil {
		m.mu.lruTail = e
	}
}

func (m *Manager) unlink(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		m.mu.lruHead = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		m.mu.lruTail = e.prev
	}
	e.prev, e.next = nil, nil
}

func (m *Manager) moveToFront(e *entry) {
	if m.mu.lruHead == e {
		return
	}
	m.unlink(e)
	m.pushFront(e)
}
