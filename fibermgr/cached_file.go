// Copyright 2023 The FiberCache Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package fibermgr

import (
	"github.com/fibercache/fibercache"
	"github.com/fibercache/fibercache/fiberio"
)

// indexGroup marks a file's index fiber in a FiberKey.
const indexGroup = -1

// CachedFile reads a data file's fibers through the cache manager. Repeated
// reads of the same fiber hit the cache instead of the file.
type CachedFile struct {
	m  *Manager
	d  *fiberio.DataFile
	id uint64
}

// NewCachedFile wraps d. id must be unique among files sharing the manager;
// the caller assigns it.
func NewCachedFile(m *Manager, d *fiberio.DataFile, id uint64) *CachedFile {
	return &CachedFile{m: m, d: d, id: id}
}

// File returns the underlying data file.
func (f *CachedFile) File() *fiberio.DataFile { return f.d }

// ReadColumnFiber returns the raw fiber of one (column, row-group) pair,
// cached. The caller owns the returned reference.
func (f *CachedFile) ReadColumnFiber(group, col int) (*fibercache.FiberCache, error) {
	key := FiberKey{
		FileID: f.id,
		Group:  int32(group),
		Column: int32(col),
		Kind:   fibercache.DataFiber,
	}
	return f.m.GetOrLoad(key, f.d.ColumnFiberSize(group, col), func() (*fibercache.FiberCache, error) {
		return f.d.ReadColumnFiber(group, col)
	})
}

// ReadIndexFiber returns the file's index fiber, cached. The caller owns
// the returned reference.
func (f *CachedFile) ReadIndexFiber() (*fibercache.FiberCache, error) {
	key := FiberKey{FileID: f.id, Group: indexGroup, Kind: fibercache.IndexFiber}
	return f.m.GetOrLoad(key, f.d.IndexFiberSize(), func() (*fibercache.FiberCache, error) {
		return f.d.ReadIndexFiber()
	})
}

// Close evicts the file's unpinned fibers and closes the underlying file.
func (f *CachedFile) Close() error {
	f.m.EvictFile(f.id)
	return f.d.Close()
}
