// Copyright 2023 The FiberCache Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package fiberio

import (
	"encoding/binary"
	"io"
	"os"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/fibercache/fibercache"
	"github.com/fibercache/fibercache/fibercol"
	"github.com/fibercache/fibercache/internal/base"
	"github.com/fibercache/fibercache/internal/invariants"
)

// DataFile reads fibers out of one fiber file. The underlying file handle
// is shared by all callers reading different fibers of the file; each fiber
// read is a seek+readFully pair that must not interleave with another, so
// the pair is serialized under a mutex.
type DataFile struct {
	f      *os.File
	mm     *fibercache.MemoryManager
	meta   *fileMeta
	mu     sync.Mutex
	closed invariants.CloseChecker
}

// Open validates path's header and footer and returns a reader that
// materializes fibers through mm. A bad magic or an unknown version is a
// corruption error, never an empty result.
func Open(path string, mm *fibercache.MemoryManager) (*DataFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "fiberio: opening %q", path)
	}
	d := &DataFile{f: f, mm: mm}
	if err := d.readMeta(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return d, nil
}

func (d *DataFile) readMeta() error {
	stat, err := d.f.Stat()
	if err != nil {
		return errors.Wrap(err, "fiberio: stat")
	}
	if stat.Size() < headerLen+trailerLen {
		return base.CorruptionErrorf("fiberio: file of %d bytes is too small to be a fiber file", stat.Size())
	}
	var header [headerLen]byte
	if _, err := d.f.ReadAt(header[:], 0); err != nil {
		return errors.Wrap(err, "fiberio: reading header")
	}
	if string(header[:4]) != fileMagic {
		return base.CorruptionErrorf("fiberio: bad magic %q", header[:4])
	}
	if v := binary.LittleEndian.Uint16(header[4:]); v != formatVersion {
		return base.CorruptionErrorf("fiberio: unexpected format version %d (supported: %d)", v, formatVersion)
	}
	var trailer [trailerLen]byte
	if _, err := d.f.ReadAt(trailer[:], stat.Size()-trailerLen); err != nil {
		return errors.Wrap(err, "fiberio: reading trailer")
	}
	if string(trailer[4:]) != fileMagic {
		return base.CorruptionErrorf("fiberio: bad trailer magic %q", trailer[4:])
	}
	footerLen := int64(binary.LittleEndian.Uint32(trailer[:4]))
	if footerLen <= 0 || footerLen > stat.Size()-headerLen-trailerLen {
		return base.CorruptionErrorf("fiberio: footer length %d out of bounds", footerLen)
	}
	footer := make([]byte, footerLen)
	if _, err := d.f.ReadAt(footer, stat.Size()-trailerLen-footerLen); err != nil {
		return errors.Wrap(err, "fiberio: reading footer")
	}
	d.meta, err = decodeFileMeta(footer)
	return err
}

// Schema returns the file's column types.
func (d *DataFile) Schema() []fibercol.DataType { return d.meta.schema }

// NumGroups returns the number of row-groups in the file.
func (d *DataFile) NumGroups() int { return len(d.meta.groups) }

// GroupRowCount returns the number of rows in the given row-group.
func (d *DataFile) GroupRowCount(group int) int { return int(d.meta.groups[group].rowCount) }

// RowCount returns the file's total row count.
func (d *DataFile) RowCount() int {
	n := 0
	for i := range d.meta.groups {
		n += int(d.meta.groups[i].rowCount)
	}
	return n
}

// HasIndex reports whether an index fiber is stored in the file.
func (d *DataFile) HasIndex() bool { return d.meta.index.length != 0 }

// ColumnFiberSize returns the uncompressed size of one (column, row-group)
// fiber, without reading it.
func (d *DataFile) ColumnFiberSize(group, col int) int64 {
	return int64(d.meta.groups[group].columns[col].data.rawLen)
}

// IndexFiberSize returns the size of the index fiber, or zero if the file
// has none.
func (d *DataFile) IndexFiberSize() int64 { return int64(d.meta.index.rawLen) }

// readChunk reads and verifies one stored chunk, returning the compressed
// bytes without the checksum trailer. The whole seek+readFully pair runs
// under the file mutex.
func (d *DataFile) readChunk(meta chunkMeta) ([]byte, error) {
	buf := make([]byte, int(meta.length)+checksumLen)
	d.mu.Lock()
	_, err := d.f.Seek(meta.offset, io.SeekStart)
	if err == nil {
		_, err = io.ReadFull(d.f, buf)
	}
	d.mu.Unlock()
	if err != nil {
		return nil, errors.Wrapf(err, "fiberio: reading %d-byte chunk at offset %d", meta.length, meta.offset)
	}
	stored := buf[:meta.length]
	want := binary.LittleEndian.Uint64(buf[meta.length:])
	if got := xxhash.Sum64(stored); got != want {
		return nil, base.CorruptionErrorf(
			"fiberio: chunk at offset %d: checksum mismatch %x != %x", meta.offset, got, want)
	}
	return stored, nil
}

// materialize decompresses a verified chunk straight into a fresh data
// fiber block.
func (d *DataFile) materialize(meta chunkMeta) (*fibercache.FiberCache, error) {
	stored, err := d.readChunk(meta)
	if err != nil {
		return nil, err
	}
	fc, err := d.mm.GetEmptyDataFiberCache(int64(meta.rawLen))
	if err != nil {
		return nil, err
	}
	if err := d.meta.codec.DecompressInto(fc.GetBytes(0, int64(meta.rawLen)), stored); err != nil {
		fc.Release()
		return nil, err
	}
	return fc, nil
}

// ReadColumnFiber materializes the raw fiber bytes of one (column,
// row-group) pair into a data fiber cache. The caller owns the returned
// handle's reference.
func (d *DataFile) ReadColumnFiber(group, col int) (*fibercache.FiberCache, error) {
	d.closed.AssertNotClosed()
	return d.materialize(d.meta.groups[group].columns[col].data)
}

// ReadIndexFiber materializes the file's index fiber into an index fiber
// cache. The index chunk is stored uncompressed, so the bytes are read
// straight off the file into the block before the checksum is verified.
func (d *DataFile) ReadIndexFiber() (*fibercache.FiberCache, error) {
	d.closed.AssertNotClosed()
	meta := d.meta.index
	if meta.length == 0 {
		return nil, errors.Newf("fiberio: file has no index fiber")
	}
	fc, err := d.mm.ToIndexFiberCacheFromReader(d.f, meta.offset, int64(meta.length))
	if err != nil {
		return nil, err
	}
	var trailer [checksumLen]byte
	if _, err := d.f.ReadAt(trailer[:], meta.offset+int64(meta.length)); err != nil {
		fc.Release()
		return nil, errors.Wrap(err, "fiberio: reading index checksum")
	}
	want := binary.LittleEndian.Uint64(trailer[:])
	if got := xxhash.Sum64(fc.GetBytes(0, int64(meta.length))); got != want {
		fc.Release()
		return nil, base.CorruptionErrorf("fiberio: index fiber checksum mismatch %x != %x", got, want)
	}
	return fc, nil
}

// Column is one decoded column of one row-group: a reader over the fibers
// backing it. Release must be called once the column is no longer read.
type Column struct {
	Reader fibercol.ColumnReader
	fibers []*fibercache.FiberCache
}

// Release drops the column's fiber references.
func (c *Column) Release() {
	for _, fc := range c.fibers {
		fc.Release()
	}
	c.fibers = nil
}

// ReadColumn materializes and decodes one (column, row-group) pair,
// resolving dictionary encoding if present.
func (d *DataFile) ReadColumn(group, col int) (*Column, error) {
	d.closed.AssertNotClosed()
	meta := &d.meta.groups[group].columns[col]
	rowCount := int(d.meta.groups[group].rowCount)
	typ := d.meta.schema[col]

	dataFC, err := d.materialize(meta.data)
	if err != nil {
		return nil, err
	}
	switch meta.encoding {
	case PlainEncoding:
		reader, err := fibercol.NewColumnValues(dataFC, rowCount, typ)
		if err != nil {
			dataFC.Release()
			return nil, err
		}
		return &Column{Reader: reader, fibers: []*fibercache.FiberCache{dataFC}}, nil
	case DictionaryEncoding:
		dictFC, err := d.materialize(meta.dict)
		if err != nil {
			dataFC.Release()
			return nil, err
		}
		dict, err := fibercol.NewDictionary(dictFC, int(meta.dictEntries))
		if err == nil {
			var reader *fibercol.DictionaryColumn
			reader, err = fibercol.NewDictionaryColumn(dataFC, dict, rowCount, typ)
			if err == nil {
				return &Column{Reader: reader, fibers: []*fibercache.FiberCache{dataFC, dictFC}}, nil
			}
		}
		dataFC.Release()
		dictFC.Release()
		return nil, err
	default:
		dataFC.Release()
		return nil, base.CorruptionErrorf("fiberio: unknown column encoding %d", meta.encoding)
	}
}

// Close closes the underlying file. Fibers already materialized remain
// valid; they are owned by the memory manager, not the file.
func (d *DataFile) Close() error {
	d.closed.Close()
	return d.f.Close()
}
