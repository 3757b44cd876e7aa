// Copyright 2023 The FiberCache Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package fiberio

import (
	"encoding/binary"
	"os"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/fibercache/fibercache/fibercol"
	"github.com/fibercache/fibercache/internal/invariants"
)

// Chunk is one column's contribution to a row-group handed to the writer:
// the fiber bytes, plus an optional dictionary fiber for dictionary-encoded
// columns.
type Chunk struct {
	// Fiber is the column's fiber bytes in the fibercol layout. Under
	// DictionaryEncoding, it holds the 32-bit codes.
	Fiber []byte
	// Dict, if non-nil, is a variable-length fiber holding DictEntries
	// distinct values; its presence selects DictionaryEncoding.
	Dict        []byte
	DictEntries int
}

// Writer produces a fiber file in one pass. Groups are appended with
// WriteGroup; Close writes the footer.
type Writer struct {
	f      *os.File
	codec  Codec
	meta   fileMeta
	off    int64
	index  []byte
	buf    []byte // compression scratch
	closed invariants.CloseChecker
}

// NewWriter creates a fiber file at path with the given column schema and
// codec.
func NewWriter(path string, schema []fibercol.DataType, codec Codec) (*Writer, error) {
	if !codec.valid() {
		return nil, errors.Newf("fiberio: unknown compression codec %d", codec)
	}
	if len(schema) == 0 {
		return nil, errors.Newf("fiberio: schema must have at least one column")
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "fiberio: creating %q", path)
	}
	var header [headerLen]byte
	copy(header[:], fileMagic)
	binary.LittleEndian.PutUint16(header[4:], formatVersion)
	if _, err := f.Write(header[:]); err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "fiberio: writing header to %q", path)
	}
	w := &Writer{f: f, codec: codec, off: headerLen}
	w.meta.codec = codec
	w.meta.schema = append([]fibercol.DataType(nil), schema...)
	return w, nil
}

// WriteGroup appends one row-group. chunks must have one entry per schema
// column.
func (w *Writer) WriteGroup(rowCount int, chunks []Chunk) error {
	w.closed.AssertNotClosed()
	if len(chunks) != len(w.meta.schema) {
		return errors.Newf("fiberio: group has %d chunks, schema has %d columns",
			len(chunks), len(w.meta.schema))
	}
	if rowCount <= 0 {
		return errors.Newf("fiberio: row count must be positive, got %d", rowCount)
	}
	g := groupMeta{rowCount: int32(rowCount), columns: make([]columnChunkMeta, len(chunks))}
	for i, c := range chunks {
		data, err := w.writeChunk(c.Fiber)
		if err != nil {
			return err
		}
		g.columns[i] = columnChunkMeta{encoding: PlainEncoding, data: data}
		if c.Dict != nil {
			dict, err := w.writeChunk(c.Dict)
			if err != nil {
				return err
			}
			g.columns[i].encoding = DictionaryEncoding
			g.columns[i].dict = dict
			g.columns[i].dictEntries = int32(c.DictEntries)
		}
	}
	w.meta.groups = append(w.meta.groups, g)
	return nil
}

// SetIndex records an index fiber to be stored alongside the column data.
// The index chunk is written uncompressed so readers can materialize it
// straight off the file into an index fiber cache.
func (w *Writer) SetIndex(b []byte) {
	w.index = append([]byte(nil), b...)
}

// writeChunk compresses b, appends the checksum trailer, and writes it at
// the current offset.
func (w *Writer) writeChunk(b []byte) (chunkMeta, error) {
	compressed, err := w.codec.Compress(w.buf[:0], b)
	if err != nil {
		return chunkMeta{}, err
	}
	w.buf = compressed[:0]
	return w.writeRawChunk(compressed, len(b))
}

func (w *Writer) writeRawChunk(stored []byte, rawLen int) (chunkMeta, error) {
	meta := chunkMeta{offset: w.off, length: int32(len(stored)), rawLen: int32(rawLen)}
	var trailer [checksumLen]byte
	binary.LittleEndian.PutUint64(trailer[:], xxhash.Sum64(stored))
	if _, err := w.f.Write(stored); err != nil {
		return chunkMeta{}, errors.Wrap(err, "fiberio: writing chunk")
	}
	if _, err := w.f.Write(trailer[:]); err != nil {
		return chunkMeta{}, errors.Wrap(err, "fiberio: writing chunk checksum")
	}
	w.off += int64(len(stored)) + checksumLen
	return meta, nil
}

// Close writes the index chunk and footer and closes the file.
func (w *Writer) Close() error {
	w.closed.Close()
	if w.index != nil {
		meta, err := w.writeRawChunk(w.index, len(w.index))
		if err != nil {
			_ = w.f.Close()
			return err
		}
		w.meta.index = meta
	}
	footer := w.meta.encode()
	if _, err := w.f.Write(footer); err != nil {
		_ = w.f.Close()
		return errors.Wrap(err, "fiberio: writing footer")
	}
	var trailer [trailerLen]byte
	binary.LittleEndian.PutUint32(trailer[:4], uint32(len(footer)))
	copy(trailer[4:], fileMagic)
	if _, err := w.f.Write(trailer[:]); err != nil {
		_ = w.f.Close()
		return errors.Wrap(err, "fiberio: writing trailer")
	}
	if err := w.f.Sync(); err != nil {
		_ = w.f.Close()
		return errors.Wrap(err, "fiberio: syncing")
	}
	return w.f.Close()
}
