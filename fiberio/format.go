// Copyright 2023 The FiberCache Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

// Package fiberio reads and writes the on-disk fiber container format.
//
// A fiber file holds the columns of a table partitioned into row-groups.
// Each (column, row-group) pair is stored as one chunk: the fiber bytes in
// the fibercol layout, compressed with the file's codec and followed by an
// 8-byte xxhash64 checksum of the compressed bytes. All metadata lives in a
// footer so files can be written in one pass:
//
//	+----------------------------+
//	| header: magic, version     |
//	+----------------------------+
//	| chunk ...                  |
//	+----------------------------+
//	| optional index chunk       |
//	+----------------------------+
//	| footer: schema, groups     |
//	+----------------------------+
//	| footerLen, magic           |
//	+----------------------------+
package fiberio

import (
	"encoding/binary"

	"github.com/fibercache/fibercache/internal/base"
	"github.com/fibercache/fibercache/fibercol"
)

const (
	fileMagic = "FBRC"

	// formatVersion is bumped on incompatible layout changes. A reader that
	// sees a version it does not know must reject the file rather than
	// guess.
	formatVersion = 1

	headerLen  = 8 // magic + version + reserved
	trailerLen = 8 // footerLen + magic

	// checksumLen is the per-chunk xxhash64 trailer.
	checksumLen = 8
)

// Encoding tags how a column chunk's values are stored. The values are part
// of the file format.
type Encoding uint8

const (
	// PlainEncoding stores the fiber bytes directly.
	PlainEncoding Encoding = 0
	// DictionaryEncoding stores 32-bit codes plus a dictionary chunk.
	DictionaryEncoding Encoding = 1
)

// chunkMeta locates one stored chunk.
type chunkMeta struct {
	offset int64
	// length is the compressed length, excluding the checksum trailer.
	length int32
	// rawLen is the uncompressed length.
	rawLen int32
}

// columnChunkMeta describes one (column, row-group) pair.
type columnChunkMeta struct {
	encoding Encoding
	data     chunkMeta
	// dict is only present under DictionaryEncoding.
	dict        chunkMeta
	dictEntries int32
}

// groupMeta describes one row-group.
type groupMeta struct {
	rowCount int32
	columns  []columnChunkMeta
}

// fileMeta is the parsed footer.
type fileMeta struct {
	codec  Codec
	schema []fibercol.DataType
	index  chunkMeta
	groups []groupMeta
}

func (m *fileMeta) encode() []byte {
	var buf []byte
	buf = append(buf, byte(m.codec))
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(m.schema)))
	for _, t := range m.schema {
		buf = append(buf, byte(t))
	}
	buf = appendChunkMeta(buf, m.index)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(m.groups)))
	for _, g := range m.groups {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(g.rowCount))
		for _, c := range g.columns {
			buf = append(buf, byte(c.encoding))
			buf = appendChunkMeta(buf, c.data)
			buf = appendChunkMeta(buf, c.dict)
			buf = binary.LittleEndian.AppendUint32(buf, uint32(c.dictEntries))
		}
	}
	return buf
}

func appendChunkMeta(buf []byte, c chunkMeta) []byte {
	buf = binary.LittleEndian.AppendUint64(buf, uint64(c.offset))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(c.length))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(c.rawLen))
	return buf
}

type metaDecoder struct {
	buf []byte
	off int
	err error
}

func (d *metaDecoder) bytes(n int) []byte {
	if d.err != nil {
		return nil
	}
	if d.off+n > len(d.buf) {
		d.err = base.CorruptionErrorf("fiberio: truncated footer")
		return nil
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b
}

func (d *metaDecoder) uint8() uint8 {
	b := d.bytes(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (d *metaDecoder) uint16() uint16 {
	b := d.bytes(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (d *metaDecoder) uint32() uint32 {
	b := d.bytes(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (d *metaDecoder) uint64() uint64 {
	b := d.bytes(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (d *metaDecoder) chunkMeta() chunkMeta {
	return chunkMeta{
		offset: int64(d.uint64()),
		length: int32(d.uint32()),
		rawLen: int32(d.uint32()),
	}
}

func decodeFileMeta(buf []byte) (*fileMeta, error) {
	d := &metaDecoder{buf: buf}
	m := &fileMeta{}
	m.codec = Codec(d.uint8())
	if d.err == nil && !m.codec.valid() {
		return nil, base.CorruptionErrorf("fiberio: unknown codec %d in footer", m.codec)
	}
	numCols := int(d.uint16())
	m.schema = make([]fibercol.DataType, numCols)
	for i := range m.schema {
		m.schema[i] = fibercol.DataType(d.uint8())
	}
	m.index = d.chunkMeta()
	numGroups := int(d.uint32())
	m.groups = make([]groupMeta, numGroups)
	for i := range m.groups {
		g := &m.groups[i]
		g.rowCount = int32(d.uint32())
		g.columns = make([]columnChunkMeta, numCols)
		for j := range g.columns {
			c := &g.columns[j]
			c.encoding = Encoding(d.uint8())
			c.data = d.chunkMeta()
			c.dict = d.chunkMeta()
			c.dictEntries = int32(d.uint32())
		}
	}
	if d.err != nil {
		return nil, d.err
	}
	return m, nil
}
