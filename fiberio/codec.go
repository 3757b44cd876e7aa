// Copyright 2023 The FiberCache Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package fiberio

import (
	"github.com/cockroachdb/errors"
	"github.com/fibercache/fibercache/internal/base"
	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/minio/minlz"
)

// Codec identifies the per-fiber compression algorithm. The values are part
// of the file format and must not be changed.
type Codec uint8

const (
	NoCompression Codec = 0
	Snappy        Codec = 1
	Zstd          Codec = 2
	Minlz         Codec = 3
)

// String implements fmt.Stringer.
func (c Codec) String() string {
	switch c {
	case NoCompression:
		return "none"
	case Snappy:
		return "snappy"
	case Zstd:
		return "zstd"
	case Minlz:
		return "minlz"
	default:
		return "unknown"
	}
}

// CodecFromString parses a codec name from configuration. An unknown name is
// a fatal configuration error, never a silent fallback.
func CodecFromString(s string) (Codec, error) {
	switch s {
	case "none":
		return NoCompression, nil
	case "snappy":
		return Snappy, nil
	case "zstd":
		return Zstd, nil
	case "minlz":
		return Minlz, nil
	default:
		return 0, errors.Newf("fiberio: unknown compression codec %q", s)
	}
}

func (c Codec) valid() bool {
	return c <= Minlz
}

// Compress appends the compressed form of src to dst and returns the result.
func (c Codec) Compress(dst, src []byte) ([]byte, error) {
	switch c {
	case NoCompression:
		return append(dst, src...), nil
	case Snappy:
		return snappy.Encode(dst[:cap(dst)], src), nil
	case Zstd:
		encoder, _ := zstd.NewWriter(nil)
		defer encoder.Close()
		return encoder.EncodeAll(src, dst[:0]), nil
	case Minlz:
		// MinLZ cannot encode blocks greater than 8MB; fall back to snappy,
		// which minlz.Decode understands.
		if len(src) > minlz.MaxBlockSize {
			return snappy.Encode(dst[:cap(dst)], src), nil
		}
		return minlz.Encode(dst[:0], src, minlz.LevelBalanced)
	default:
		return nil, errors.AssertionFailedf("fiberio: unreachable codec %d", c)
	}
}

// DecompressInto decompresses src into dst, whose length must be exactly the
// uncompressed size recorded when the fiber was written.
func (c Codec) DecompressInto(dst, src []byte) error {
	switch c {
	case NoCompression:
		if len(src) != len(dst) {
			return base.CorruptionErrorf("fiberio: stored fiber is %d bytes, expected %d", len(src), len(dst))
		}
		copy(dst, src)
		return nil
	case Snappy:
		result, err := snappy.Decode(dst, src)
		if err != nil {
			return base.MarkCorruptionError(err)
		}
		return checkInPlace(result, dst)
	case Zstd:
		decoder, _ := zstd.NewReader(nil)
		defer decoder.Close()
		result, err := decoder.DecodeAll(src, dst[:0])
		if err != nil {
			return base.MarkCorruptionError(err)
		}
		return checkInPlace(result, dst)
	case Minlz:
		result, err := minlz.Decode(dst, src)
		if err != nil {
			return base.MarkCorruptionError(err)
		}
		return checkInPlace(result, dst)
	default:
		return errors.AssertionFailedf("fiberio: unreachable codec %d", c)
	}
}

// checkInPlace verifies that a decompressor filled exactly the buffer it was
// handed instead of allocating its own.
func checkInPlace(result, dst []byte) error {
	if len(result) != len(dst) || (len(result) > 0 && &result[0] != &dst[0]) {
		return base.CorruptionErrorf("fiberio: decompressed into unexpected buffer")
	}
	return nil
}
