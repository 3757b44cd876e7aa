// Copyright 2023 The FiberCache Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package base

import (
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
)

// ErrCorruption is a marker error for corrupted or unrecognized on-disk data.
// Errors constructed with CorruptionErrorf or MarkCorruptionError can be
// detected with errors.Is(err, ErrCorruption).
var ErrCorruption = errors.New("fibercache: corruption")

// CorruptionErrorf formats according to a format specifier and returns the
// string as an error marked as a corruption error.
func CorruptionErrorf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrCorruption)
}

// MarkCorruptionError marks the given error as a corruption error.
func MarkCorruptionError(err error) error {
	if errors.Is(err, ErrCorruption) {
		return err
	}
	return errors.Mark(err, ErrCorruption)
}

// AssertionFailedf reports an unexpected internal condition.
func AssertionFailedf(format string, args ...interface{}) error {
	return errors.AssertionFailedf(format, args...)
}

// FormatBytes returns a redaction-safe, human-readable representation of a
// byte count.
func FormatBytes(n int64) redact.SafeString {
	const (
		kib = 1 << 10
		mib = 1 << 20
		gib = 1 << 30
	)
	switch {
	case n >= gib:
		return redact.SafeString(redact.Sprintf("%.1f GiB", float64(n)/gib).StripMarkers())
	case n >= mib:
		return redact.SafeString(redact.Sprintf("%.1f MiB", float64(n)/mib).StripMarkers())
	case n >= kib:
		return redact.SafeString(redact.Sprintf("%.1f KiB", float64(n)/kib).StripMarkers())
	default:
		return redact.SafeString(redact.Sprintf("%d B", n).StripMarkers())
	}
}
