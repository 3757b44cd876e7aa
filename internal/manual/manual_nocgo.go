// Copyright 2023 The FiberCache Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

//go:build !cgo

package manual

// Provides versions of New and Free when cgo is not available (e.g. cross
// compilation). Allocations are served by the Go runtime; the accounting is
// identical to the cgo implementation.

// New allocates a slice of size n.
func New(purpose Purpose, n int) []byte {
	if n == 0 {
		return nil
	}
	recordAlloc(purpose, n)
	return make([]byte, n)
}

// Free frees the specified slice. It has to be exactly the slice that was
// returned by New.
func Free(purpose Purpose, b []byte) {
	if cap(b) != 0 {
		recordFree(purpose, cap(b))
	}
}
