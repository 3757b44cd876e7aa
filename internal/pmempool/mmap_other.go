// Copyright 2023 The FiberCache Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

//go:build !unix

package pmempool

import "os"

// Persistent-memory devices are only supported on unix platforms. Elsewhere
// the pool degrades to an ordinary heap allocation, which keeps tests and
// cross compilation working.

func mmap(f *os.File, size int) ([]byte, error) {
	return make([]byte, size), nil
}

func munmap(data []byte) error {
	return nil
}
