// Copyright 2023 The FiberCache Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

//go:build !linux

package pmempool

// NumNodes returns the number of NUMA nodes on the host. NUMA topology
// discovery is only implemented on Linux.
func NumNodes() int {
	return 1
}
