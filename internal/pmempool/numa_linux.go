// Copyright 2023 The FiberCache Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

//go:build linux

package pmempool

import (
	"os"
	"strings"
)

// NumNodes returns the number of NUMA nodes on the host, or 1 if the
// topology cannot be determined.
func NumNodes() int {
	entries, err := os.ReadDir("/sys/devices/system/node")
	if err != nil {
		return 1
	}
	n := 0
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, "node") && len(name) > 4 {
			if c := name[4]; c >= '0' && c <= '9' {
				n++
			}
		}
	}
	if n == 0 {
		return 1
	}
	return n
}
