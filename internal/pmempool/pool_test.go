// Copyright 2023 The FiberCache Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package pmempool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassSize(t *testing.T) {
	testCases := []struct {
		n, want int64
	}{
		{1, 64},
		{63, 64},
		{64, 64},
		{65, 128},
		{1000, 1024},
		{4096, 4096},
	}
	for _, tc := range testCases {
		require.Equal(t, tc.want, classSize(tc.n), "classSize(%d)", tc.n)
	}
}

func TestPoolAllocFree(t *testing.T) {
	p, err := Open(t.TempDir(), 1<<16)
	require.NoError(t, err)
	defer func() { require.NoError(t, p.Close()) }()
	require.Equal(t, int64(1<<16), p.Size())

	off, occupied, err := p.Alloc(100)
	require.NoError(t, err)
	require.Equal(t, int64(128), occupied)
	require.Equal(t, int64(128), p.Used())

	// The extent is writable and stable.
	b := p.Bytes(off, 100)
	for i := range b {
		b[i] = byte(i)
	}
	require.Equal(t, byte(99), p.Bytes(off, 100)[99])

	// A freed extent of the same class is recycled before the bump pointer
	// advances.
	p.Free(off, occupied)
	require.Equal(t, int64(0), p.Used())
	off2, occupied2, err := p.Alloc(70)
	require.NoError(t, err)
	require.Equal(t, off, off2)
	require.Equal(t, occupied, occupied2)
	p.Free(off2, occupied2)
}

func TestPoolExhaustion(t *testing.T) {
	p, err := Open(t.TempDir(), 256)
	require.NoError(t, err)
	defer func() { require.NoError(t, p.Close()) }()

	off, occupied, err := p.Alloc(256)
	require.NoError(t, err)
	_, _, err = p.Alloc(1)
	require.Error(t, err)
	require.Contains(t, err.Error(), "out of persistent memory")

	// Space freed back into the pool is allocatable again.
	p.Free(off, occupied)
	_, _, err = p.Alloc(1)
	require.NoError(t, err)
}

func TestPoolRejectsBadSizes(t *testing.T) {
	_, err := Open(t.TempDir(), 0)
	require.Error(t, err)
	_, err = Open(t.TempDir(), -5)
	require.Error(t, err)
}
