// Copyright 2023 The FiberCache Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package fibercache

import (
	"math"

	"github.com/cockroachdb/errors"
	"github.com/fibercache/fibercache/internal/base"
)

// BackendKind selects the allocation strategy used by a memory manager.
type BackendKind int8

const (
	// OffHeap allocates fibers from ordinary memory outside the Go heap.
	OffHeap BackendKind = iota
	// PersistentMemory allocates fibers from a volatile pool placed on a
	// persistent-memory device.
	PersistentMemory
	// Mixed routes index fibers and data fibers to two different backends.
	Mixed
)

// String implements fmt.Stringer.
func (k BackendKind) String() string {
	switch k {
	case OffHeap:
		return "offheap"
	case PersistentMemory:
		return "pmem"
	case Mixed:
		return "mixed"
	default:
		return "unknown"
	}
}

// BackendKindFromString parses a backend name from configuration. Inverse of
// String above.
func BackendKindFromString(s string) (BackendKind, error) {
	switch s {
	case "offheap":
		return OffHeap, nil
	case "pmem":
		return PersistentMemory, nil
	case "mixed":
		return Mixed, nil
	default:
		return 0, errors.Newf("fibercache: unknown memory manager backend %q", s)
	}
}

// PMemOptions configures the persistent-memory backend.
type PMemOptions struct {
	// Dirs are the persistent-memory mount points, one per NUMA node. The
	// backend places its pool under the directory matching the selected node.
	Dirs []string

	// InitialSize is the capacity of the persistent-memory device in bytes.
	InitialSize int64

	// ReservedSize is held back from InitialSize to leave room for allocator
	// metadata and other tenants of the device. It must be non-negative and
	// strictly less than InitialSize. The pool capacity is
	// InitialSize-ReservedSize.
	ReservedSize int64

	// NUMANode pins the pool to a specific NUMA node's directory. If nil,
	// the node is derived from ExecutorID, which is a best-effort placement
	// heuristic and logs a warning.
	NUMANode *int
}

// MixedOptions configures the mixed backend. The two sub-backends must be of
// different kinds; placing index and data fibers on the same medium defeats
// the purpose of the mode.
type MixedOptions struct {
	IndexBackend BackendKind
	DataBackend  BackendKind
}

// Options holds the configuration for a memory manager.
type Options struct {
	// Backend selects the allocation strategy.
	Backend BackendKind

	// TotalMemorySize is the byte budget requested from the host memory
	// arbiter at startup. The budget is split into the data-cache,
	// index-cache and guardian regions.
	TotalMemorySize int64

	// GuardianRatio is the fraction of TotalMemorySize reserved as headroom
	// for in-flight eviction. Must lie in (0,1). Default 0.1.
	GuardianRatio float64

	// DataCacheRatio is the fraction of the cache region (the budget left
	// after the guardian cut) given to data fibers; the remainder holds index
	// fibers. Must lie in (0,1). Default 0.8.
	DataCacheRatio float64

	// SeparateIndexAndData must be set when Backend is Mixed. The mixed
	// backend exists specifically to place index and data fibers on different
	// media, so selecting it with separation disabled is a configuration
	// error rather than a silent fallback.
	SeparateIndexAndData bool

	// Mixed configures the two sub-backends of the Mixed backend.
	Mixed MixedOptions

	// PMem configures the PersistentMemory backend (and the persistent-memory
	// half of a Mixed backend).
	PMem PMemOptions

	// ExecutorID identifies this worker within the host engine. It seeds the
	// NUMA-node fallback for persistent memory placement.
	ExecutorID int

	// Arbiter is the host's global memory arbiter. If nil, an unconstrained
	// arbiter is used.
	Arbiter MemoryArbiter

	// Logger is used for informational and fatal messages. Defaults to
	// base.DefaultLogger.
	Logger base.Logger
}

// EnsureDefaults fills in unset fields with default values, returning the
// receiver for convenience.
func (o *Options) EnsureDefaults() *Options {
	if o.GuardianRatio == 0 {
		o.GuardianRatio = 0.1
	}
	if o.DataCacheRatio == 0 {
		o.DataCacheRatio = 0.8
	}
	if o.Arbiter == nil {
		o.Arbiter = NewFixedArbiter(math.MaxInt64)
	}
	if o.Logger == nil {
		o.Logger = base.DefaultLogger
	}
	return o
}

// Validate checks the options for fatal configuration errors. Validation
// failures abort memory manager construction; none of these conditions may
// silently degrade.
func (o *Options) Validate() error {
	if o.TotalMemorySize <= 0 {
		return errors.Newf("fibercache: total memory size must be positive, got %d", o.TotalMemorySize)
	}
	if o.GuardianRatio <= 0 || o.GuardianRatio >= 1 {
		return errors.Newf("fibercache: guardian ratio %f outside (0,1)", o.GuardianRatio)
	}
	if o.DataCacheRatio <= 0 || o.DataCacheRatio >= 1 {
		return errors.Newf("fibercache: data cache ratio %f outside (0,1)", o.DataCacheRatio)
	}
	switch o.Backend {
	case OffHeap:
	case PersistentMemory:
		if err := o.validatePMem(); err != nil {
			return err
		}
	case Mixed:
		if !o.SeparateIndexAndData {
			return errors.Newf("fibercache: mixed backend requires index/data separation to be enabled")
		}
		if o.Mixed.IndexBackend == o.Mixed.DataBackend {
			return errors.Newf("fibercache: mixed backend requires sub-backends of different kinds, both are %s",
				o.Mixed.IndexBackend)
		}
		for _, k := range [2]BackendKind{o.Mixed.IndexBackend, o.Mixed.DataBackend} {
			switch k {
			case OffHeap:
			case PersistentMemory:
				if err := o.validatePMem(); err != nil {
					return err
				}
			default:
				return errors.Newf("fibercache: %s is not a valid mixed sub-backend", k)
			}
		}
	default:
		return errors.Newf("fibercache: unknown memory manager backend %d", o.Backend)
	}
	return nil
}

func (o *Options) validatePMem() error {
	if len(o.PMem.Dirs) == 0 {
		return errors.Newf("fibercache: persistent memory backend requires at least one directory")
	}
	if o.PMem.ReservedSize < 0 || o.PMem.ReservedSize >= o.PMem.InitialSize {
		return errors.Newf(
			"fibercache: persistent memory reserved size %d must be in [0, initial size %d)",
			o.PMem.ReservedSize, o.PMem.InitialSize)
	}
	return nil
}
