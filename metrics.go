// Copyright 2023 The FiberCache Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package fibercache

import (
	"fmt"

	"github.com/fibercache/fibercache/internal/base"
	"github.com/fibercache/fibercache/internal/manual"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is a point-in-time snapshot of the memory manager's accounting.
type Metrics struct {
	// Backend is the active allocation strategy.
	Backend BackendKind
	// Budget is the static region partition computed at startup.
	Budget MemoryBudget
	// MemoryUsed is the occupied bytes currently allocated.
	MemoryUsed int64
	// Manual is the per-purpose accounting of manually managed memory.
	Manual manual.Metrics
}

// Metrics returns a snapshot of the manager's accounting.
func (m *MemoryManager) Metrics() Metrics {
	return Metrics{
		Backend:    m.alloc.kind(),
		Budget:     m.budget,
		MemoryUsed: m.alloc.memoryUsed(),
		Manual:     manual.GetMetrics(),
	}
}

// String implements fmt.Stringer.
func (m Metrics) String() string {
	return fmt.Sprintf("%s backend: %s used of %s cache (%s data + %s index), %s guardian",
		m.Backend,
		base.FormatBytes(m.MemoryUsed),
		base.FormatBytes(m.Budget.Data+m.Budget.Index),
		base.FormatBytes(m.Budget.Data),
		base.FormatBytes(m.Budget.Index),
		base.FormatBytes(m.Budget.Guardian))
}

var (
	descMemoryUsed = prometheus.NewDesc(
		"fibercache_memory_used_bytes",
		"Occupied bytes currently allocated by the memory manager.",
		nil, nil)
	descDataRegion = prometheus.NewDesc(
		"fibercache_data_cache_bytes",
		"Size of the data fiber cache region.",
		nil, nil)
	descIndexRegion = prometheus.NewDesc(
		"fibercache_index_cache_bytes",
		"Size of the index fiber cache region.",
		nil, nil)
	descGuardianRegion = prometheus.NewDesc(
		"fibercache_guardian_bytes",
		"Size of the eviction headroom region.",
		nil, nil)
)

// MetricsCollector exports a memory manager's accounting as prometheus
// gauges. Register it with a prometheus.Registerer owned by the host.
type MetricsCollector struct {
	mm *MemoryManager
}

var _ prometheus.Collector = (*MetricsCollector)(nil)

// NewMetricsCollector returns a collector reading from mm.
func NewMetricsCollector(mm *MemoryManager) *MetricsCollector {
	return &MetricsCollector{mm: mm}
}

// Describe is part of the prometheus.Collector interface.
func (c *MetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- descMemoryUsed
	ch <- descDataRegion
	ch <- descIndexRegion
	ch <- descGuardianRegion
}

// Collect is part of the prometheus.Collector interface.
func (c *MetricsCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(descMemoryUsed, prometheus.GaugeValue, float64(c.mm.MemoryUsed()))
	ch <- prometheus.MustNewConstMetric(descDataRegion, prometheus.GaugeValue, float64(c.mm.DataCacheMemory()))
	ch <- prometheus.MustNewConstMetric(descIndexRegion, prometheus.GaugeValue, float64(c.mm.IndexCacheMemory()))
	ch <- prometheus.MustNewConstMetric(descGuardianRegion, prometheus.GaugeValue, float64(c.mm.CacheGuardianMemory()))
}
