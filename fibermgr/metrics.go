// Copyright 2023 The FiberCache Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package fibermgr

import (
	"fmt"

	"github.com/fibercache/fibercache/internal/base"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is a point-in-time snapshot of the cache manager's counters.
type Metrics struct {
	Hits      int64
	Misses    int64
	Evictions int64
	// Fibers is the number of resident fibers.
	Fibers int
	// DataBytes and IndexBytes are the occupied bytes of resident fibers
	// per region.
	DataBytes  int64
	IndexBytes int64
}

// Metrics returns a snapshot of the manager's counters.
func (m *Manager) Metrics() Metrics {
	m.mu.Lock()
	fibers := m.mu.entries.Len()
	dataBytes := m.mu.usedData
	indexBytes := m.mu.usedIndex
	m.mu.Unlock()
	return Metrics{
		Hits:       m.hits.Load(),
		Misses:     m.misses.Load(),
		Evictions:  m.evictions.Load(),
		Fibers:     fibers,
		DataBytes:  dataBytes,
		IndexBytes: indexBytes,
	}
}

// HitRate returns hits/(hits+misses), or zero before any lookup.
func (m Metrics) HitRate() float64 {
	total := m.Hits + m.Misses
	if total == 0 {
		return 0
	}
	return float64(m.Hits) / float64(total)
}

// String implements fmt.Stringer.
func (m Metrics) String() string {
	return fmt.Sprintf("%d fibers resident (%s data + %s index), %d hits, %d misses, %d evictions",
		m.Fibers,
		base.FormatBytes(m.DataBytes),
		base.FormatBytes(m.IndexBytes),
		m.Hits, m.Misses, m.Evictions)
}

var (
	descHits = prometheus.NewDesc(
		"fibercache_manager_hits_total",
		"Cache hits served by the fiber cache manager.",
		nil, nil)
	descMisses = prometheus.NewDesc(
		"fibercache_manager_misses_total",
		"Cache misses requiring a fiber load.",
		nil, nil)
	descEvictions = prometheus.NewDesc(
		"fibercache_manager_evictions_total",
		"Fibers evicted by the cache manager.",
		nil, nil)
	descResident = prometheus.NewDesc(
		"fibercache_manager_resident_fibers",
		"Number of fibers currently resident.",
		nil, nil)
	descResidentBytes = prometheus.NewDesc(
		"fibercache_manager_resident_bytes",
		"Occupied bytes of resident fibers.",
		[]string{"region"}, nil)
)

// MetricsCollector exports a cache manager's counters to prometheus.
type MetricsCollector struct {
	m *Manager
}

var _ prometheus.Collector = (*MetricsCollector)(nil)

// NewMetricsCollector returns a collector reading from m.
func NewMetricsCollector(m *Manager) *MetricsCollector {
	return &MetricsCollector{m: m}
}

// Describe is part of the prometheus.Collector interface.
func (c *MetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- descHits
	ch <- descMisses
	ch <- descEvictions
	ch <- descResident
	ch <- descResidentBytes
}

// Collect is part of the prometheus.Collector interface.
func (c *MetricsCollector) Collect(ch chan<- prometheus.Metric) {
	snap := c.m.Metrics()
	ch <- prometheus.MustNewConstMetric(descHits, prometheus.CounterValue, float64(snap.Hits))
	ch <- prometheus.MustNewConstMetric(descMisses, prometheus.CounterValue, float64(snap.Misses))
	ch <- prometheus.MustNewConstMetric(descEvictions, prometheus.CounterValue, float64(snap.Evictions))
	ch <- prometheus.MustNewConstMetric(descResident, prometheus.GaugeValue, float64(snap.Fibers))
	ch <- prometheus.MustNewConstMetric(descResidentBytes, prometheus.GaugeValue, float64(snap.DataBytes), "data")
	ch <- prometheus.MustNewConstMetric(descResidentBytes, prometheus.GaugeValue, float64(snap.IndexBytes), "index")
}
