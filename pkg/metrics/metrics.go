// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

// Package metrics exposes archive activity as Prometheus metrics on a
// private registry. All Record methods are safe on a nil *Registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds all archive metrics
type Registry struct {
	registry *prometheus.Registry

	ArchivesPackedTotal *prometheus.CounterVec   // by status
	EntriesWrittenTotal prometheus.Counter
	EntriesReadTotal    *prometheus.CounterVec   // by status
	BytesTotal          *prometheus.CounterVec   // by direction and form
	IntegrityFailures   *prometheus.CounterVec   // by error kind
	OperationDuration   *prometheus.HistogramVec // by operation
}

// NewRegistry creates a registry with every metric registered.
func NewRegistry() *Registry {
	r := &Registry{registry: prometheus.NewRegistry()}
	f := promauto.With(r.registry)

	r.ArchivesPackedTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arcsys_archives_packed_total",
			Help: "Total number of pack operations",
		},
		[]string{"status"},
	)

	r.EntriesWrittenTotal = f.NewCounter(
		prometheus.CounterOpts{
			Name: "arcsys_entries_written_total",
			Help: "Total number of file entries written to archives",
		},
	)

	r.EntriesReadTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arcsys_entries_read_total",
			Help: "Total number of file entries read from archives",
		},
		[]string{"status"},
	)

	r.BytesTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arcsys_bytes_total",
			Help: "Entry bytes processed, split by direction and plain/stored form",
		},
		[]string{"direction", "form"},
	)

	r.IntegrityFailures = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arcsys_integrity_failures_total",
			Help: "Entries rejected by decryption, decompression or checksum",
		},
		[]string{"kind"},
	)

	r.OperationDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "arcsys_operation_duration_seconds",
			Help:    "Archive operation duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		},
		[]string{"operation"},
	)

	return r
}

// Gatherer returns the underlying registry for exposition.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// WriteTextfile writes the current values in the text exposition format,
// for node_exporter's textfile collector.
func (r *Registry) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}

// RecordPack records a finished pack operation.
func (r *Registry) RecordPack(status string, entries int, plain, stored uint64, d time.Duration) {
	if r == nil {
		return
	}
	r.ArchivesPackedTotal.WithLabelValues(status).Inc()
	r.EntriesWrittenTotal.Add(float64(entries))
	r.BytesTotal.WithLabelValues("write", "plain").Add(float64(plain))
	r.BytesTotal.WithLabelValues("write", "stored").Add(float64(stored))
	r.OperationDuration.WithLabelValues("pack").Observe(d.Seconds())
}

// RecordRead records one entry read.
func (r *Registry) RecordRead(status string, plain, stored uint64) {
	if r == nil {
		return
	}
	r.EntriesReadTotal.WithLabelValues(status).Inc()
	r.BytesTotal.WithLabelValues("read", "plain").Add(float64(plain))
	r.BytesTotal.WithLabelValues("read", "stored").Add(float64(stored))
}

// RecordIntegrityFailure counts an entry rejected for the given error kind.
func (r *Registry) RecordIntegrityFailure(kind string) {
	if r == nil {
		return
	}
	r.IntegrityFailures.WithLabelValues(kind).Inc()
}

// ObserveOperation records the duration of a named operation.
func (r *Registry) ObserveOperation(op string, d time.Duration) {
	if r == nil {
		return
	}
	r.OperationDuration.WithLabelValues(op).Observe(d.Seconds())
}
