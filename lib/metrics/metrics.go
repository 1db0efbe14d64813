// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "quartermaster"

// Metrics holds the registry and every instrument.
type Metrics struct {
	registry *prometheus.Registry

	backups         *prometheus.CounterVec
	backupDuration  *prometheus.HistogramVec
	backupBytes     *prometheus.GaugeVec
	retentionDelete *prometheus.CounterVec
	mirrorCopied    *prometheus.CounterVec
	tasksRunning    prometheus.Gauge
	lastSuccess     *prometheus.GaugeVec
}

// New creates the instruments on a fresh registry, together with the
// Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		backups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backups_total",
			Help:      "Backups attempted, by item kind and outcome.",
		}, []string{"kind", "status"}),
		backupDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backup_duration_seconds",
			Help:      "Wall time of successful backups.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 14),
		}, []string{"kind"}),
		backupBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backup_bytes",
			Help:      "Size of the most recent archive, by item kind.",
		}, []string{"kind"}),
		retentionDelete: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retention_deleted_total",
			Help:      "Archives deleted by retention.",
		}, []string{"kind"}),
		mirrorCopied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mirror_copied_total",
			Help:      "Files copied to mirror targets.",
		}, []string{"target"}),
		tasksRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tasks_running",
			Help:      "Orchestrator tasks currently running.",
		}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run, by job kind.",
		}, []string{"kind"}),
	}
	m.registry.MustRegister(
		m.backups, m.backupDuration, m.backupBytes, m.retentionDelete,
		m.mirrorCopied, m.tasksRunning, m.lastSuccess,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Backup records one backup attempt. Duration and size are recorded
// only for successes.
func (m *Metrics) Backup(kind, status string, duration time.Duration, size int64) {
	if m == nil {
		return
	}
	m.backups.WithLabelValues(kind, status).Inc()
	if status == "success" {
		m.backupDuration.WithLabelValues(kind).Observe(duration.Seconds())
		m.backupBytes.WithLabelValues(kind).Set(float64(size))
	}
}

// RetentionDeleted adds count deletions for kind.
func (m *Metrics) RetentionDeleted(kind string, count int) {
	if m == nil || count == 0 {
		return
	}
	m.retentionDelete.WithLabelValues(kind).Add(float64(count))
}

// MirrorCopied adds count copied files for target.
func (m *Metrics) MirrorCopied(target string, count int) {
	if m == nil || count == 0 {
		return
	}
	m.mirrorCopied.WithLabelValues(target).Add(float64(count))
}

// TaskStarted and TaskFinished track running orchestrator tasks.
func (m *Metrics) TaskStarted() {
	if m != nil {
		m.tasksRunning.Inc()
	}
}

func (m *Metrics) TaskFinished() {
	if m != nil {
		m.tasksRunning.Dec()
	}
}

// Succeeded records the time of a successful run of kind.
func (m *Metrics) Succeeded(kind string, at time.Time) {
	if m != nil {
		m.lastSuccess.WithLabelValues(kind).Set(float64(at.Unix()))
	}
}
