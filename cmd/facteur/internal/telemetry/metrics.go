// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics records workflow activity.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Metrics interface {
	// RecordRun records one finished workflow. status is success, degraded
	// or failed.
	RecordRun(workflow, status string, duration time.Duration)

	// RecordStep records one executed step.
	RecordStep(workflow, step string, ok bool, duration time.Duration)

	// RecordReleases sets the number of releases on disk after a run.
	RecordReleases(count int)

	// RecordRemoved counts releases deleted by retention.
	RecordRemoved(count int)
}

// =============================================================================
// NoOp Implementation
// =============================================================================

// NopMetrics discards everything.
type NopMetrics struct{}

// NewNopMetrics returns a Metrics that records nothing.
func NewNopMetrics() *NopMetrics { return &NopMetrics{} }

func (*NopMetrics) RecordRun(string, string, time.Duration)        {}
func (*NopMetrics) RecordStep(string, string, bool, time.Duration) {}
func (*NopMetrics) RecordReleases(int)                             {}
func (*NopMetrics) RecordRemoved(int)                              {}

// =============================================================================
// Prometheus Implementation
// =============================================================================

// PrometheusMetrics keeps facteur collectors in a private registry.
//
// # Description
//
// A CLI process is short lived, so the registry is either served by the
// status server or written once to a node_exporter textfile at the end of
// a run.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	runsTotal     *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	stepsTotal    *prometheus.CounterVec
	stepDuration  *prometheus.HistogramVec
	releasesGauge prometheus.Gauge
	removedTotal  prometheus.Counter
	lastRun       *prometheus.GaugeVec

	mu sync.Mutex
}

// NewPrometheusMetrics creates and registers the collectors.
func NewPrometheusMetrics() *PrometheusMetrics {
	m := &PrometheusMetrics{
		registry: prometheus.NewRegistry(),
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "facteur",
				Name:      "runs_total",
				Help:      "Workflow runs by workflow and status",
			},
			[]string{"workflow", "status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "facteur",
				Name:      "run_duration_seconds",
				Help:      "Workflow run duration",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"workflow"},
		),
		stepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "facteur",
				Name:      "steps_total",
				Help:      "Pipeline steps by workflow, step and result",
			},
			[]string{"workflow", "step", "result"},
		),
		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "facteur",
				Name:      "step_duration_seconds",
				Help:      "Pipeline step duration",
				Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
			},
			[]string{"workflow", "step"},
		),
		releasesGauge: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "facteur",
				Name:      "releases",
				Help:      "Releases on disk after the last run",
			},
		),
		removedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "facteur",
				Name:      "releases_removed_total",
				Help:      "Releases deleted by retention",
			},
		),
		lastRun: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "facteur",
				Name:      "last_run_timestamp_seconds",
				Help:      "Unix time of the last run by workflow and status",
			},
			[]string{"workflow", "status"},
		),
	}

	m.registry.MustRegister(
		m.runsTotal,
		m.runDuration,
		m.stepsTotal,
		m.stepDuration,
		m.releasesGauge,
		m.removedTotal,
		m.lastRun,
	)
	return m
}

// RecordRun implements Metrics.
func (m *PrometheusMetrics) RecordRun(workflow, status string, duration time.Duration) {
	m.runsTotal.WithLabelValues(workflow, status).Inc()
	m.runDuration.WithLabelValues(workflow).Observe(duration.Seconds())
	m.lastRun.WithLabelValues(workflow, status).SetToCurrentTime()
}

// RecordStep implements Metrics.
func (m *PrometheusMetrics) RecordStep(workflow, step string, ok bool, duration time.Duration) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.stepsTotal.WithLabelValues(workflow, step, result).Inc()
	m.stepDuration.WithLabelValues(workflow, step).Observe(duration.Seconds())
}

// RecordReleases implements Metrics.
func (m *PrometheusMetrics) RecordReleases(count int) {
	m.releasesGauge.Set(float64(count))
}

// RecordRemoved implements Metrics.
func (m *PrometheusMetrics) RecordRemoved(count int) {
	if count > 0 {
		m.removedTotal.Add(float64(count))
	}
}

// Registry exposes the registry for gathering in tests.
func (m *PrometheusMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// WriteTextfile writes the registry for the node_exporter textfile
// collector. The write is atomic.
func (m *PrometheusMetrics) WriteTextfile(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// Compile-time interface compliance checks.
var (
	_ Metrics = (*NopMetrics)(nil)
	_ Metrics = (*PrometheusMetrics)(nil)
)
