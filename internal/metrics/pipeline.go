//-------------------------------------------------------------------------
//
// pgEdge Retail KPI Pipeline
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package metrics exposes Prometheus metrics for pipeline runs.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "retailkpi"

// PipelineMetrics records stage timings, output sizes and exclusions.
// A nil *PipelineMetrics is valid and records nothing.
type PipelineMetrics struct {
	stageDuration *prometheus.HistogramVec
	rows          *prometheus.GaugeVec
	excluded      *prometheus.GaugeVec
	runs          *prometheus.CounterVec
}

// NewPipelineMetrics registers the pipeline metrics on reg.
func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	if reg == nil {
		return &PipelineMetrics{}
	}
	stageDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "stage_duration_seconds",
		Help:      "Duration of pipeline stages in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"stage"})
	rows := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "output_rows",
		Help:      "Rows produced per output table by the last run.",
	}, []string{"table"})
	excluded := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "excluded_orders",
		Help:      "Orders excluded by reconciliation in the last run, by reason.",
	}, []string{"reason"})
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "runs_total",
		Help:      "Pipeline runs by result.",
	}, []string{"result"})
	reg.MustRegister(stageDuration, rows, excluded, runs)
	return &PipelineMetrics{
		stageDuration: stageDuration,
		rows:          rows,
		excluded:      excluded,
		runs:          runs,
	}
}

// ObserveStage records the duration of a stage.
func (m *PipelineMetrics) ObserveStage(stage string, d time.Duration) {
	if m == nil || m.stageDuration == nil {
		return
	}
	m.stageDuration.WithLabelValues(normalizeLabel(stage)).Observe(d.Seconds())
}

// SetRows records the row count of an output table.
func (m *PipelineMetrics) SetRows(table string, n int) {
	if m == nil || m.rows == nil {
		return
	}
	m.rows.WithLabelValues(normalizeLabel(table)).Set(float64(n))
}

// SetExcluded records the number of orders excluded for reason.
func (m *PipelineMetrics) SetExcluded(reason string, n int) {
	if m == nil || m.excluded == nil {
		return
	}
	m.excluded.WithLabelValues(normalizeLabel(reason)).Set(float64(n))
}

// IncRun counts a finished run; result is "success" or "failure".
func (m *PipelineMetrics) IncRun(result string) {
	if m == nil || m.runs == nil {
		return
	}
	m.runs.WithLabelValues(normalizeLabel(result)).Inc()
}

// WriteTextfile writes everything gathered from g to path in the text
// exposition format, for node_exporter's textfile collector.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
