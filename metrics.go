package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "pgmyferry"

// migrationMetrics holds the per-run Prometheus collectors. They live in a
// private registry and are written out once as a node_exporter textfile.
type migrationMetrics struct {
	registry *prometheus.Registry

	RowsExtracted *prometheus.CounterVec
	RowsInserted  *prometheus.CounterVec
	RowsFailed    *prometheus.CounterVec
	Tables        *prometheus.CounterVec
	TableDuration *prometheus.HistogramVec
	BatchDuration prometheus.Histogram
}

func newMigrationMetrics() *migrationMetrics {
	m := &migrationMetrics{
		registry: prometheus.NewRegistry(),
		RowsExtracted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "rows_extracted_total",
				Help:      "Rows read from the source store",
			},
			[]string{"table"},
		),
		RowsInserted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "rows_inserted_total",
				Help:      "Rows inserted into the target store",
			},
			[]string{"table"},
		),
		RowsFailed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "rows_failed_total",
				Help:      "Rows skipped because coercion or insert failed",
			},
			[]string{"table", "reason"},
		),
		Tables: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "tables_total",
				Help:      "Tables by terminal state",
			},
			[]string{"state"},
		),
		TableDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "table_duration_seconds",
				Help:      "Wall time spent migrating one table",
				Buckets:   prometheus.ExponentialBuckets(0.05, 4, 8),
			},
			[]string{"table"},
		),
		BatchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "batch_duration_seconds",
				Help:      "Wall time spent inserting one batch",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
		),
	}
	m.registry.MustRegister(
		m.RowsExtracted,
		m.RowsInserted,
		m.RowsFailed,
		m.Tables,
		m.TableDuration,
		m.BatchDuration,
	)
	return m
}

// WriteTextfile writes all collected metrics to path in the text format.
func (m *migrationMetrics) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
