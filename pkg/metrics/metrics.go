package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector provides Prometheus metrics collection for moex operations
type MetricsCollector struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	errorsTotal       *prometheus.CounterVec
	generationsTotal  *prometheus.CounterVec
	tonesTotal        *prometheus.CounterVec
	storageCount      *prometheus.GaugeVec
	registry          *prometheus.Registry
}

var _ Collector = (*MetricsCollector)(nil)

// NewCollector creates a new Prometheus metrics collector on its own registry
func NewCollector() *MetricsCollector {
	registry := prometheus.NewRegistry()

	operationsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moex_operations_total",
			Help: "Total number of moex operations by type and status",
		},
		[]string{"operation", "status"},
	)

	operationDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "moex_operation_duration_seconds",
			Help:    "Duration of moex operations by type and stage",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
		},
		[]string{"operation", "stage"},
	)

	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moex_errors_total",
			Help: "Total number of errors by operation and error type",
		},
		[]string{"operation", "error_type"},
	)

	generationsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moex_generation_attempts_total",
			Help: "Text generation attempts by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	tonesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moex_replies_by_tone_total",
			Help: "Chat replies by classified context and selected tone",
		},
		[]string{"context", "tone"},
	)

	storageCount := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "moex_storage_count",
			Help: "Current count of stored items by type",
		},
		[]string{"type"},
	)

	registry.MustRegister(
		operationsTotal,
		operationDuration,
		errorsTotal,
		generationsTotal,
		tonesTotal,
		storageCount,
	)

	return &MetricsCollector{
		operationsTotal:   operationsTotal,
		operationDuration: operationDuration,
		errorsTotal:       errorsTotal,
		generationsTotal:  generationsTotal,
		tonesTotal:        tonesTotal,
		storageCount:      storageCount,
		registry:          registry,
	}
}

// RecordOperation records the completion of an operation
func (m *MetricsCollector) RecordOperation(ctx context.Context, operation string, status string, durationMs int64) {
	m.operationsTotal.WithLabelValues(operation, status).Inc()
	m.operationDuration.WithLabelValues(operation, "total").Observe(float64(durationMs) / 1000.0)
}

// RecordStage records the duration of a specific stage within an operation
func (m *MetricsCollector) RecordStage(ctx context.Context, operation string, stage string, durationMs int64) {
	m.operationDuration.WithLabelValues(operation, stage).Observe(float64(durationMs) / 1000.0)
}

// RecordError records an error occurrence
func (m *MetricsCollector) RecordError(ctx context.Context, operation string, errorType string) {
	m.errorsTotal.WithLabelValues(operation, errorType).Inc()
}

// RecordGeneration counts one generation attempt. outcome is "ok" or a
// failure kind such as "rate_limited".
func (m *MetricsCollector) RecordGeneration(ctx context.Context, provider string, outcome string) {
	m.generationsTotal.WithLabelValues(provider, outcome).Inc()
}

// RecordTone counts a chat reply by context kind and tone.
func (m *MetricsCollector) RecordTone(ctx context.Context, contextKind string, tone string) {
	m.tonesTotal.WithLabelValues(contextKind, tone).Inc()
}

// SetStorageCount sets the current count for a storage type
func (m *MetricsCollector) SetStorageCount(ctx context.Context, storageType string, count int64) {
	m.storageCount.WithLabelValues(storageType).Set(float64(count))
}

// Registry returns the Prometheus registry for HTTP exposure
func (m *MetricsCollector) Registry() *prometheus.Registry {
	return m.registry
}
