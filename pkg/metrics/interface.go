package metrics

import "context"

// Collector is the interface for metrics collection.
// Implementations include the Prometheus-backed collector and the no-op
// collector used when metrics are disabled in config.
type Collector interface {
	RecordOperation(ctx context.Context, operation string, status string, durationMs int64)
	RecordStage(ctx context.Context, operation string, stage string, durationMs int64)
	RecordError(ctx context.Context, operation string, errorType string)
	RecordGeneration(ctx context.Context, provider string, outcome string)
	RecordTone(ctx context.Context, contextKind string, tone string)
	SetStorageCount(ctx context.Context, storageType string, count int64)
}
