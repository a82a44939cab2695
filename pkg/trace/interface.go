// Package trace records per-operation timings for moex requests and exports
// them as JSON Lines. File export is compiled in with -tags tracing; default
// builds get a no-op exporter.
package trace

import (
	"context"
	"time"
)

// Exporter defines the interface for exporting operation traces.
// Implementations must be safe for concurrent use.
type Exporter interface {
	// Export writes a trace record to the configured destination.
	Export(ctx context.Context, record *TraceRecord) error

	// Close flushes any buffered records and releases resources.
	Close() error
}

// TraceRecord is a finished operation trace ready for export.
// It carries IDs and timings only, never message text, secrets or tokens.
type TraceRecord struct {
	// Timestamp is the operation start time
	Timestamp time.Time `json:"timestamp"`

	// OperationID uniquely identifies this operation (for correlation)
	OperationID string `json:"operationId"`

	// Operation is the operation type: "chat", "teach", "upload", "verify"
	Operation string `json:"operation"`

	DurationMs int64 `json:"durationMs"`

	// Status is "success" or "error"
	Status string `json:"status"`

	Spans []SpanRecord `json:"spans"`

	// ErrorType is one of the ErrType constants when Status == "error"
	ErrorType string `json:"errorType,omitempty"`

	// IDs contains operation-specific identifiers (person id, chunk ids)
	IDs map[string]interface{} `json:"ids,omitempty"`
}

// SpanRecord represents a single stage within an operation.
// Stage names: resolve, record, retrieve, generate, sanitize, envelope, audit,
// chunk, write.
type SpanRecord struct {
	Name       string `json:"name"`
	DurationMs int64  `json:"durationMs"`
	OK         bool   `json:"ok"`

	// ErrorType classifies the error (if OK == false)
	ErrorType string `json:"errorType,omitempty"`

	// Counters provides stage-specific numbers (results, attempts, chunks)
	Counters map[string]int64 `json:"counters,omitempty"`
}

type exporterOptions struct {
	maxSizeBytes    int64
	maxRotatedFiles int
}

// FileExporterOption configures a file exporter. Available in every build so
// callers compile the same way with or without the tracing tag.
type FileExporterOption func(*exporterOptions)

// WithMaxSize sets the maximum file size before rotation (default: 10MB).
func WithMaxSize(bytes int64) FileExporterOption {
	return func(o *exporterOptions) {
		o.maxSizeBytes = bytes
	}
}

// WithMaxRotatedFiles sets how many rotated files to keep (default: 5).
func WithMaxRotatedFiles(count int) FileExporterOption {
	return func(o *exporterOptions) {
		o.maxRotatedFiles = count
	}
}

// NoopExporter discards every record.
type NoopExporter struct{}

// Export does nothing.
func (NoopExporter) Export(ctx context.Context, record *TraceRecord) error {
	return nil
}

// Close does nothing.
func (NoopExporter) Close() error {
	return nil
}
