//go:build !tracing

package trace

// Enabled reports whether file export is compiled in.
const Enabled = false

// NewFileExporter returns a no-op exporter when tracing is disabled at build time.
func NewFileExporter(filePath string, opts ...FileExporterOption) (Exporter, error) {
	return NoopExporter{}, nil
}
