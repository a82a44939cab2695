//go:build tracing

package trace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Enabled reports whether file export is compiled in.
const Enabled = true

var errExporterClosed = errors.New("trace exporter closed")

// FileExporter appends trace records to a JSON Lines file and rotates it by
// size into path.1 ... path.N, path.1 being the newest.
type FileExporter struct {
	mu      sync.Mutex
	path    string
	opts    exporterOptions
	file    *os.File
	written int64
	closed  bool
}

// NewFileExporter opens path for appending. An empty path yields a no-op
// exporter.
func NewFileExporter(path string, opts ...FileExporterOption) (Exporter, error) {
	if path == "" {
		return NoopExporter{}, nil
	}

	o := exporterOptions{maxSizeBytes: 10 << 20, maxRotatedFiles: 5}
	for _, opt := range opts {
		opt(&o)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create trace directory: %w", err)
	}

	fe := &FileExporter{path: path, opts: o}
	if err := fe.open(); err != nil {
		return nil, err
	}
	return fe, nil
}

func (fe *FileExporter) open() error {
	f, err := os.OpenFile(fe.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open trace file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to stat trace file: %w", err)
	}
	fe.file, fe.written = f, info.Size()
	return nil
}

// Export writes one record as a line, rotating once the file reaches the
// size limit.
func (fe *FileExporter) Export(ctx context.Context, record *TraceRecord) error {
	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode trace record: %w", err)
	}
	line = append(line, '\n')

	fe.mu.Lock()
	defer fe.mu.Unlock()

	if fe.closed {
		return errExporterClosed
	}

	n, err := fe.file.Write(line)
	fe.written += int64(n)
	if err != nil {
		return fmt.Errorf("failed to write trace record: %w", err)
	}

	if fe.written >= fe.opts.maxSizeBytes {
		if err := fe.rotate(); err != nil {
			return fmt.Errorf("failed to rotate trace file: %w", err)
		}
	}
	return nil
}

// rotate shifts path.N-1 to path.N down to path to path.1, dropping the
// oldest. Caller holds mu.
func (fe *FileExporter) rotate() error {
	if err := fe.file.Close(); err != nil {
		return err
	}

	keep := fe.opts.maxRotatedFiles
	if keep < 1 {
		keep = 1
	}
	if err := os.Remove(fe.rotated(keep)); err != nil && !os.IsNotExist(err) {
		return err
	}
	for i := keep - 1; i >= 0; i-- {
		if err := os.Rename(fe.rotated(i), fe.rotated(i+1)); err != nil && !os.IsNotExist(err) {
			return err
		}
	}

	return fe.open()
}

// rotated names the i-th rotated file; 0 is the live file.
func (fe *FileExporter) rotated(i int) string {
	if i == 0 {
		return fe.path
	}
	return fmt.Sprintf("%s.%d", fe.path, i)
}

// Close syncs and closes the file. Calling it again is a no-op.
func (fe *FileExporter) Close() error {
	fe.mu.Lock()
	defer fe.mu.Unlock()

	if fe.closed {
		return nil
	}
	fe.closed = true

	return errors.Join(fe.file.Sync(), fe.file.Close())
}
