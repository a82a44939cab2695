package store

import (
	"context"
	"fmt"
	"time"
)

// UploadTracker records which uploaded documents have already been chunked.
// Separate from KnowledgeStore to maintain interface cohesion.
// This enables document-level deduplication of repeated uploads.
type UploadTracker interface {
	// IsUploadProcessed reports whether a document with the given hash was chunked before,
	// and how many chunks it produced.
	// hash: SHA-256 hash of the document text (content-based identity)
	IsUploadProcessed(ctx context.Context, hash string) (bool, int, error)

	// MarkUploadProcessed records that a document has been successfully chunked.
	// title is metadata only and does not affect identity.
	MarkUploadProcessed(ctx context.Context, hash, title string, chunkCount int) error
}

// Compile-time interface check
var _ UploadTracker = (*SQLiteStore)(nil)

// IsUploadProcessed checks if a document with the given hash has been processed.
func (s *SQLiteStore) IsUploadProcessed(ctx context.Context, hash string) (bool, int, error) {
	var count, chunks int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(MAX(chunk_count), 0) FROM uploads WHERE hash = ?", hash).Scan(&count, &chunks)
	if err != nil {
		return false, 0, fmt.Errorf("failed to check upload processed status: %w", err)
	}
	return count > 0, chunks, nil
}

// MarkUploadProcessed records that a document has been successfully processed.
func (s *SQLiteStore) MarkUploadProcessed(ctx context.Context, hash, title string, chunkCount int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO uploads (hash, title, chunk_count, processed_at) VALUES (?, ?, ?, ?)`,
		hash, title, chunkCount, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to mark upload as processed: %w", err)
	}
	return nil
}
