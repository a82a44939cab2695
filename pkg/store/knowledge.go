package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AddKnowledge writes an immutable knowledge chunk.
func (s *SQLiteStore) AddKnowledge(ctx context.Context, k *KnowledgeChunk) error {
	if k.ID == "" {
		k.ID = uuid.New().String()
	}
	if k.CreatedAt.IsZero() {
		k.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO knowledge (id, title, chunk, tags, source_uri, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		k.ID, k.Title, k.Chunk, k.Tag, k.SourceURI, formatTime(k.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to add knowledge: %w", err)
	}

	return nil
}

// RecentKnowledge returns the newest chunks by insertion order.
// Chunks older than the window stay on disk but are not returned.
func (s *SQLiteStore) RecentKnowledge(ctx context.Context, limit int) ([]*KnowledgeChunk, error) {
	if limit <= 0 {
		return []*KnowledgeChunk{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, chunk, tags, source_uri, created_at
		FROM knowledge
		ORDER BY rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query knowledge: %w", err)
	}
	defer rows.Close()

	chunks := make([]*KnowledgeChunk, 0)
	for rows.Next() {
		var k KnowledgeChunk
		var createdAt string
		if err := rows.Scan(&k.ID, &k.Title, &k.Chunk, &k.Tag, &k.SourceURI, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan knowledge: %w", err)
		}
		if k.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		chunks = append(chunks, &k)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating knowledge: %w", err)
	}

	return chunks, nil
}

// CountKnowledge returns the total number of stored chunks, including those
// outside the retrieval window.
func (s *SQLiteStore) CountKnowledge(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM knowledge").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count knowledge: %w", err)
	}
	return count, nil
}
