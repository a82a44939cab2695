package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AddFact appends a memory fact. An existing key is not overwritten.
func (s *SQLiteStore) AddFact(ctx context.Context, f *MemoryFact) error {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now()
	}
	if f.Source == "" {
		f.Source = "user"
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memory (id, key, value, source, created_at) VALUES (?, ?, ?, ?, ?)`,
		f.ID, f.Key, f.Value, f.Source, formatTime(f.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to add memory fact: %w", err)
	}

	return nil
}

// FactsByKey returns all facts for a key in insertion order.
func (s *SQLiteStore) FactsByKey(ctx context.Context, key string) ([]*MemoryFact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, key, value, source, created_at FROM memory WHERE key = ? ORDER BY rowid ASC`, key)
	if err != nil {
		return nil, fmt.Errorf("failed to query memory facts: %w", err)
	}
	defer rows.Close()

	facts := make([]*MemoryFact, 0)
	for rows.Next() {
		var f MemoryFact
		var createdAt string
		if err := rows.Scan(&f.ID, &f.Key, &f.Value, &f.Source, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan memory fact: %w", err)
		}
		if f.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		facts = append(facts, &f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating memory facts: %w", err)
	}

	return facts, nil
}
