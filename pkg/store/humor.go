package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AddHumor stores a new humor line with a zero use counter.
func (s *SQLiteStore) AddHumor(ctx context.Context, h *HumorLine) error {
	if h.ID == "" {
		h.ID = uuid.New().String()
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now()
	}
	if h.Tag == "" {
		h.Tag = "generic"
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO humor (id, line, level, tag, use_count, created_at) VALUES (?, ?, ?, ?, 0, ?)`,
		h.ID, h.Line, h.Level, h.Tag, formatTime(h.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to add humor: %w", err)
	}

	h.UseCount = 0
	h.LastUsedAt = nil
	return nil
}

// PickHumor selects and marks a line in one statement so concurrent pickers
// never read the same counter value. The line's last_used_at is set to at, or
// to the current time when at is zero.
func (s *SQLiteStore) PickHumor(ctx context.Context, level, tag string, at time.Time) (*HumorLine, error) {
	if at.IsZero() {
		at = time.Now()
	}
	where := "level = ?"
	args := []interface{}{formatTime(at), level}
	if tag != "" {
		where += " AND tag = ?"
		args = append(args, tag)
	}

	query := fmt.Sprintf(`
		UPDATE humor
		SET use_count = use_count + 1, last_used_at = ?
		WHERE id = (
			SELECT id FROM humor
			WHERE %s
			ORDER BY use_count ASC, last_used_at IS NOT NULL, last_used_at ASC, RANDOM()
			LIMIT 1
		)
		RETURNING id, line, level, tag, use_count, last_used_at, created_at`, where)

	var h HumorLine
	var lastUsed sql.NullString
	var createdAt string
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&h.ID, &h.Line, &h.Level, &h.Tag, &h.UseCount, &lastUsed, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to pick humor: %w", err)
	}

	if h.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if lastUsed.Valid {
		t, err := parseTime(lastUsed.String)
		if err != nil {
			return nil, err
		}
		h.LastUsedAt = &t
	}

	return &h, nil
}
