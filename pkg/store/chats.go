package store

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// AppendChat records one line of conversation history.
func (s *SQLiteStore) AppendChat(ctx context.Context, m *ChatMessage) error {
	if m.ID == "" {
		m.ID = ulid.Make().String()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chats (id, person_id, role, text, created_at) VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.PersonID, m.Role, m.Text, formatTime(m.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to append chat: %w", err)
	}

	return nil
}

// RecentChats returns the newest messages for a person and role.
// An empty role matches both roles.
func (s *SQLiteStore) RecentChats(ctx context.Context, personID, role string, limit int) ([]*ChatMessage, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT id, person_id, role, text, created_at FROM chats WHERE person_id = ?`
	args := []interface{}{personID}
	if role != "" {
		query += ` AND role = ?`
		args = append(args, role)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query chats: %w", err)
	}
	defer rows.Close()

	msgs := make([]*ChatMessage, 0)
	for rows.Next() {
		var m ChatMessage
		var createdAt string
		if err := rows.Scan(&m.ID, &m.PersonID, &m.Role, &m.Text, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat: %w", err)
		}
		if m.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, &m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chats: %w", err)
	}

	return msgs, nil
}
