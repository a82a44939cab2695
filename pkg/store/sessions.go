package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// AddSession persists a newly minted session. Tokens are never reused.
func (s *SQLiteStore) AddSession(ctx context.Context, sess *Session) error {
	if sess.Token == "" {
		return fmt.Errorf("session token cannot be empty")
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (token, person_id, trusted_until, created_at) VALUES (?, ?, ?, ?)`,
		sess.Token, sess.PersonID, formatTime(sess.TrustedUntil), formatTime(sess.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to add session: %w", err)
	}

	return nil
}

// GetSession looks a session up by token. Expiry is the caller's concern.
func (s *SQLiteStore) GetSession(ctx context.Context, token string) (*Session, error) {
	var sess Session
	var trustedUntil, createdAt string

	err := s.db.QueryRowContext(ctx,
		`SELECT token, person_id, trusted_until, created_at FROM sessions WHERE token = ?`, token).
		Scan(&sess.Token, &sess.PersonID, &trustedUntil, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	if sess.TrustedUntil, err = parseTime(trustedUntil); err != nil {
		return nil, err
	}
	if sess.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}

	return &sess, nil
}
