package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// AppendAudit writes an audit entry. IDs are monotonic ULIDs, so ordering by ID
// is a total order consistent with write time.
func (s *SQLiteStore) AppendAudit(ctx context.Context, e *AuditEntry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if e.ID == "" {
		e.ID = ulid.Make().String()
	}

	payload := e.Payload
	if payload == nil {
		payload = map[string]interface{}{}
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal audit payload: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO audit (id, ts, user_name, kind, tone, payload) VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, formatTime(e.Timestamp), e.Caller, e.Kind, e.Tone, string(payloadJSON))
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}

	return nil
}

// ListAudit returns the latest audit entries, newest first.
func (s *SQLiteStore) ListAudit(ctx context.Context, limit int) ([]*AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ts, user_name, kind, tone, payload FROM audit ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit: %w", err)
	}
	defer rows.Close()

	entries := make([]*AuditEntry, 0)
	for rows.Next() {
		var e AuditEntry
		var ts, payloadJSON string
		if err := rows.Scan(&e.ID, &ts, &e.Caller, &e.Kind, &e.Tone, &payloadJSON); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		if e.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payloadJSON), &e.Payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal audit payload: %w", err)
		}
		entries = append(entries, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit: %w", err)
	}

	return entries, nil
}
