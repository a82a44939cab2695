package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const personColumns = `id, name, email, handle, tags, persona, secret_salt, secret_hash, is_enabled, created_at`

// claimFields are the only columns FindEnabledPersonBy accepts.
var claimFields = map[string]bool{
	"email":  true,
	"handle": true,
	"name":   true,
}

// AddPerson inserts a new person record.
func (s *SQLiteStore) AddPerson(ctx context.Context, p *Person) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO people (id, name, email, handle, tags, persona, secret_salt, secret_hash, is_enabled, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		p.ID,
		p.Name,
		nullString(p.Email),
		nullString(p.Handle),
		p.Tags,
		p.Persona,
		p.SecretSalt,
		p.SecretHash,
		boolToInt(p.Enabled),
		formatTime(p.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to add person: %w", err)
	}

	return nil
}

// GetPerson retrieves a person by ID.
func (s *SQLiteStore) GetPerson(ctx context.Context, id string) (*Person, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+personColumns+` FROM people WHERE id = ?`, id)

	p, err := scanPerson(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get person: %w", err)
	}

	return p, nil
}

// FindEnabledPersonBy returns the earliest-created enabled person whose field equals value.
func (s *SQLiteStore) FindEnabledPersonBy(ctx context.Context, field, value string) (*Person, error) {
	if !claimFields[field] {
		return nil, fmt.Errorf("invalid lookup field %q", field)
	}

	query := fmt.Sprintf(`SELECT %s FROM people WHERE %s = ? AND is_enabled = 1 ORDER BY created_at, id LIMIT 1`,
		personColumns, field)

	p, err := scanPerson(s.db.QueryRowContext(ctx, query, value))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find person by %s: %w", field, err)
	}

	return p, nil
}

// DisablePerson marks a person as disabled. The record is kept.
func (s *SQLiteStore) DisablePerson(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE people SET is_enabled = 0 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to disable person: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to disable person: %w", err)
	}
	if n == 0 {
		return ErrPersonNotFound
	}

	return nil
}

// CountPeople returns the number of enabled people.
func (s *SQLiteStore) CountPeople(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM people WHERE is_enabled = 1").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count people: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPerson(row rowScanner) (*Person, error) {
	var p Person
	var email, handle sql.NullString
	var enabled int
	var createdAt string

	err := row.Scan(
		&p.ID,
		&p.Name,
		&email,
		&handle,
		&p.Tags,
		&p.Persona,
		&p.SecretSalt,
		&p.SecretHash,
		&enabled,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	p.Email = email.String
	p.Handle = handle.String
	p.Enabled = enabled == 1
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}

	return &p, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
