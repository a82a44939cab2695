package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// DefaultDriver is the pure-Go modernc SQLite driver.
const DefaultDriver = "sqlite"

// timeLayout is the on-disk format for every timestamp column. Fixed width,
// so text comparison in SQL orders timestamps correctly.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements Repository using SQLite as the backend.
// A single connection serializes every read/modify/commit.
type SQLiteStore struct {
	db *sql.DB
}

// Compile-time interface check
var _ Repository = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite-backed store with the default driver.
// The dbPath can be a file path or ":memory:" for an in-memory database.
// Creates tables and indexes if they don't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	return OpenSQLiteStore(DefaultDriver, dbPath)
}

// OpenSQLiteStore opens a store with an explicit database/sql driver name
// ("sqlite" for modernc, "sqlite3" for mattn when built with cgo).
func OpenSQLiteStore(driver, dbPath string) (*SQLiteStore, error) {
	if driver == "" {
		driver = DefaultDriver
	}
	if dbPath != ":memory:" {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	db, err := sql.Open(driver, dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates the database schema if it doesn't exist.
// Also performs schema migrations for new columns.
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS people (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT,
		handle TEXT,
		tags TEXT NOT NULL DEFAULT '',
		secret_salt BLOB NOT NULL,
		secret_hash BLOB NOT NULL,
		is_enabled INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_people_email ON people(email);
	CREATE INDEX IF NOT EXISTS idx_people_handle ON people(handle);
	CREATE INDEX IF NOT EXISTS idx_people_name ON people(name);

	CREATE TABLE IF NOT EXISTS sessions (
		token TEXT PRIMARY KEY,
		person_id TEXT NOT NULL REFERENCES people(id),
		trusted_until TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_person ON sessions(person_id);

	CREATE TABLE IF NOT EXISTS knowledge (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		chunk TEXT NOT NULL,
		tags TEXT NOT NULL DEFAULT '',
		source_uri TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS humor (
		id TEXT PRIMARY KEY,
		line TEXT NOT NULL,
		level TEXT NOT NULL,
		tag TEXT NOT NULL DEFAULT 'generic',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_humor_level_tag ON humor(level, tag);

	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		owner TEXT NOT NULL,
		due_date TEXT,
		priority INTEGER NOT NULL DEFAULT 2,
		category TEXT NOT NULL DEFAULT 'Admin',
		status TEXT NOT NULL DEFAULT 'To-Do',
		notes TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_owner ON tasks(owner);

	CREATE TABLE IF NOT EXISTS memory (
		id TEXT PRIMARY KEY,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		source TEXT NOT NULL DEFAULT 'user',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_memory_key ON memory(key);

	CREATE TABLE IF NOT EXISTS audit (
		id TEXT PRIMARY KEY,
		ts TEXT NOT NULL,
		user_name TEXT NOT NULL,
		kind TEXT NOT NULL,
		tone TEXT NOT NULL DEFAULT '',
		payload TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chats (
		id TEXT PRIMARY KEY,
		person_id TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL,
		text TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_chats_person ON chats(person_id, role);

	CREATE TABLE IF NOT EXISTS uploads (
		hash TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		chunk_count INTEGER NOT NULL,
		processed_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	if err != nil {
		return err
	}

	// Run schema migrations for new columns
	return s.migrateSchema()
}

// migrateSchema adds columns introduced after the first release.
func (s *SQLiteStore) migrateSchema() error {
	migrations := []struct {
		table, column, ddl string
	}{
		{"people", "persona", "ALTER TABLE people ADD COLUMN persona TEXT NOT NULL DEFAULT ''"},
		{"humor", "use_count", "ALTER TABLE humor ADD COLUMN use_count INTEGER NOT NULL DEFAULT 0"},
		{"humor", "last_used_at", "ALTER TABLE humor ADD COLUMN last_used_at TEXT DEFAULT NULL"},
	}

	for _, m := range migrations {
		if s.columnExists(m.table, m.column) {
			continue
		}
		if _, err := s.db.Exec(m.ddl); err != nil {
			return fmt.Errorf("failed to add %s.%s column: %w", m.table, m.column, err)
		}
	}

	return nil
}

// columnExists checks if a column exists in a table.
func (s *SQLiteStore) columnExists(tableName, columnName string) bool {
	query := fmt.Sprintf("PRAGMA table_info(%s)", tableName)
	rows, err := s.db.Query(query)
	if err != nil {
		return false
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name string
		var ctype string
		var notnull int
		var dfltValue sql.NullString
		var pk int

		err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk)
		if err != nil {
			return false
		}

		if name == columnName {
			return true
		}
	}

	return false
}

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases database resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
