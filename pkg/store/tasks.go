package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Priority ranks tasks; higher sorts first among equal due dates.
type Priority int

// Priority levels.
const (
	PriorityLow    Priority = 1
	PriorityNormal Priority = 2
	PriorityHigh   Priority = 3
	PriorityUrgent Priority = 4
)

var priorityNames = map[Priority]string{
	PriorityLow:    "Low",
	PriorityNormal: "Normal",
	PriorityHigh:   "High",
	PriorityUrgent: "Urgent",
}

func (p Priority) String() string {
	if name, ok := priorityNames[p]; ok {
		return name
	}
	return fmt.Sprintf("Priority(%d)", int(p))
}

// ParsePriority converts a case-insensitive priority name. Empty means Normal.
func ParsePriority(s string) (Priority, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return PriorityNormal, nil
	}
	for p, name := range priorityNames {
		if strings.EqualFold(name, s) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("invalid priority %q: must be one of Low, Normal, High, Urgent", s)
}

// Task statuses.
const (
	StatusTodo       = "To-Do"
	StatusInProgress = "In Progress"
	StatusDone       = "Done"
)

// DueDateLayout is the calendar-date format for task due dates.
const DueDateLayout = "2006-01-02"

// Task is a unit of work owned by a person (by display name).
type Task struct {
	ID        string
	Title     string
	Owner     string
	DueDate   string // Optional, YYYY-MM-DD
	Priority  Priority
	Category  string
	Status    string
	Notes     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TaskUpdate represents partial updates to a task.
// All fields are pointers to distinguish between "not provided" and "set to zero value".
// An empty DueDate clears the due date. A zero UpdatedAt stamps the current time.
type TaskUpdate struct {
	Title     *string
	DueDate   *string
	Priority  *Priority
	Category  *string
	Status    *string
	Notes     *string
	UpdatedAt time.Time
}

// TaskFilter narrows ListTasks. Empty fields match everything.
type TaskFilter struct {
	Owner  string
	Status string
}

// TaskStore persists tasks.
type TaskStore interface {
	AddTask(ctx context.Context, t *Task) error

	GetTask(ctx context.Context, id string) (*Task, error)

	// ListTasks returns tasks with dated tasks first (earliest due first),
	// undated tasks last, and higher priority first among equal due dates.
	ListTasks(ctx context.Context, filter TaskFilter) ([]*Task, error)

	// UpdateTask applies a partial update. Last writer wins.
	UpdateTask(ctx context.Context, id string, updates TaskUpdate) error
}

// AddTask inserts a task, applying defaults for empty fields.
func (s *SQLiteStore) AddTask(ctx context.Context, t *Task) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	t.UpdatedAt = t.CreatedAt
	if t.Priority == 0 {
		t.Priority = PriorityNormal
	}
	if t.Category == "" {
		t.Category = "Admin"
	}
	if t.Status == "" {
		t.Status = StatusTodo
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, title, owner, due_date, priority, category, status, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Title, t.Owner, nullString(t.DueDate), int(t.Priority), t.Category, t.Status, t.Notes,
		formatTime(t.CreatedAt), formatTime(t.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to add task: %w", err)
	}

	return nil
}

// GetTask retrieves a task by ID. Returns (nil, nil) if not found.
func (s *SQLiteStore) GetTask(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return t, nil
}

const taskColumns = `id, title, owner, due_date, priority, category, status, notes, created_at, updated_at`

// ListTasks returns tasks matching the filter in due-date order.
func (s *SQLiteStore) ListTasks(ctx context.Context, filter TaskFilter) ([]*Task, error) {
	where := []string{"1=1"}
	var args []interface{}
	if filter.Owner != "" {
		where = append(where, "owner = ?")
		args = append(args, filter.Owner)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}

	query := fmt.Sprintf(`
		SELECT %s FROM tasks
		WHERE %s
		ORDER BY due_date IS NULL, due_date ASC, priority DESC, created_at ASC, id ASC`,
		taskColumns, strings.Join(where, " AND "))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]*Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}

	return tasks, nil
}

// UpdateTask applies partial updates to a task.
func (s *SQLiteStore) UpdateTask(ctx context.Context, id string, updates TaskUpdate) error {
	var sets []string
	var args []interface{}

	if updates.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *updates.Title)
	}
	if updates.DueDate != nil {
		sets = append(sets, "due_date = ?")
		args = append(args, nullString(*updates.DueDate))
	}
	if updates.Priority != nil {
		sets = append(sets, "priority = ?")
		args = append(args, int(*updates.Priority))
	}
	if updates.Category != nil {
		sets = append(sets, "category = ?")
		args = append(args, *updates.Category)
	}
	if updates.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *updates.Status)
	}
	if updates.Notes != nil {
		sets = append(sets, "notes = ?")
		args = append(args, *updates.Notes)
	}

	if len(sets) == 0 {
		return nil
	}

	updatedAt := updates.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, formatTime(updatedAt), id)

	query := fmt.Sprintf("UPDATE tasks SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	if n == 0 {
		return ErrTaskNotFound
	}

	return nil
}

func scanTask(row rowScanner) (*Task, error) {
	var t Task
	var dueDate sql.NullString
	var priority int
	var createdAt, updatedAt string

	err := row.Scan(&t.ID, &t.Title, &t.Owner, &dueDate, &priority, &t.Category, &t.Status, &t.Notes,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	t.DueDate = dueDate.String
	t.Priority = Priority(priority)
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}

	return &t, nil
}
