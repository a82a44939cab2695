package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dan-solli/moex/pkg/identity"
	"github.com/dan-solli/moex/pkg/store"
	"github.com/dan-solli/moex/pkg/tone"
)

var validStatuses = map[string]bool{
	store.StatusTodo:       true,
	store.StatusInProgress: true,
	store.StatusDone:       true,
}

// RenderTasks formats a task list reply.
func RenderTasks(tasks []*store.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You have %d task(s).", len(tasks))
	for _, t := range tasks {
		due := t.DueDate
		if due == "" {
			due = "-"
		}
		fmt.Fprintf(&b, "\n- [%s] %s, due %s (prio %s, %s)", t.Status, t.Title, due, t.Priority, t.Category)
	}
	return b.String()
}

func (s *Service) taskListReply(ctx context.Context, caller identity.Caller, message, tag string) (string, error) {
	tasks, err := s.repo.ListTasks(ctx, store.TaskFilter{Owner: caller.Name()})
	if err != nil {
		return "", fmt.Errorf("failed to list tasks: %w", err)
	}

	voice := tone.ToneFor(tone.ContextTask)
	body := RenderTasks(tasks)
	reply := s.enveloper.Envelope(ctx, voice, body, false, tag)

	s.audit(ctx, caller.Name(), "chat", voice, map[string]interface{}{
		"message": message,
		"result":  reply,
		"context": string(tone.ContextTask),
	})
	return reply, nil
}

// CreateTask validates and stores a task. Owner defaults to the caller's name.
func (s *Service) CreateTask(ctx context.Context, caller identity.Caller, t *store.Task) error {
	t.Title = strings.TrimSpace(t.Title)
	if t.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if t.Owner == "" {
		t.Owner = caller.Name()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now()
	}
	if err := validateDueDate(t.DueDate); err != nil {
		return err
	}
	if t.Status != "" && !validStatuses[t.Status] {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidInput, t.Status)
	}
	if t.Priority != 0 && !validPriority(t.Priority) {
		return fmt.Errorf("%w: priority out of range", ErrInvalidInput)
	}

	if err := s.repo.AddTask(ctx, t); err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	s.audit(ctx, caller.Name(), "task", "", map[string]interface{}{
		"action":  "create",
		"task_id": t.ID,
		"owner":   t.Owner,
	})
	return nil
}

// ListTasks returns tasks in due-date order.
func (s *Service) ListTasks(ctx context.Context, filter store.TaskFilter) ([]*store.Task, error) {
	tasks, err := s.repo.ListTasks(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tasks, nil
}

// UpdateTask applies a partial update. store.ErrTaskNotFound is returned for
// an unknown ID.
func (s *Service) UpdateTask(ctx context.Context, caller identity.Caller, id string, upd store.TaskUpdate) error {
	if upd.Title != nil && strings.TrimSpace(*upd.Title) == "" {
		return fmt.Errorf("%w: title must not be empty", ErrInvalidInput)
	}
	if upd.DueDate != nil {
		if err := validateDueDate(*upd.DueDate); err != nil {
			return err
		}
	}
	if upd.Status != nil && !validStatuses[*upd.Status] {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidInput, *upd.Status)
	}
	if upd.Priority != nil && !validPriority(*upd.Priority) {
		return fmt.Errorf("%w: priority out of range", ErrInvalidInput)
	}

	upd.UpdatedAt = s.now()
	if err := s.repo.UpdateTask(ctx, id, upd); err != nil {
		if errors.Is(err, store.ErrTaskNotFound) {
			return err
		}
		return fmt.Errorf("failed to update task: %w", err)
	}

	s.audit(ctx, caller.Name(), "task", "", map[string]interface{}{
		"action":  "update",
		"task_id": id,
	})
	return nil
}

func validPriority(p store.Priority) bool {
	return p >= store.PriorityLow && p <= store.PriorityUrgent
}

func validateDueDate(due string) error {
	if due == "" {
		return nil
	}
	if _, err := time.Parse(store.DueDateLayout, due); err != nil {
		return fmt.Errorf("%w: due date must be YYYY-MM-DD", ErrInvalidInput)
	}
	return nil
}
