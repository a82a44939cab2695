package server

import (
	"net/http"
	"time"

	"github.com/dan-solli/moex/pkg/store"
	"github.com/gin-gonic/gin"
)

type taskView struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Owner     string `json:"owner"`
	DueDate   string `json:"due_date,omitempty"`
	Priority  string `json:"priority"`
	Category  string `json:"category"`
	Status    string `json:"status"`
	Notes     string `json:"notes,omitempty"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func viewTask(t *store.Task) taskView {
	return taskView{
		ID:        t.ID,
		Title:     t.Title,
		Owner:     t.Owner,
		DueDate:   t.DueDate,
		Priority:  t.Priority.String(),
		Category:  t.Category,
		Status:    t.Status,
		Notes:     t.Notes,
		CreatedAt: t.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: t.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

type createTaskRequest struct {
	Title    string `json:"title"`
	Owner    string `json:"owner"`
	DueDate  string `json:"due_date"`
	Priority string `json:"priority"`
	Category string `json:"category"`
	Status   string `json:"status"`
	Notes    string `json:"notes"`
}

func (s *Server) handleCreateTask(c *gin.Context) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid JSON body")
		return
	}
	prio, err := store.ParsePriority(req.Priority)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	caller := callerFrom(c)
	if caller.Anonymous() && !isAdmin(c) && req.Owner != "" && req.Owner != caller.Name() {
		c.JSON(http.StatusForbidden, gin.H{"error": "guests can only create their own tasks"})
		return
	}

	t := &store.Task{
		Title:    req.Title,
		Owner:    req.Owner,
		DueDate:  req.DueDate,
		Priority: prio,
		Category: req.Category,
		Status:   req.Status,
		Notes:    req.Notes,
	}
	if err := s.app.Chat().CreateTask(c.Request.Context(), caller, t); err != nil {
		s.fail(c, "task", err)
		return
	}

	c.JSON(http.StatusOK, viewTask(t))
}

// handleListTasks lists the caller's own tasks. Listing another owner, or
// every owner, needs the admin token.
func (s *Server) handleListTasks(c *gin.Context) {
	filter := store.TaskFilter{
		Owner:  c.Query("owner"),
		Status: c.Query("status"),
	}
	if !isAdmin(c) {
		own := callerFrom(c).Name()
		if filter.Owner != "" && filter.Owner != own {
			c.JSON(http.StatusForbidden, gin.H{"error": "admin token required for other owners"})
			return
		}
		filter.Owner = own
	}

	tasks, err := s.app.Chat().ListTasks(c.Request.Context(), filter)
	if err != nil {
		s.fail(c, "task", err)
		return
	}

	views := make([]taskView, 0, len(tasks))
	for _, t := range tasks {
		views = append(views, viewTask(t))
	}
	c.JSON(http.StatusOK, gin.H{"tasks": views})
}

type updateTaskRequest struct {
	Title    *string `json:"title"`
	DueDate  *string `json:"due_date"`
	Priority *string `json:"priority"`
	Category *string `json:"category"`
	Status   *string `json:"status"`
	Notes    *string `json:"notes"`
}

func (s *Server) handleUpdateTask(c *gin.Context) {
	var req updateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid JSON body")
		return
	}

	upd := store.TaskUpdate{
		Title:    req.Title,
		DueDate:  req.DueDate,
		Category: req.Category,
		Status:   req.Status,
		Notes:    req.Notes,
	}
	if req.Priority != nil {
		prio, err := store.ParsePriority(*req.Priority)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		upd.Priority = &prio
	}

	if err := s.app.Chat().UpdateTask(c.Request.Context(), callerFrom(c), c.Param("id"), upd); err != nil {
		s.fail(c, "task", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
