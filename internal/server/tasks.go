package server

import (
	"net/http"
	"time"

	"github.com/crewlab/conductor/internal/task"
)

// taskView is the wire shape of a task.
type taskView struct {
	ID           string         `json:"id"`
	Type         string         `json:"task_type"`
	Input        map[string]any `json:"input,omitempty"`
	AssignedTo   string         `json:"assigned_to,omitempty"`
	Priority     int            `json:"priority"`
	Dependencies []string       `json:"dependencies,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Status       string         `json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
	AssignedAt   *time.Time     `json:"assigned_at,omitempty"`
	StartedAt    *time.Time     `json:"started_at,omitempty"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	Result       map[string]any `json:"result,omitempty"`
	Error        string         `json:"error,omitempty"`
	RetryCount   int            `json:"retry_count"`
	MaxRetries   int            `json:"max_retries"`
}

func viewOf(t *task.Task) taskView {
	return taskView{
		ID:           t.ID,
		Type:         t.Type,
		Input:        t.Input,
		AssignedTo:   t.AssignedTo,
		Priority:     int(t.Priority),
		Dependencies: t.Dependencies,
		Metadata:     t.Metadata,
		Status:       string(t.Status),
		CreatedAt:    t.CreatedAt,
		AssignedAt:   t.AssignedAt,
		StartedAt:    t.StartedAt,
		CompletedAt:  t.CompletedAt,
		Result:       t.Result,
		Error:        t.Error,
		RetryCount:   t.RetryCount,
		MaxRetries:   t.MaxRetries,
	}
}

type createTaskRequest struct {
	Type           string         `json:"task_type"`
	Input          map[string]any `json:"input"`
	Priority       int            `json:"priority"`
	Dependencies   []string       `json:"dependencies"`
	Metadata       map[string]any `json:"metadata"`
	MaxRetries     *int           `json:"max_retries"`
	TimeoutSeconds float64        `json:"timeout_seconds"`
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if !decodeBody(w, r, &req) {
		return
	}

	cr := task.CreateRequest{
		Type:         req.Type,
		Input:        req.Input,
		Priority:     task.Priority(req.Priority),
		Dependencies: req.Dependencies,
		Metadata:     req.Metadata,
		Timeout:      time.Duration(req.TimeoutSeconds * float64(time.Second)),
	}
	if req.Priority == 0 {
		cr.Priority = task.PriorityMedium
	}
	if req.MaxRetries != nil {
		cr.MaxRetries = *req.MaxRetries
	} else {
		cr.MaxRetries = task.DefaultMaxRetries
	}

	t, err := s.manager.CreateTask(cr)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, viewOf(t))
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	var tasks []*task.Task
	switch {
	case r.URL.Query().Get("status") != "":
		status := task.Status(r.URL.Query().Get("status"))
		if !status.Valid() {
			writeError(w, http.StatusBadRequest, "unknown status: "+string(status))
			return
		}
		tasks = s.manager.TasksByStatus(status)
	case r.URL.Query().Get("role") != "":
		tasks = s.manager.TasksByRole(r.URL.Query().Get("role"))
	default:
		tasks = s.manager.Tasks()
	}

	views := make([]taskView, 0, len(tasks))
	for _, t := range tasks {
		views = append(views, viewOf(t))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	t, ok := s.manager.Task(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, viewOf(t))
}

// handleAssignTask assigns a task to the role in the body, or to its
// mapped role when no role is given.
func (s *Server) handleAssignTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req struct {
		Role string `json:"role"`
	}
	if r.ContentLength > 0 && !decodeBody(w, r, &req) {
		return
	}

	ok := false
	if req.Role != "" {
		ok = s.manager.AssignTask(id, req.Role)
	} else if t, found := s.manager.Task(id); found {
		ok = s.scheduler.AssignTask(t)
	}
	if !ok {
		writeError(w, http.StatusConflict, "task cannot be assigned")
		return
	}

	t, _ := s.manager.Task(id)
	writeJSON(w, http.StatusOK, viewOf(t))
}

func (s *Server) handleExecuteTask(w http.ResponseWriter, r *http.Request) {
	result := s.scheduler.ExecuteTask(r.Context(), r.PathValue("id"))
	status := http.StatusOK
	if !result.Success {
		status = http.StatusConflict
	}
	writeJSON(w, status, result)
}

func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.manager.CancelTask(id) {
		writeError(w, http.StatusConflict, "task cannot be cancelled")
		return
	}
	t, _ := s.manager.Task(id)
	writeJSON(w, http.StatusOK, viewOf(t))
}

func (s *Server) handleAutoAssign(w http.ResponseWriter, r *http.Request) {
	n := s.scheduler.AutoAssignPending()
	writeJSON(w, http.StatusOK, map[string]int{"assigned": n})
}

func (s *Server) handleDrain(w http.ResponseWriter, r *http.Request) {
	results := s.scheduler.ExecuteAssigned(r.Context(), s.concurrency)
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.GetStatistics())
}

func (s *Server) handleWorkload(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.scheduler.RoleWorkload())
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	var since, until time.Time
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid since: "+err.Error())
			return
		}
		since = t
	}
	if v := r.URL.Query().Get("until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid until: "+err.Error())
			return
		}
		until = t
	}
	writeJSON(w, http.StatusOK, s.history.PerformanceReport(since, until))
}

func (s *Server) handleFailedHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.history.Failed(50))
}
