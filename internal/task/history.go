package task

import (
	"sort"
	"time"
)

// HistoryFilter narrows a history query. Zero fields are ignored.
type HistoryFilter struct {
	TaskID   string
	Role     string
	Type     string
	Status   Status
	Since    time.Time
	Until    time.Time
	Limit    int // defaults to 100
}

// HistoryEntry is one row of a history query.
type HistoryEntry struct {
	TaskID      string         `json:"task_id"`
	Type        string         `json:"task_type"`
	Role        string         `json:"role"`
	Status      Status         `json:"status"`
	Priority    Priority       `json:"priority"`
	CreatedAt   time.Time      `json:"created_at"`
	AssignedAt  *time.Time     `json:"assigned_at,omitempty"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Duration    time.Duration  `json:"duration"`
	Result      map[string]any `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
	RetryCount  int            `json:"retry_count"`
}

// RoleStats aggregates execution outcomes for one role.
type RoleStats struct {
	Total       int           `json:"total"`
	Completed   int           `json:"completed"`
	Failed      int           `json:"failed"`
	InProgress  int           `json:"in_progress"`
	Retries     int           `json:"retries"`
	TotalTime   time.Duration `json:"total_duration"`
	AverageTime time.Duration `json:"avg_duration"`
}

// TypeStats aggregates execution outcomes for one task type.
type TypeStats struct {
	Total       int           `json:"total"`
	Completed   int           `json:"completed"`
	Failed      int           `json:"failed"`
	TotalTime   time.Duration `json:"total_duration"`
	AverageTime time.Duration `json:"avg_duration"`
}

// Report is an aggregate performance report over a time window.
type Report struct {
	Since       time.Time            `json:"since"`
	Until       time.Time            `json:"until"`
	Total       int                  `json:"total_tasks"`
	Completed   int                  `json:"completed_tasks"`
	Failed      int                  `json:"failed_tasks"`
	SuccessRate float64              `json:"success_rate"`
	AverageTime time.Duration        `json:"avg_duration"`
	ByRole      map[string]RoleStats `json:"by_role"`
	ByType      map[string]TypeStats `json:"by_task_type"`
}

// History provides read-only queries over the Manager's task table.
type History struct {
	manager *Manager
}

// NewHistory creates a history view over the given manager.
func NewHistory(m *Manager) *History {
	return &History{manager: m}
}

// Query returns history entries matching the filter, newest first.
func (h *History) Query(f HistoryFilter) []HistoryEntry {
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}

	var tasks []*Task
	if f.TaskID != "" {
		if t, ok := h.manager.Task(f.TaskID); ok {
			tasks = []*Task{t}
		}
	} else {
		for _, t := range h.manager.Tasks() {
			if f.Role != "" && t.AssignedTo != f.Role {
				continue
			}
			if f.Type != "" && t.Type != f.Type {
				continue
			}
			if f.Status != "" && t.Status != f.Status {
				continue
			}
			if !f.Since.IsZero() && t.CreatedAt.Before(f.Since) {
				continue
			}
			if !f.Until.IsZero() && t.CreatedAt.After(f.Until) {
				continue
			}
			tasks = append(tasks, t)
		}
	}

	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})
	if len(tasks) > limit {
		tasks = tasks[:limit]
	}

	entries := make([]HistoryEntry, 0, len(tasks))
	for _, t := range tasks {
		entries = append(entries, HistoryEntry{
			TaskID:      t.ID,
			Type:        t.Type,
			Role:        t.AssignedTo,
			Status:      t.Status,
			Priority:    t.Priority,
			CreatedAt:   t.CreatedAt,
			AssignedAt:  t.AssignedAt,
			StartedAt:   t.StartedAt,
			CompletedAt: t.CompletedAt,
			Duration:    t.Duration(),
			Result:      t.Result,
			Error:       t.Error,
			RetryCount:  t.RetryCount,
		})
	}
	return entries
}

// Recent returns entries created within the given window.
func (h *History) Recent(window time.Duration, limit int) []HistoryEntry {
	return h.Query(HistoryFilter{Since: time.Now().Add(-window), Limit: limit})
}

// Failed returns the most recent failed tasks.
func (h *History) Failed(limit int) []HistoryEntry {
	return h.Query(HistoryFilter{Status: StatusFailed, Limit: limit})
}

// StatsByRole aggregates outcomes per role over the given window.
// Zero time bounds mean unbounded.
func (h *History) StatsByRole(since, until time.Time) map[string]RoleStats {
	stats := make(map[string]RoleStats)
	for _, t := range h.tasksInWindow(since, until) {
		role := t.AssignedTo
		if role == "" {
			role = "unassigned"
		}
		s := stats[role]
		s.Total++
		s.Retries += t.RetryCount
		switch t.Status {
		case StatusCompleted:
			s.Completed++
			s.TotalTime += t.Duration()
		case StatusFailed:
			s.Failed++
		case StatusInProgress:
			s.InProgress++
		}
		stats[role] = s
	}
	for role, s := range stats {
		if s.Completed > 0 {
			s.AverageTime = s.TotalTime / time.Duration(s.Completed)
			stats[role] = s
		}
	}
	return stats
}

// StatsByType aggregates outcomes per task type over the given window.
func (h *History) StatsByType(since, until time.Time) map[string]TypeStats {
	stats := make(map[string]TypeStats)
	for _, t := range h.tasksInWindow(since, until) {
		s := stats[t.Type]
		s.Total++
		switch t.Status {
		case StatusCompleted:
			s.Completed++
			s.TotalTime += t.Duration()
		case StatusFailed:
			s.Failed++
		}
		stats[t.Type] = s
	}
	for typ, s := range stats {
		if s.Completed > 0 {
			s.AverageTime = s.TotalTime / time.Duration(s.Completed)
			stats[typ] = s
		}
	}
	return stats
}

// PerformanceReport builds an aggregate report for the window. A zero
// since defaults to the last 7 days; a zero until defaults to now.
func (h *History) PerformanceReport(since, until time.Time) Report {
	if until.IsZero() {
		until = time.Now()
	}
	if since.IsZero() {
		since = until.Add(-7 * 24 * time.Hour)
	}

	report := Report{
		Since:  since,
		Until:  until,
		ByRole: h.StatsByRole(since, until),
		ByType: h.StatsByType(since, until),
	}

	var totalTime time.Duration
	for _, t := range h.tasksInWindow(since, until) {
		report.Total++
		switch t.Status {
		case StatusCompleted:
			report.Completed++
			totalTime += t.Duration()
		case StatusFailed:
			report.Failed++
		}
	}
	if report.Total > 0 {
		report.SuccessRate = float64(report.Completed) / float64(report.Total) * 100
	}
	if report.Completed > 0 {
		report.AverageTime = totalTime / time.Duration(report.Completed)
	}
	return report
}

func (h *History) tasksInWindow(since, until time.Time) []*Task {
	var out []*Task
	for _, t := range h.manager.Tasks() {
		if !since.IsZero() && t.CreatedAt.Before(since) {
			continue
		}
		if !until.IsZero() && t.CreatedAt.After(until) {
			continue
		}
		out = append(out, t)
	}
	return out
}
