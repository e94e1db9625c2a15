package task

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle state of a task.
type Status string

const (
	StatusPending    Status = "pending"     // waiting for assignment
	StatusAssigned   Status = "assigned"    // assigned to a role, not yet started
	StatusInProgress Status = "in_progress" // worker is executing
	StatusCompleted  Status = "completed"   // finished successfully
	StatusFailed     Status = "failed"      // finished with error
	StatusCancelled  Status = "cancelled"   // explicitly cancelled
)

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAssigned, StatusInProgress,
		StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are allowed from s.
// A failed task is only terminal once its retry budget is exhausted;
// that decision belongs to the Manager, so failed is not terminal here.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Priority orders tasks in the pending queue. Higher values are served first.
type Priority int

const (
	PriorityLow    Priority = 1
	PriorityMedium Priority = 2
	PriorityHigh   Priority = 3
	PriorityUrgent Priority = 4
)

// Valid reports whether p is a known priority value.
func (p Priority) Valid() bool {
	return p >= PriorityLow && p <= PriorityUrgent
}

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	case PriorityUrgent:
		return "urgent"
	}
	return fmt.Sprintf("priority(%d)", int(p))
}

// DefaultMaxRetries is the retry budget applied when none is given.
const DefaultMaxRetries = 3

// Task is a single schedulable unit of work. All fields are owned by the
// Manager's task table; callers receive clones and mutate only through
// Manager operations.
type Task struct {
	ID           string
	Type         string // routing tag, e.g. "create_plan"
	Input        map[string]any
	AssignedTo   string // role name, empty until assigned
	Priority     Priority
	Dependencies []string
	Metadata     map[string]any

	Status      Status
	CreatedAt   time.Time
	AssignedAt  *time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time

	Result map[string]any
	Error  string

	RetryCount int
	MaxRetries int

	Timeout      time.Duration // 0 means no timeout
	LastActivity time.Time
}

// New creates a pending task with a fresh id.
func New(taskType string, input map[string]any) *Task {
	now := time.Now()
	return &Task{
		ID:           uuid.NewString(),
		Type:         taskType,
		Input:        input,
		Priority:     PriorityMedium,
		Status:       StatusPending,
		CreatedAt:    now,
		MaxRetries:   DefaultMaxRetries,
		LastActivity: now,
	}
}

// Assign transitions pending -> assigned and records the role.
func (t *Task) Assign(role string) {
	now := time.Now()
	t.AssignedTo = role
	t.Status = StatusAssigned
	t.AssignedAt = &now
}

// Start transitions assigned -> in_progress and resets the activity clock.
func (t *Task) Start() {
	now := time.Now()
	t.Status = StatusInProgress
	t.StartedAt = &now
	t.LastActivity = now
}

// Complete transitions in_progress -> completed and stores the result.
func (t *Task) Complete(result map[string]any) {
	now := time.Now()
	t.Status = StatusCompleted
	t.CompletedAt = &now
	t.Result = result
}

// Fail transitions to failed and stores the error message.
func (t *Task) Fail(errMsg string) {
	now := time.Now()
	t.Status = StatusFailed
	t.CompletedAt = &now
	t.Error = errMsg
	t.LastActivity = now
}

// Cancel marks the task cancelled.
func (t *Task) Cancel() {
	now := time.Now()
	t.Status = StatusCancelled
	t.CompletedAt = &now
}

// TimedOut reports whether an in-progress task has exceeded its timeout.
// Tasks without a timeout never time out.
func (t *Task) TimedOut(now time.Time) bool {
	if t.Timeout <= 0 || t.Status != StatusInProgress {
		return false
	}
	return now.Sub(t.LastActivity) > t.Timeout
}

// Duration returns the wall-clock execution time, or how long the task has
// been running if it has not finished yet. Returns 0 for unstarted tasks.
func (t *Task) Duration() time.Duration {
	if t.StartedAt == nil {
		return 0
	}
	if t.CompletedAt != nil {
		return t.CompletedAt.Sub(*t.StartedAt)
	}
	return time.Since(*t.StartedAt)
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	cp := *t
	if t.Dependencies != nil {
		cp.Dependencies = append([]string(nil), t.Dependencies...)
	}
	cp.Input = cloneMap(t.Input)
	cp.Metadata = cloneMap(t.Metadata)
	cp.Result = cloneMap(t.Result)
	if t.AssignedAt != nil {
		ts := *t.AssignedAt
		cp.AssignedAt = &ts
	}
	if t.StartedAt != nil {
		ts := *t.StartedAt
		cp.StartedAt = &ts
	}
	if t.CompletedAt != nil {
		ts := *t.CompletedAt
		cp.CompletedAt = &ts
	}
	return &cp
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
