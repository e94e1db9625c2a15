package task

import (
	"container/heap"
	"fmt"
	"sync"
	"time"

	"github.com/crewlab/conductor/internal/events"
	"github.com/crewlab/conductor/internal/log"
)

// CreateRequest describes a task to be created. Zero values fall back to
// defaults: PriorityMedium, DefaultMaxRetries, no timeout.
type CreateRequest struct {
	Type         string
	Input        map[string]any
	Priority     Priority
	Dependencies []string
	Metadata     map[string]any
	MaxRetries   int
	Timeout      time.Duration
}

// Manager owns the task table and the priority queue of unassigned,
// dependency-satisfied tasks. Every mutation of a Task goes through the
// Manager; callers only ever see clones.
//
// Expected business failures (missing task, unmet dependency, bad state)
// are reported as boolean false. Errors are reserved for contract
// violations such as a malformed priority.
type Manager struct {
	mu     sync.Mutex
	tasks  map[string]*Task
	queue  pendingQueue
	queued map[string]bool // ids with a live queue entry
	seq    uint64
	bus    *events.Bus // optional, may be nil
}

// NewManager creates an empty task manager. The event bus is optional;
// pass nil to disable lifecycle events.
func NewManager(bus *events.Bus) *Manager {
	return &Manager{
		tasks:  make(map[string]*Task),
		queued: make(map[string]bool),
		bus:    bus,
	}
}

// CreateTask allocates a task and inserts it into the table. The task is
// enqueued immediately iff it has no dependencies or all of them are
// already completed.
func (m *Manager) CreateTask(req CreateRequest) (*Task, error) {
	if req.Type == "" {
		return nil, fmt.Errorf("task type must not be empty")
	}
	if req.Priority == 0 {
		req.Priority = PriorityMedium
	}
	if !req.Priority.Valid() {
		return nil, fmt.Errorf("invalid priority %d", req.Priority)
	}

	t := New(req.Type, req.Input)
	t.Priority = req.Priority
	t.Dependencies = append([]string(nil), req.Dependencies...)
	t.Metadata = req.Metadata
	if req.MaxRetries > 0 {
		t.MaxRetries = req.MaxRetries
	}
	t.Timeout = req.Timeout

	m.mu.Lock()
	defer m.mu.Unlock()

	m.tasks[t.ID] = t
	if m.dependenciesSatisfied(t) {
		m.enqueue(t)
	}

	m.publish(events.EventTaskCreated, t)
	log.Get().WithField("task", t.ID).Debugf("created task type=%s priority=%s", t.Type, t.Priority)
	return t.Clone(), nil
}

// Task returns a clone of the task, or false if it does not exist.
func (m *Manager) Task(id string) (*Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// Tasks returns clones of all tasks.
func (m *Manager) Tasks() []*Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, t.Clone())
	}
	return out
}

// TasksByStatus returns clones of all tasks with the given status.
func (m *Manager) TasksByStatus(status Status) []*Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Task
	for _, t := range m.tasks {
		if t.Status == status {
			out = append(out, t.Clone())
		}
	}
	return out
}

// TasksByRole returns clones of all tasks assigned to the given role.
func (m *Manager) TasksByRole(role string) []*Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Task
	for _, t := range m.tasks {
		if t.AssignedTo == role {
			out = append(out, t.Clone())
		}
	}
	return out
}

// AssignTask transitions a pending task to assigned. Returns false if the
// task does not exist, is not pending, or has unmet dependencies.
func (m *Manager) AssignTask(id, role string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok || t.Status != StatusPending {
		return false
	}
	if !m.dependenciesSatisfied(t) {
		return false
	}

	t.Assign(role)
	delete(m.queued, id) // lazy removal; stale heap entry skipped on pop

	m.publish(events.EventTaskAssigned, t)
	log.Get().WithField("task", id).Debugf("assigned to %s", role)
	return true
}

// GetNextTask pops the highest-priority, earliest-created pending task from
// the queue. The returned task is still pending; callers are expected to
// assign and start it. Returns nil when the queue is empty.
//
// The role parameter restricts the result to tasks whose metadata "role"
// hint matches; pass "" for any.
func (m *Manager) GetNextTask(role string) *Task {
	m.mu.Lock()
	defer m.mu.Unlock()

	var skipped []queueEntry
	defer func() {
		// Entries popped past a role mismatch go back into the heap.
		for _, e := range skipped {
			heap.Push(&m.queue, e)
		}
	}()

	for m.queue.Len() > 0 {
		entry := heap.Pop(&m.queue).(queueEntry)
		if !m.queued[entry.taskID] {
			continue // tombstoned
		}
		t, ok := m.tasks[entry.taskID]
		if !ok || t.Status != StatusPending {
			delete(m.queued, entry.taskID)
			continue
		}
		if role != "" {
			if hint, ok := t.Metadata["role"].(string); ok && hint != role {
				skipped = append(skipped, entry)
				continue
			}
		}
		delete(m.queued, entry.taskID)
		return t.Clone()
	}
	return nil
}

// UpdateTaskStatus drives the task state machine. Completion triggers the
// dependency-unlock cascade; failure consumes the retry budget and
// re-queues the task while budget remains.
func (m *Manager) UpdateTaskStatus(id string, status Status, result map[string]any, errMsg string) bool {
	if !status.Valid() {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return false
	}

	switch status {
	case StatusInProgress:
		t.Start()
		m.publish(events.EventTaskStarted, t)
	case StatusCompleted:
		t.Complete(result)
		m.publish(events.EventTaskCompleted, t)
		m.unlockDependents(id)
	case StatusFailed:
		m.failLocked(t, errMsg)
	case StatusCancelled:
		if t.Status.Terminal() {
			return false
		}
		t.Cancel()
		delete(m.queued, id)
		m.publish(events.EventTaskCancelled, t)
	case StatusAssigned, StatusPending:
		// Assignment goes through AssignTask; pending is never set directly.
		return false
	}
	return true
}

// CancelTask cancels a non-terminal task. Cancellation is cooperative: an
// in-flight worker call is not interrupted, but the task is never
// scheduled or executed again.
func (m *Manager) CancelTask(id string) bool {
	return m.UpdateTaskStatus(id, StatusCancelled, nil, "")
}

// CheckTimeouts fails every in-progress task whose timeout has elapsed.
// A timeout consumes retry budget exactly like a worker failure. Returns
// the ids of tasks that were timed out.
func (m *Manager) CheckTimeouts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var expired []string
	for _, t := range m.tasks {
		if t.TimedOut(now) {
			expired = append(expired, t.ID)
			m.failLocked(t, fmt.Sprintf("task timed out after %s", t.Timeout))
			log.Get().WithField("task", t.ID).Warn("task timed out")
		}
	}
	return expired
}

// Statistics summarises the task table.
type Statistics struct {
	Total      int              `json:"total"`
	ByStatus   map[Status]int   `json:"by_status"`
	ByPriority map[Priority]int `json:"by_priority"`
	QueueDepth int              `json:"queue_depth"`
	Retried    int              `json:"retried"`
}

// GetStatistics returns counts by status and priority, the live queue
// depth, and the number of tasks that have been retried at least once.
func (m *Manager) GetStatistics() Statistics {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := Statistics{
		Total:      len(m.tasks),
		ByStatus:   make(map[Status]int),
		ByPriority: make(map[Priority]int),
		QueueDepth: len(m.queued),
	}
	for _, t := range m.tasks {
		stats.ByStatus[t.Status]++
		stats.ByPriority[t.Priority]++
		if t.RetryCount > 0 {
			stats.Retried++
		}
	}
	return stats
}

// failLocked applies the failure path: mark failed, then re-queue as
// pending while retry budget remains. Caller holds m.mu.
func (m *Manager) failLocked(t *Task, errMsg string) {
	if errMsg == "" {
		errMsg = "unknown error"
	}
	t.Fail(errMsg)

	if t.RetryCount < t.MaxRetries {
		t.RetryCount++
		t.Status = StatusPending
		t.Error = ""
		t.AssignedTo = ""
		t.AssignedAt = nil
		m.enqueue(t)
		m.publish(events.EventTaskRetried, t)
		log.Get().WithField("task", t.ID).
			Warnf("task failed, retrying (%d/%d): %s", t.RetryCount, t.MaxRetries, errMsg)
		return
	}

	m.publish(events.EventTaskFailed, t)
	log.Get().WithField("task", t.ID).
		Errorf("task failed, retry budget exhausted: %s", errMsg)
}

// unlockDependents enqueues every pending task whose dependency set became
// fully satisfied by the completion of doneID. Caller holds m.mu.
func (m *Manager) unlockDependents(doneID string) {
	for _, t := range m.tasks {
		if t.Status != StatusPending {
			continue
		}
		depends := false
		for _, dep := range t.Dependencies {
			if dep == doneID {
				depends = true
				break
			}
		}
		if depends && m.dependenciesSatisfied(t) {
			m.enqueue(t)
			log.Get().WithField("task", t.ID).Debug("dependencies satisfied, task enqueued")
		}
	}
}

// dependenciesSatisfied reports whether every dependency is completed.
// Caller holds m.mu.
func (m *Manager) dependenciesSatisfied(t *Task) bool {
	for _, dep := range t.Dependencies {
		depTask, ok := m.tasks[dep]
		if !ok || depTask.Status != StatusCompleted {
			return false
		}
	}
	return true
}

// enqueue pushes a queue entry unless one is already live. The original
// CreatedAt is used even for retries, preserving FIFO seniority within a
// priority class. Caller holds m.mu.
func (m *Manager) enqueue(t *Task) {
	if m.queued[t.ID] {
		return
	}
	m.seq++
	heap.Push(&m.queue, queueEntry{
		priority:  t.Priority,
		createdAt: t.CreatedAt,
		seq:       m.seq,
		taskID:    t.ID,
	})
	m.queued[t.ID] = true
}

func (m *Manager) publish(eventType string, t *Task) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(events.TopicTask, events.TaskEvent{
		Type:      eventType,
		ID:        t.ID,
		TaskType:  t.Type,
		Role:      t.AssignedTo,
		Status:    string(t.Status),
		Error:     t.Error,
		Timestamp: time.Now(),
	})
}
