// Package scheduler bridges the task manager to the registered workers.
// It routes task types to roles, executes tasks through the matching
// worker, and feeds outcomes back into the task table and the knowledge
// base.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/crewlab/conductor/internal/knowledge"
	"github.com/crewlab/conductor/internal/log"
	"github.com/crewlab/conductor/internal/task"
	"github.com/crewlab/conductor/internal/worker"
)

// Result is the structured outcome of a task execution. Worker errors are
// captured here; ExecuteTask never propagates them as raw errors.
type Result struct {
	TaskID   string         `json:"task_id"`
	Success  bool           `json:"success"`
	Output   map[string]any `json:"output,omitempty"`
	Error    string         `json:"error,omitempty"`
	Duration time.Duration  `json:"duration"`
}

// DefaultRoleMapping routes the built-in task types to their roles.
func DefaultRoleMapping() map[string]string {
	return map[string]string{
		"create_plan":         "project_manager",
		"track_progress":      "project_manager",
		"generate_report":     "project_manager",
		"identify_risks":      "project_manager",
		"design_architecture": "architect",
		"evaluate_technology": "architect",
		"create_standards":    "architect",
		"solve_problem":       "architect",
		"implement_ui":        "frontend_engineer",
		"optimize_performance": "frontend_engineer",
		"fix_bug":             "frontend_engineer",
		"implement_api":       "backend_engineer",
		"optimize_query":      "backend_engineer",
		"monitor_system":      "devops_engineer",
		"handle_incident":     "devops_engineer",
	}
}

// Scheduler maps task types to roles and drives worker execution.
// Workers are injected through RegisterWorker; there is no ambient
// global worker state.
type Scheduler struct {
	manager     *task.Manager
	roleMapping map[string]string
	sink        knowledge.Sink
	breakers    *breakerRegistry

	mu      sync.RWMutex
	workers map[string]worker.Worker // role -> worker
}

// New creates a scheduler. A nil roleMapping falls back to
// DefaultRoleMapping; a nil sink disables knowledge writes.
func New(manager *task.Manager, roleMapping map[string]string, sink knowledge.Sink) *Scheduler {
	if roleMapping == nil {
		roleMapping = DefaultRoleMapping()
	}
	if sink == nil {
		sink = knowledge.Noop{}
	}
	return &Scheduler{
		manager:     manager,
		roleMapping: roleMapping,
		sink:        sink,
		breakers:    newBreakerRegistry(),
		workers:     make(map[string]worker.Worker),
	}
}

// RegisterWorker binds a worker to its role. Registration fails if another
// worker already serves the role, or if the worker does not handle every
// task type mapped to it.
func (s *Scheduler) RegisterWorker(w worker.Worker) error {
	role := w.Name()
	if role == "" {
		return fmt.Errorf("worker role must not be empty")
	}

	for taskType, mappedRole := range s.roleMapping {
		if mappedRole == role && !w.Handles(taskType) {
			return fmt.Errorf("worker %q does not handle mapped task type %q", role, taskType)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.workers[role]; exists {
		return fmt.Errorf("worker for role %q already registered", role)
	}
	s.workers[role] = w
	return nil
}

// RoleFor returns the role responsible for a task type.
func (s *Scheduler) RoleFor(taskType string) (string, bool) {
	role, ok := s.roleMapping[taskType]
	return role, ok
}

// AssignTask routes the task to its role and assigns it. Returns false for
// unmapped task types and for tasks the manager refuses (missing, unmet
// dependencies, wrong state).
func (s *Scheduler) AssignTask(t *task.Task) bool {
	role, ok := s.roleMapping[t.Type]
	if !ok {
		return false
	}
	return s.manager.AssignTask(t.ID, role)
}

// AutoAssignPending assigns every pending task with satisfied dependencies
// to its mapped role. Returns the number of tasks assigned.
func (s *Scheduler) AutoAssignPending() int {
	assigned := 0
	for _, t := range s.manager.TasksByStatus(task.StatusPending) {
		if s.AssignTask(t) {
			assigned++
		}
	}
	return assigned
}

// ExecuteTask runs one assigned task through its role's worker. The task
// is moved to in_progress before the blocking worker call and out of it
// afterwards; neither transition holds a lock across the call.
//
// Guards: the task must exist and be assigned, and must not already be
// past its timeout. Guard failures return a failure Result without
// invoking the worker.
func (s *Scheduler) ExecuteTask(ctx context.Context, id string) Result {
	start := time.Now()

	t, ok := s.manager.Task(id)
	if !ok {
		return Result{TaskID: id, Success: false, Error: fmt.Sprintf("task not found: %s", id)}
	}
	if t.AssignedTo == "" {
		return Result{TaskID: id, Success: false, Error: "task not assigned"}
	}
	if t.TimedOut(time.Now()) {
		errMsg := fmt.Sprintf("task timed out after %s", t.Timeout)
		s.manager.UpdateTaskStatus(id, task.StatusFailed, nil, errMsg)
		return Result{TaskID: id, Success: false, Error: errMsg}
	}

	s.mu.RLock()
	w, ok := s.workers[t.AssignedTo]
	s.mu.RUnlock()
	if !ok {
		return Result{TaskID: id, Success: false, Error: fmt.Sprintf("no worker registered for role %q", t.AssignedTo)}
	}

	s.manager.UpdateTaskStatus(id, task.StatusInProgress, nil, "")

	// The blocking call. Worker failures of any kind end up as a FAILED
	// transition, never as a propagated error.
	raw, err := s.breakers.get(t.AssignedTo).Execute(func() (any, error) {
		return w.Execute(ctx, t.Type, t.Input)
	})
	duration := time.Since(start)

	if err != nil {
		s.manager.UpdateTaskStatus(id, task.StatusFailed, nil, err.Error())
		log.Get().WithField("task", id).Warnf("task execution failed after %s: %v", duration.Round(time.Millisecond), err)
		s.recordFailure(ctx, t, err.Error())
		return Result{TaskID: id, Success: false, Error: err.Error(), Duration: duration}
	}

	output, _ := raw.(map[string]any)
	s.manager.UpdateTaskStatus(id, task.StatusCompleted, output, "")
	log.Get().WithField("task", id).Infof("task executed in %s", duration.Round(time.Millisecond))
	s.recordOutcome(ctx, t, output)
	return Result{TaskID: id, Success: true, Output: output, Duration: duration}
}

// ExecuteAssigned executes every currently assigned task with bounded
// concurrency and returns their results.
func (s *Scheduler) ExecuteAssigned(ctx context.Context, concurrency int) []Result {
	if concurrency <= 0 {
		concurrency = 4
	}

	assigned := s.manager.TasksByStatus(task.StatusAssigned)
	results := make([]Result, len(assigned))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, t := range assigned {
		g.Go(func() error {
			results[i] = s.ExecuteTask(gctx, t.ID)
			return nil
		})
	}
	_ = g.Wait() // task failures live in results, not errors

	return results
}

// RoleWorkload returns the number of in-progress tasks per role. Every
// mapped role appears in the result, including idle ones.
func (s *Scheduler) RoleWorkload() map[string]int {
	workload := make(map[string]int)
	for _, role := range s.roleMapping {
		workload[role] = 0
	}
	for _, t := range s.manager.TasksByStatus(task.StatusInProgress) {
		workload[t.AssignedTo]++
	}
	return workload
}

// recordOutcome writes a successful result to the knowledge base.
// Best-effort: failures are logged and swallowed.
func (s *Scheduler) recordOutcome(ctx context.Context, t *task.Task, output map[string]any) {
	if _, err := s.sink.RecordOutcome(ctx, t.ID, t.Type, output, t.AssignedTo); err != nil {
		log.Get().WithField("task", t.ID).Warnf("failed to record outcome in knowledge base: %v", err)
	}
}

// recordFailure writes a failure experience to the knowledge base.
// Best-effort: failures are logged and swallowed.
func (s *Scheduler) recordFailure(ctx context.Context, t *task.Task, errMsg string) {
	failureContext := fmt.Sprintf("task execution failed, role: %s", t.AssignedTo)
	if _, err := s.sink.RecordFailure(ctx, t.Type, errMsg, failureContext, t.AssignedTo); err != nil {
		log.Get().WithField("task", t.ID).Warnf("failed to record failure in knowledge base: %v", err)
	}
}
