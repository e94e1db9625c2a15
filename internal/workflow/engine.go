package workflow

import (
	"sync"
	"time"

	"github.com/crewlab/conductor/internal/events"
	"github.com/crewlab/conductor/internal/log"
	"github.com/crewlab/conductor/internal/scheduler"
	"github.com/crewlab/conductor/internal/task"
)

// Engine owns the workflow table. It materializes ready steps into tasks
// through the task manager, auto-assigns them through the scheduler, and
// advances workflow status as the underlying tasks complete.
type Engine struct {
	mu        sync.Mutex
	manager   *task.Manager
	scheduler *scheduler.Scheduler
	bus       *events.Bus // optional, may be nil
	workflows map[string]*Workflow
	templates map[string]*Workflow
}

// NewEngine creates a workflow engine on top of the task manager and
// scheduler. The event bus is optional.
func NewEngine(manager *task.Manager, sched *scheduler.Scheduler, bus *events.Bus) *Engine {
	return &Engine{
		manager:   manager,
		scheduler: sched,
		bus:       bus,
		workflows: make(map[string]*Workflow),
		templates: make(map[string]*Workflow),
	}
}

// CreateWorkflow creates an empty workflow and returns a clone of it.
func (e *Engine) CreateWorkflow(name, description string, metadata map[string]any) *Workflow {
	w := New(name, description, metadata)

	e.mu.Lock()
	e.workflows[w.ID] = w
	e.mu.Unlock()

	return w.Clone()
}

// AddStep appends a step to a workflow that has not started yet. Returns
// the step id, or false if the workflow is missing or already running.
func (e *Engine) AddStep(workflowID string, spec StepSpec) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	w, ok := e.workflows[workflowID]
	if !ok || w.Status != StatusCreated {
		return "", false
	}
	return w.AddStep(spec), true
}

// Workflow returns a clone of the workflow, or false if it does not exist.
func (e *Engine) Workflow(id string) (*Workflow, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	w, ok := e.workflows[id]
	if !ok {
		return nil, false
	}
	return w.Clone(), true
}

// Workflows returns clones of all workflows.
func (e *Engine) Workflows() []*Workflow {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]*Workflow, 0, len(e.workflows))
	for _, w := range e.workflows {
		out = append(out, w.Clone())
	}
	return out
}

// StartWorkflow transitions a created workflow to running and materializes
// its initially ready steps. Returns false if the workflow is missing, not
// in the created state, empty, or has an invalid step graph. An empty
// workflow is rejected rather than treated as vacuously complete.
func (e *Engine) StartWorkflow(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	w, ok := e.workflows[id]
	if !ok || w.Status != StatusCreated {
		return false
	}
	if len(w.Steps) == 0 {
		log.Get().WithField("workflow", id).Warn("refusing to start workflow with no steps")
		return false
	}
	if err := w.Validate(); err != nil {
		log.Get().WithField("workflow", id).Warnf("refusing to start workflow: %v", err)
		return false
	}

	now := time.Now()
	w.Status = StatusRunning
	w.StartedAt = &now
	e.publish(events.EventWorkflowStarted, w, "")

	e.materializeReadySteps(w)
	return true
}

// UpdateWorkflow pulls task state into the workflow's steps, records
// completed results in the context, and — while the workflow is running —
// materializes any steps that just became ready and completes the
// workflow once every step is done. While paused, no new tasks are
// created. Returns false if the workflow does not exist.
func (e *Engine) UpdateWorkflow(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	w, ok := e.workflows[id]
	if !ok {
		return false
	}

	e.syncSteps(w)

	switch w.Status {
	case StatusRunning:
		// A step whose task is failed is terminally failed; transient
		// failures re-enter the queue as pending before we see them.
		for _, s := range w.Steps {
			if s.Status == task.StatusFailed {
				now := time.Now()
				w.Status = StatusFailed
				w.CompletedAt = &now
				e.publish(events.EventWorkflowFailed, w, s.ID)
				log.Get().WithField("workflow", id).
					Warnf("workflow failed at step %s: %s", s.ID, s.Error)
				return true
			}
		}
		e.materializeReadySteps(w)
		if w.Completed() {
			now := time.Now()
			w.Status = StatusCompleted
			w.CompletedAt = &now
			e.publish(events.EventWorkflowCompleted, w, "")
			log.Get().WithField("workflow", id).Info("workflow completed")
		}
	case StatusPaused:
		// In-flight tasks keep running; their results were synced above,
		// but no new steps are materialized until resume.
	}
	return true
}

// RegisterTemplate stores a workflow blueprint under the given name.
// Templates are never mutated after registration.
func (e *Engine) RegisterTemplate(name string, w *Workflow) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[name] = w.Clone()
}

// Templates returns the registered template names and their blueprints.
func (e *Engine) Templates() map[string]*Workflow {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[string]*Workflow, len(e.templates))
	for name, w := range e.templates {
		out[name] = w.Clone()
	}
	return out
}

// CreateFromTemplate instantiates a registered template into a fresh
// workflow: new id, copied step graph, no runtime state. The variables
// feed {{name}} placeholders in step inputs at materialization time.
func (e *Engine) CreateFromTemplate(templateName, name string, variables map[string]string) (*Workflow, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	tpl, ok := e.templates[templateName]
	if !ok {
		return nil, false
	}

	if name == "" {
		name = tpl.Name
	}
	w := New(name, tpl.Description, cloneMap(tpl.Metadata))
	w.Variables = variables
	for _, s := range tpl.Steps {
		w.AddStep(StepSpec{
			Type:      s.Type,
			Role:      s.Role,
			Input:     cloneMap(s.Input),
			DependsOn: tpl.Dependencies[s.ID],
			Condition: s.Condition,
			Metadata:  cloneMap(s.Metadata),
		})
	}

	e.workflows[w.ID] = w
	return w.Clone(), true
}

// syncSteps pulls each materialized step's task status, result, and error
// into the step, filling the workflow context on completion. Caller holds
// e.mu.
func (e *Engine) syncSteps(w *Workflow) {
	for _, s := range w.Steps {
		if s.TaskID == "" {
			continue
		}
		t, ok := e.manager.Task(s.TaskID)
		if !ok {
			continue
		}
		s.Status = t.Status
		switch t.Status {
		case task.StatusCompleted:
			if _, done := w.Context[s.ID]; !done {
				w.UpdateStepResult(s.ID, t.Result)
			}
		case task.StatusFailed:
			s.Error = t.Error
		}
	}
}

// materializeReadySteps turns every ready, not-yet-materialized step into
// a task and auto-assigns it. Dependency edges between steps become task
// dependencies. Caller holds e.mu.
func (e *Engine) materializeReadySteps(w *Workflow) {
	for _, s := range w.ReadySteps() {
		if s.TaskID != "" {
			continue // materialized exactly once
		}

		var deps []string
		for _, depStepID := range w.Dependencies[s.ID] {
			if dep := w.Step(depStepID); dep != nil && dep.TaskID != "" {
				deps = append(deps, dep.TaskID)
			}
		}

		metadata := map[string]any{
			"workflow_id": w.ID,
			"step_id":     s.ID,
		}
		for k, v := range s.Metadata {
			metadata[k] = v
		}

		t, err := e.manager.CreateTask(task.CreateRequest{
			Type:         s.Type,
			Input:        w.renderInput(s.Input),
			Dependencies: deps,
			Metadata:     metadata,
		})
		if err != nil {
			log.Get().WithField("workflow", w.ID).
				Errorf("failed to materialize step %s: %v", s.ID, err)
			continue
		}

		s.TaskID = t.ID
		if e.assign(t, s.Role) {
			s.Status = task.StatusAssigned
		} else {
			s.Status = task.StatusPending
		}
		e.publish(events.EventStepMaterialized, w, s.ID)
		log.Get().WithField("workflow", w.ID).
			Debugf("materialized step %s as task %s", s.ID, t.ID)
	}
}

// transition atomically flips a workflow from one status to another.
// Returns a clone of the workflow after the change, or false if the
// workflow is missing or not in the expected state.
func (e *Engine) transition(id string, from, to Status) (*Workflow, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	w, ok := e.workflows[id]
	if !ok || w.Status != from {
		return nil, false
	}
	w.Status = to
	return w.Clone(), true
}

// assign routes the materialized task to a role: the step's explicit role
// wins, otherwise the scheduler's task-type mapping decides.
func (e *Engine) assign(t *task.Task, role string) bool {
	if role != "" {
		return e.manager.AssignTask(t.ID, role)
	}
	if e.scheduler != nil {
		return e.scheduler.AssignTask(t)
	}
	return false
}

func (e *Engine) publish(eventType string, w *Workflow, stepID string) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(events.TopicWorkflow, events.WorkflowEvent{
		Type:      eventType,
		ID:        w.ID,
		Name:      w.Name,
		Status:    string(w.Status),
		StepID:    stepID,
		Timestamp: time.Now(),
	})
}
