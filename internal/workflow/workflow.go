// Package workflow implements the DAG engine: workflows composed of
// condition-gated steps that are materialized into tasks as their
// dependencies complete.
package workflow

import (
	"fmt"
	"strings"
	"time"

	"github.com/gammazero/toposort"
	"github.com/google/uuid"

	"github.com/crewlab/conductor/internal/task"
)

// Status represents the lifecycle state of a workflow.
type Status string

const (
	StatusCreated   Status = "created"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// ConditionFunc gates a step on the current workflow context. The context
// maps completed step ids to their results.
type ConditionFunc func(context map[string]map[string]any) bool

// Step is one node of the workflow DAG. A step is materialized into at
// most one task; TaskID is set exactly once.
type Step struct {
	ID        string         `json:"step_id"`
	Type      string         `json:"step_type"` // becomes the task type
	Role      string         `json:"role"`
	Input     map[string]any `json:"input_data"`
	Condition ConditionFunc  `json:"-"`
	Metadata  map[string]any `json:"metadata,omitempty"`

	Status task.Status    `json:"status"` // mirrors the task status once materialized
	TaskID string         `json:"task_id,omitempty"`
	Result map[string]any `json:"result,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// canExecute evaluates the step's condition against the workflow context.
// Steps without a condition always pass.
func (s *Step) canExecute(context map[string]map[string]any) bool {
	if s.Condition == nil {
		return true
	}
	return s.Condition(context)
}

// StepSpec describes a step to be added to a workflow.
type StepSpec struct {
	Type      string
	Role      string
	Input     map[string]any
	DependsOn []string
	Condition ConditionFunc
	Metadata  map[string]any
}

// Workflow is a named DAG of steps. Steps hold task ids, never task
// objects; the task table stays under the task manager's ownership.
type Workflow struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Steps       []*Step        `json:"steps"`
	Metadata    map[string]any `json:"metadata,omitempty"`

	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Context holds completed step results for templated inputs of later
	// steps, keyed by step id.
	Context map[string]map[string]any `json:"context"`

	// Variables feed {{name}} placeholders in step inputs; typically set
	// when instantiating a template.
	Variables map[string]string `json:"variables,omitempty"`

	// Dependencies maps a step id to the step ids that must complete first.
	Dependencies map[string][]string `json:"dependencies"`
}

// New creates an empty workflow in the created state.
func New(name, description string, metadata map[string]any) *Workflow {
	return &Workflow{
		ID:           uuid.NewString(),
		Name:         name,
		Description:  description,
		Metadata:     metadata,
		Status:       StatusCreated,
		CreatedAt:    time.Now(),
		Context:      make(map[string]map[string]any),
		Dependencies: make(map[string][]string),
	}
}

// AddStep appends a step and records its dependency edges. Step ids are
// assigned sequentially: step_1, step_2, ...
func (w *Workflow) AddStep(spec StepSpec) string {
	stepID := fmt.Sprintf("step_%d", len(w.Steps)+1)
	w.Steps = append(w.Steps, &Step{
		ID:        stepID,
		Type:      spec.Type,
		Role:      spec.Role,
		Input:     spec.Input,
		Condition: spec.Condition,
		Metadata:  spec.Metadata,
		Status:    task.StatusPending,
	})
	if len(spec.DependsOn) > 0 {
		w.Dependencies[stepID] = append([]string(nil), spec.DependsOn...)
	}
	return stepID
}

// Step returns the step with the given id, or nil.
func (w *Workflow) Step(stepID string) *Step {
	for _, s := range w.Steps {
		if s.ID == stepID {
			return s
		}
	}
	return nil
}

// ReadySteps returns every step that is neither completed nor in progress,
// whose dependency steps are all completed, and whose condition passes
// against the current context.
func (w *Workflow) ReadySteps() []*Step {
	var ready []*Step
	for _, s := range w.Steps {
		if s.Status == task.StatusCompleted || s.Status == task.StatusInProgress {
			continue
		}
		if !w.stepDependenciesDone(s.ID) {
			continue
		}
		if s.canExecute(w.Context) {
			ready = append(ready, s)
		}
	}
	return ready
}

// UpdateStepResult marks a step completed and publishes its result into
// the workflow context.
func (w *Workflow) UpdateStepResult(stepID string, result map[string]any) {
	s := w.Step(stepID)
	if s == nil {
		return
	}
	s.Status = task.StatusCompleted
	s.Result = result
	w.Context[stepID] = result
}

// Completed reports whether every step has completed. Empty workflows are
// never considered completed; StartWorkflow rejects them instead.
func (w *Workflow) Completed() bool {
	if len(w.Steps) == 0 {
		return false
	}
	for _, s := range w.Steps {
		if s.Status != task.StatusCompleted {
			return false
		}
	}
	return true
}

// Validate checks that every dependency references an existing step and
// that the step graph is acyclic.
func (w *Workflow) Validate() error {
	ids := make(map[string]bool, len(w.Steps))
	for _, s := range w.Steps {
		ids[s.ID] = true
	}

	var edges []toposort.Edge
	for _, s := range w.Steps {
		deps := w.Dependencies[s.ID]
		if len(deps) == 0 {
			edges = append(edges, toposort.Edge{nil, s.ID})
			continue
		}
		for _, dep := range deps {
			if !ids[dep] {
				return fmt.Errorf("step %q depends on unknown step %q", s.ID, dep)
			}
			edges = append(edges, toposort.Edge{dep, s.ID})
		}
	}

	if _, err := toposort.Toposort(edges); err != nil {
		return fmt.Errorf("workflow %q contains a dependency cycle: %w", w.Name, err)
	}
	return nil
}

// Clone returns a deep copy of the workflow.
func (w *Workflow) Clone() *Workflow {
	cp := *w
	cp.Steps = make([]*Step, len(w.Steps))
	for i, s := range w.Steps {
		sc := *s
		sc.Input = cloneMap(s.Input)
		sc.Metadata = cloneMap(s.Metadata)
		sc.Result = cloneMap(s.Result)
		cp.Steps[i] = &sc
	}
	cp.Metadata = cloneMap(w.Metadata)
	cp.Context = make(map[string]map[string]any, len(w.Context))
	for k, v := range w.Context {
		cp.Context[k] = cloneMap(v)
	}
	if w.Variables != nil {
		cp.Variables = make(map[string]string, len(w.Variables))
		for k, v := range w.Variables {
			cp.Variables[k] = v
		}
	}
	cp.Dependencies = make(map[string][]string, len(w.Dependencies))
	for k, v := range w.Dependencies {
		cp.Dependencies[k] = append([]string(nil), v...)
	}
	if w.StartedAt != nil {
		ts := *w.StartedAt
		cp.StartedAt = &ts
	}
	if w.CompletedAt != nil {
		ts := *w.CompletedAt
		cp.CompletedAt = &ts
	}
	return &cp
}

func (w *Workflow) stepDependenciesDone(stepID string) bool {
	for _, dep := range w.Dependencies[stepID] {
		depStep := w.Step(dep)
		if depStep == nil || depStep.Status != task.StatusCompleted {
			return false
		}
	}
	return true
}

// renderInput resolves {{step_N.result}} and {{variable}} placeholders in
// the step input against the workflow context and variables. A string
// value that is exactly one step placeholder is replaced by the raw
// result map; embedded placeholders are stringified.
func (w *Workflow) renderInput(input map[string]any) map[string]any {
	if input == nil {
		return nil
	}
	out := make(map[string]any, len(input))
	for key, value := range input {
		str, ok := value.(string)
		if !ok {
			out[key] = value
			continue
		}
		out[key] = w.renderValue(str)
	}
	return out
}

func (w *Workflow) renderValue(value string) any {
	// Whole-value step reference keeps the structured result.
	if strings.HasPrefix(value, "{{") && strings.HasSuffix(value, "}}") && strings.Count(value, "{{") == 1 {
		ref := strings.TrimSpace(value[2 : len(value)-2])
		if stepID, ok := strings.CutSuffix(ref, ".result"); ok {
			if result, found := w.Context[stepID]; found {
				return result
			}
			return value
		}
		if v, found := w.Variables[ref]; found {
			return v
		}
		return value
	}

	rendered := value
	for stepID, result := range w.Context {
		rendered = strings.ReplaceAll(rendered, "{{"+stepID+".result}}", fmt.Sprint(result))
	}
	for name, v := range w.Variables {
		rendered = strings.ReplaceAll(rendered, "{{"+name+"}}", v)
	}
	return rendered
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
