// Package worker defines the capability the scheduler dispatches tasks to.
// A worker wraps one digital role (project manager, architect, engineer)
// and knows how to execute the task types routed to that role.
package worker

import (
	"context"
	"fmt"
	"sort"
)

// HandlerFunc executes one task type against the given input payload.
type HandlerFunc func(ctx context.Context, input map[string]any) (map[string]any, error)

// Worker executes tasks for a single role. Implementations must be safe
// for concurrent use; the scheduler may run several tasks in parallel.
type Worker interface {
	Name() string
	Handles(taskType string) bool
	Execute(ctx context.Context, taskType string, input map[string]any) (map[string]any, error)
}

// RoleWorker dispatches task types through a handler table built at
// registration time. Unknown types are rejected when the worker is wired
// up, not discovered at execution time.
type RoleWorker struct {
	name     string
	handlers map[string]HandlerFunc
}

// NewRoleWorker creates a worker for the given role with no handlers.
func NewRoleWorker(name string) *RoleWorker {
	return &RoleWorker{
		name:     name,
		handlers: make(map[string]HandlerFunc),
	}
}

// Register binds a task type to a handler. Registering a nil handler or
// the same type twice is a programming error.
func (w *RoleWorker) Register(taskType string, fn HandlerFunc) error {
	if taskType == "" {
		return fmt.Errorf("task type must not be empty")
	}
	if fn == nil {
		return fmt.Errorf("handler for %q must not be nil", taskType)
	}
	if _, exists := w.handlers[taskType]; exists {
		return fmt.Errorf("handler for %q already registered", taskType)
	}
	w.handlers[taskType] = fn
	return nil
}

// Name returns the role name.
func (w *RoleWorker) Name() string { return w.name }

// Handles reports whether a handler is registered for the task type.
func (w *RoleWorker) Handles(taskType string) bool {
	_, ok := w.handlers[taskType]
	return ok
}

// TaskTypes returns the registered task types in sorted order.
func (w *RoleWorker) TaskTypes() []string {
	types := make([]string, 0, len(w.handlers))
	for t := range w.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Execute runs the handler for the task type.
func (w *RoleWorker) Execute(ctx context.Context, taskType string, input map[string]any) (map[string]any, error) {
	fn, ok := w.handlers[taskType]
	if !ok {
		return nil, fmt.Errorf("worker %q has no handler for task type %q", w.name, taskType)
	}
	return fn(ctx, input)
}
