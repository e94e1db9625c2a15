package events

import "time"

// Topic constants.
const (
	TopicTask     = "task"
	TopicWorkflow = "workflow"
)

// Event type constants.
const (
	EventTaskCreated       = "task.created"
	EventTaskAssigned      = "task.assigned"
	EventTaskStarted       = "task.started"
	EventTaskCompleted     = "task.completed"
	EventTaskFailed        = "task.failed"
	EventTaskRetried       = "task.retried"
	EventTaskCancelled     = "task.cancelled"
	EventWorkflowStarted   = "workflow.started"
	EventWorkflowPaused    = "workflow.paused"
	EventWorkflowResumed   = "workflow.resumed"
	EventWorkflowCompleted = "workflow.completed"
	EventWorkflowFailed    = "workflow.failed"
	EventStepMaterialized  = "workflow.step_materialized"
)

// Event is the base interface for all events.
type Event interface {
	EventType() string
	SubjectID() string
}

// TaskEvent is published on task lifecycle transitions.
type TaskEvent struct {
	Type      string
	ID        string
	TaskType  string
	Role      string
	Status    string
	Error     string
	Timestamp time.Time
}

func (e TaskEvent) EventType() string { return e.Type }
func (e TaskEvent) SubjectID() string { return e.ID }

// WorkflowEvent is published on workflow lifecycle transitions.
type WorkflowEvent struct {
	Type      string
	ID        string
	Name      string
	Status    string
	StepID    string // set for step-level events
	Timestamp time.Time
}

func (e WorkflowEvent) EventType() string { return e.Type }
func (e WorkflowEvent) SubjectID() string { return e.ID }
