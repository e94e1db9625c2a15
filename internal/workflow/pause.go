package workflow

import (
	"sync"
	"time"

	"github.com/crewlab/conductor/internal/events"
	"github.com/crewlab/conductor/internal/log"
	"github.com/crewlab/conductor/internal/task"
)

// PauseInfo records why and when a workflow was paused, and which steps
// were in flight at that moment.
type PauseInfo struct {
	Reason       string    `json:"reason"`
	PausedAt     time.Time `json:"paused_at"`
	RunningSteps []string  `json:"running_steps"`
}

// PausedWorkflow is one entry of the paused-workflow listing.
type PausedWorkflow struct {
	ID   string    `json:"workflow_id"`
	Name string    `json:"workflow_name"`
	Info PauseInfo `json:"pause_info"`
}

// PauseManager overlays pause/resume semantics on the engine. Only the
// running <-> paused transition is affected; pause requests against any
// other state fail. In-flight tasks are not cancelled by a pause — they
// may still complete, but their results do not trigger new steps until
// the workflow resumes.
type PauseManager struct {
	mu     sync.Mutex
	engine *Engine
	paused map[string]PauseInfo
}

// NewPauseManager creates a pause manager over the engine.
func NewPauseManager(engine *Engine) *PauseManager {
	return &PauseManager{
		engine: engine,
		paused: make(map[string]PauseInfo),
	}
}

// PauseWorkflow flips a running workflow to paused and snapshots its
// in-progress steps. Returns false if the workflow is missing or not
// running.
func (p *PauseManager) PauseWorkflow(id, reason string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	w, ok := p.engine.transition(id, StatusRunning, StatusPaused)
	if !ok {
		log.Get().WithField("workflow", id).Warn("cannot pause: workflow not running")
		return false
	}

	var running []string
	for _, s := range w.Steps {
		if s.Status == task.StatusInProgress {
			running = append(running, s.ID)
		}
	}
	p.paused[id] = PauseInfo{
		Reason:       reason,
		PausedAt:     time.Now(),
		RunningSteps: running,
	}

	p.engine.publish(events.EventWorkflowPaused, w, "")
	log.Get().WithField("workflow", id).Infof("workflow paused: %s", reason)
	return true
}

// ResumeWorkflow flips a paused workflow back to running, clears its
// pause record, and immediately catches up on steps that became ready
// while paused. Returns false if the workflow is missing or not paused.
func (p *PauseManager) ResumeWorkflow(id string) bool {
	p.mu.Lock()

	w, ok := p.engine.transition(id, StatusPaused, StatusRunning)
	if !ok {
		p.mu.Unlock()
		log.Get().WithField("workflow", id).Warn("cannot resume: workflow not paused")
		return false
	}
	delete(p.paused, id)
	p.engine.publish(events.EventWorkflowResumed, w, "")
	p.mu.Unlock()

	// Catch up outside our lock; the engine takes its own.
	p.engine.UpdateWorkflow(id)
	log.Get().WithField("workflow", id).Info("workflow resumed")
	return true
}

// PausedWorkflows lists every currently paused workflow with its pause
// record.
func (p *PauseManager) PausedWorkflows() []PausedWorkflow {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]PausedWorkflow, 0, len(p.paused))
	for id, info := range p.paused {
		w, ok := p.engine.Workflow(id)
		if !ok {
			continue
		}
		out = append(out, PausedWorkflow{ID: id, Name: w.Name, Info: info})
	}
	return out
}
