package main

import (
	"context"
	"fmt"
	"time"

	"github.com/crewlab/conductor/internal/config"
	"github.com/crewlab/conductor/internal/events"
	"github.com/crewlab/conductor/internal/knowledge"
	"github.com/crewlab/conductor/internal/log"
	"github.com/crewlab/conductor/internal/persistence"
	"github.com/crewlab/conductor/internal/scheduler"
	"github.com/crewlab/conductor/internal/task"
	"github.com/crewlab/conductor/internal/worker"
	"github.com/crewlab/conductor/internal/workflow"
)

// app bundles the wired orchestration components.
type app struct {
	cfg       *config.Config
	bus       *events.Bus
	manager   *task.Manager
	scheduler *scheduler.Scheduler
	engine    *workflow.Engine
	pauses    *workflow.PauseManager
	store     persistence.Store
}

// buildApp wires the full component graph from the configuration:
// event bus, task manager, LLM workers per role, scheduler, workflow
// engine, templates, and the SQLite snapshot store.
func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	bus := events.NewBus()
	manager := task.NewManager(bus)

	var sink knowledge.Sink = knowledge.Noop{}
	if cfg.Knowledge.URL != "" {
		sink = knowledge.NewClient(cfg.Knowledge.URL, cfg.Knowledge.APIKey, 15*time.Second)
	}

	roleMapping := scheduler.DefaultRoleMapping()
	for taskType, role := range cfg.RoleMapping {
		roleMapping[taskType] = role
	}

	sched := scheduler.New(manager, roleMapping, sink)

	client := worker.NewLLMClient(cfg.Backend.Endpoint, cfg.Backend.Model, 0)
	for role, prompts := range worker.RolePrompts() {
		w, err := worker.NewLLMRoleWorker(role, client, prompts)
		if err != nil {
			return nil, fmt.Errorf("building worker %s: %w", role, err)
		}
		if err := sched.RegisterWorker(w); err != nil {
			return nil, fmt.Errorf("registering worker %s: %w", role, err)
		}
	}

	engine := workflow.NewEngine(manager, sched, bus)
	workflow.RegisterBuiltinTemplates(engine)
	if cfg.TemplateFile != "" {
		if err := workflow.LoadTemplates(engine, cfg.TemplateFile); err != nil {
			return nil, fmt.Errorf("loading templates: %w", err)
		}
	}

	store, err := persistence.NewStore(ctx, cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	return &app{
		cfg:       cfg,
		bus:       bus,
		manager:   manager,
		scheduler: sched,
		engine:    engine,
		pauses:    workflow.NewPauseManager(engine),
		store:     store,
	}, nil
}

func (a *app) close() {
	a.bus.Close()
	if err := a.store.Close(); err != nil {
		log.Get().Warnf("closing store: %v", err)
	}
}

// snapshot persists the current task and workflow state.
func (a *app) snapshot(ctx context.Context) {
	for _, t := range a.manager.Tasks() {
		if err := a.store.SaveTask(ctx, t); err != nil {
			log.Get().Warnf("snapshot task %s: %v", t.ID, err)
			return
		}
	}
	for _, w := range a.engine.Workflows() {
		if err := a.store.SaveWorkflow(ctx, w); err != nil {
			log.Get().Warnf("snapshot workflow %s: %v", w.ID, err)
			return
		}
	}
}

// housekeeping runs the periodic sweeps: task timeouts and workflow
// progression, then a persistence snapshot.
func (a *app) housekeeping(ctx context.Context) {
	if timedOut := a.manager.CheckTimeouts(); len(timedOut) > 0 {
		log.Get().Warnf("%d task(s) timed out", len(timedOut))
	}
	for _, w := range a.engine.Workflows() {
		if w.Status == workflow.StatusRunning {
			a.engine.UpdateWorkflow(w.ID)
		}
	}
	a.snapshot(ctx)
}
