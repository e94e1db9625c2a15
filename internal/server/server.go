// Package server exposes the orchestration subsystem over a JSON HTTP
// API. Business failures (unknown ids, invalid transitions) map to 4xx
// responses; only encoding and infrastructure problems are 5xx.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/crewlab/conductor/internal/log"
	"github.com/crewlab/conductor/internal/scheduler"
	"github.com/crewlab/conductor/internal/task"
	"github.com/crewlab/conductor/internal/workflow"
)

// Server wires the HTTP handlers to the orchestration components.
type Server struct {
	manager     *task.Manager
	scheduler   *scheduler.Scheduler
	engine      *workflow.Engine
	pauses      *workflow.PauseManager
	history     *task.History
	concurrency int

	http *http.Server
}

// New creates a server bound to addr. Concurrency bounds the parallel
// task execution triggered by the drain endpoint.
func New(addr string, manager *task.Manager, sched *scheduler.Scheduler,
	engine *workflow.Engine, pauses *workflow.PauseManager, concurrency int) *Server {

	s := &Server{
		manager:     manager,
		scheduler:   sched,
		engine:      engine,
		pauses:      pauses,
		history:     task.NewHistory(manager),
		concurrency: concurrency,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /tasks", s.handleCreateTask)
	mux.HandleFunc("GET /tasks", s.handleListTasks)
	mux.HandleFunc("GET /tasks/{id}", s.handleGetTask)
	mux.HandleFunc("POST /tasks/{id}/assign", s.handleAssignTask)
	mux.HandleFunc("POST /tasks/{id}/execute", s.handleExecuteTask)
	mux.HandleFunc("POST /tasks/{id}/cancel", s.handleCancelTask)
	mux.HandleFunc("POST /tasks/assign", s.handleAutoAssign)
	mux.HandleFunc("POST /tasks/execute", s.handleDrain)

	mux.HandleFunc("GET /statistics", s.handleStatistics)
	mux.HandleFunc("GET /workload", s.handleWorkload)
	mux.HandleFunc("GET /history/report", s.handleReport)
	mux.HandleFunc("GET /history/failed", s.handleFailedHistory)

	mux.HandleFunc("POST /workflows", s.handleCreateWorkflow)
	mux.HandleFunc("GET /workflows", s.handleListWorkflows)
	mux.HandleFunc("GET /workflows/paused", s.handlePausedWorkflows)
	mux.HandleFunc("GET /workflows/{id}", s.handleGetWorkflow)
	mux.HandleFunc("POST /workflows/{id}/steps", s.handleAddStep)
	mux.HandleFunc("POST /workflows/{id}/start", s.handleStartWorkflow)
	mux.HandleFunc("POST /workflows/{id}/pause", s.handlePauseWorkflow)
	mux.HandleFunc("POST /workflows/{id}/resume", s.handleResumeWorkflow)
	mux.HandleFunc("POST /workflows/{id}/update", s.handleUpdateWorkflow)

	mux.HandleFunc("GET /templates", s.handleListTemplates)
	mux.HandleFunc("POST /templates/{name}/instantiate", s.handleInstantiateTemplate)

	s.http = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	return s
}

// Handler exposes the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	log.Get().Infof("admin API listening on %s", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Get().Warnf("failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}
