package server

import (
	"net/http"

	"github.com/crewlab/conductor/internal/workflow"
)

type createWorkflowRequest struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata"`
}

func (s *Server) handleCreateWorkflow(w http.ResponseWriter, r *http.Request) {
	var req createWorkflowRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "workflow name must not be empty")
		return
	}
	wf := s.engine.CreateWorkflow(req.Name, req.Description, req.Metadata)
	writeJSON(w, http.StatusCreated, wf)
}

func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Workflows())
}

func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, ok := s.engine.Workflow(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "workflow not found")
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

type addStepRequest struct {
	Type      string         `json:"step_type"`
	Role      string         `json:"role"`
	Input     map[string]any `json:"input"`
	DependsOn []string       `json:"depends_on"`
	Metadata  map[string]any `json:"metadata"`
}

func (s *Server) handleAddStep(w http.ResponseWriter, r *http.Request) {
	var req addStepRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Type == "" {
		writeError(w, http.StatusBadRequest, "step type must not be empty")
		return
	}

	stepID, ok := s.engine.AddStep(r.PathValue("id"), workflow.StepSpec{
		Type:      req.Type,
		Role:      req.Role,
		Input:     req.Input,
		DependsOn: req.DependsOn,
		Metadata:  req.Metadata,
	})
	if !ok {
		writeError(w, http.StatusConflict, "workflow missing or already started")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"step_id": stepID})
}

func (s *Server) handleStartWorkflow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.engine.StartWorkflow(id) {
		writeError(w, http.StatusConflict, "workflow cannot be started")
		return
	}
	wf, _ := s.engine.Workflow(id)
	writeJSON(w, http.StatusOK, wf)
}

func (s *Server) handlePauseWorkflow(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if r.ContentLength > 0 && !decodeBody(w, r, &req) {
		return
	}
	if !s.pauses.PauseWorkflow(r.PathValue("id"), req.Reason) {
		writeError(w, http.StatusConflict, "workflow is not running")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

func (s *Server) handleResumeWorkflow(w http.ResponseWriter, r *http.Request) {
	if !s.pauses.ResumeWorkflow(r.PathValue("id")) {
		writeError(w, http.StatusConflict, "workflow is not paused")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "running"})
}

func (s *Server) handleUpdateWorkflow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.engine.UpdateWorkflow(id) {
		writeError(w, http.StatusNotFound, "workflow not found")
		return
	}
	wf, _ := s.engine.Workflow(id)
	writeJSON(w, http.StatusOK, wf)
}

func (s *Server) handlePausedWorkflows(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.pauses.PausedWorkflows())
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	type templateView struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Steps       int    `json:"steps"`
	}
	var views []templateView
	for name, tpl := range s.engine.Templates() {
		views = append(views, templateView{Name: name, Description: tpl.Description, Steps: len(tpl.Steps)})
	}
	writeJSON(w, http.StatusOK, views)
}

type instantiateRequest struct {
	Name      string            `json:"name"`
	Variables map[string]string `json:"variables"`
	Start     bool              `json:"start"`
}

func (s *Server) handleInstantiateTemplate(w http.ResponseWriter, r *http.Request) {
	var req instantiateRequest
	if r.ContentLength > 0 && !decodeBody(w, r, &req) {
		return
	}

	wf, ok := s.engine.CreateFromTemplate(r.PathValue("name"), req.Name, req.Variables)
	if !ok {
		writeError(w, http.StatusNotFound, "template not found")
		return
	}
	if req.Start {
		s.engine.StartWorkflow(wf.ID)
		wf, _ = s.engine.Workflow(wf.ID)
	}
	writeJSON(w, http.StatusCreated, wf)
}
