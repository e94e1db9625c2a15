package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewlab/conductor/internal/scheduler"
	"github.com/crewlab/conductor/internal/task"
	"github.com/crewlab/conductor/internal/worker"
	"github.com/crewlab/conductor/internal/workflow"
)

func newTestServer(t *testing.T) (*httptest.Server, *task.Manager) {
	t.Helper()

	manager := task.NewManager(nil)
	sched := scheduler.New(manager, nil, nil)

	for role, prompts := range worker.RolePrompts() {
		w := worker.NewRoleWorker(role)
		for taskType := range prompts {
			require.NoError(t, w.Register(taskType, func(ctx context.Context, input map[string]any) (map[string]any, error) {
				return map[string]any{"output": "done"}, nil
			}))
		}
		require.NoError(t, sched.RegisterWorker(w))
	}

	engine := workflow.NewEngine(manager, sched, nil)
	workflow.RegisterBuiltinTemplates(engine)
	pauses := workflow.NewPauseManager(engine)

	srv := New(":0", manager, sched, engine, pauses, 2)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, manager
}

func doJSON(t *testing.T, method, url string, body any, out any) int {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t)

	var out map[string]string
	status := doJSON(t, http.MethodGet, ts.URL+"/health", nil, &out)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", out["status"])
}

func TestTaskLifecycleOverHTTP(t *testing.T) {
	ts, _ := newTestServer(t)

	var created taskView
	status := doJSON(t, http.MethodPost, ts.URL+"/tasks", map[string]any{
		"task_type": "create_plan",
		"input":     map[string]any{"requirements": "a CRM"},
		"priority":  3,
	}, &created)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "pending", created.Status)
	assert.Equal(t, 3, created.Priority)

	// Auto-assignment routes by task type.
	var assigned taskView
	status = doJSON(t, http.MethodPost, ts.URL+"/tasks/"+created.ID+"/assign", nil, &assigned)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "assigned", assigned.Status)
	assert.Equal(t, "project_manager", assigned.AssignedTo)

	var result scheduler.Result
	status = doJSON(t, http.MethodPost, ts.URL+"/tasks/"+created.ID+"/execute", nil, &result)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, result.Success)
	assert.Equal(t, "done", result.Output["output"])

	var fetched taskView
	status = doJSON(t, http.MethodGet, ts.URL+"/tasks/"+created.ID, nil, &fetched)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "completed", fetched.Status)

	var listed []taskView
	status = doJSON(t, http.MethodGet, ts.URL+"/tasks?status=completed", nil, &listed)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, listed, 1)
}

func TestTaskErrorsOverHTTP(t *testing.T) {
	ts, _ := newTestServer(t)

	// Invalid create requests are 400.
	status := doJSON(t, http.MethodPost, ts.URL+"/tasks", map[string]any{"task_type": ""}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	status = doJSON(t, http.MethodPost, ts.URL+"/tasks", map[string]any{"task_type": "a", "priority": 9}, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status = doJSON(t, http.MethodGet, ts.URL+"/tasks/missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status = doJSON(t, http.MethodPost, ts.URL+"/tasks/missing/cancel", nil, nil)
	assert.Equal(t, http.StatusConflict, status)

	status = doJSON(t, http.MethodGet, ts.URL+"/tasks?status=bogus", nil, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestStatisticsAndWorkload(t *testing.T) {
	ts, _ := newTestServer(t)

	doJSON(t, http.MethodPost, ts.URL+"/tasks", map[string]any{"task_type": "create_plan"}, nil)

	var stats task.Statistics
	status := doJSON(t, http.MethodGet, ts.URL+"/statistics", nil, &stats)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, stats.Total)

	var workload map[string]int
	status = doJSON(t, http.MethodGet, ts.URL+"/workload", nil, &workload)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, workload, "architect")
}

func TestWorkflowOverHTTP(t *testing.T) {
	ts, _ := newTestServer(t)

	var wf workflow.Workflow
	status := doJSON(t, http.MethodPost, ts.URL+"/workflows", map[string]any{
		"name": "build",
	}, &wf)
	require.Equal(t, http.StatusCreated, status)

	var step map[string]string
	status = doJSON(t, http.MethodPost, ts.URL+"/workflows/"+wf.ID+"/steps", map[string]any{
		"step_type": "create_plan",
	}, &step)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "step_1", step["step_id"])

	status = doJSON(t, http.MethodPost, ts.URL+"/workflows/"+wf.ID+"/start", nil, &wf)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, workflow.StatusRunning, wf.Status)

	// Pause, verify listing, resume.
	status = doJSON(t, http.MethodPost, ts.URL+"/workflows/"+wf.ID+"/pause", map[string]any{"reason": "hold"}, nil)
	require.Equal(t, http.StatusOK, status)

	var paused []workflow.PausedWorkflow
	status = doJSON(t, http.MethodGet, ts.URL+"/workflows/paused", nil, &paused)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, paused, 1)
	assert.Equal(t, "hold", paused[0].Info.Reason)

	status = doJSON(t, http.MethodPost, ts.URL+"/workflows/"+wf.ID+"/resume", nil, nil)
	require.Equal(t, http.StatusOK, status)
	status = doJSON(t, http.MethodPost, ts.URL+"/workflows/"+wf.ID+"/resume", nil, nil)
	assert.Equal(t, http.StatusConflict, status)

	// Starting an empty workflow is refused.
	var empty workflow.Workflow
	doJSON(t, http.MethodPost, ts.URL+"/workflows", map[string]any{"name": "empty"}, &empty)
	status = doJSON(t, http.MethodPost, ts.URL+"/workflows/"+empty.ID+"/start", nil, nil)
	assert.Equal(t, http.StatusConflict, status)
}

func TestTemplatesOverHTTP(t *testing.T) {
	ts, _ := newTestServer(t)

	var templates []map[string]any
	status := doJSON(t, http.MethodGet, ts.URL+"/templates", nil, &templates)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, templates, 2)

	var wf workflow.Workflow
	status = doJSON(t, http.MethodPost, ts.URL+"/templates/bug_fix/instantiate", map[string]any{
		"name":      "fix-123",
		"variables": map[string]string{"bug_description": "crash on save"},
		"start":     true,
	}, &wf)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "fix-123", wf.Name)
	assert.Equal(t, workflow.StatusRunning, wf.Status)

	status = doJSON(t, http.MethodPost, ts.URL+"/templates/nope/instantiate", nil, nil)
	assert.Equal(t, http.StatusNotFound, status)
}
