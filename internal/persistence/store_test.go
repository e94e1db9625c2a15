package persistence

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewlab/conductor/internal/task"
	"github.com/crewlab/conductor/internal/workflow"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewMemoryStore(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestTaskRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now().Truncate(time.Microsecond)
	assignedAt := now.Add(time.Second)
	startedAt := now.Add(2 * time.Second)
	completedAt := now.Add(5 * time.Second)

	original := &task.Task{
		ID:           "task-1",
		Type:         "implement_api",
		Input:        map[string]any{"spec": "the spec", "attempt": float64(2)},
		AssignedTo:   "backend_engineer",
		Priority:     task.PriorityHigh,
		Dependencies: []string{"task-0"},
		Metadata:     map[string]any{"workflow_id": "wf-1"},
		Status:       task.StatusCompleted,
		CreatedAt:    now,
		AssignedAt:   &assignedAt,
		StartedAt:    &startedAt,
		CompletedAt:  &completedAt,
		Result:       map[string]any{"output": "the api"},
		Error:        "",
		RetryCount:   1,
		MaxRetries:   3,
		Timeout:      90 * time.Second,
		LastActivity: startedAt,
	}

	require.NoError(t, s.SaveTask(ctx, original))

	loaded, err := s.GetTask(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, original.ID, loaded.ID)
	assert.Equal(t, original.Type, loaded.Type)
	assert.Equal(t, original.Input, loaded.Input)
	assert.Equal(t, original.AssignedTo, loaded.AssignedTo)
	assert.Equal(t, original.Priority, loaded.Priority)
	assert.Equal(t, original.Dependencies, loaded.Dependencies)
	assert.Equal(t, original.Metadata, loaded.Metadata)
	assert.Equal(t, original.Status, loaded.Status)
	assert.True(t, original.CreatedAt.Equal(loaded.CreatedAt))
	assert.True(t, assignedAt.Equal(*loaded.AssignedAt))
	assert.True(t, startedAt.Equal(*loaded.StartedAt))
	assert.True(t, completedAt.Equal(*loaded.CompletedAt))
	assert.Equal(t, original.Result, loaded.Result)
	assert.Equal(t, original.RetryCount, loaded.RetryCount)
	assert.Equal(t, original.MaxRetries, loaded.MaxRetries)
	assert.Equal(t, original.Timeout, loaded.Timeout)
	assert.True(t, original.LastActivity.Equal(loaded.LastActivity))
}

func TestTaskRoundTripMinimal(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	original := task.New("create_plan", nil)
	require.NoError(t, s.SaveTask(ctx, original))

	loaded, err := s.GetTask(ctx, original.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusPending, loaded.Status)
	assert.Nil(t, loaded.Input)
	assert.Nil(t, loaded.Result)
	assert.Nil(t, loaded.AssignedAt)
	assert.Nil(t, loaded.StartedAt)
	assert.Nil(t, loaded.CompletedAt)
	assert.Zero(t, loaded.Timeout)
}

func TestSaveTaskUpserts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	original := task.New("fix_bug", nil)
	require.NoError(t, s.SaveTask(ctx, original))

	original.Assign("frontend_engineer")
	original.Start()
	original.Complete(map[string]any{"output": "fixed"})
	require.NoError(t, s.SaveTask(ctx, original))

	loaded, err := s.GetTask(ctx, original.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusCompleted, loaded.Status)
	assert.Equal(t, "fixed", loaded.Result["output"])

	tasks, err := s.ListTasks(ctx)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestGetTaskNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetTask(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestWorkflowRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	original := workflow.New("build", "plan then implement", map[string]any{"team": "core"})
	first := original.AddStep(workflow.StepSpec{
		Type:  "create_plan",
		Role:  "project_manager",
		Input: map[string]any{"requirements": "a CRM"},
	})
	original.AddStep(workflow.StepSpec{
		Type:      "implement_api",
		Role:      "backend_engineer",
		DependsOn: []string{first},
		Metadata:  map[string]any{"step_name": "backend"},
	})
	original.Variables = map[string]string{"requirements": "a CRM"}
	original.Status = workflow.StatusRunning
	started := time.Now().Truncate(time.Microsecond)
	original.StartedAt = &started
	original.Steps[0].TaskID = "task-1"
	original.UpdateStepResult(first, map[string]any{"output": "plan"})

	require.NoError(t, s.SaveWorkflow(ctx, original))

	loaded, err := s.GetWorkflow(ctx, original.ID)
	require.NoError(t, err)
	assert.Equal(t, original.Name, loaded.Name)
	assert.Equal(t, original.Description, loaded.Description)
	assert.Equal(t, original.Metadata, loaded.Metadata)
	assert.Equal(t, workflow.StatusRunning, loaded.Status)
	assert.True(t, started.Equal(*loaded.StartedAt))
	assert.Nil(t, loaded.CompletedAt)
	assert.Equal(t, original.Variables, loaded.Variables)
	assert.Equal(t, original.Dependencies, loaded.Dependencies)
	assert.Equal(t, map[string]any{"output": "plan"}, loaded.Context[first])

	require.Len(t, loaded.Steps, 2)
	assert.Equal(t, "step_1", loaded.Steps[0].ID)
	assert.Equal(t, task.StatusCompleted, loaded.Steps[0].Status)
	assert.Equal(t, "task-1", loaded.Steps[0].TaskID)
	assert.Equal(t, map[string]any{"output": "plan"}, loaded.Steps[0].Result)
	assert.Equal(t, "step_2", loaded.Steps[1].ID)
	assert.Equal(t, "backend", loaded.Steps[1].Metadata["step_name"])
	assert.Equal(t, task.StatusPending, loaded.Steps[1].Status)
}

func TestListWorkflows(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"first", "second"} {
		w := workflow.New(name, "", nil)
		w.AddStep(workflow.StepSpec{Type: "a"})
		require.NoError(t, s.SaveWorkflow(ctx, w))
	}

	workflows, err := s.ListWorkflows(ctx)
	require.NoError(t, err)
	require.Len(t, workflows, 2)
	for _, w := range workflows {
		assert.Len(t, w.Steps, 1)
	}
}

func TestFileStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "conductor.db")

	s, err := NewStore(ctx, path)
	require.NoError(t, err)
	original := task.New("monitor_system", nil)
	require.NoError(t, s.SaveTask(ctx, original))
	require.NoError(t, s.Close())

	reopened, err := NewStore(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()

	loaded, err := reopened.GetTask(ctx, original.ID)
	require.NoError(t, err)
	assert.Equal(t, original.Type, loaded.Type)
}
