package task

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustCreate(t *testing.T, m *Manager, req CreateRequest) *Task {
	t.Helper()
	task, err := m.CreateTask(req)
	require.NoError(t, err)
	return task
}

// completeTask drives a task through assign -> in_progress -> completed.
func completeTask(t *testing.T, m *Manager, id string) {
	t.Helper()
	require.True(t, m.AssignTask(id, "tester"))
	require.True(t, m.UpdateTaskStatus(id, StatusInProgress, nil, ""))
	require.True(t, m.UpdateTaskStatus(id, StatusCompleted, map[string]any{"ok": true}, ""))
}

func TestCreateTaskValidation(t *testing.T) {
	m := NewManager(nil)

	tests := []struct {
		name    string
		req     CreateRequest
		wantErr bool
	}{
		{"empty type", CreateRequest{}, true},
		{"invalid priority", CreateRequest{Type: "create_plan", Priority: 9}, true},
		{"negative priority", CreateRequest{Type: "create_plan", Priority: -1}, true},
		{"defaults applied", CreateRequest{Type: "create_plan"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task, err := m.CreateTask(tt.req)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, PriorityMedium, task.Priority)
			assert.Equal(t, DefaultMaxRetries, task.MaxRetries)
			assert.Equal(t, StatusPending, task.Status)
		})
	}
}

func TestGetNextTaskPriorityOrder(t *testing.T) {
	m := NewManager(nil)

	low := mustCreate(t, m, CreateRequest{Type: "t", Priority: PriorityLow})
	urgent := mustCreate(t, m, CreateRequest{Type: "t", Priority: PriorityUrgent})
	high := mustCreate(t, m, CreateRequest{Type: "t", Priority: PriorityHigh})
	medium := mustCreate(t, m, CreateRequest{Type: "t", Priority: PriorityMedium})

	var order []string
	for {
		next := m.GetNextTask("")
		if next == nil {
			break
		}
		order = append(order, next.ID)
	}
	assert.Equal(t, []string{urgent.ID, high.ID, medium.ID, low.ID}, order)
}

func TestGetNextTaskFIFOWithinPriority(t *testing.T) {
	m := NewManager(nil)

	var want []string
	for i := 0; i < 5; i++ {
		task := mustCreate(t, m, CreateRequest{Type: fmt.Sprintf("t%d", i)})
		want = append(want, task.ID)
	}

	var got []string
	for {
		next := m.GetNextTask("")
		if next == nil {
			break
		}
		got = append(got, next.ID)
	}
	assert.Equal(t, want, got)
}

func TestGetNextTaskRoleHint(t *testing.T) {
	m := NewManager(nil)

	backend := mustCreate(t, m, CreateRequest{
		Type:     "implement_api",
		Priority: PriorityUrgent,
		Metadata: map[string]any{"role": "backend_engineer"},
	})
	frontend := mustCreate(t, m, CreateRequest{
		Type:     "implement_ui",
		Metadata: map[string]any{"role": "frontend_engineer"},
	})

	next := m.GetNextTask("frontend_engineer")
	require.NotNil(t, next)
	assert.Equal(t, frontend.ID, next.ID)

	// The skipped higher-priority entry must still be poppable.
	next = m.GetNextTask("backend_engineer")
	require.NotNil(t, next)
	assert.Equal(t, backend.ID, next.ID)
}

func TestDependencyGating(t *testing.T) {
	m := NewManager(nil)

	dep := mustCreate(t, m, CreateRequest{Type: "design_architecture"})
	blocked := mustCreate(t, m, CreateRequest{
		Type:         "implement_api",
		Priority:     PriorityUrgent,
		Dependencies: []string{dep.ID},
	})

	// Despite its higher priority, the blocked task is not in the queue.
	next := m.GetNextTask("")
	require.NotNil(t, next)
	assert.Equal(t, dep.ID, next.ID)
	assert.Nil(t, m.GetNextTask(""))

	// Assigning a blocked task directly is also refused.
	assert.False(t, m.AssignTask(blocked.ID, "backend_engineer"))

	completeTask(t, m, dep.ID)

	next = m.GetNextTask("")
	require.NotNil(t, next)
	assert.Equal(t, blocked.ID, next.ID)
}

func TestCompletionCascade(t *testing.T) {
	m := NewManager(nil)

	a := mustCreate(t, m, CreateRequest{Type: "a"})
	b := mustCreate(t, m, CreateRequest{Type: "b", Dependencies: []string{a.ID}})
	c := mustCreate(t, m, CreateRequest{Type: "c", Dependencies: []string{b.ID}})

	completeTask(t, m, a.ID)
	assert.True(t, m.AssignTask(b.ID, "tester"), "b should unlock after a completes")
	assert.False(t, m.AssignTask(c.ID, "tester"), "c is still blocked on b")

	require.True(t, m.UpdateTaskStatus(b.ID, StatusInProgress, nil, ""))
	require.True(t, m.UpdateTaskStatus(b.ID, StatusCompleted, nil, ""))
	assert.True(t, m.AssignTask(c.ID, "tester"))
}

func TestRetryBudget(t *testing.T) {
	m := NewManager(nil)
	task := mustCreate(t, m, CreateRequest{Type: "fix_bug"})

	// Three failures consume the budget and re-queue each time.
	for attempt := 1; attempt <= DefaultMaxRetries; attempt++ {
		require.True(t, m.AssignTask(task.ID, "tester"))
		require.True(t, m.UpdateTaskStatus(task.ID, StatusInProgress, nil, ""))
		require.True(t, m.UpdateTaskStatus(task.ID, StatusFailed, nil, "worker crashed"))

		got, ok := m.Task(task.ID)
		require.True(t, ok)
		assert.Equal(t, StatusPending, got.Status, "attempt %d should re-queue", attempt)
		assert.Equal(t, attempt, got.RetryCount)
		assert.Empty(t, got.Error)
		assert.Empty(t, got.AssignedTo)
	}

	// The fourth failure is final.
	require.True(t, m.AssignTask(task.ID, "tester"))
	require.True(t, m.UpdateTaskStatus(task.ID, StatusInProgress, nil, ""))
	require.True(t, m.UpdateTaskStatus(task.ID, StatusFailed, nil, "worker crashed"))

	got, ok := m.Task(task.ID)
	require.True(t, ok)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, DefaultMaxRetries, got.RetryCount)
	assert.Equal(t, "worker crashed", got.Error)
	assert.Nil(t, m.GetNextTask(""), "exhausted task must not be re-queued")
}

func TestRetryKeepsQueueSeniority(t *testing.T) {
	m := NewManager(nil)

	first := mustCreate(t, m, CreateRequest{Type: "a"})
	second := mustCreate(t, m, CreateRequest{Type: "b"})

	// Fail the older task once; on retry it should still come out before
	// the younger one.
	require.True(t, m.AssignTask(first.ID, "tester"))
	require.True(t, m.UpdateTaskStatus(first.ID, StatusInProgress, nil, ""))
	require.True(t, m.UpdateTaskStatus(first.ID, StatusFailed, nil, "boom"))

	next := m.GetNextTask("")
	require.NotNil(t, next)
	assert.Equal(t, first.ID, next.ID)

	next = m.GetNextTask("")
	require.NotNil(t, next)
	assert.Equal(t, second.ID, next.ID)
}

func TestCancelTask(t *testing.T) {
	m := NewManager(nil)

	pending := mustCreate(t, m, CreateRequest{Type: "a"})
	assert.True(t, m.CancelTask(pending.ID))
	got, _ := m.Task(pending.ID)
	assert.Equal(t, StatusCancelled, got.Status)
	assert.Nil(t, m.GetNextTask(""), "cancelled task must leave the queue")

	// Terminal tasks cannot be cancelled again.
	assert.False(t, m.CancelTask(pending.ID))

	done := mustCreate(t, m, CreateRequest{Type: "b"})
	completeTask(t, m, done.ID)
	assert.False(t, m.CancelTask(done.ID))

	assert.False(t, m.CancelTask("no-such-task"))
}

func TestCheckTimeouts(t *testing.T) {
	m := NewManager(nil)

	task := mustCreate(t, m, CreateRequest{Type: "monitor_system", Timeout: time.Millisecond})
	require.True(t, m.AssignTask(task.ID, "devops_engineer"))
	require.True(t, m.UpdateTaskStatus(task.ID, StatusInProgress, nil, ""))

	time.Sleep(10 * time.Millisecond)
	expired := m.CheckTimeouts()
	require.Equal(t, []string{task.ID}, expired)

	// A timeout consumes retry budget like any failure.
	got, _ := m.Task(task.ID)
	assert.Equal(t, StatusPending, got.Status)
	assert.Equal(t, 1, got.RetryCount)

	assert.Empty(t, m.CheckTimeouts(), "sweep must be idempotent")
}

func TestUpdateTaskStatusRejections(t *testing.T) {
	m := NewManager(nil)
	task := mustCreate(t, m, CreateRequest{Type: "a"})

	assert.False(t, m.UpdateTaskStatus("missing", StatusCompleted, nil, ""))
	assert.False(t, m.UpdateTaskStatus(task.ID, Status("bogus"), nil, ""))
	assert.False(t, m.UpdateTaskStatus(task.ID, StatusPending, nil, ""))
	assert.False(t, m.UpdateTaskStatus(task.ID, StatusAssigned, nil, ""))
}

func TestGetStatistics(t *testing.T) {
	m := NewManager(nil)

	done := mustCreate(t, m, CreateRequest{Type: "a", Priority: PriorityHigh})
	completeTask(t, m, done.ID)
	mustCreate(t, m, CreateRequest{Type: "b"})

	failing := mustCreate(t, m, CreateRequest{Type: "c"})
	require.True(t, m.AssignTask(failing.ID, "tester"))
	require.True(t, m.UpdateTaskStatus(failing.ID, StatusInProgress, nil, ""))
	require.True(t, m.UpdateTaskStatus(failing.ID, StatusFailed, nil, "boom"))

	stats := m.GetStatistics()
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.ByStatus[StatusCompleted])
	assert.Equal(t, 2, stats.ByStatus[StatusPending])
	assert.Equal(t, 1, stats.ByPriority[PriorityHigh])
	assert.Equal(t, 2, stats.ByPriority[PriorityMedium])
	assert.Equal(t, 2, stats.QueueDepth)
	assert.Equal(t, 1, stats.Retried)
}
