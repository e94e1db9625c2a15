package task

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedHistory creates one completed, one failed, and one pending task.
func seedHistory(t *testing.T) (*Manager, *History) {
	t.Helper()
	m := NewManager(nil)

	done := mustCreate(t, m, CreateRequest{Type: "create_plan"})
	require.True(t, m.AssignTask(done.ID, "project_manager"))
	require.True(t, m.UpdateTaskStatus(done.ID, StatusInProgress, nil, ""))
	require.True(t, m.UpdateTaskStatus(done.ID, StatusCompleted, map[string]any{"output": "plan"}, ""))

	failed := mustCreate(t, m, CreateRequest{Type: "fix_bug", MaxRetries: 1})
	for i := 0; i < 2; i++ {
		require.True(t, m.AssignTask(failed.ID, "frontend_engineer"))
		require.True(t, m.UpdateTaskStatus(failed.ID, StatusInProgress, nil, ""))
		require.True(t, m.UpdateTaskStatus(failed.ID, StatusFailed, nil, "still broken"))
	}

	mustCreate(t, m, CreateRequest{Type: "implement_api"})
	return m, NewHistory(m)
}

func TestHistoryQueryFilters(t *testing.T) {
	_, h := seedHistory(t)

	all := h.Query(HistoryFilter{})
	assert.Len(t, all, 3)

	byRole := h.Query(HistoryFilter{Role: "project_manager"})
	require.Len(t, byRole, 1)
	assert.Equal(t, "create_plan", byRole[0].Type)
	assert.Equal(t, StatusCompleted, byRole[0].Status)

	byStatus := h.Query(HistoryFilter{Status: StatusFailed})
	require.Len(t, byStatus, 1)
	assert.Equal(t, "still broken", byStatus[0].Error)
	assert.Equal(t, 1, byStatus[0].RetryCount)

	byType := h.Query(HistoryFilter{Type: "implement_api"})
	require.Len(t, byType, 1)
	assert.Equal(t, StatusPending, byType[0].Status)

	assert.Empty(t, h.Query(HistoryFilter{Type: "no_such_type"}))
}

func TestHistoryQueryLimitAndOrder(t *testing.T) {
	m := NewManager(nil)
	h := NewHistory(m)
	for i := 0; i < 5; i++ {
		mustCreate(t, m, CreateRequest{Type: "a"})
	}

	entries := h.Query(HistoryFilter{Limit: 3})
	require.Len(t, entries, 3)
	for i := 1; i < len(entries); i++ {
		assert.False(t, entries[i].CreatedAt.After(entries[i-1].CreatedAt), "entries must be newest first")
	}
}

func TestHistoryFailed(t *testing.T) {
	_, h := seedHistory(t)

	failed := h.Failed(10)
	require.Len(t, failed, 1)
	assert.Equal(t, "fix_bug", failed[0].Type)
}

func TestStatsByRole(t *testing.T) {
	_, h := seedHistory(t)

	stats := h.StatsByRole(time.Time{}, time.Time{})
	pm := stats["project_manager"]
	assert.Equal(t, 1, pm.Total)
	assert.Equal(t, 1, pm.Completed)

	fe := stats["frontend_engineer"]
	assert.Equal(t, 1, fe.Total)
	assert.Equal(t, 1, fe.Failed)
	assert.Equal(t, 1, fe.Retries)

	assert.Equal(t, 1, stats["unassigned"].Total)
}

func TestPerformanceReport(t *testing.T) {
	_, h := seedHistory(t)

	report := h.PerformanceReport(time.Time{}, time.Time{})
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 1, report.Completed)
	assert.Equal(t, 1, report.Failed)
	assert.InDelta(t, 33.3, report.SuccessRate, 0.5)
	assert.Contains(t, report.ByType, "create_plan")
	assert.Contains(t, report.ByRole, "frontend_engineer")

	// A window in the past contains nothing.
	old := h.PerformanceReport(time.Now().Add(-48*time.Hour), time.Now().Add(-24*time.Hour))
	assert.Zero(t, old.Total)
	assert.Zero(t, old.SuccessRate)
}
