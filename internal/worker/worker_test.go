package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoHandler(ctx context.Context, input map[string]any) (map[string]any, error) {
	return map[string]any{"echo": input["msg"]}, nil
}

func TestRegisterValidation(t *testing.T) {
	w := NewRoleWorker("architect")

	require.NoError(t, w.Register("solve_problem", echoHandler))

	tests := []struct {
		name     string
		taskType string
		fn       HandlerFunc
	}{
		{"empty type", "", echoHandler},
		{"nil handler", "design_architecture", nil},
		{"duplicate type", "solve_problem", echoHandler},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, w.Register(tt.taskType, tt.fn))
		})
	}
}

func TestHandlesAndTaskTypes(t *testing.T) {
	w := NewRoleWorker("backend_engineer")
	require.NoError(t, w.Register("optimize_query", echoHandler))
	require.NoError(t, w.Register("implement_api", echoHandler))

	assert.True(t, w.Handles("implement_api"))
	assert.False(t, w.Handles("implement_ui"))
	assert.Equal(t, []string{"implement_api", "optimize_query"}, w.TaskTypes())
}

func TestExecute(t *testing.T) {
	w := NewRoleWorker("architect")
	require.NoError(t, w.Register("solve_problem", echoHandler))
	require.NoError(t, w.Register("evaluate_technology", func(ctx context.Context, input map[string]any) (map[string]any, error) {
		return nil, errors.New("no options given")
	}))

	out, err := w.Execute(context.Background(), "solve_problem", map[string]any{"msg": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", out["echo"])

	_, err = w.Execute(context.Background(), "evaluate_technology", nil)
	assert.EqualError(t, err, "no options given")

	_, err = w.Execute(context.Background(), "unknown_type", nil)
	assert.ErrorContains(t, err, "no handler for task type")
}

func TestRolePromptsCoverDefaultMapping(t *testing.T) {
	prompts := RolePrompts()
	assert.Len(t, prompts, 5)
	for role, specs := range prompts {
		assert.NotEmpty(t, specs, "role %s has no prompts", role)
		for taskType, spec := range specs {
			assert.NotEmpty(t, spec.Template, "%s/%s has no template", role, taskType)
		}
	}
}
