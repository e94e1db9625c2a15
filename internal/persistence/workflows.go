package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/crewlab/conductor/internal/task"
	"github.com/crewlab/conductor/internal/workflow"
)

// SaveWorkflow upserts a workflow snapshot together with its steps in a
// single transaction. Step conditions are not persisted; a reloaded
// workflow carries the graph, inputs, and runtime state only.
func (s *SQLiteStore) SaveWorkflow(ctx context.Context, w *workflow.Workflow) error {
	metadata, err := encodeJSON(w.Metadata)
	if err != nil {
		return fmt.Errorf("encoding workflow metadata: %w", err)
	}
	wfContext, err := encodeJSON(w.Context)
	if err != nil {
		return fmt.Errorf("encoding workflow context: %w", err)
	}
	variables, err := encodeJSON(w.Variables)
	if err != nil {
		return fmt.Errorf("encoding workflow variables: %w", err)
	}
	deps, err := encodeJSON(w.Dependencies)
	if err != nil {
		return fmt.Errorf("encoding workflow dependencies: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO workflows (
			id, name, description, metadata, status,
			created_at, started_at, completed_at, context, variables, dependencies
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			metadata = excluded.metadata,
			status = excluded.status,
			created_at = excluded.created_at,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at,
			context = excluded.context,
			variables = excluded.variables,
			dependencies = excluded.dependencies
	`, w.ID, w.Name, w.Description, metadata, string(w.Status),
		w.CreatedAt.Format(time.RFC3339Nano), encodeTime(w.StartedAt), encodeTime(w.CompletedAt),
		wfContext, variables, deps)
	if err != nil {
		return fmt.Errorf("saving workflow %s: %w", w.ID, err)
	}

	// Steps are replaced wholesale; the step list only ever grows before
	// start, and positions keep the original order on reload.
	if _, err := tx.ExecContext(ctx, `DELETE FROM workflow_steps WHERE workflow_id = ?`, w.ID); err != nil {
		return fmt.Errorf("clearing workflow steps: %w", err)
	}
	for i, step := range w.Steps {
		input, err := encodeJSON(step.Input)
		if err != nil {
			return fmt.Errorf("encoding step %s input: %w", step.ID, err)
		}
		stepMeta, err := encodeJSON(step.Metadata)
		if err != nil {
			return fmt.Errorf("encoding step %s metadata: %w", step.ID, err)
		}
		result, err := encodeJSON(step.Result)
		if err != nil {
			return fmt.Errorf("encoding step %s result: %w", step.ID, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO workflow_steps (
				workflow_id, step_id, position, step_type, role,
				input, metadata, status, task_id, result, error
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, w.ID, step.ID, i, step.Type, step.Role,
			input, stepMeta, string(step.Status), step.TaskID, result, step.Error)
		if err != nil {
			return fmt.Errorf("saving step %s: %w", step.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing workflow %s: %w", w.ID, err)
	}
	return nil
}

// GetWorkflow loads a workflow and its steps by id. Returns sql.ErrNoRows
// if it does not exist.
func (s *SQLiteStore) GetWorkflow(ctx context.Context, id string) (*workflow.Workflow, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, metadata, status,
			created_at, started_at, completed_at, context, variables, dependencies
		FROM workflows WHERE id = ?
	`, id)
	w, err := scanWorkflow(row)
	if err != nil {
		return nil, err
	}
	if err := s.loadSteps(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

// ListWorkflows loads every stored workflow with its steps, oldest first.
func (s *SQLiteStore) ListWorkflows(ctx context.Context) ([]*workflow.Workflow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, metadata, status,
			created_at, started_at, completed_at, context, variables, dependencies
		FROM workflows ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("listing workflows: %w", err)
	}
	defer rows.Close()

	var workflows []*workflow.Workflow
	for rows.Next() {
		w, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		workflows = append(workflows, w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, w := range workflows {
		if err := s.loadSteps(ctx, w); err != nil {
			return nil, err
		}
	}
	return workflows, nil
}

func scanWorkflow(row rowScanner) (*workflow.Workflow, error) {
	var (
		w         workflow.Workflow
		metadata  sql.NullString
		status    string
		createdAt string
		startedAt sql.NullString
		doneAt    sql.NullString
		wfContext sql.NullString
		variables sql.NullString
		deps      sql.NullString
	)
	err := row.Scan(&w.ID, &w.Name, &w.Description, &metadata, &status,
		&createdAt, &startedAt, &doneAt, &wfContext, &variables, &deps)
	if err != nil {
		return nil, err
	}

	w.Status = workflow.Status(status)
	if err := decodeJSON(metadata, &w.Metadata); err != nil {
		return nil, fmt.Errorf("decoding workflow metadata: %w", err)
	}
	w.Context = make(map[string]map[string]any)
	if err := decodeJSON(wfContext, &w.Context); err != nil {
		return nil, fmt.Errorf("decoding workflow context: %w", err)
	}
	if err := decodeJSON(variables, &w.Variables); err != nil {
		return nil, fmt.Errorf("decoding workflow variables: %w", err)
	}
	w.Dependencies = make(map[string][]string)
	if err := decodeJSON(deps, &w.Dependencies); err != nil {
		return nil, fmt.Errorf("decoding workflow dependencies: %w", err)
	}

	if w.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if w.StartedAt, err = decodeTime(startedAt); err != nil {
		return nil, fmt.Errorf("parsing started_at: %w", err)
	}
	if w.CompletedAt, err = decodeTime(doneAt); err != nil {
		return nil, fmt.Errorf("parsing completed_at: %w", err)
	}
	return &w, nil
}

func (s *SQLiteStore) loadSteps(ctx context.Context, w *workflow.Workflow) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT step_id, step_type, role, input, metadata, status, task_id, result, error
		FROM workflow_steps WHERE workflow_id = ? ORDER BY position
	`, w.ID)
	if err != nil {
		return fmt.Errorf("loading steps for %s: %w", w.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			step     workflow.Step
			input    sql.NullString
			metadata sql.NullString
			result   sql.NullString
			status   string
		)
		err := rows.Scan(&step.ID, &step.Type, &step.Role, &input, &metadata,
			&status, &step.TaskID, &result, &step.Error)
		if err != nil {
			return err
		}
		step.Status = task.Status(status)
		if err := decodeJSON(input, &step.Input); err != nil {
			return fmt.Errorf("decoding step %s input: %w", step.ID, err)
		}
		if err := decodeJSON(metadata, &step.Metadata); err != nil {
			return fmt.Errorf("decoding step %s metadata: %w", step.ID, err)
		}
		if err := decodeJSON(result, &step.Result); err != nil {
			return fmt.Errorf("decoding step %s result: %w", step.ID, err)
		}
		w.Steps = append(w.Steps, &step)
	}
	return rows.Err()
}
