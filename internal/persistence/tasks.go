package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/crewlab/conductor/internal/task"
)

// SaveTask upserts a task snapshot.
func (s *SQLiteStore) SaveTask(ctx context.Context, t *task.Task) error {
	input, err := encodeJSON(t.Input)
	if err != nil {
		return fmt.Errorf("encoding task input: %w", err)
	}
	deps, err := encodeJSON(t.Dependencies)
	if err != nil {
		return fmt.Errorf("encoding task dependencies: %w", err)
	}
	metadata, err := encodeJSON(t.Metadata)
	if err != nil {
		return fmt.Errorf("encoding task metadata: %w", err)
	}
	result, err := encodeJSON(t.Result)
	if err != nil {
		return fmt.Errorf("encoding task result: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tasks (
			id, task_type, input, assigned_to, priority, dependencies, metadata,
			status, created_at, assigned_at, started_at, completed_at,
			result, error, retry_count, max_retries, timeout_ns, last_activity
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			task_type = excluded.task_type,
			input = excluded.input,
			assigned_to = excluded.assigned_to,
			priority = excluded.priority,
			dependencies = excluded.dependencies,
			metadata = excluded.metadata,
			status = excluded.status,
			created_at = excluded.created_at,
			assigned_at = excluded.assigned_at,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at,
			result = excluded.result,
			error = excluded.error,
			retry_count = excluded.retry_count,
			max_retries = excluded.max_retries,
			timeout_ns = excluded.timeout_ns,
			last_activity = excluded.last_activity
	`, t.ID, t.Type, input, t.AssignedTo, int(t.Priority), deps, metadata,
		string(t.Status), t.CreatedAt.Format(time.RFC3339Nano),
		encodeTime(t.AssignedAt), encodeTime(t.StartedAt), encodeTime(t.CompletedAt),
		result, t.Error, t.RetryCount, t.MaxRetries, int64(t.Timeout),
		t.LastActivity.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("saving task %s: %w", t.ID, err)
	}
	return nil
}

// GetTask loads a task by id. Returns sql.ErrNoRows if it does not exist.
func (s *SQLiteStore) GetTask(ctx context.Context, id string) (*task.Task, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, task_type, input, assigned_to, priority, dependencies, metadata,
			status, created_at, assigned_at, started_at, completed_at,
			result, error, retry_count, max_retries, timeout_ns, last_activity
		FROM tasks WHERE id = ?
	`, id)
	return scanTask(row)
}

// ListTasks loads every stored task, oldest first.
func (s *SQLiteStore) ListTasks(ctx context.Context) ([]*task.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_type, input, assigned_to, priority, dependencies, metadata,
			status, created_at, assigned_at, started_at, completed_at,
			result, error, retry_count, max_retries, timeout_ns, last_activity
		FROM tasks ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*task.Task, error) {
	var (
		t          task.Task
		input      sql.NullString
		deps       sql.NullString
		metadata   sql.NullString
		result     sql.NullString
		status     string
		priority   int
		createdAt  string
		assignedAt sql.NullString
		startedAt  sql.NullString
		doneAt     sql.NullString
		timeoutNS  int64
		activity   string
	)
	err := row.Scan(&t.ID, &t.Type, &input, &t.AssignedTo, &priority, &deps, &metadata,
		&status, &createdAt, &assignedAt, &startedAt, &doneAt,
		&result, &t.Error, &t.RetryCount, &t.MaxRetries, &timeoutNS, &activity)
	if err != nil {
		return nil, err
	}

	t.Status = task.Status(status)
	t.Priority = task.Priority(priority)
	t.Timeout = time.Duration(timeoutNS)

	if err := decodeJSON(input, &t.Input); err != nil {
		return nil, fmt.Errorf("decoding task input: %w", err)
	}
	if err := decodeJSON(deps, &t.Dependencies); err != nil {
		return nil, fmt.Errorf("decoding task dependencies: %w", err)
	}
	if err := decodeJSON(metadata, &t.Metadata); err != nil {
		return nil, fmt.Errorf("decoding task metadata: %w", err)
	}
	if err := decodeJSON(result, &t.Result); err != nil {
		return nil, fmt.Errorf("decoding task result: %w", err)
	}

	if t.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if t.LastActivity, err = time.Parse(time.RFC3339Nano, activity); err != nil {
		return nil, fmt.Errorf("parsing last_activity: %w", err)
	}
	if t.AssignedAt, err = decodeTime(assignedAt); err != nil {
		return nil, fmt.Errorf("parsing assigned_at: %w", err)
	}
	if t.StartedAt, err = decodeTime(startedAt); err != nil {
		return nil, fmt.Errorf("parsing started_at: %w", err)
	}
	if t.CompletedAt, err = decodeTime(doneAt); err != nil {
		return nil, fmt.Errorf("parsing completed_at: %w", err)
	}
	return &t, nil
}
