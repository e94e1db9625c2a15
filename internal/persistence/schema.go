package persistence

import "context"

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id            TEXT PRIMARY KEY,
	task_type     TEXT NOT NULL,
	input         TEXT,
	assigned_to   TEXT NOT NULL DEFAULT '',
	priority      INTEGER NOT NULL,
	dependencies  TEXT,
	metadata      TEXT,
	status        TEXT NOT NULL,
	created_at    TEXT NOT NULL,
	assigned_at   TEXT,
	started_at    TEXT,
	completed_at  TEXT,
	result        TEXT,
	error         TEXT NOT NULL DEFAULT '',
	retry_count   INTEGER NOT NULL DEFAULT 0,
	max_retries   INTEGER NOT NULL DEFAULT 3,
	timeout_ns    INTEGER NOT NULL DEFAULT 0,
	last_activity TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE INDEX IF NOT EXISTS idx_tasks_assigned_to ON tasks(assigned_to);

CREATE TABLE IF NOT EXISTS workflows (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	description  TEXT NOT NULL DEFAULT '',
	metadata     TEXT,
	status       TEXT NOT NULL,
	created_at   TEXT NOT NULL,
	started_at   TEXT,
	completed_at TEXT,
	context      TEXT,
	variables    TEXT,
	dependencies TEXT
);

CREATE TABLE IF NOT EXISTS workflow_steps (
	workflow_id TEXT NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
	step_id     TEXT NOT NULL,
	position    INTEGER NOT NULL,
	step_type   TEXT NOT NULL,
	role        TEXT NOT NULL DEFAULT '',
	input       TEXT,
	metadata    TEXT,
	status      TEXT NOT NULL,
	task_id     TEXT NOT NULL DEFAULT '',
	result      TEXT,
	error       TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (workflow_id, step_id)
);

CREATE INDEX IF NOT EXISTS idx_workflow_steps_workflow ON workflow_steps(workflow_id);
`

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}
