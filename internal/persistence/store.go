// Package persistence snapshots tasks and workflows into SQLite. Saving
// and reloading reproduces every field, including enum values and unset
// optional timestamps.
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/crewlab/conductor/internal/task"
	"github.com/crewlab/conductor/internal/workflow"
)

// Store is the persistence contract for tasks and workflows.
type Store interface {
	SaveTask(ctx context.Context, t *task.Task) error
	GetTask(ctx context.Context, id string) (*task.Task, error)
	ListTasks(ctx context.Context) ([]*task.Task, error)

	SaveWorkflow(ctx context.Context, w *workflow.Workflow) error
	GetWorkflow(ctx context.Context, id string) (*workflow.Workflow, error)
	ListWorkflows(ctx context.Context) ([]*workflow.Workflow, error)

	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewStore opens (or creates) a SQLite-backed store at the given path,
// creating parent directories as needed. WAL mode and a busy timeout are
// enabled.
func NewStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", dbPath)
	return open(ctx, connStr)
}

// NewMemoryStore opens an in-memory store for testing. Each store gets
// its own named database; the shared cache only ties together the pooled
// connections of this store.
func NewMemoryStore(ctx context.Context) (*SQLiteStore, error) {
	name := fmt.Sprintf("memdb%d", memDBSeq.Add(1))
	return open(ctx, fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
}

var memDBSeq atomic.Uint64

func open(ctx context.Context, connStr string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// modernc.org/sqlite needs foreign keys enabled per connection.
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}
	db.SetMaxOpenConns(2)

	s := &SQLiteStore{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// encodeJSON marshals a value for storage; nil maps become SQL NULL.
func encodeJSON(v any) (sql.NullString, error) {
	switch m := v.(type) {
	case map[string]any:
		if m == nil {
			return sql.NullString{}, nil
		}
	case map[string]string:
		if m == nil {
			return sql.NullString{}, nil
		}
	case map[string]map[string]any:
		if m == nil {
			return sql.NullString{}, nil
		}
	case map[string][]string:
		if m == nil {
			return sql.NullString{}, nil
		}
	case []string:
		if m == nil {
			return sql.NullString{}, nil
		}
	case nil:
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// decodeJSON unmarshals a nullable column into out; NULL leaves out nil.
func decodeJSON(col sql.NullString, out any) error {
	if !col.Valid {
		return nil
	}
	return json.Unmarshal([]byte(col.String), out)
}

// encodeTime stores an optional timestamp as RFC3339Nano text.
func encodeTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(time.RFC3339Nano), Valid: true}
}

// decodeTime parses an optional RFC3339Nano column.
func decodeTime(col sql.NullString) (*time.Time, error) {
	if !col.Valid {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, col.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
