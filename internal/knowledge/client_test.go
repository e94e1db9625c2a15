package knowledge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordOutcome(t *testing.T) {
	var got document
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/documents", r.URL.Path)
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(map[string]string{"id": "doc-1"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret", time.Second)
	id, err := c.RecordOutcome(context.Background(), "t1", "create_plan", map[string]any{"output": "plan"}, "project_manager")
	require.NoError(t, err)
	assert.Equal(t, "doc-1", id)
	assert.Equal(t, "outcome", got.Kind)
	assert.Equal(t, "t1", got.TaskID)
	assert.Equal(t, "project_manager", got.Role)
	assert.Equal(t, "plan", got.Result["output"])
}

func TestRecordFailure(t *testing.T) {
	var got document
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(map[string]string{"id": "doc-2"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	id, err := c.RecordFailure(context.Background(), "fix_bug", "worker crashed", "retrying disabled", "frontend_engineer")
	require.NoError(t, err)
	assert.Equal(t, "doc-2", id)
	assert.Equal(t, "experience", got.Kind)
	assert.Contains(t, got.Content, "worker crashed")
	assert.Equal(t, "retrying disabled", got.Context)
}

func TestServerErrorIsRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"id": "doc-3"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", 5*time.Second)
	id, err := c.RecordOutcome(context.Background(), "t1", "a", nil, "r")
	require.NoError(t, err)
	assert.Equal(t, "doc-3", id)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad document", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", 5*time.Second)
	_, err := c.RecordOutcome(context.Background(), "t1", "a", nil, "r")
	require.Error(t, err)
	assert.ErrorContains(t, err, "bad document")
	assert.Equal(t, int32(1), calls.Load(), "4xx must not be retried")
}

func TestCancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewClient(srv.URL, "", time.Second)
	_, err := c.RecordFailure(ctx, "a", "e", "c", "r")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
