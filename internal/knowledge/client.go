package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
)

// Client is a Sink over a RAGFlow-style REST API. Transient failures are
// retried with exponential backoff; the overall attempt is still
// best-effort from the caller's point of view.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	maxElapsed time.Duration
}

// NewClient creates a knowledge base client. maxElapsed bounds the total
// retry time per write; it defaults to 15s.
func NewClient(baseURL, apiKey string, maxElapsed time.Duration) *Client {
	if maxElapsed <= 0 {
		maxElapsed = 15 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		maxElapsed: maxElapsed,
	}
}

type document struct {
	Kind     string         `json:"kind"` // "outcome" or "experience"
	TaskID   string         `json:"task_id,omitempty"`
	TaskType string         `json:"task_type"`
	Role     string         `json:"role"`
	Content  string         `json:"content"`
	Result   map[string]any `json:"result,omitempty"`
	Context  string         `json:"context,omitempty"`
}

type storeResponse struct {
	ID string `json:"id"`
}

// RecordOutcome stores a successful task result.
func (c *Client) RecordOutcome(ctx context.Context, taskID, taskType string, result map[string]any, role string) (string, error) {
	doc := document{
		Kind:     "outcome",
		TaskID:   taskID,
		TaskType: taskType,
		Role:     role,
		Result:   result,
	}
	id, err := c.store(ctx, doc)
	if err != nil {
		return "", errors.Wrap(err, "recording task outcome")
	}
	return id, nil
}

// RecordFailure stores a failure experience.
func (c *Client) RecordFailure(ctx context.Context, taskType, errMsg, failureContext, role string) (string, error) {
	doc := document{
		Kind:     "experience",
		TaskType: taskType,
		Role:     role,
		Content:  fmt.Sprintf("task type: %s\nerror: %s", taskType, errMsg),
		Context:  failureContext,
	}
	id, err := c.store(ctx, doc)
	if err != nil {
		return "", errors.Wrap(err, "recording failure experience")
	}
	return id, nil
}

func (c *Client) store(ctx context.Context, doc document) (string, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return "", errors.Wrap(err, "encoding document")
	}

	var id string
	operation := func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/documents", bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err // retryable
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return fmt.Errorf("knowledge base returned %d", resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
			return backoff.Permanent(fmt.Errorf("knowledge base rejected document (%d): %s",
				resp.StatusCode, strings.TrimSpace(string(snippet))))
		}

		var out storeResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return backoff.Permanent(errors.Wrap(err, "decoding store response"))
		}
		id = out.ID
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxElapsedTime = c.maxElapsed

	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return "", err
	}
	return id, nil
}
