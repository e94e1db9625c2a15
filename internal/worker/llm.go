package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// LLMClient talks to an Ollama-compatible text generation endpoint.
// The call is synchronous and may block for the full request timeout;
// the scheduler never holds a lock across it.
type LLMClient struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewLLMClient creates a client for the given endpoint and model.
func NewLLMClient(baseURL, model string, timeout time.Duration) *LLMClient {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &LLMClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Generate produces text for the prompt. A non-empty system prompt is
// prepended to the user prompt.
func (c *LLMClient) Generate(ctx context.Context, systemPrompt, prompt string) (string, error) {
	full := prompt
	if systemPrompt != "" {
		full = systemPrompt + "\n\n" + prompt
	}

	body, err := json.Marshal(generateRequest{
		Model:  c.model,
		Prompt: full,
		Stream: false,
	})
	if err != nil {
		return "", fmt.Errorf("encoding generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling model backend: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("model backend returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding generate response: %w", err)
	}
	return out.Response, nil
}

// PromptSpec describes how one task type is turned into a model call.
// The template may reference input keys as {{key}}.
type PromptSpec struct {
	System   string
	Template string
}

// PromptHandler builds a HandlerFunc that renders the prompt template from
// the task input, calls the model, and returns the text under "output".
func PromptHandler(client *LLMClient, spec PromptSpec) HandlerFunc {
	return func(ctx context.Context, input map[string]any) (map[string]any, error) {
		text, err := client.Generate(ctx, spec.System, renderPrompt(spec.Template, input))
		if err != nil {
			return nil, err
		}
		return map[string]any{"output": text}, nil
	}
}

// NewLLMRoleWorker wires a worker whose task types all resolve to prompt
// templates over the same model client.
func NewLLMRoleWorker(name string, client *LLMClient, prompts map[string]PromptSpec) (*RoleWorker, error) {
	w := NewRoleWorker(name)
	for taskType, spec := range prompts {
		if err := w.Register(taskType, PromptHandler(client, spec)); err != nil {
			return nil, err
		}
	}
	return w, nil
}

// renderPrompt substitutes {{key}} placeholders with the string form of
// the corresponding input value. Unknown placeholders are left intact.
func renderPrompt(template string, input map[string]any) string {
	out := template
	for key, value := range input {
		out = strings.ReplaceAll(out, "{{"+key+"}}", fmt.Sprint(value))
	}
	return out
}
