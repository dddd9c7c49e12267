// Package cliclient implements whimctl's HTTP client against the
// orchestrator's HTTP Surface, plus a local SQLite cache the CLI falls
// back to for read commands when the orchestrator is unreachable.
// Grounded on the teacher's dual pgx/sqlite database/sql wiring in
// internal/storage/sql/connection.go, repurposed here as a read-only
// client-side cache rather than a second server-side backend.
package cliclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client wraps the orchestrator's HTTP Surface for whimctl's commands.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// New constructs a Client. baseURL is the orchestrator's HTTP address,
// e.g. "http://localhost:8080".
func New(baseURL string) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is returned when the orchestrator responds with a non-2xx
// status; it carries the decoded error envelope when one is present.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("orchestrator returned %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("orchestrator returned %d: %s", e.StatusCode, e.Message)
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("call orchestrator: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
		var env errorEnvelope
		if json.Unmarshal(respBody, &env) == nil && env.Error.Message != "" {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}
	return nil
}

// SubmitRequest mirrors httpapi's submitRequest wire shape.
type SubmitRequest struct {
	Repo          string         `json:"repo"`
	Description   *string        `json:"description,omitempty"`
	Spec          *string        `json:"spec,omitempty"`
	Branch        *string        `json:"branch,omitempty"`
	Priority      string         `json:"priority,omitempty"`
	MaxIterations int            `json:"maxIterations,omitempty"`
	Source        *string        `json:"source,omitempty"`
	SourceRef     *string        `json:"sourceRef,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// Submit calls POST /api/work.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (json.RawMessage, error) {
	var out json.RawMessage
	return out, c.do(ctx, http.MethodPost, "/api/work", req, &out)
}

// Get calls GET /api/work/{id}.
func (c *Client) Get(ctx context.Context, id string) (json.RawMessage, error) {
	var out json.RawMessage
	return out, c.do(ctx, http.MethodGet, "/api/work/"+id, nil, &out)
}

// Cancel calls POST /api/work/{id}/cancel.
func (c *Client) Cancel(ctx context.Context, id string) (bool, error) {
	var out struct {
		Cancelled bool `json:"cancelled"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/work/"+id+"/cancel", nil, &out); err != nil {
		return false, err
	}
	return out.Cancelled, nil
}

// Queue calls GET /api/queue, optionally filtering by work item type.
func (c *Client) Queue(ctx context.Context, typeFilter string) (json.RawMessage, error) {
	path := "/api/queue"
	if typeFilter != "" {
		path += "?type=" + typeFilter
	}
	var out json.RawMessage
	return out, c.do(ctx, http.MethodGet, path, nil, &out)
}

// DeadLetterQueue calls GET /api/queue/dlq, listing failed work items.
func (c *Client) DeadLetterQueue(ctx context.Context) (json.RawMessage, error) {
	var out json.RawMessage
	return out, c.do(ctx, http.MethodGet, "/api/queue/dlq", nil, &out)
}

// Workers calls GET /api/workers.
func (c *Client) Workers(ctx context.Context) (json.RawMessage, error) {
	var out json.RawMessage
	return out, c.do(ctx, http.MethodGet, "/api/workers", nil, &out)
}

// Kill calls POST /api/workers/{id}/kill.
func (c *Client) Kill(ctx context.Context, workerID string) error {
	return c.do(ctx, http.MethodPost, "/api/workers/"+workerID+"/kill", nil, nil)
}

// Metrics calls GET /api/metrics.
func (c *Client) Metrics(ctx context.Context) (json.RawMessage, error) {
	var out json.RawMessage
	return out, c.do(ctx, http.MethodGet, "/api/metrics", nil, &out)
}

// Learnings calls GET /api/learnings, optionally filtered by repo/spec.
func (c *Client) Learnings(ctx context.Context, repo, spec string) (json.RawMessage, error) {
	path := "/api/learnings"
	q := ""
	if repo != "" {
		q += "repo=" + repo
	}
	if spec != "" {
		if q != "" {
			q += "&"
		}
		q += "spec=" + spec
	}
	if q != "" {
		path += "?" + q
	}
	var out json.RawMessage
	return out, c.do(ctx, http.MethodGet, path, nil, &out)
}

// Status calls GET /api/status.
func (c *Client) Status(ctx context.Context) (json.RawMessage, error) {
	var out json.RawMessage
	return out, c.do(ctx, http.MethodGet, "/api/status", nil, &out)
}
