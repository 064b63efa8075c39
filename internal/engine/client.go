// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ErrorType classifies client failures.
type ErrorType string

const (
	ErrTypeConnection      ErrorType = "connection"
	ErrTypeTimeout         ErrorType = "timeout"
	ErrTypeNotFound        ErrorType = "not_found"
	ErrTypeEngine          ErrorType = "engine"
	ErrTypeInvalidResponse ErrorType = "invalid_response"
	ErrTypeRateLimited     ErrorType = "rate_limited"
)

// ClientError is a structured engine client error.
type ClientError struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// Sentinel errors for common conditions.
var (
	ErrUnreachable = &ClientError{Type: ErrTypeConnection, Message: "engine is not reachable"}
	ErrTimeout     = &ClientError{Type: ErrTypeTimeout, Message: "request to engine timed out"}
)

// =============================================================================
// CLIENT
// =============================================================================

// Config holds client settings. Zero values are filled with defaults.
type Config struct {
	// BaseURL of the engine, e.g. "http://127.0.0.1:7700".
	BaseURL string
	// Timeout for catalog and metrics requests.
	Timeout time.Duration
	// RunTimeout for run submissions, which can be long.
	RunTimeout time.Duration
	// RunsPerMinute caps run submissions. Zero means the default.
	RunsPerMinute int
}

// Client talks to the orchestration engine over HTTP.
type Client struct {
	config     Config
	httpClient *http.Client
	runClient  *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a Client, filling defaults for zero config values.
func NewClient(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = "http://127.0.0.1:7700"
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.RunTimeout == 0 {
		config.RunTimeout = 10 * time.Minute
	}
	if config.RunsPerMinute == 0 {
		config.RunsPerMinute = 30
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		runClient:  &http.Client{Timeout: config.RunTimeout},
		limiter:    rate.NewLimiter(rate.Limit(float64(config.RunsPerMinute)/60.0), config.RunsPerMinute),
	}
}

// BaseURL returns the configured engine URL.
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// Ping verifies the engine is reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/api/health", nil)
	if err != nil {
		return &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrTimeout
		}
		return ErrUnreachable
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &ClientError{Type: ErrTypeConnection, Message: "unexpected status from engine: " + resp.Status}
	}
	return nil
}

// =============================================================================
// CATALOG OPERATIONS
// =============================================================================

// ListAgents retrieves all agents published by the engine.
func (c *Client) ListAgents(ctx context.Context) ([]AgentInfo, error) {
	var result listAgentsResponse
	if err := c.getJSON(ctx, "/api/agents", &result); err != nil {
		return nil, err
	}
	return result.Agents, nil
}

// ListWorkflows retrieves all workflows published by the engine.
func (c *Client) ListWorkflows(ctx context.Context) ([]WorkflowInfo, error) {
	var result listWorkflowsResponse
	if err := c.getJSON(ctx, "/api/workflows", &result); err != nil {
		return nil, err
	}
	return result.Workflows, nil
}

// GetAgent retrieves the detail record for one agent.
func (c *Client) GetAgent(ctx context.Context, name string) (*AgentInfo, error) {
	var result AgentInfo
	if err := c.getJSON(ctx, "/api/agents/"+url.PathEscape(name), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetWorkflow retrieves the detail record for one workflow.
func (c *Client) GetWorkflow(ctx context.Context, name string) (*WorkflowInfo, error) {
	var result WorkflowInfo
	if err := c.getJSON(ctx, "/api/workflows/"+url.PathEscape(name), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// FetchCatalog bundles both lists into the per-session snapshot. A partial
// failure fails the whole fetch; callers fall back to an empty catalog.
func (c *Client) FetchCatalog(ctx context.Context) (*Catalog, error) {
	agents, err := c.ListAgents(ctx)
	if err != nil {
		return nil, err
	}
	workflows, err := c.ListWorkflows(ctx)
	if err != nil {
		return nil, err
	}
	return &Catalog{Agents: agents, Workflows: workflows, FetchedAt: time.Now()}, nil
}

// =============================================================================
// RUN OPERATIONS
// =============================================================================

// RunAgent submits a task to an agent and waits for the result.
func (c *Client) RunAgent(ctx context.Context, name, task string) (*RunResult, error) {
	return c.submitRun(ctx, "/api/agents/"+url.PathEscape(name)+"/run", task)
}

// RunWorkflow submits a task to a workflow and waits for the result.
func (c *Client) RunWorkflow(ctx context.Context, name, task string) (*RunResult, error) {
	return c.submitRun(ctx, "/api/workflows/"+url.PathEscape(name)+"/run", task)
}

func (c *Client) submitRun(ctx context.Context, path, task string) (*RunResult, error) {
	// Rate-limit submissions without blocking: a shell user should get an
	// immediate error rather than a silent wait.
	if !c.limiter.Allow() {
		return nil, &ClientError{Type: ErrTypeRateLimited, Message: "too many run submissions, slow down"}
	}

	body, err := json.Marshal(RunRequest{
		RequestID: uuid.New().String(),
		Task:      task,
	})
	if err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to marshal request", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.runClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			// Cancellation surfaces as the context error so the executor
			// can classify it, not as a connection failure.
			return nil, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, ErrUnreachable
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var result RunResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to decode run result", Cause: err}
	}
	return &result, nil
}

// =============================================================================
// METRICS
// =============================================================================

// GetMetrics retrieves the engine's counter snapshot.
func (c *Client) GetMetrics(ctx context.Context) (*Metrics, error) {
	var result Metrics
	if err := c.getJSON(ctx, "/api/metrics", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// =============================================================================
// INTERNALS
// =============================================================================

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+path, nil)
	if err != nil {
		return &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrTimeout
		}
		return ErrUnreachable
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to decode response", Cause: err}
	}
	return nil
}

// checkStatus converts non-2xx responses into typed errors, surfacing the
// engine's own error message when it sends one.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	msg := resp.Status
	var body errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error != "" {
		msg = body.Error
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return &ClientError{Type: ErrTypeNotFound, Message: msg}
	case resp.StatusCode == http.StatusTooManyRequests:
		return &ClientError{Type: ErrTypeRateLimited, Message: msg}
	case resp.StatusCode >= 500:
		return &ClientError{Type: ErrTypeEngine, Message: msg}
	default:
		return &ClientError{Type: ErrTypeInvalidResponse, Message: msg}
	}
}
