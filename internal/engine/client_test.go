// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL})
}

func TestListAgents(t *testing.T) {
	client := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/agents", r.URL.Path)
		json.NewEncoder(w).Encode(listAgentsResponse{Agents: []AgentInfo{
			{Name: "summarizer", Description: "Summarizes documents"},
			{Name: "reviewer", Description: "Reviews code", Model: "large"},
		}})
	})

	agents, err := client.ListAgents(context.Background())
	require.NoError(t, err)
	require.Len(t, agents, 2)
	assert.Equal(t, "summarizer", agents[0].Name)
	assert.Equal(t, "large", agents[1].Model)
}

func TestGetAgent_NotFound(t *testing.T) {
	client := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(errorResponse{Error: "no such agent"})
	})

	_, err := client.GetAgent(context.Background(), "ghost")
	require.Error(t, err)

	var clientErr *ClientError
	require.ErrorAs(t, err, &clientErr)
	assert.Equal(t, ErrTypeNotFound, clientErr.Type)
	assert.Contains(t, clientErr.Message, "no such agent")
}

func TestRunAgent(t *testing.T) {
	client := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/agents/summarizer/run", r.URL.Path)

		var req RunRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.NotEmpty(t, req.RequestID)
		assert.Equal(t, "summarize this", req.Task)

		json.NewEncoder(w).Encode(RunResult{
			RunID: "run-1", Success: true, Output: "done", DurationMs: 42,
		})
	})

	result, err := client.RunAgent(context.Background(), "summarizer", "summarize this")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "done", result.Output)
}

func TestRunAgent_EngineError(t *testing.T) {
	client := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(errorResponse{Error: "model backend crashed"})
	})

	_, err := client.RunAgent(context.Background(), "summarizer", "task")
	var clientErr *ClientError
	require.ErrorAs(t, err, &clientErr)
	assert.Equal(t, ErrTypeEngine, clientErr.Type)
}

func TestRunAgent_Cancelled(t *testing.T) {
	started := make(chan struct{})
	client := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		close(started)
		time.Sleep(2 * time.Second)
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	_, err := client.RunAgent(ctx, "summarizer", "task")
	require.ErrorIs(t, err, context.Canceled)
}

func TestRunAgent_RateLimited(t *testing.T) {
	client := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(RunResult{Success: true})
	})
	// Exhaust the burst allowance.
	client.limiter.AllowN(time.Now(), client.limiter.Burst())

	_, err := client.RunAgent(context.Background(), "a", "t")
	var clientErr *ClientError
	require.ErrorAs(t, err, &clientErr)
	assert.Equal(t, ErrTypeRateLimited, clientErr.Type)
}

func TestFetchCatalog(t *testing.T) {
	client := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/agents":
			json.NewEncoder(w).Encode(listAgentsResponse{Agents: []AgentInfo{{Name: "summarizer"}}})
		case "/api/workflows":
			json.NewEncoder(w).Encode(listWorkflowsResponse{Workflows: []WorkflowInfo{{Name: "release"}}})
		default:
			http.NotFound(w, r)
		}
	})

	catalog, err := client.FetchCatalog(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"summarizer"}, catalog.AgentNames())
	assert.Equal(t, []string{"release"}, catalog.WorkflowNames())

	kind, ok := catalog.Lookup("release")
	require.True(t, ok)
	assert.Equal(t, KindWorkflow, kind)

	_, ok = catalog.Lookup("ghost")
	assert.False(t, ok)
}

func TestFetchCatalog_Unreachable(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://127.0.0.1:1", Timeout: 200 * time.Millisecond})

	_, err := client.FetchCatalog(context.Background())
	require.Error(t, err)

	var clientErr *ClientError
	require.ErrorAs(t, err, &clientErr)
	assert.Equal(t, ErrTypeConnection, clientErr.Type)
}

func TestGetMetrics(t *testing.T) {
	client := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/metrics", r.URL.Path)
		json.NewEncoder(w).Encode(Metrics{TotalRuns: 10, SuccessfulRuns: 8, FailedRuns: 2})
	})

	m, err := client.GetMetrics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(10), m.TotalRuns)
}
