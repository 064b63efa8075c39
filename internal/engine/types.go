// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package engine is the HTTP client for the agent-orchestration engine.
// It exposes the catalog (agents and workflows), run submission, and the
// engine's metrics endpoint.
package engine

import "time"

// =============================================================================
// CATALOG TYPES
// =============================================================================

// AgentInfo describes one agent published by the engine.
type AgentInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Model       string   `json:"model,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// WorkflowInfo describes one workflow published by the engine.
type WorkflowInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Steps       []string `json:"steps,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// EntityKind distinguishes catalog entries.
type EntityKind string

const (
	KindAgent    EntityKind = "agent"
	KindWorkflow EntityKind = "workflow"
)

// Catalog is the per-session snapshot of everything the engine can run.
// It is fetched once at session start and shared by the completer and the
// command handlers.
type Catalog struct {
	Agents    []AgentInfo
	Workflows []WorkflowInfo
	FetchedAt time.Time
}

// AgentNames returns the agent names in catalog order.
func (c *Catalog) AgentNames() []string {
	names := make([]string, len(c.Agents))
	for i, a := range c.Agents {
		names[i] = a.Name
	}
	return names
}

// WorkflowNames returns the workflow names in catalog order.
func (c *Catalog) WorkflowNames() []string {
	names := make([]string, len(c.Workflows))
	for i, w := range c.Workflows {
		names[i] = w.Name
	}
	return names
}

// Lookup finds a catalog entry by name. Agents shadow workflows when both
// share a name.
func (c *Catalog) Lookup(name string) (EntityKind, bool) {
	for _, a := range c.Agents {
		if a.Name == name {
			return KindAgent, true
		}
	}
	for _, w := range c.Workflows {
		if w.Name == name {
			return KindWorkflow, true
		}
	}
	return "", false
}

// =============================================================================
// RUN TYPES
// =============================================================================

// RunRequest is the body posted to the run endpoints.
type RunRequest struct {
	RequestID string `json:"request_id"`
	Task      string `json:"task"`
}

// RunResult is the engine's response to a completed run.
type RunResult struct {
	RunID      string `json:"run_id"`
	Success    bool   `json:"success"`
	Output     string `json:"output"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
	TokensUsed int    `json:"tokens_used,omitempty"`
}

// =============================================================================
// METRICS TYPES
// =============================================================================

// Metrics is the engine-side counter snapshot.
type Metrics struct {
	TotalRuns      int64            `json:"total_runs"`
	SuccessfulRuns int64            `json:"successful_runs"`
	FailedRuns     int64            `json:"failed_runs"`
	ActiveRuns     int64            `json:"active_runs"`
	UptimeSeconds  int64            `json:"uptime_seconds"`
	RunsByEntity   map[string]int64 `json:"runs_by_entity,omitempty"`
}

type listAgentsResponse struct {
	Agents []AgentInfo `json:"agents"`
}

type listWorkflowsResponse struct {
	Workflows []WorkflowInfo `json:"workflows"`
}

type errorResponse struct {
	Error string `json:"error"`
}
