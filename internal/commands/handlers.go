// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/morganforge/agentsh/internal/cli"
	"github.com/morganforge/agentsh/internal/engine"
	"github.com/morganforge/agentsh/internal/telemetry"
	"github.com/morganforge/agentsh/internal/util"
)

// maxTaskFileSize bounds --task-file reads.
const maxTaskFileSize = 1 << 20 // 1 MiB

// =============================================================================
// LIST
// =============================================================================

func handleListAgents(ctx context.Context, env *Env, inv *Invocation) (string, error) {
	agents, err := env.agents(ctx)
	if err != nil {
		return "", err
	}

	if inv.Bools["json"] {
		return cli.NewJSONResponse(inv.CommandLine(), agents).String(), nil
	}
	if len(agents) == 0 {
		return cli.DimStyle.Render("no agents available"), nil
	}

	var b strings.Builder
	b.WriteString(cli.TitleStyle.Render("Agents") + "\n")
	nameWidth := maxNameWidth(len(agents), func(i int) string { return agents[i].Name })
	for _, a := range agents {
		b.WriteString("  " + util.PadRight(a.Name, nameWidth) + "  " + cli.DimStyle.Render(a.Description) + "\n")
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func handleListWorkflows(ctx context.Context, env *Env, inv *Invocation) (string, error) {
	workflows, err := env.workflows(ctx)
	if err != nil {
		return "", err
	}

	if inv.Bools["json"] {
		return cli.NewJSONResponse(inv.CommandLine(), workflows).String(), nil
	}
	if len(workflows) == 0 {
		return cli.DimStyle.Render("no workflows available"), nil
	}

	var b strings.Builder
	b.WriteString(cli.TitleStyle.Render("Workflows") + "\n")
	nameWidth := maxNameWidth(len(workflows), func(i int) string { return workflows[i].Name })
	for _, w := range workflows {
		desc := w.Description
		if len(w.Steps) > 0 {
			desc = fmt.Sprintf("%s (%d steps)", desc, len(w.Steps))
		}
		b.WriteString("  " + util.PadRight(w.Name, nameWidth) + "  " + cli.DimStyle.Render(desc) + "\n")
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// =============================================================================
// RUN
// =============================================================================

func handleRunAgent(ctx context.Context, env *Env, inv *Invocation) (string, error) {
	return runEntity(ctx, env, inv, engine.KindAgent)
}

func handleRunWorkflow(ctx context.Context, env *Env, inv *Invocation) (string, error) {
	return runEntity(ctx, env, inv, engine.KindWorkflow)
}

func runEntity(ctx context.Context, env *Env, inv *Invocation, kind engine.EntityKind) (string, error) {
	name := inv.Args["name"]

	task, err := resolveTask(env, inv)
	if err != nil {
		return "", err
	}

	// Catch unknown names locally when a catalog is available; the engine
	// would reject them anyway, this just gives a faster, friendlier error.
	if env.Catalog != nil {
		if foundKind, ok := env.Catalog.Lookup(name); !ok || foundKind != kind {
			return "", fmt.Errorf("unknown %s %q, try `list %ss`", kind, name, kind)
		}
	}

	start := time.Now()
	var run *engine.RunResult
	if kind == engine.KindAgent {
		run, err = env.Engine.RunAgent(ctx, name, task)
	} else {
		run, err = env.Engine.RunWorkflow(ctx, name, task)
	}
	elapsed := time.Since(start)

	recordRun := func(success bool, tokens int) {
		// Telemetry failure must not fail the command; drop the record.
		_ = env.Telemetry.RecordRun(context.WithoutCancel(ctx), telemetry.RunRecord{
			SessionID: env.SessionID,
			Kind:      string(kind),
			Name:      name,
			Success:   success,
			Duration:  elapsed,
			Tokens:    tokens,
		})
	}

	if err != nil {
		recordRun(false, 0)
		return "", err
	}
	if !run.Success {
		recordRun(false, run.TokensUsed)
		msg := run.Error
		if msg == "" {
			msg = "run failed"
		}
		return "", fmt.Errorf("%s %s: %s", kind, name, msg)
	}
	recordRun(true, run.TokensUsed)

	if resolved, ok := inv.ResolvedPaths["output"]; ok {
		if err := util.AtomicWriteFile(resolved, []byte(run.Output), 0644); err != nil {
			return "", fmt.Errorf("run succeeded but writing output failed: %w", err)
		}
	}

	switch {
	case inv.Bools["json"]:
		return cli.NewJSONResponse(inv.CommandLine(), run).String(), nil
	case inv.Bools["quiet"]:
		return run.Output, nil
	default:
		var b strings.Builder
		b.WriteString(cli.SuccessStyle.Render("ok") + " " +
			fmt.Sprintf("%s %s finished in %s", kind, name, elapsed.Round(time.Millisecond)))
		if run.TokensUsed > 0 {
			b.WriteString(cli.DimStyle.Render(fmt.Sprintf(" (%d tokens)", run.TokensUsed)))
		}
		if run.Output != "" {
			b.WriteString("\n" + run.Output)
		}
		return b.String(), nil
	}
}

// resolveTask extracts the task text from --task or --task-file. Exactly
// one of the two must be present.
func resolveTask(env *Env, inv *Invocation) (string, error) {
	if task, ok := inv.Flags["task"]; ok {
		return task, nil
	}

	if _, ok := inv.Flags["task-file"]; ok {
		resolved, ok := inv.ResolvedPaths["task-file"]
		if !ok {
			// Executor validation was skipped; never read an unvalidated path.
			return "", fmt.Errorf("task file was not validated")
		}
		f, err := env.Validator.OpenSecure(resolved)
		if err != nil {
			return "", err
		}
		defer f.Close()

		data, err := io.ReadAll(io.LimitReader(f, maxTaskFileSize+1))
		if err != nil {
			return "", fmt.Errorf("failed to read task file: %w", err)
		}
		if len(data) > maxTaskFileSize {
			return "", fmt.Errorf("task file exceeds %d bytes", maxTaskFileSize)
		}
		task := strings.TrimSpace(string(data))
		if task == "" {
			return "", fmt.Errorf("task file is empty")
		}
		return task, nil
	}

	return "", &GrammarError{
		Command: inv.CommandLine(),
		Message: "one of --task or --task-file is required",
	}
}

// =============================================================================
// INFO
// =============================================================================

func handleInfo(ctx context.Context, env *Env, inv *Invocation) (string, error) {
	name := inv.Args["name"]

	kind := engine.KindAgent
	if env.Catalog != nil {
		if k, ok := env.Catalog.Lookup(name); ok {
			kind = k
		}
	}

	// Agents shadow workflows on a name collision; on a miss, fall through
	// to the other kind before giving up.
	if kind == engine.KindAgent {
		if agent, err := env.Engine.GetAgent(ctx, name); err == nil {
			return renderAgentInfo(env, inv, agent), nil
		} else if !isNotFound(err) {
			return "", err
		}
	}
	if workflow, err := env.Engine.GetWorkflow(ctx, name); err == nil {
		return renderWorkflowInfo(env, inv, workflow), nil
	} else if !isNotFound(err) {
		return "", err
	}

	return "", fmt.Errorf("no agent or workflow named %q, try `list agents` or `list workflows`", name)
}

func isNotFound(err error) bool {
	var clientErr *engine.ClientError
	return errors.As(err, &clientErr) && clientErr.Type == engine.ErrTypeNotFound
}

func renderAgentInfo(env *Env, inv *Invocation, agent *engine.AgentInfo) string {
	if inv.Bools["json"] {
		return cli.NewJSONResponse(inv.CommandLine(), agent).String()
	}

	var b strings.Builder
	b.WriteString(cli.TitleStyle.Render(agent.Name) + " " + cli.DimStyle.Render("(agent)") + "\n")
	if agent.Model != "" {
		b.WriteString(cli.LabelStyle.Render("model: ") + agent.Model + "\n")
	}
	if len(agent.Tags) > 0 {
		b.WriteString(cli.LabelStyle.Render("tags:  ") + strings.Join(agent.Tags, ", ") + "\n")
	}
	if agent.Description != "" {
		b.WriteString(env.renderMarkdown(agent.Description))
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderWorkflowInfo(env *Env, inv *Invocation, workflow *engine.WorkflowInfo) string {
	if inv.Bools["json"] {
		return cli.NewJSONResponse(inv.CommandLine(), workflow).String()
	}

	var b strings.Builder
	b.WriteString(cli.TitleStyle.Render(workflow.Name) + " " + cli.DimStyle.Render("(workflow)") + "\n")
	if len(workflow.Tags) > 0 {
		b.WriteString(cli.LabelStyle.Render("tags: ") + strings.Join(workflow.Tags, ", ") + "\n")
	}
	if len(workflow.Steps) > 0 {
		b.WriteString(cli.LabelStyle.Render("steps:") + "\n")
		for i, step := range workflow.Steps {
			b.WriteString(fmt.Sprintf("  %d. %s\n", i+1, step))
		}
	}
	if workflow.Description != "" {
		b.WriteString(env.renderMarkdown(workflow.Description))
	}
	return strings.TrimRight(b.String(), "\n")
}

// =============================================================================
// METRICS
// =============================================================================

func handleMetrics(ctx context.Context, env *Env, inv *Invocation) (string, error) {
	scope := inv.Args["scope"]
	if scope == "" {
		scope = "summary"
	}
	detail := scope == "detail"

	local, err := env.Telemetry.Summarize(ctx, detail)
	if err != nil {
		return "", err
	}

	// The engine being down degrades metrics to the local view rather
	// than failing the command.
	engineMetrics, engineErr := env.Engine.GetMetrics(ctx)
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	if inv.Bools["json"] {
		payload := map[string]any{"local": local}
		if engineErr == nil {
			payload["engine"] = engineMetrics
		} else {
			payload["engine_error"] = engineErr.Error()
		}
		return cli.NewJSONResponse(inv.CommandLine(), payload).String(), nil
	}

	var b strings.Builder
	b.WriteString(cli.TitleStyle.Render("Metrics") + "\n")

	b.WriteString(cli.LabelStyle.Render("engine:") + "\n")
	if engineErr != nil {
		b.WriteString("  " + cli.WarningStyle.Render("unavailable: "+engineErr.Error()) + "\n")
	} else {
		b.WriteString(fmt.Sprintf("  runs: %d total, %d ok, %d failed, %d active\n",
			engineMetrics.TotalRuns, engineMetrics.SuccessfulRuns,
			engineMetrics.FailedRuns, engineMetrics.ActiveRuns))
		b.WriteString(fmt.Sprintf("  uptime: %s\n",
			(time.Duration(engineMetrics.UptimeSeconds) * time.Second).String()))
	}

	b.WriteString(cli.LabelStyle.Render("local:") + "\n")
	b.WriteString(fmt.Sprintf("  runs: %d total, %d ok, %d failed",
		local.TotalRuns, local.Successful, local.Failed))
	if local.TotalTokens > 0 {
		b.WriteString(fmt.Sprintf(", %d tokens", local.TotalTokens))
	}
	b.WriteString("\n")

	if detail && len(local.ByEntity) > 0 {
		nameWidth := maxNameWidth(len(local.ByEntity), func(i int) string { return local.ByEntity[i].Name })
		for _, st := range local.ByEntity {
			b.WriteString(fmt.Sprintf("  %s  %s %3d runs, %d failed, avg %dms\n",
				util.PadRight(st.Name, nameWidth), cli.DimStyle.Render(st.Kind),
				st.Runs, st.Failures, st.AvgDurationMs))
		}
	}

	return strings.TrimRight(b.String(), "\n"), nil
}

// =============================================================================
// SHARED HELPERS
// =============================================================================

// agents returns the session catalog's agents, falling back to a live
// query when no snapshot exists (non-interactive mode).
func (env *Env) agents(ctx context.Context) ([]engine.AgentInfo, error) {
	if env.Catalog != nil {
		return env.Catalog.Agents, nil
	}
	return env.Engine.ListAgents(ctx)
}

func (env *Env) workflows(ctx context.Context) ([]engine.WorkflowInfo, error) {
	if env.Catalog != nil {
		return env.Catalog.Workflows, nil
	}
	return env.Engine.ListWorkflows(ctx)
}

func maxNameWidth(n int, name func(int) string) int {
	width := 0
	for i := 0; i < n; i++ {
		if w := util.StringWidth(name(i)); w > width {
			width = w
		}
	}
	return width
}
