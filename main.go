// agentsh - an interactive command shell for the agent orchestration engine.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/morganforge/agentsh/internal/cli"
	"github.com/morganforge/agentsh/internal/commands"
	"github.com/morganforge/agentsh/internal/config"
	"github.com/morganforge/agentsh/internal/engine"
	"github.com/morganforge/agentsh/internal/history"
	"github.com/morganforge/agentsh/internal/security"
	"github.com/morganforge/agentsh/internal/session"
	"github.com/morganforge/agentsh/internal/shell"
	"github.com/morganforge/agentsh/internal/telemetry"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	args := os.Args[1:]
	if len(args) > 0 {
		switch args[0] {
		case "--version", "-v", "version":
			fmt.Printf("agentsh %s (%s, built %s)\n", Version, GitCommit, BuildDate)
			return
		case "--help", "-h":
			printUsage()
			return
		}
	}

	cfg := config.Global()

	app, cleanup, err := buildApp(cfg)
	if err != nil {
		cli.PrintError("error", err.Error())
		os.Exit(cli.ExitHandler)
	}
	defer cleanup()

	// With arguments, run a single command and exit with its code.
	// Without, drop into the interactive shell when stdin is a terminal.
	if len(args) > 0 {
		os.Exit(runOnce(app, args))
	}
	if !cli.IsTTY() {
		cli.PrintError("error", "no command given and stdin is not a terminal")
		os.Exit(cli.ExitUsage)
	}
	if err := runShell(app); err != nil {
		cli.PrintError("error", err.Error())
		os.Exit(cli.ExitHandler)
	}
}

// =============================================================================
// WIRING
// =============================================================================

// app is everything main needs to run commands in either mode.
type app struct {
	cfg       *config.Config
	executor  *commands.Executor
	registry  *commands.Registry
	catalog   *engine.Catalog
	validator *security.Validator
	hist      *history.Store
	state     *session.State
}

func buildApp(cfg *config.Config) (*app, func(), error) {
	projectRoot := cfg.Security.ProjectRoot
	if projectRoot == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, nil, fmt.Errorf("resolve working directory: %w", err)
		}
		projectRoot = cwd
	}

	opts := []security.Option{security.WithDenyPatterns(cfg.Security.DenyPatterns)}
	if cfg.Security.AllowTemp {
		opts = append(opts, security.WithAllowRoot(os.TempDir()))
	}
	validator, err := security.NewValidator(projectRoot, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("security setup: %w", err)
	}

	client := engine.NewClient(engine.Config{
		BaseURL:       cfg.Engine.URL,
		Timeout:       time.Duration(cfg.Engine.TimeoutSeconds) * time.Second,
		RunsPerMinute: cfg.Engine.RunsPerMinute,
	})

	// The catalog is a startup snapshot; nil means degraded mode.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	catalog, catErr := client.FetchCatalog(ctx)
	cancel()
	if catErr != nil {
		catalog = nil
	}

	dataDir, err := config.Dir()
	if err != nil {
		return nil, nil, fmt.Errorf("resolve data directory: %w", err)
	}

	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	store, err := telemetry.Open(filepath.Join(dataDir, "telemetry.db"))
	if err != nil {
		// Telemetry is best-effort; the shell works without it.
		cli.PrintWarning("telemetry disabled: " + err.Error())
		store = nil
	} else {
		cleanups = append(cleanups, func() { store.Close() })
	}

	hist, err := history.Open(filepath.Join(dataDir, "history.jsonl"), cfg.History.MaxEntries)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("open history: %w", err)
	}

	state := session.New()
	env := &commands.Env{
		Engine:         client,
		Catalog:        catalog,
		Telemetry:      store,
		Validator:      validator,
		SessionID:      state.ID(),
		RenderMarkdown: cli.RenderMarkdown,
	}

	registry := commands.NewRegistry()
	executor := commands.NewExecutor(registry, env, func(raw string, success bool) {
		if err := hist.Append(raw, success); err != nil {
			cli.PrintWarning("history write failed: " + err.Error())
		}
	})

	return &app{
		cfg:       cfg,
		executor:  executor,
		registry:  registry,
		catalog:   catalog,
		validator: validator,
		hist:      hist,
		state:     state,
	}, cleanup, nil
}

// =============================================================================
// MODES
// =============================================================================

// runOnce executes a single command line and returns its exit code.
func runOnce(a *app, args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	result := a.executor.Execute(ctx, commands.JoinTokens(args))
	if result.Recorded {
		a.state.Record(result.Success)
	}
	if result.Success {
		if result.Output != "" {
			fmt.Println(result.Output)
		}
		return cli.ExitSuccess
	}
	if result.Err != nil {
		cli.PrintError(result.Class.DisplayPrefix(), result.Err.Error())
	}
	return result.Class.ExitCode()
}

func runShell(a *app) error {
	completer := commands.NewCompleter(a.registry, a.catalog, a.validator, shell.Builtins)
	return shell.New(shell.Options{
		Executor:  a.executor,
		Completer: completer,
		History:   a.hist,
		State:     a.state,
		Catalog:   a.catalog,
		EngineURL: a.cfg.Engine.URL,
	}).Run()
}

func printUsage() {
	lines := []string{
		"agentsh - agent orchestration shell",
		"",
		"usage:",
		"  agentsh                 start the interactive shell",
		"  agentsh <command...>    run one command and exit",
		"",
		"commands:",
		"  list {agents|workflows}",
		"  run {agent|workflow} <name> [--task <text> | --task-file <path>] [--output <path>] [--json] [--quiet]",
		"  info <name>",
		"  metrics [summary|detail]",
		"",
		"exit codes: 0 ok, 1 command failed, 2 usage error, 3 security violation",
	}
	fmt.Println(strings.Join(lines, "\n"))
}
