// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package shell runs the interactive REPL: a liner-backed prompt with tab
// completion, built-in commands, interrupt handling, and an exit summary.
package shell

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/peterh/liner"

	"github.com/morganforge/agentsh/internal/cli"
	"github.com/morganforge/agentsh/internal/commands"
	"github.com/morganforge/agentsh/internal/engine"
	"github.com/morganforge/agentsh/internal/history"
	"github.com/morganforge/agentsh/internal/session"
	"github.com/morganforge/agentsh/internal/util"
)

// Builtins are handled by the shell itself, outside the command grammar.
var Builtins = []string{"help", "exit", "quit", "clear", "history"}

// Options wires a Shell.
type Options struct {
	Executor  *commands.Executor
	Completer *commands.Completer
	History   *history.Store
	State     *session.State
	Catalog   *engine.Catalog
	EngineURL string
}

// cancelGrace bounds how long the shell waits for an interrupted handler
// to unwind before giving up on it and re-prompting.
const cancelGrace = 2 * time.Second

// Shell is the interactive session loop.
type Shell struct {
	executor  *commands.Executor
	completer *commands.Completer
	history   *history.Store
	state     *session.State
	catalog   *engine.Catalog
	engineURL string
	grace     time.Duration
}

// New creates a Shell.
func New(opts Options) *Shell {
	return &Shell{
		executor:  opts.Executor,
		completer: opts.Completer,
		history:   opts.History,
		state:     opts.State,
		catalog:   opts.Catalog,
		engineURL: opts.EngineURL,
		grace:     cancelGrace,
	}
}

// Run drives the REPL until exit/quit or Ctrl+D. The loop is: read a
// line (Ctrl+C aborts the line and re-prompts), dispatch built-ins, and
// execute grammar commands with an interrupt-cancellable context.
func (s *Shell) Run() error {
	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)
	line.SetWordCompleter(s.completer.Complete)
	line.SetTabCompletionStyle(liner.TabCircular)

	// Seed arrow-key recall from the persistent history.
	for _, cmd := range s.history.Commands() {
		line.AppendHistory(cmd)
	}

	s.printWelcome()
	prompt := cli.PromptStyle.Render("agentsh> ")

	for {
		s.state.SetPhase(session.PhaseReading)
		input, err := line.Prompt(prompt)
		s.state.SetPhase(session.PhaseIdle)

		if err == liner.ErrPromptAborted {
			fmt.Println(cli.DimStyle.Render("^C"))
			continue
		}
		if err == io.EOF {
			fmt.Println()
			break
		}
		if err != nil {
			return fmt.Errorf("read error: %w", err)
		}

		trimmed := strings.TrimSpace(input)
		if trimmed == "" {
			continue
		}
		line.AppendHistory(trimmed)

		handled, exit := s.dispatchBuiltin(trimmed)
		if exit {
			break
		}
		if handled {
			continue
		}

		result := s.executeInterruptible(trimmed)
		if result.Recorded {
			s.state.Record(result.Success)
		}
		s.display(result)
	}

	s.printExitSummary()
	return nil
}

// executeInterruptible runs one grammar command. SIGINT while executing
// cancels the command's context instead of killing the shell. A handler
// that ignores cancellation is abandoned after a grace period so the
// prompt comes back.
func (s *Shell) executeInterruptible(input string) commands.Result {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-done:
		}
	}()

	s.state.SetPhase(session.PhaseExecuting)
	defer s.state.SetPhase(session.PhaseIdle)

	resultCh := make(chan commands.Result, 1)
	go func() { resultCh <- s.executor.Execute(ctx, input) }()

	result, ok := awaitResult(ctx, s.grace, resultCh)
	if !ok {
		return abandonedResult(input)
	}
	return result
}

// awaitResult delivers the executor's result. Once ctx is cancelled the
// remaining wait is bounded by grace; false means the handler never came
// back and was abandoned.
func awaitResult(ctx context.Context, grace time.Duration, resultCh <-chan commands.Result) (commands.Result, bool) {
	select {
	case r := <-resultCh:
		return r, true
	case <-ctx.Done():
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case r := <-resultCh:
		return r, true
	case <-timer.C:
		return commands.Result{}, false
	}
}

// abandonedResult is the failed, cancelled outcome for a handler that
// outlived the grace period. Recorded is set so the session counts it;
// the executor appends the history entry itself if the handler ever
// finishes unwinding.
func abandonedResult(input string) commands.Result {
	cmd := input
	if fields := strings.Fields(input); len(fields) > 0 {
		cmd = fields[0]
	}
	return commands.Result{
		Class:    commands.ClassCancelled,
		Err:      &commands.CancelledError{Command: cmd},
		Recorded: true,
	}
}

func (s *Shell) display(result commands.Result) {
	if result.Success {
		if result.Output != "" {
			fmt.Println(result.Output)
		}
		return
	}
	if result.Err == nil {
		return
	}
	cli.PrintError(result.Class.DisplayPrefix(), result.Err.Error())
}

// =============================================================================
// BUILT-INS
// =============================================================================

// dispatchBuiltin handles shell built-ins. Returns (handled, exit).
func (s *Shell) dispatchBuiltin(input string) (bool, bool) {
	fields := strings.Fields(input)
	switch fields[0] {
	case "exit", "quit":
		return true, true
	case "clear":
		// ANSI clear screen and home cursor.
		fmt.Print("\033[2J\033[H")
		return true, false
	case "help":
		topic := ""
		if len(fields) > 1 {
			topic = fields[1]
		}
		s.printHelp(topic)
		return true, false
	case "history":
		n := 20
		if len(fields) > 1 {
			if parsed, err := strconv.Atoi(fields[1]); err == nil && parsed > 0 {
				n = parsed
			}
		}
		s.printHistory(n)
		return true, false
	default:
		return false, false
	}
}

func (s *Shell) printWelcome() {
	fmt.Println(cli.TitleStyle.Render("agentsh") + cli.DimStyle.Render(" - agent orchestration shell"))
	fmt.Println(cli.LabelStyle.Render("engine: ") + s.engineURL)
	if s.catalog == nil {
		fmt.Println(cli.WarningStyle.Render("engine unreachable; catalog empty, run commands will fail"))
	} else {
		fmt.Println(cli.LabelStyle.Render("catalog: ") + fmt.Sprintf("%d agents, %d workflows",
			len(s.catalog.Agents), len(s.catalog.Workflows)))
	}
	fmt.Println(cli.DimStyle.Render("type 'help' for commands, tab to complete, 'exit' to leave"))
	fmt.Println()
}

func (s *Shell) printHelp(topic string) {
	registry := s.executor.Registry()

	if topic != "" {
		spec, ok := registry.Get(topic)
		if !ok {
			cli.PrintError("help", "unknown command "+strconv.Quote(topic))
			return
		}
		s.printCommandHelp(spec)
		return
	}

	fmt.Println(cli.TitleStyle.Render("Commands"))
	for _, spec := range registry.Specs() {
		fmt.Println("  " + util.PadRight(spec.Usage, 44) + " " + cli.DimStyle.Render(spec.Description))
	}
	fmt.Println(cli.TitleStyle.Render("Shell"))
	fmt.Println("  " + util.PadRight("help [command]", 44) + " " + cli.DimStyle.Render("Show this help, or one command in detail"))
	fmt.Println("  " + util.PadRight("history [n]", 44) + " " + cli.DimStyle.Render("Show recent commands"))
	fmt.Println("  " + util.PadRight("clear", 44) + " " + cli.DimStyle.Render("Clear the screen"))
	fmt.Println("  " + util.PadRight("exit | quit", 44) + " " + cli.DimStyle.Render("Leave the shell"))
}

func (s *Shell) printCommandHelp(spec *commands.Spec) {
	fmt.Println(cli.TitleStyle.Render(spec.Name) + " - " + spec.Description)
	fmt.Println(cli.LabelStyle.Render("usage: ") + spec.Usage)
	if len(spec.Subcommands) > 0 {
		fmt.Println(cli.LabelStyle.Render("subcommands:"))
		for _, sub := range spec.Subcommands {
			fmt.Println("  " + util.PadRight(sub.Name, 12) + " " + cli.DimStyle.Render(sub.Description))
			for _, flag := range sub.Flags {
				fmt.Println("    " + util.PadRight("--"+flag.Name, 14) + " " + cli.DimStyle.Render(flag.Description))
			}
		}
		return
	}
	for _, arg := range spec.Args {
		fmt.Println("  " + util.PadRight("<"+arg.Name+">", 14) + " " + cli.DimStyle.Render(arg.Description))
	}
	for _, flag := range spec.Flags {
		fmt.Println("  " + util.PadRight("--"+flag.Name, 14) + " " + cli.DimStyle.Render(flag.Description))
	}
}

func (s *Shell) printHistory(n int) {
	entries := s.history.Entries(n)
	if len(entries) == 0 {
		fmt.Println(cli.DimStyle.Render("history is empty"))
		return
	}

	width := cli.GetTerminalWidth() - 12
	for _, e := range entries {
		marker := cli.SuccessStyle.Render("ok  ")
		if !e.Success {
			marker = cli.ErrorStyle.Render("fail")
		}
		fmt.Printf("  %s %s %s\n",
			cli.DimStyle.Render(e.Timestamp.Format("15:04:05")),
			marker,
			util.TruncateWidth(e.Command, width))
	}
}

func (s *Shell) printExitSummary() {
	st := s.state.Snapshot()
	fmt.Println()
	fmt.Println(cli.TitleStyle.Render("session summary"))
	fmt.Println(cli.LabelStyle.Render("duration: ") + session.FormatDuration(st.Duration))
	fmt.Println(cli.LabelStyle.Render("commands: ") + fmt.Sprintf("%d (%d ok, %d failed)",
		st.Commands, st.Successes, st.Failures))
	if st.Commands > 0 {
		fmt.Println(cli.LabelStyle.Render("success:  ") + fmt.Sprintf("%.0f%%", st.SuccessRate()*100))
	}
}
