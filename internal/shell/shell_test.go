// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package shell

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/morganforge/agentsh/internal/commands"
	"github.com/morganforge/agentsh/internal/history"
	"github.com/morganforge/agentsh/internal/session"
)

func newTestShell(t *testing.T) *Shell {
	t.Helper()

	hist, err := history.Open(filepath.Join(t.TempDir(), "history.jsonl"), 100)
	if err != nil {
		t.Fatalf("open history: %v", err)
	}

	registry := commands.NewRegistry()
	executor := commands.NewExecutor(registry, &commands.Env{}, nil)

	return New(Options{
		Executor:  executor,
		Completer: commands.NewCompleter(registry, nil, nil, Builtins),
		History:   hist,
		State:     session.New(),
		EngineURL: "http://127.0.0.1:7700",
	})
}

func TestDispatchBuiltin(t *testing.T) {
	s := newTestShell(t)

	tests := []struct {
		input       string
		wantHandled bool
		wantExit    bool
	}{
		{"exit", true, true},
		{"quit", true, true},
		{"clear", true, false},
		{"help", true, false},
		{"help run", true, false},
		{"history", true, false},
		{"history 5", true, false},
		{"history nonsense", true, false},
		// Grammar commands pass through to the executor.
		{"list agents", false, false},
		{"run agent summarizer", false, false},
		{"helpme", false, false},
	}

	for _, tt := range tests {
		handled, exit := s.dispatchBuiltin(tt.input)
		if handled != tt.wantHandled || exit != tt.wantExit {
			t.Errorf("dispatchBuiltin(%q) = (%v, %v), want (%v, %v)",
				tt.input, handled, exit, tt.wantHandled, tt.wantExit)
		}
	}
}

func TestAwaitResult_DeliversBeforeCancel(t *testing.T) {
	resultCh := make(chan commands.Result, 1)
	resultCh <- commands.Result{Success: true, Output: "ok"}

	result, ok := awaitResult(context.Background(), time.Second, resultCh)
	if !ok || !result.Success {
		t.Errorf("awaitResult = (%+v, %v), want delivered success", result, ok)
	}
}

func TestAwaitResult_GraceAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Handler unwinds within the grace period: its result still arrives.
	resultCh := make(chan commands.Result, 1)
	go func() {
		time.Sleep(10 * time.Millisecond)
		resultCh <- commands.Result{Class: commands.ClassCancelled}
	}()
	result, ok := awaitResult(ctx, time.Second, resultCh)
	if !ok || result.Class != commands.ClassCancelled {
		t.Errorf("awaitResult = (%+v, %v), want late cancelled result", result, ok)
	}

	// Handler ignores cancellation: the wait is bounded by the grace
	// period instead of hanging.
	start := time.Now()
	_, ok = awaitResult(ctx, 20*time.Millisecond, make(chan commands.Result))
	if ok {
		t.Error("awaitResult reported a result from a hung handler")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("wait not bounded: %s", elapsed)
	}
}

func TestAbandonedResult(t *testing.T) {
	result := abandonedResult("run agent summarizer --task slow")
	if result.Success {
		t.Error("abandoned result reports success")
	}
	if result.Class != commands.ClassCancelled {
		t.Errorf("Class = %v, want cancelled", result.Class)
	}
	if result.Err == nil || result.Err.Error() != "run: cancelled" {
		t.Errorf("Err = %v", result.Err)
	}
	if !result.Recorded {
		t.Error("abandoned result not counted")
	}
	if got := result.Class.ExitCode(); got != 1 {
		t.Errorf("ExitCode = %d, want 1", got)
	}
}

func TestBuiltinsAreNotGrammarCommands(t *testing.T) {
	registry := commands.NewRegistry()
	for _, name := range Builtins {
		if _, ok := registry.Get(name); ok {
			t.Errorf("builtin %q collides with a grammar command", name)
		}
	}
}
