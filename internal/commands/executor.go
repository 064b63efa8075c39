// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/morganforge/agentsh/internal/engine"
	"github.com/morganforge/agentsh/internal/security"
	"github.com/morganforge/agentsh/internal/telemetry"
)

// =============================================================================
// EXECUTION ENVIRONMENT
// =============================================================================

// Env carries the dependencies handlers need. Catalog and Telemetry may be
// nil when the engine was unreachable at startup; handlers degrade rather
// than crash.
type Env struct {
	Engine    *engine.Client
	Catalog   *engine.Catalog
	Telemetry *telemetry.Store
	Validator *security.Validator
	SessionID string
	// RenderMarkdown renders descriptive text for terminal display. When
	// nil, text passes through unchanged.
	RenderMarkdown func(string) string
}

func (env *Env) renderMarkdown(s string) string {
	if env.RenderMarkdown == nil {
		return s
	}
	return env.RenderMarkdown(s)
}

// =============================================================================
// RESULT
// =============================================================================

// Result is the outcome of executing one input line.
type Result struct {
	Success bool
	// Output is handler output ready for display. Empty on failure.
	Output string
	// Class and Err describe the failure when Success is false.
	Class    ErrorClass
	Err      error
	Duration time.Duration
	// Recorded reports whether the line was added to history.
	Recorded bool
	// NoOp marks an empty input line.
	NoOp bool
}

func successResult(output string, d time.Duration) Result {
	return Result{Success: true, Output: output, Duration: d, Recorded: true}
}

func failureResult(err error, d time.Duration, recorded bool) Result {
	return Result{
		Success:  false,
		Class:    Classify(err),
		Err:      err,
		Duration: d,
		Recorded: recorded,
	}
}

// RecordFunc receives every executed line for history persistence.
type RecordFunc func(raw string, success bool)

// =============================================================================
// EXECUTOR
// =============================================================================

// Executor turns raw input lines into Results: tokenize, resolve against
// the grammar, bind, validate paths, then run the handler.
type Executor struct {
	registry *Registry
	env      *Env
	onRecord RecordFunc
}

// NewExecutor creates an Executor. onRecord may be nil.
func NewExecutor(registry *Registry, env *Env, onRecord RecordFunc) *Executor {
	return &Executor{registry: registry, env: env, onRecord: onRecord}
}

// Registry exposes the grammar tree, for help and completion.
func (e *Executor) Registry() *Registry {
	return e.registry
}

// Execute runs one input line. Lines that fail tokenization are not
// recorded; everything that parses is recorded with its success bit.
func (e *Executor) Execute(ctx context.Context, raw string) Result {
	start := time.Now()

	tokens, err := SplitLine(raw)
	if err != nil {
		return failureResult(err, time.Since(start), false)
	}
	if len(tokens) == 0 {
		return Result{Success: true, NoOp: true}
	}

	record := func(success bool) {
		if e.onRecord != nil {
			e.onRecord(raw, success)
		}
	}

	spec, path, rest, err := e.registry.Resolve(tokens)
	if err != nil {
		record(false)
		return failureResult(err, time.Since(start), true)
	}

	inv, err := bindInvocation(spec, path, rest)
	if err != nil {
		record(false)
		return failureResult(err, time.Since(start), true)
	}

	if err := e.validatePaths(inv); err != nil {
		record(false)
		return failureResult(err, time.Since(start), true)
	}

	output, err := e.invoke(ctx, inv)
	if err != nil {
		record(false)
		return failureResult(err, time.Since(start), true)
	}

	record(true)
	return successResult(output, time.Since(start))
}

// validatePaths runs every path-typed value through the security layer
// before the handler can see it.
func (e *Executor) validatePaths(inv *Invocation) error {
	if e.env.Validator == nil {
		return nil
	}
	inv.ResolvedPaths = make(map[string]string)

	for _, def := range inv.Spec.Flags {
		if def.Type != ArgTypePath || !def.HasValue {
			continue
		}
		value, ok := inv.Flags[def.Name]
		if !ok {
			continue
		}
		resolved, err := e.env.Validator.ValidateErr(value)
		if err != nil {
			return err
		}
		inv.ResolvedPaths[def.Name] = resolved
	}

	for _, def := range inv.Spec.Args {
		if def.Type != ArgTypePath {
			continue
		}
		value, ok := inv.Args[def.Name]
		if !ok {
			continue
		}
		resolved, err := e.env.Validator.ValidateErr(value)
		if err != nil {
			return err
		}
		inv.ResolvedPaths[def.Name] = resolved
	}

	return nil
}

// invoke runs the handler with panic recovery. A panicking handler must
// surface as a failed command, never crash the shell.
func (e *Executor) invoke(ctx context.Context, inv *Invocation) (output string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &HandlerError{
				Command: inv.CommandLine(),
				Err:     fmt.Errorf("internal error: %v", r),
			}
		}
	}()

	if inv.Spec.Handler == nil {
		return "", &GrammarError{Command: inv.CommandLine(), Message: "command has no handler"}
	}

	output, err = inv.Spec.Handler(ctx, e.env, inv)
	if err != nil {
		if ctx.Err() != nil || Classify(err) == ClassCancelled {
			return "", &CancelledError{Command: inv.CommandLine()}
		}
		// Grammar and security errors raised inside handlers keep their
		// class; everything else becomes a handler failure.
		var handlerErr *HandlerError
		if Classify(err) == ClassHandler && !errors.As(err, &handlerErr) {
			err = &HandlerError{Command: inv.CommandLine(), Err: err}
		}
		return "", err
	}
	return output, nil
}
