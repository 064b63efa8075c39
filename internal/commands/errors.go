// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/morganforge/agentsh/internal/security"
)

// =============================================================================
// ERROR CLASSES
// =============================================================================

// ErrorClass groups command failures for exit-code mapping and display.
type ErrorClass int

const (
	ClassNone ErrorClass = iota
	// ClassParse: the input line could not be tokenized.
	ClassParse
	// ClassGrammar: tokens did not match the command grammar.
	ClassGrammar
	// ClassSecurity: a path argument was rejected by the validator.
	ClassSecurity
	// ClassHandler: the handler ran and failed.
	ClassHandler
	// ClassCancelled: the handler was interrupted.
	ClassCancelled
)

func (c ErrorClass) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassParse:
		return "parse"
	case ClassGrammar:
		return "grammar"
	case ClassSecurity:
		return "security"
	case ClassHandler:
		return "handler"
	case ClassCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// =============================================================================
// ERROR TYPES
// =============================================================================

// ParseError reports input that could not be tokenized.
type ParseError struct {
	Message  string
	Position int
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at column %d: %s", e.Position+1, e.Message)
}

// GrammarError reports tokens that do not fit the command tree.
type GrammarError struct {
	// Command is the deepest valid command path reached, e.g. "run agent".
	Command string
	Message string
	// Expected lists valid alternatives at the failure point, when known.
	Expected []string
}

func (e *GrammarError) Error() string {
	msg := e.Message
	if e.Command != "" {
		msg = e.Command + ": " + msg
	}
	if len(e.Expected) > 0 {
		msg += " (expected: " + strings.Join(e.Expected, ", ") + ")"
	}
	return msg
}

// HandlerError wraps a failure from a command handler.
type HandlerError struct {
	Command string
	Err     error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("%s: %v", e.Command, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

// CancelledError reports a handler interrupted before completion.
type CancelledError struct {
	Command string
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("%s: cancelled", e.Command)
}

// ExitCode maps an error class to the process exit code used in
// non-interactive mode.
func (c ErrorClass) ExitCode() int {
	switch c {
	case ClassNone:
		return 0
	case ClassParse, ClassGrammar:
		return 2
	case ClassSecurity:
		return 3
	default:
		return 1
	}
}

// DisplayPrefix is the stderr prefix for this class, empty when the error
// message is already self-describing.
func (c ErrorClass) DisplayPrefix() string {
	switch c {
	case ClassParse:
		return ""
	case ClassGrammar:
		return "usage"
	case ClassSecurity:
		return "security"
	case ClassCancelled:
		return "cancelled"
	default:
		return "error"
	}
}

// Classify maps an error to its class. Unknown errors count as handler
// failures so an unexpected error never reports success.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassNone
	}

	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		return ClassParse
	}
	var grammarErr *GrammarError
	if errors.As(err, &grammarErr) {
		return ClassGrammar
	}
	var secErr *security.Error
	if errors.As(err, &secErr) {
		return ClassSecurity
	}
	var cancelErr *CancelledError
	if errors.As(err, &cancelErr) {
		return ClassCancelled
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ClassCancelled
	}
	return ClassHandler
}
