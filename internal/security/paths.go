// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package security validates filesystem paths supplied to shell commands.
// Every path-typed argument passes through the Validator before a handler
// sees it. Validation fails closed: a path that cannot be fully resolved
// and judged is rejected.
package security

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ErrorType classifies why a path was rejected.
type ErrorType string

const (
	ErrTypeTraversal     ErrorType = "path_traversal"
	ErrTypeSymlinkEscape ErrorType = "symlink_escape"
	ErrTypeBlockedPath   ErrorType = "blocked_path"
	ErrTypeSensitiveFile ErrorType = "sensitive_file"
	ErrTypeResolution    ErrorType = "resolution_failed"
)

// Error is a structured security rejection.
type Error struct {
	Type    ErrorType
	Path    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("security violation (%s): %s: %s", e.Type, e.Path, e.Message)
}

// =============================================================================
// VALIDATOR
// =============================================================================

// Outcome is the result of validating a single candidate path.
type Outcome struct {
	// Allowed reports whether the path may be used.
	Allowed bool
	// ResolvedPath is the canonical absolute path. Handlers must operate on
	// this path, not on the raw user input.
	ResolvedPath string
	// Type and Reason describe the rejection when Allowed is false.
	Type   ErrorType
	Reason string
}

// Validator checks that paths stay inside the project boundary and away
// from system and sensitive locations.
type Validator struct {
	root       string
	allowRoots []string
	denyDirs   []string
	detector   *Detector
}

// systemDenyDirs are rejected regardless of boundary configuration.
var systemDenyDirs = []string{
	"/proc",
	"/sys",
	"/dev",
	"/boot",
	"/etc",
}

// Option configures a Validator.
type Option func(*Validator)

// WithAllowRoot permits an additional directory tree beyond the project
// root, e.g. the OS temp directory for output files.
func WithAllowRoot(dir string) Option {
	return func(v *Validator) {
		if abs, err := filepath.Abs(dir); err == nil {
			if resolved, err := filepath.EvalSymlinks(abs); err == nil {
				abs = resolved
			}
			v.allowRoots = append(v.allowRoots, abs)
		}
	}
}

// WithDenyPatterns adds operator-configured sensitive patterns on top of
// the built-in set.
func WithDenyPatterns(patterns []string) Option {
	return func(v *Validator) {
		v.detector = NewDetector(patterns...)
	}
}

// NewValidator creates a Validator rooted at projectRoot. The root must
// exist and resolve cleanly.
func NewValidator(projectRoot string, opts ...Option) (*Validator, error) {
	abs, err := filepath.Abs(projectRoot)
	if err != nil {
		return nil, fmt.Errorf("invalid project root: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve project root %s: %w", abs, err)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return nil, fmt.Errorf("cannot stat project root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("project root %s is not a directory", resolved)
	}

	v := &Validator{
		root:     resolved,
		denyDirs: systemDenyDirs,
		detector: NewDetector(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Root returns the resolved project root.
func (v *Validator) Root() string {
	return v.root
}

// Validate checks a candidate path and returns the outcome. The candidate
// may name a file that does not exist yet (output paths); in that case the
// deepest existing ancestor is resolved and the remainder re-joined.
func (v *Validator) Validate(candidate string) Outcome {
	if strings.TrimSpace(candidate) == "" {
		return reject(candidate, ErrTypeResolution, "empty path")
	}

	abs, err := filepath.Abs(candidate)
	if err != nil {
		return reject(candidate, ErrTypeResolution, fmt.Sprintf("cannot absolutize: %v", err))
	}

	// Note whether the candidate itself is a symlink so escapes via links
	// are reported distinctly from plain traversal.
	isLink := false
	if info, err := os.Lstat(abs); err == nil && info.Mode()&os.ModeSymlink != 0 {
		isLink = true
	}

	resolved, err := resolvePath(abs)
	if err != nil {
		return reject(candidate, ErrTypeResolution, fmt.Sprintf("cannot resolve: %v", err))
	}

	if !v.withinBoundary(resolved) {
		if isLink {
			return reject(candidate, ErrTypeSymlinkEscape,
				fmt.Sprintf("symlink target %s escapes the project boundary", resolved))
		}
		return reject(candidate, ErrTypeTraversal,
			fmt.Sprintf("resolves to %s outside the project boundary", resolved))
	}

	for _, dir := range v.denyDirs {
		if isPathWithinDir(resolved, dir) {
			return reject(candidate, ErrTypeBlockedPath,
				fmt.Sprintf("system directory %s is not accessible", dir))
		}
	}

	// .git internals stay off limits even inside the boundary.
	if containsSegment(resolved, ".git") {
		return reject(candidate, ErrTypeBlockedPath, "repository internals are not accessible")
	}

	if sensitive, pattern := v.detector.IsSensitive(resolved); sensitive {
		return reject(candidate, ErrTypeSensitiveFile,
			fmt.Sprintf("matches sensitive pattern %q", pattern))
	}

	return Outcome{Allowed: true, ResolvedPath: resolved}
}

// ValidateErr is Validate shaped as an error for callers that only need
// pass/fail.
func (v *Validator) ValidateErr(candidate string) (string, error) {
	out := v.Validate(candidate)
	if !out.Allowed {
		return "", &Error{Type: out.Type, Path: candidate, Message: out.Reason}
	}
	return out.ResolvedPath, nil
}

// OpenSecure validates a path, opens it for reading, then re-validates the
// opened file to narrow the window between check and use. The caller owns
// the returned file.
func (v *Validator) OpenSecure(candidate string) (*os.File, error) {
	resolved, err := v.ValidateErr(candidate)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(resolved)
	if err != nil {
		return nil, fmt.Errorf("cannot open %s: %w", resolved, err)
	}

	// Re-check the path actually opened. If it was swapped for a link to a
	// forbidden location between validation and open, reject it.
	actual, err := filepath.EvalSymlinks(f.Name())
	if err != nil {
		f.Close()
		return nil, &Error{Type: ErrTypeResolution, Path: candidate,
			Message: fmt.Sprintf("cannot re-resolve opened file: %v", err)}
	}
	if out := v.Validate(actual); !out.Allowed {
		f.Close()
		return nil, &Error{Type: out.Type, Path: candidate, Message: out.Reason}
	}

	return f, nil
}

func (v *Validator) withinBoundary(resolved string) bool {
	if isPathWithinDir(resolved, v.root) {
		return true
	}
	for _, root := range v.allowRoots {
		if isPathWithinDir(resolved, root) {
			return true
		}
	}
	return false
}

func reject(path string, t ErrorType, reason string) Outcome {
	return Outcome{Allowed: false, Type: t, Reason: reason, ResolvedPath: ""}
}

// =============================================================================
// PATH RESOLUTION
// =============================================================================

// resolvePath canonicalizes a path through every symlink. When the final
// component does not exist yet, the deepest existing ancestor is resolved
// and the untraversed remainder re-joined, so output paths can be judged
// before creation.
func resolvePath(abs string) (string, error) {
	resolved, err := filepath.EvalSymlinks(abs)
	if err == nil {
		return resolved, nil
	}
	if !os.IsNotExist(err) {
		return "", err
	}

	dir := abs
	var tail []string
	for {
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no existing ancestor for %s", abs)
		}
		tail = append([]string{filepath.Base(dir)}, tail...)
		dir = parent
		resolvedDir, err := filepath.EvalSymlinks(dir)
		if err == nil {
			return filepath.Join(append([]string{resolvedDir}, tail...)...), nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
	}
}

// isPathWithinDir reports whether path is dir or a descendant of dir.
// Component-wise comparison prevents the "/home/user-evil" prefix bypass.
func isPathWithinDir(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// containsSegment reports whether any path component equals name.
func containsSegment(path, name string) bool {
	for _, part := range strings.Split(path, string(filepath.Separator)) {
		if part == name {
			return true
		}
	}
	return false
}
