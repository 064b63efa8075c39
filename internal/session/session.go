// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session tracks one interactive shell session: its identity,
// phase, and command counters for the exit summary.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Phase is where the REPL currently is.
type Phase int

const (
	// PhaseIdle: between prompts.
	PhaseIdle Phase = iota
	// PhaseReading: waiting for user input.
	PhaseReading
	// PhaseExecuting: a command is running; Ctrl+C cancels it.
	PhaseExecuting
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseReading:
		return "reading"
	case PhaseExecuting:
		return "executing"
	default:
		return "unknown"
	}
}

// State is the mutable session record. The REPL goroutine writes it; the
// signal goroutine reads the phase, hence the mutex.
type State struct {
	mu           sync.Mutex
	id           string
	startTime    time.Time
	phase        Phase
	commandCount int
	successCount int
	failureCount int
}

// New starts a session with a fresh identity.
func New() *State {
	return &State{
		id:        uuid.New().String(),
		startTime: time.Now(),
		phase:     PhaseIdle,
	}
}

// ID returns the session identifier.
func (s *State) ID() string {
	return s.id
}

// SetPhase moves the session to a new phase.
func (s *State) SetPhase(p Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = p
}

// Phase returns the current phase.
func (s *State) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Record counts one executed command.
func (s *State) Record(success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commandCount++
	if success {
		s.successCount++
	} else {
		s.failureCount++
	}
}

// Status is a point-in-time snapshot for display.
type Status struct {
	ID        string
	StartTime time.Time
	Duration  time.Duration
	Commands  int
	Successes int
	Failures  int
}

// Snapshot captures the current counters.
func (s *State) Snapshot() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		ID:        s.id,
		StartTime: s.startTime,
		Duration:  time.Since(s.startTime),
		Commands:  s.commandCount,
		Successes: s.successCount,
		Failures:  s.failureCount,
	}
}

// SuccessRate returns the fraction of commands that succeeded, 0..1.
func (st Status) SuccessRate() float64 {
	if st.Commands == 0 {
		return 0
	}
	return float64(st.Successes) / float64(st.Commands)
}

// FormatDuration renders a duration compactly for the exit summary.
func FormatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := (d % time.Minute) / time.Second
	switch {
	case h > 0:
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm%ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}
