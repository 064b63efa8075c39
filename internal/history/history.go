// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package history persists the shell's command history as append-only
// JSONL, one record per executed line. The file is capped: appends go
// straight to disk, and when the file outgrows the cap it is compacted to
// the newest entries with an atomic rewrite.
package history

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/morganforge/agentsh/internal/util"
)

// Entry is one executed command line.
type Entry struct {
	Timestamp time.Time `json:"ts"`
	Command   string    `json:"command"`
	Success   bool      `json:"success"`
}

// Store is a capped on-disk history. Not safe for concurrent use; the
// shell owns it from a single goroutine.
type Store struct {
	path       string
	maxEntries int
	entries    []Entry
}

// Open loads (or creates) the history file at path. Corrupt lines are
// skipped, never fatal: losing one history entry beats losing the shell.
func Open(path string, maxEntries int) (*Store, error) {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	s := &Store{path: path, maxEntries: maxEntries}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cannot open history file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil || e.Command == "" {
			continue
		}
		s.entries = append(s.entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("cannot read history file: %w", err)
	}

	// An oversized file from a previous crash compacts on load.
	if len(s.entries) > s.maxEntries {
		s.entries = s.entries[len(s.entries)-s.maxEntries:]
		if err := s.rewrite(); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Append records one executed line with its success bit.
func (s *Store) Append(command string, success bool) error {
	e := Entry{Timestamp: time.Now(), Command: command, Success: success}
	s.entries = append(s.entries, e)

	// Append-then-compact: once the cap is crossed, drop the oldest
	// entries and rewrite atomically.
	if len(s.entries) > s.maxEntries {
		s.entries = s.entries[len(s.entries)-s.maxEntries:]
		return s.rewrite()
	}

	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("cannot encode history entry: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("cannot create history directory: %w", err)
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("cannot open history file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("cannot append history entry: %w", err)
	}
	return nil
}

// rewrite compacts the file to the in-memory entries atomically.
func (s *Store) rewrite() error {
	var buf bytes.Buffer
	for _, e := range s.entries {
		line, err := json.Marshal(e)
		if err != nil {
			continue
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	if err := util.AtomicWriteFile(s.path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("cannot compact history file: %w", err)
	}
	return nil
}

// Entries returns the newest n entries, oldest first. n <= 0 returns all.
func (s *Store) Entries(n int) []Entry {
	if n <= 0 || n > len(s.entries) {
		n = len(s.entries)
	}
	out := make([]Entry, n)
	copy(out, s.entries[len(s.entries)-n:])
	return out
}

// Len returns the number of loaded entries.
func (s *Store) Len() int {
	return len(s.entries)
}

// Commands returns just the command strings, oldest first, for seeding
// line-editor recall.
func (s *Store) Commands() []string {
	out := make([]string, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Command
	}
	return out
}
