// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func TestAppendAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")

	s, err := Open(path, 10)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Append("list agents", true); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Append("run agent ghost --task x", false); err != nil {
		t.Fatalf("Append: %v", err)
	}

	s2, err := Open(path, 10)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	entries := s2.Entries(0)
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].Command != "list agents" || !entries[0].Success {
		t.Errorf("entry 0 = %+v", entries[0])
	}
	if entries[1].Command != "run agent ghost --task x" || entries[1].Success {
		t.Errorf("entry 1 = %+v", entries[1])
	}
	if entries[0].Timestamp.IsZero() {
		t.Error("timestamp not persisted")
	}
}

func TestCap_AppendThenCompact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")

	s, err := Open(path, 5)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 12; i++ {
		if err := s.Append("cmd "+strconv.Itoa(i), true); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	if s.Len() != 5 {
		t.Errorf("in-memory entries = %d, want 5", s.Len())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 5 {
		t.Errorf("file lines = %d, want 5", len(lines))
	}

	entries := s.Entries(0)
	if entries[0].Command != "cmd 7" || entries[4].Command != "cmd 11" {
		t.Errorf("kept wrong window: first=%q last=%q", entries[0].Command, entries[4].Command)
	}
}

func TestOpen_SkipsCorruptLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")
	content := `{"ts":"2026-01-02T15:04:05Z","command":"list agents","success":true}
this is not json
{"ts":"2026-01-02T15:05:05Z","command":"metrics","success":true}
{"broken":
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	s, err := Open(path, 10)
	if err != nil {
		t.Fatalf("Open with corrupt lines: %v", err)
	}
	if s.Len() != 2 {
		t.Errorf("entries = %d, want 2 (corrupt skipped)", s.Len())
	}
	if got := s.Commands(); got[0] != "list agents" || got[1] != "metrics" {
		t.Errorf("Commands = %v", got)
	}
}

func TestOpen_CompactsOversizedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")

	s, err := Open(path, 100)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 20; i++ {
		s.Append("cmd "+strconv.Itoa(i), true)
	}

	// Reopen with a smaller cap: the file shrinks on load.
	s2, err := Open(path, 5)
	if err != nil {
		t.Fatal(err)
	}
	if s2.Len() != 5 {
		t.Errorf("entries after reopen = %d, want 5", s2.Len())
	}
	data, _ := os.ReadFile(path)
	if n := len(strings.Split(strings.TrimSpace(string(data)), "\n")); n != 5 {
		t.Errorf("file lines = %d, want 5", n)
	}
}

func TestEntries_Newest(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "h.jsonl"), 10)
	if err != nil {
		t.Fatal(err)
	}
	for _, cmd := range []string{"a", "b", "c"} {
		s.Append(cmd, true)
	}

	got := s.Entries(2)
	if len(got) != 2 || got[0].Command != "b" || got[1].Command != "c" {
		t.Errorf("Entries(2) = %+v", got)
	}
}

func TestFilePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")
	s, err := Open(path, 10)
	if err != nil {
		t.Fatal(err)
	}
	s.Append("list agents", true)

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("history file mode = %v, want 0600", info.Mode().Perm())
	}
}
