// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/morganforge/agentsh/internal/engine"
	"github.com/morganforge/agentsh/internal/security"
)

func testCatalog() *engine.Catalog {
	return &engine.Catalog{
		Agents: []engine.AgentInfo{
			{Name: "summarizer"},
			{Name: "searcher"},
			{Name: "reviewer"},
		},
		Workflows: []engine.WorkflowInfo{
			{Name: "release"},
			{Name: "refactor"},
		},
	}
}

func newTestCompleter(validator *security.Validator) *Completer {
	return NewCompleter(NewRegistry(), testCatalog(), validator,
		[]string{"help", "exit", "quit", "clear", "history"})
}

func complete(t *testing.T, c *Completer, line string) []string {
	t.Helper()
	_, candidates, _ := c.Complete(line, len(line))
	return candidates
}

func TestComplete_TopLevel(t *testing.T) {
	c := newTestCompleter(nil)

	got := complete(t, c, "")
	for _, want := range []string{"list", "run", "info", "metrics", "help", "exit"} {
		if !containsString(got, want) {
			t.Errorf("empty line candidates missing %q: %v", want, got)
		}
	}

	got = complete(t, c, "li")
	if !reflect.DeepEqual(got, []string{"list"}) {
		t.Errorf("complete(li) = %v, want [list]", got)
	}
}

func TestComplete_Subcommands(t *testing.T) {
	c := newTestCompleter(nil)

	got := complete(t, c, "list ")
	if !reflect.DeepEqual(got, []string{"agents", "workflows"}) {
		t.Errorf("complete(list ) = %v", got)
	}

	got = complete(t, c, "run a")
	if !reflect.DeepEqual(got, []string{"agent"}) {
		t.Errorf("complete(run a) = %v", got)
	}
}

func TestComplete_AgentNames(t *testing.T) {
	c := newTestCompleter(nil)

	got := complete(t, c, "run agent ")
	if len(got) != 3 {
		t.Fatalf("complete(run agent ) = %v, want all three agents", got)
	}

	got = complete(t, c, "run agent s")
	// Prefix matches, shorter first.
	if !reflect.DeepEqual(got, []string{"searcher", "summarizer"}) {
		t.Errorf("complete(run agent s) = %v", got)
	}
}

func TestComplete_WorkflowNames(t *testing.T) {
	c := newTestCompleter(nil)

	// Both match the prefix; the shorter name ranks first.
	got := complete(t, c, "run workflow re")
	if !reflect.DeepEqual(got, []string{"release", "refactor"}) {
		t.Errorf("complete(run workflow re) = %v", got)
	}
}

func TestComplete_EntityNames(t *testing.T) {
	c := newTestCompleter(nil)

	got := complete(t, c, "info re")
	// Agents and workflows both qualify after info.
	for _, want := range []string{"reviewer", "release", "refactor"} {
		if !containsString(got, want) {
			t.Errorf("complete(info re) missing %q: %v", want, got)
		}
	}
}

func TestComplete_Flags(t *testing.T) {
	c := newTestCompleter(nil)

	got := complete(t, c, "run agent summarizer --")
	for _, want := range []string{"--task", "--task-file", "--output", "--json", "--quiet"} {
		if !containsString(got, want) {
			t.Errorf("flag candidates missing %q: %v", want, got)
		}
	}

	// A used flag is not offered again, and its excluded partner is gone.
	got = complete(t, c, "run agent summarizer --task hi --")
	if containsString(got, "--task") || containsString(got, "--task-file") {
		t.Errorf("exclusion not honored: %v", got)
	}
	if !containsString(got, "--output") {
		t.Errorf("remaining flags missing: %v", got)
	}
}

func TestComplete_EnumValues(t *testing.T) {
	c := newTestCompleter(nil)

	got := complete(t, c, "metrics ")
	if !reflect.DeepEqual(got, []string{"detail", "summary"}) {
		t.Errorf("complete(metrics ) = %v", got)
	}

	got = complete(t, c, "metrics su")
	if !reflect.DeepEqual(got, []string{"summary"}) {
		t.Errorf("complete(metrics su) = %v", got)
	}
}

func TestComplete_Paths(t *testing.T) {
	root := t.TempDir()
	resolved, _ := filepath.EvalSymlinks(root)
	validator, err := security.NewValidator(resolved)
	if err != nil {
		t.Fatal(err)
	}

	os.WriteFile(filepath.Join(resolved, "task-a.txt"), []byte("x"), 0644)
	os.WriteFile(filepath.Join(resolved, "task-b.txt"), []byte("x"), 0644)
	os.WriteFile(filepath.Join(resolved, ".env"), []byte("x"), 0600)
	os.Mkdir(filepath.Join(resolved, "docs"), 0755)

	c := newTestCompleter(validator)
	prefix := filepath.Join(resolved, "task")
	got := complete(t, c, "run agent s --task-file "+prefix)
	if len(got) != 2 {
		t.Fatalf("path candidates = %v, want the two task files", got)
	}

	// Sensitive files are never suggested, even when asked for directly.
	got = complete(t, c, "run agent s --task-file "+filepath.Join(resolved, ".env"))
	if len(got) != 0 {
		t.Errorf("sensitive file suggested: %v", got)
	}

	// Directories get a trailing separator.
	got = complete(t, c, "run agent s --task-file "+filepath.Join(resolved, "do"))
	if len(got) != 1 || !strings.HasSuffix(got[0], string(filepath.Separator)) {
		t.Errorf("directory candidate = %v", got)
	}
}

func TestComplete_QuotedFlagValue(t *testing.T) {
	c := newTestCompleter(nil)

	// A quoted flag value counts as one token, the same way execution
	// tokenizes it, so the name positional is still open here.
	got := complete(t, c, `run agent --task "hello world" rev`)
	if !reflect.DeepEqual(got, []string{"reviewer"}) {
		t.Errorf("complete with quoted flag value = %v, want [reviewer]", got)
	}

	// The word after a closed quoted value completes flags as usual.
	got = complete(t, c, `run agent reviewer --task "hello world" --j`)
	if !reflect.DeepEqual(got, []string{"--json"}) {
		t.Errorf("flag after quoted value = %v, want [--json]", got)
	}

	// An open quote before the cursor offers nothing.
	if got := complete(t, c, `run agent --task "hello wo`); len(got) != 0 {
		t.Errorf("open quote produced candidates: %v", got)
	}
}

func TestComplete_EnumFlagValues(t *testing.T) {
	r := &Registry{commands: make(map[string]*Spec)}
	r.register(&Spec{
		Name: "export",
		Flags: []FlagDef{
			{Name: "format", HasValue: true, Type: ArgTypeEnum, Values: []string{"json", "table"}},
		},
	})
	c := NewCompleter(r, nil, nil, nil)

	got := complete(t, c, "export --format ")
	if !reflect.DeepEqual(got, []string{"json", "table"}) {
		t.Errorf("complete(export --format ) = %v", got)
	}

	got = complete(t, c, "export --format ta")
	if !reflect.DeepEqual(got, []string{"table"}) {
		t.Errorf("complete(export --format ta) = %v", got)
	}
}

func TestComplete_NoNetworkAndFast(t *testing.T) {
	c := newTestCompleter(nil)

	start := time.Now()
	for i := 0; i < 100; i++ {
		complete(t, c, "run agent s")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("100 completions took %s", elapsed)
	}
}

func TestComplete_MidLineCursor(t *testing.T) {
	c := newTestCompleter(nil)

	line := "run agent s --json"
	head, candidates, tail := c.Complete(line, 11) // cursor after "s"
	if head != "run agent " {
		t.Errorf("head = %q", head)
	}
	if tail != " --json" {
		t.Errorf("tail = %q", tail)
	}
	if !containsString(candidates, "summarizer") {
		t.Errorf("candidates = %v", candidates)
	}
}

func TestComplete_NilCatalog(t *testing.T) {
	c := NewCompleter(NewRegistry(), nil, nil, nil)

	if got := complete(t, c, "run agent "); len(got) != 0 {
		t.Errorf("nil catalog produced candidates: %v", got)
	}
	// Grammar-level completion still works.
	if got := complete(t, c, "run "); !reflect.DeepEqual(got, []string{"agent", "workflow"}) {
		t.Errorf("complete(run ) = %v", got)
	}
}
