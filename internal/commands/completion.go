// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/morganforge/agentsh/internal/engine"
	"github.com/morganforge/agentsh/internal/security"
)

// =============================================================================
// COMPLETER
// =============================================================================

// Completer produces tab completions from the grammar tree and the
// session's catalog snapshot. It never touches the network: catalog names
// come from the snapshot taken at session start, and filesystem lookups
// stay local, so completion returns fast.
type Completer struct {
	registry  *Registry
	catalog   *engine.Catalog
	validator *security.Validator
	// extras are shell built-ins offered alongside top-level commands.
	extras []string
}

// NewCompleter wires a Completer. catalog and validator may be nil.
func NewCompleter(registry *Registry, catalog *engine.Catalog, validator *security.Validator, extras []string) *Completer {
	return &Completer{registry: registry, catalog: catalog, validator: validator, extras: extras}
}

// Complete implements the liner WordCompleter contract: given the line and
// cursor position it returns the text before the word being completed, the
// candidate replacements, and the text after the cursor.
func (c *Completer) Complete(line string, pos int) (string, []string, string) {
	if pos > len(line) {
		pos = len(line)
	}
	before := line[:pos]
	tail := line[pos:]

	start := wordStart(before)
	head := before[:start]
	partial := before[start:]

	// No completion inside quotes.
	if strings.ContainsAny(partial, `"'`) {
		return head, nil, tail
	}

	// Tokenize exactly as execution does, so quoted values count as one
	// token. A tokenizer error means the cursor sits after an open quote.
	tokens, err := SplitLine(head)
	if err != nil {
		return head, nil, tail
	}
	candidates := c.candidatesFor(tokens, partial)
	return head, rankCandidates(partial, candidates), tail
}

// candidatesFor resolves the completion context. Rules, in order: first
// word completes commands; a command with subcommands completes those; a
// dash prefix completes unused flags; a pending value-flag completes by
// its type; otherwise the next positional argument completes by its type.
func (c *Completer) candidatesFor(tokens []string, partial string) []string {
	if len(tokens) == 0 {
		names := c.registry.Names()
		return append(names, c.extras...)
	}

	spec, ok := c.registry.Get(tokens[0])
	if !ok {
		return nil
	}

	rest := tokens[1:]
	for len(spec.Subcommands) > 0 {
		if len(rest) == 0 {
			return spec.subNames()
		}
		sub := spec.findSub(rest[0])
		if sub == nil {
			return nil
		}
		spec = sub
		rest = rest[1:]
	}

	// Value pending for the previous token's flag?
	if len(rest) > 0 {
		if def := c.pendingValueFlag(spec, rest); def != nil {
			return c.valueCandidates(def.Type, def.Values, partial)
		}
	}

	if strings.HasPrefix(partial, "-") {
		return c.unusedFlags(spec, rest)
	}

	if def := nextPositional(spec, rest); def != nil {
		return c.valueCandidates(def.Type, def.Values, partial)
	}
	return nil
}

// pendingValueFlag reports whether the last complete token is a value flag
// still waiting for its value.
func (c *Completer) pendingValueFlag(spec *Spec, rest []string) *FlagDef {
	last := rest[len(rest)-1]
	if !strings.HasPrefix(last, "--") || strings.Contains(last, "=") {
		return nil
	}
	def := spec.findFlag(strings.TrimPrefix(last, "--"))
	if def != nil && def.HasValue {
		return def
	}
	return nil
}

// unusedFlags lists flags not yet present, honoring mutual exclusion.
func (c *Completer) unusedFlags(spec *Spec, rest []string) []string {
	used := make(map[string]bool)
	for _, tok := range rest {
		if strings.HasPrefix(tok, "--") {
			name := strings.TrimPrefix(tok, "--")
			if eq := strings.Index(name, "="); eq >= 0 {
				name = name[:eq]
			}
			used[name] = true
		}
	}

	var out []string
	for _, def := range spec.Flags {
		if used[def.Name] {
			continue
		}
		excluded := false
		for _, other := range def.Excludes {
			if used[other] {
				excluded = true
				break
			}
		}
		if !excluded {
			out = append(out, "--"+def.Name)
		}
	}
	return out
}

// nextPositional finds the first positional slot not already filled by a
// non-flag token in rest.
func nextPositional(spec *Spec, rest []string) *ArgDef {
	filled := 0
	for i := 0; i < len(rest); i++ {
		tok := rest[i]
		if strings.HasPrefix(tok, "--") {
			if def := spec.findFlag(trimFlagName(tok)); def != nil && def.HasValue && !strings.Contains(tok, "=") {
				i++ // skip the flag's value
			}
			continue
		}
		filled++
	}
	if filled < len(spec.Args) {
		return &spec.Args[filled]
	}
	return nil
}

func trimFlagName(tok string) string {
	name := strings.TrimPrefix(tok, "--")
	if eq := strings.Index(name, "="); eq >= 0 {
		name = name[:eq]
	}
	return name
}

// valueCandidates completes a typed value.
func (c *Completer) valueCandidates(t ArgType, values []string, partial string) []string {
	switch t {
	case ArgTypeEnum:
		return values
	case ArgTypeAgent:
		if c.catalog == nil {
			return nil
		}
		return c.catalog.AgentNames()
	case ArgTypeWorkflow:
		if c.catalog == nil {
			return nil
		}
		return c.catalog.WorkflowNames()
	case ArgTypeEntity:
		if c.catalog == nil {
			return nil
		}
		return append(c.catalog.AgentNames(), c.catalog.WorkflowNames()...)
	case ArgTypePath:
		return c.pathCandidates(partial)
	default:
		return nil
	}
}

// pathCandidates lists directory entries matching the partial path. Paths
// the validator would reject are never suggested.
func (c *Completer) pathCandidates(partial string) []string {
	dir, base := filepath.Split(partial)
	searchDir := dir
	if searchDir == "" {
		searchDir = "."
	}

	entries, err := os.ReadDir(searchDir)
	if err != nil {
		return nil
	}

	var out []string
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(strings.ToLower(name), strings.ToLower(base)) {
			continue
		}
		// Hidden entries only when explicitly asked for.
		if strings.HasPrefix(name, ".") && !strings.HasPrefix(base, ".") {
			continue
		}
		candidate := dir + name
		if c.validator != nil {
			if verdict := c.validator.Validate(candidate); !verdict.Allowed {
				continue
			}
		}
		if entry.IsDir() {
			candidate += string(filepath.Separator)
		}
		out = append(out, candidate)
	}
	return out
}

// =============================================================================
// RANKING
// =============================================================================

// rankCandidates filters candidates against the partial word and orders
// them: case-insensitive prefix matches first, then subsequence matches,
// shorter before longer, ties broken lexicographically.
func rankCandidates(partial string, candidates []string) []string {
	type scored struct {
		value string
		score int
	}

	lower := strings.ToLower(partial)
	var matched []scored
	for _, cand := range candidates {
		score := scoreCandidate(lower, strings.ToLower(cand))
		if score > 0 {
			matched = append(matched, scored{value: cand, score: score})
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].score != matched[j].score {
			return matched[i].score > matched[j].score
		}
		return matched[i].value < matched[j].value
	})

	out := make([]string, len(matched))
	for i, m := range matched {
		out[i] = m.value
	}
	return out
}

func scoreCandidate(partial, candidate string) int {
	switch {
	case partial == candidate:
		return 2000
	case strings.HasPrefix(candidate, partial):
		return 1000 - len(candidate)
	case isSubsequence(partial, candidate):
		return 500 - len(candidate)
	default:
		return 0
	}
}

// isSubsequence reports whether every rune of partial appears in candidate
// in order.
func isSubsequence(partial, candidate string) bool {
	if partial == "" {
		return true
	}
	i := 0
	target := []rune(partial)
	for _, ch := range candidate {
		if ch == target[i] {
			i++
			if i == len(target) {
				return true
			}
		}
	}
	return false
}

// wordStart finds the byte offset where the word containing the cursor
// begins.
func wordStart(before string) int {
	start := strings.LastIndexAny(before, " \t")
	return start + 1
}
