// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package commands implements the shell's command grammar: a declarative
// command tree shared by the executor and the completer, a quote-aware
// tokenizer, and the handlers behind each command.
package commands

import (
	"context"
	"sort"
	"strings"
)

// =============================================================================
// GRAMMAR TYPES
// =============================================================================

// ArgType describes what a positional argument or flag value accepts,
// which drives both validation and completion.
type ArgType int

const (
	ArgTypeString ArgType = iota
	// ArgTypeAgent completes from the catalog's agents.
	ArgTypeAgent
	// ArgTypeWorkflow completes from the catalog's workflows.
	ArgTypeWorkflow
	// ArgTypeEntity completes from agents and workflows.
	ArgTypeEntity
	// ArgTypeEnum restricts the value to ArgDef.Values.
	ArgTypeEnum
	// ArgTypePath is validated by the security layer before handlers run.
	ArgTypePath
)

// ArgDef declares one positional argument.
type ArgDef struct {
	Name        string
	Description string
	Required    bool
	Type        ArgType
	// Values enumerates the legal values for ArgTypeEnum.
	Values []string
}

// FlagDef declares one long-form flag.
type FlagDef struct {
	Name        string
	Description string
	// HasValue distinguishes value flags from boolean flags.
	HasValue bool
	Type     ArgType
	// Values enumerates the legal values for ArgTypeEnum flags.
	Values []string
	// Excludes names flags that cannot appear together with this one.
	Excludes []string
}

// HandlerFunc executes a bound invocation and returns its output.
type HandlerFunc func(ctx context.Context, env *Env, inv *Invocation) (string, error)

// Spec is one node of the command tree. A node either has Subcommands or
// a Handler, never both.
type Spec struct {
	Name        string
	Description string
	Usage       string
	Subcommands []*Spec
	Args        []ArgDef
	Flags       []FlagDef
	Handler     HandlerFunc
}

func (s *Spec) findSub(name string) *Spec {
	for _, sub := range s.Subcommands {
		if sub.Name == name {
			return sub
		}
	}
	return nil
}

func (s *Spec) findFlag(name string) *FlagDef {
	for i := range s.Flags {
		if s.Flags[i].Name == name {
			return &s.Flags[i]
		}
	}
	return nil
}

func (s *Spec) subNames() []string {
	names := make([]string, len(s.Subcommands))
	for i, sub := range s.Subcommands {
		names[i] = sub.Name
	}
	return names
}

func (s *Spec) flagNames() []string {
	names := make([]string, len(s.Flags))
	for i, f := range s.Flags {
		names[i] = "--" + f.Name
	}
	return names
}

// =============================================================================
// REGISTRY
// =============================================================================

// Registry holds the command tree.
type Registry struct {
	commands map[string]*Spec
	order    []string
}

// Get looks up a top-level command.
func (r *Registry) Get(name string) (*Spec, bool) {
	spec, ok := r.commands[name]
	return spec, ok
}

// Names returns the top-level command names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Specs returns the top-level specs in registration order, for help.
func (r *Registry) Specs() []*Spec {
	out := make([]*Spec, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.commands[name])
	}
	return out
}

// Resolve walks tokens down the command tree and returns the matched leaf
// spec, the path consumed, and the remaining tokens.
func (r *Registry) Resolve(tokens []string) (*Spec, []string, []string, error) {
	if len(tokens) == 0 {
		return nil, nil, nil, &GrammarError{Message: "empty command"}
	}

	spec, ok := r.commands[tokens[0]]
	if !ok {
		names := r.Names()
		sort.Strings(names)
		return nil, nil, nil, &GrammarError{
			Message:  "unknown command " + quoteToken(tokens[0]),
			Expected: names,
		}
	}

	path := []string{tokens[0]}
	rest := tokens[1:]
	for len(spec.Subcommands) > 0 {
		if len(rest) == 0 {
			return nil, nil, nil, &GrammarError{
				Command:  strings.Join(path, " "),
				Message:  "missing subcommand",
				Expected: spec.subNames(),
			}
		}
		sub := spec.findSub(rest[0])
		if sub == nil {
			return nil, nil, nil, &GrammarError{
				Command:  strings.Join(path, " "),
				Message:  "unknown subcommand " + quoteToken(rest[0]),
				Expected: spec.subNames(),
			}
		}
		spec = sub
		path = append(path, rest[0])
		rest = rest[1:]
	}

	return spec, path, rest, nil
}

func (r *Registry) register(spec *Spec) {
	r.commands[spec.Name] = spec
	r.order = append(r.order, spec.Name)
}

// runFlags are shared by `run agent` and `run workflow`.
func runFlags() []FlagDef {
	return []FlagDef{
		{Name: "task", Description: "Task text passed to the run", HasValue: true, Type: ArgTypeString, Excludes: []string{"task-file"}},
		{Name: "task-file", Description: "File whose contents become the task", HasValue: true, Type: ArgTypePath, Excludes: []string{"task"}},
		{Name: "output", Description: "Write the run output to this file", HasValue: true, Type: ArgTypePath},
		{Name: "json", Description: "Emit a JSON envelope instead of text"},
		{Name: "quiet", Description: "Print only the run output"},
	}
}

// NewRegistry builds the fixed command tree.
func NewRegistry() *Registry {
	r := &Registry{commands: make(map[string]*Spec)}

	r.register(&Spec{
		Name:        "list",
		Description: "List what the engine can run",
		Usage:       "list {agents|workflows} [--json]",
		Subcommands: []*Spec{
			{
				Name:        "agents",
				Description: "List available agents",
				Usage:       "list agents [--json]",
				Flags:       []FlagDef{{Name: "json", Description: "Emit JSON"}},
				Handler:     handleListAgents,
			},
			{
				Name:        "workflows",
				Description: "List available workflows",
				Usage:       "list workflows [--json]",
				Flags:       []FlagDef{{Name: "json", Description: "Emit JSON"}},
				Handler:     handleListWorkflows,
			},
		},
	})

	r.register(&Spec{
		Name:        "run",
		Description: "Run an agent or workflow",
		Usage:       "run {agent|workflow} <name> [--task <text>|--task-file <path>] [--output <path>] [--json] [--quiet]",
		Subcommands: []*Spec{
			{
				Name:        "agent",
				Description: "Run a single agent",
				Usage:       "run agent <name> [flags]",
				Args:        []ArgDef{{Name: "name", Description: "Agent to run", Required: true, Type: ArgTypeAgent}},
				Flags:       runFlags(),
				Handler:     handleRunAgent,
			},
			{
				Name:        "workflow",
				Description: "Run a workflow",
				Usage:       "run workflow <name> [flags]",
				Args:        []ArgDef{{Name: "name", Description: "Workflow to run", Required: true, Type: ArgTypeWorkflow}},
				Flags:       runFlags(),
				Handler:     handleRunWorkflow,
			},
		},
	})

	r.register(&Spec{
		Name:        "info",
		Description: "Show details for an agent or workflow",
		Usage:       "info <name> [--json]",
		Args:        []ArgDef{{Name: "name", Description: "Agent or workflow name", Required: true, Type: ArgTypeEntity}},
		Flags:       []FlagDef{{Name: "json", Description: "Emit JSON"}},
		Handler:     handleInfo,
	})

	r.register(&Spec{
		Name:        "metrics",
		Description: "Show engine and local run metrics",
		Usage:       "metrics [summary|detail] [--json]",
		Args: []ArgDef{{
			Name:        "scope",
			Description: "Level of detail",
			Type:        ArgTypeEnum,
			Values:      []string{"summary", "detail"},
		}},
		Flags:   []FlagDef{{Name: "json", Description: "Emit JSON"}},
		Handler: handleMetrics,
	})

	return r
}
