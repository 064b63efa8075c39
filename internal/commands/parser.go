// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"strings"
)

// =============================================================================
// TOKENIZER
// =============================================================================

// SplitLine tokenizes a command line. Whitespace separates tokens; single
// and double quotes group text into one token and are stripped; backslash
// escapes the next character inside double quotes and outside quotes. An
// unterminated quote is a ParseError.
func SplitLine(line string) ([]string, error) {
	var tokens []string
	var current strings.Builder

	inToken := false
	var quote rune // 0 when outside quotes
	quoteStart := 0
	escaped := false

	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		ch := runes[i]

		if escaped {
			current.WriteRune(ch)
			escaped = false
			continue
		}

		switch {
		case ch == '\\' && quote != '\'':
			// Backslash is literal inside single quotes.
			escaped = true
			inToken = true
		case quote != 0:
			if ch == quote {
				quote = 0
			} else {
				current.WriteRune(ch)
			}
		case ch == '\'' || ch == '"':
			quote = ch
			quoteStart = i
			inToken = true
		case ch == ' ' || ch == '\t':
			if inToken {
				tokens = append(tokens, current.String())
				current.Reset()
				inToken = false
			}
		default:
			current.WriteRune(ch)
			inToken = true
		}
	}

	if escaped {
		return nil, &ParseError{Message: "trailing backslash", Position: len(runes) - 1}
	}
	if quote != 0 {
		return nil, &ParseError{
			Message:  "unterminated " + string(quote) + " quote",
			Position: quoteStart,
		}
	}
	if inToken {
		tokens = append(tokens, current.String())
	}

	return tokens, nil
}

// JoinTokens renders a token list back to a single line, quoting tokens
// that contain whitespace or quote characters.
func JoinTokens(tokens []string) string {
	parts := make([]string, len(tokens))
	for i, tok := range tokens {
		parts[i] = quoteToken(tok)
	}
	return strings.Join(parts, " ")
}

func quoteToken(tok string) string {
	if tok == "" {
		return `""`
	}
	if !strings.ContainsAny(tok, " \t'\"\\") {
		return tok
	}
	var b strings.Builder
	b.WriteByte('"')
	for _, ch := range tok {
		if ch == '"' || ch == '\\' {
			b.WriteByte('\\')
		}
		b.WriteRune(ch)
	}
	b.WriteByte('"')
	return b.String()
}

// =============================================================================
// INVOCATION BINDING
// =============================================================================

// Invocation is a fully bound command call: the resolved grammar node plus
// its argument and flag values.
type Invocation struct {
	Spec *Spec
	// Path is the command path, e.g. ["run", "agent"].
	Path []string
	// Args holds positional values keyed by ArgDef name.
	Args map[string]string
	// Flags holds value-flag values keyed by flag name (without dashes).
	Flags map[string]string
	// Bools holds boolean flags that were present.
	Bools map[string]bool
	// ResolvedPaths holds validator-resolved paths keyed by the arg or
	// flag name that supplied them. Populated by the executor.
	ResolvedPaths map[string]string
}

// CommandLine returns the command path as a display string.
func (inv *Invocation) CommandLine() string {
	return strings.Join(inv.Path, " ")
}

// bindInvocation matches the remaining tokens against the resolved Spec's
// flags and positional args.
func bindInvocation(spec *Spec, path, rest []string) (*Invocation, error) {
	inv := &Invocation{
		Spec:  spec,
		Path:  path,
		Args:  make(map[string]string),
		Flags: make(map[string]string),
		Bools: make(map[string]bool),
	}
	cmdName := strings.Join(path, " ")

	var positionals []string
	for i := 0; i < len(rest); i++ {
		tok := rest[i]
		if !strings.HasPrefix(tok, "--") {
			positionals = append(positionals, tok)
			continue
		}

		name := strings.TrimPrefix(tok, "--")
		value := ""
		hasInline := false
		if eq := strings.Index(name, "="); eq >= 0 {
			value = name[eq+1:]
			name = name[:eq]
			hasInline = true
		}

		def := spec.findFlag(name)
		if def == nil {
			return nil, &GrammarError{
				Command:  cmdName,
				Message:  "unknown flag --" + name,
				Expected: spec.flagNames(),
			}
		}

		if !def.HasValue {
			if hasInline {
				return nil, &GrammarError{Command: cmdName, Message: "flag --" + name + " takes no value"}
			}
			inv.Bools[name] = true
			continue
		}

		if !hasInline {
			if i+1 >= len(rest) {
				return nil, &GrammarError{Command: cmdName, Message: "flag --" + name + " requires a value"}
			}
			i++
			value = rest[i]
		}
		if _, dup := inv.Flags[name]; dup {
			return nil, &GrammarError{Command: cmdName, Message: "flag --" + name + " given twice"}
		}
		if def.Type == ArgTypeEnum && !containsString(def.Values, value) {
			return nil, &GrammarError{
				Command:  cmdName,
				Message:  "invalid value " + quoteToken(value) + " for --" + name,
				Expected: def.Values,
			}
		}
		inv.Flags[name] = value
	}

	// Mutual exclusion between flags.
	for _, def := range spec.Flags {
		if !flagPresent(inv, def.Name) {
			continue
		}
		for _, other := range def.Excludes {
			if flagPresent(inv, other) {
				return nil, &GrammarError{
					Command: cmdName,
					Message: "flags --" + def.Name + " and --" + other + " are mutually exclusive",
				}
			}
		}
	}

	// Positional binding, in declaration order.
	for i, def := range spec.Args {
		if i >= len(positionals) {
			if def.Required {
				return nil, &GrammarError{
					Command: cmdName,
					Message: "missing required argument <" + def.Name + ">",
				}
			}
			continue
		}
		value := positionals[i]
		if def.Type == ArgTypeEnum && !containsString(def.Values, value) {
			return nil, &GrammarError{
				Command:  cmdName,
				Message:  "invalid value " + quoteToken(value) + " for <" + def.Name + ">",
				Expected: def.Values,
			}
		}
		inv.Args[def.Name] = value
	}
	if len(positionals) > len(spec.Args) {
		return nil, &GrammarError{
			Command: cmdName,
			Message: "unexpected argument " + quoteToken(positionals[len(spec.Args)]),
		}
	}

	return inv, nil
}

func flagPresent(inv *Invocation, name string) bool {
	if _, ok := inv.Flags[name]; ok {
		return true
	}
	return inv.Bools[name]
}

func containsString(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
