// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"os"
)

// Exit codes for non-interactive invocation. Scripts depend on these.
const (
	ExitSuccess  = 0
	ExitHandler  = 1 // handler ran and failed, or was cancelled
	ExitUsage    = 2 // input failed to parse or did not match the grammar
	ExitSecurity = 3 // a path argument was rejected
)

// PrintError writes a styled single-line error to stderr. An empty prefix
// prints the message alone.
func PrintError(prefix, msg string) {
	if prefix == "" {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render(msg))
		return
	}
	fmt.Fprintln(os.Stderr, ErrorStyle.Render(prefix+":")+" "+msg)
}

// PrintWarning writes a styled warning line to stderr.
func PrintWarning(msg string) {
	fmt.Fprintln(os.Stderr, WarningStyle.Render("warning:")+" "+msg)
}
