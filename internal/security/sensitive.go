// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package security

import (
	"path/filepath"
	"strings"
)

// builtinSensitivePatterns match credential and key material that commands
// must never read or overwrite. Patterns ending in "/" match a directory
// segment anywhere in the path; others match the base name.
var builtinSensitivePatterns = []string{
	// Environment files
	".env",
	".env.*",
	"*.env",

	// Cloud provider credentials
	".aws/",
	".azure/",
	".gcloud/",
	".kube/",
	"credentials",
	"credentials.*",

	// SSH and key material
	".ssh/",
	"id_rsa*",
	"id_dsa*",
	"id_ecdsa*",
	"id_ed25519*",
	"*.pem",
	"*.key",
	"*.p12",
	"*.pfx",

	// Git and package manager credentials
	".git-credentials",
	".netrc",
	".npmrc",
	".pypirc",

	// Shell startup files
	".bashrc",
	".bash_profile",
	".zshrc",
	".profile",
}

// Detector classifies paths as sensitive. Built-in patterns always apply;
// extra patterns from configuration are unioned in, never replacing the
// built-ins.
type Detector struct {
	patterns []string
}

// NewDetector creates a Detector with the built-in patterns plus any extra.
func NewDetector(extra ...string) *Detector {
	patterns := make([]string, 0, len(builtinSensitivePatterns)+len(extra))
	patterns = append(patterns, builtinSensitivePatterns...)
	for _, p := range extra {
		p = strings.TrimSpace(p)
		if p != "" {
			patterns = append(patterns, p)
		}
	}
	return &Detector{patterns: patterns}
}

// IsSensitive reports whether path matches a sensitive pattern, and which
// pattern matched. Matching is case-insensitive.
func (d *Detector) IsSensitive(path string) (bool, string) {
	lower := strings.ToLower(filepath.ToSlash(path))
	base := filepath.Base(lower)

	for _, pattern := range d.patterns {
		p := strings.ToLower(pattern)
		if strings.HasSuffix(p, "/") {
			// Directory segment match: ".ssh/" hits any path containing a
			// .ssh component.
			seg := strings.TrimSuffix(p, "/")
			if hasSlashSegment(lower, seg) {
				return true, pattern
			}
			continue
		}
		if ok, _ := filepath.Match(p, base); ok {
			return true, pattern
		}
	}
	return false, ""
}

// hasSlashSegment reports whether any "/"-separated component of path
// equals name. The path must already be slash-normalized.
func hasSlashSegment(path, name string) bool {
	for _, part := range strings.Split(path, "/") {
		if part == name {
			return true
		}
	}
	return false
}

// Patterns returns the active pattern set, for display in help output.
func (d *Detector) Patterns() []string {
	out := make([]string, len(d.patterns))
	copy(out, d.patterns)
	return out
}
