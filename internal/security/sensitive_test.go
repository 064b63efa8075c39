// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package security

import "testing"

func TestIsSensitive(t *testing.T) {
	d := NewDetector()

	tests := []struct {
		path string
		want bool
	}{
		{"/home/user/project/.env", true},
		{"/home/user/project/.env.local", true},
		{"/home/user/project/prod.env", true},
		{"/home/user/.ssh/id_rsa", true},
		{"/home/user/.ssh/known_hosts", true}, // inside .ssh/
		{"/home/user/project/id_ed25519.pub", true},
		{"/home/user/.aws/credentials", true},
		{"/home/user/project/server.pem", true},
		{"/home/user/project/signing.key", true},
		{"/home/user/.netrc", true},
		{"/home/user/.git-credentials", true},
		{"/home/user/.bashrc", true},
		{"/home/user/project/main.go", false},
		{"/home/user/project/README.md", false},
		{"/home/user/project/environment.md", false},
		{"/home/user/project/keys.go", false},
	}

	for _, tc := range tests {
		got, _ := d.IsSensitive(tc.path)
		if got != tc.want {
			t.Errorf("IsSensitive(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}

func TestIsSensitive_CaseInsensitive(t *testing.T) {
	d := NewDetector()
	if got, _ := d.IsSensitive("/home/user/SERVER.PEM"); !got {
		t.Error("uppercase .PEM not detected")
	}
}

func TestIsSensitive_ExtraPatterns(t *testing.T) {
	d := NewDetector("*.vault", "  ", "private/")

	if got, pattern := d.IsSensitive("/project/tokens.vault"); !got || pattern != "*.vault" {
		t.Errorf("extra pattern: got %v %q", got, pattern)
	}
	if got, _ := d.IsSensitive("/project/private/notes.txt"); !got {
		t.Error("extra directory pattern not applied")
	}
	// Blank entries are dropped, not matched against everything.
	if got, _ := d.IsSensitive("/project/main.go"); got {
		t.Error("blank pattern matched a normal file")
	}
	// Built-ins survive.
	if got, _ := d.IsSensitive("/project/.env"); !got {
		t.Error("built-in pattern lost")
	}
}
