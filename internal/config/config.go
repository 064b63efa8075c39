// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads agentsh settings from ~/.agentsh/config.toml with
// environment overrides. A missing file yields defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
)

// Config is the full agentsh configuration.
type Config struct {
	Engine   EngineConfig   `toml:"engine" json:"engine"`
	Security SecurityConfig `toml:"security" json:"security"`
	History  HistoryConfig  `toml:"history" json:"history"`
}

// EngineConfig points the shell at the orchestration engine.
type EngineConfig struct {
	URL            string `toml:"url" json:"url"`
	TimeoutSeconds int    `toml:"timeout_seconds" json:"timeout_seconds"`
	RunsPerMinute  int    `toml:"runs_per_minute" json:"runs_per_minute"`
}

// SecurityConfig scopes what paths commands may touch.
type SecurityConfig struct {
	// ProjectRoot is the boundary for path arguments. Empty means the
	// current working directory.
	ProjectRoot string `toml:"project_root" json:"project_root"`
	// DenyPatterns are unioned with the built-in sensitive patterns.
	DenyPatterns []string `toml:"deny_patterns" json:"deny_patterns"`
	// AllowTemp additionally permits the OS temp directory, for --output.
	AllowTemp bool `toml:"allow_temp" json:"allow_temp"`
}

// HistoryConfig controls the persistent command history.
type HistoryConfig struct {
	MaxEntries int `toml:"max_entries" json:"max_entries"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			URL:            "http://127.0.0.1:7700",
			TimeoutSeconds: 10,
			RunsPerMinute:  30,
		},
		Security: SecurityConfig{
			AllowTemp: true,
		},
		History: HistoryConfig{
			MaxEntries: 1000,
		},
	}
}

// Dir returns the agentsh data directory (~/.agentsh), creating is the
// caller's concern.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".agentsh"), nil
}

// Path returns the config file location.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load reads the config file at path, layering it over defaults and then
// applying environment overrides. A nonexistent file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, cfg); err != nil {
				return nil, fmt.Errorf("invalid config file %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	normalize(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AGENTSH_ENGINE_URL"); v != "" {
		cfg.Engine.URL = v
	}
	if v := os.Getenv("AGENTSH_PROJECT_ROOT"); v != "" {
		cfg.Security.ProjectRoot = v
	}
}

func normalize(cfg *Config) {
	cfg.Engine.URL = strings.TrimRight(cfg.Engine.URL, "/")
	if cfg.Engine.TimeoutSeconds <= 0 {
		cfg.Engine.TimeoutSeconds = 10
	}
	if cfg.Engine.RunsPerMinute <= 0 {
		cfg.Engine.RunsPerMinute = 30
	}
	if cfg.History.MaxEntries <= 0 {
		cfg.History.MaxEntries = 1000
	}
}

var (
	global     *Config
	globalOnce sync.Once
)

// Global returns the process-wide configuration, loading it on first use.
// Load errors fall back to defaults; the caller warned separately.
func Global() *Config {
	globalOnce.Do(func() {
		path, err := Path()
		if err != nil {
			global = Default()
			return
		}
		cfg, err := Load(path)
		if err != nil {
			cfg = Default()
			applyEnvOverrides(cfg)
			normalize(cfg)
		}
		global = cfg
	})
	return global
}
