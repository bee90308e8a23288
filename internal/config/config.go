// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package config loads the daemon's configuration record from an HJSON
// file: read raw HJSON into a map, re-marshal to JSON, unmarshal into
// the typed struct, then apply defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	hjson "github.com/hjson/hjson-go/v4"
)

// Config is the daemon's configuration record.
type Config struct {
	Host string `json:"host"`
	Port int    `json:"port"`

	MaxSessions         int    `json:"max_sessions"`
	SendEnabled         bool   `json:"send_enabled"`
	ForkEnabled         bool   `json:"fork_enabled"`
	SkipPermissions     bool   `json:"skip_permissions"`
	DefaultSendBackend  string `json:"default_send_backend"`
	IncludeSubagents    bool   `json:"include_subagents"`
	ThinkingBudget      int    `json:"thinking_budget"`
	SummarizeAfterIdleS int    `json:"summarize_after_idle_s"`
	IdleSummaryModel    string `json:"idle_summary_model"`
	SummaryAfterLongS   int    `json:"summary_after_long_running_s"`
	SummaryLogPath      string `json:"summary_log_path"`

	ClaudeProjectsDir string `json:"claude_projects_dir"`
	OpenCodeDataDir   string `json:"opencode_data_dir"`

	TLSCert      string `json:"tls_cert"`
	TLSKey       string `json:"tls_key"`
	TLSTailscale bool   `json:"tls_tailscale"`

	ConfigDir string `json:"config_dir"` // ~/.config/<app>, for allowed-dirs/prefs
}

// Loader reads a Config from an HJSON file on disk.
type Loader struct{}

// NewLoader returns a Loader.
func NewLoader() *Loader { return &Loader{} }

// Load reads and parses the HJSON config file at path.
func (l *Loader) Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var raw map[string]interface{}
	if err := hjson.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing hjson config %s: %w", path, err)
	}

	jsonBytes, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("re-marshaling config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(jsonBytes, &cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	applyDefaults(&cfg)
	if _, ok := raw["send_enabled"]; !ok {
		cfg.SendEnabled = true
	}
	if _, ok := raw["fork_enabled"]; !ok {
		cfg.ForkEnabled = true
	}
	return &cfg, nil
}

// LoadWithDefaults loads path if it exists, or returns pure defaults if the
// path is empty or missing.
func (l *Loader) LoadWithDefaults(path string) (*Config, error) {
	if path == "" {
		cfg := &Config{SendEnabled: true, ForkEnabled: true}
		applyDefaults(cfg)
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := &Config{SendEnabled: true, ForkEnabled: true}
		applyDefaults(cfg)
		return cfg, nil
	}
	return l.Load(path)
}

// FindConfig looks for sessiontail.hjson or sessiontail.json in cwd.
func (l *Loader) FindConfig() (string, bool) {
	for _, name := range []string{"sessiontail.hjson", "sessiontail.json"} {
		if _, err := os.Stat(name); err == nil {
			abs, err := filepath.Abs(name)
			if err == nil {
				return abs, true
			}
			return name, true
		}
	}
	return "", false
}

func applyDefaults(cfg *Config) {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8420
	}
	if cfg.MaxSessions == 0 {
		cfg.MaxSessions = 100
	}
	if cfg.DefaultSendBackend == "" {
		cfg.DefaultSendBackend = "claude-code"
	}
	if cfg.ThinkingBudget == 0 {
		cfg.ThinkingBudget = 4096
	}
	if cfg.SummarizeAfterIdleS == 0 {
		cfg.SummarizeAfterIdleS = 120
	}
	if cfg.IdleSummaryModel == "" {
		cfg.IdleSummaryModel = "haiku"
	}
	if cfg.SummaryAfterLongS == 0 {
		cfg.SummaryAfterLongS = 600
	}
	if cfg.ClaudeProjectsDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.ClaudeProjectsDir = filepath.Join(home, ".claude", "projects")
		}
	}
	if cfg.OpenCodeDataDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.OpenCodeDataDir = filepath.Join(home, ".local", "share", "opencode")
		}
	}
	if cfg.ConfigDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.ConfigDir = filepath.Join(home, ".config", "sessiontail")
		}
	}
}
