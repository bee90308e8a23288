// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package permission is the permission interceptor: it parses a CLI's
// machine-readable stdout for tool-denial records, classifies each as a
// sandbox or tool-permission denial, generates the grant options a
// client can offer, and merges a grant into a project's settings file.
package permission

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/wingedpig/sessiontail/internal/model"
)

// sandboxDenialPatterns are substrings in a tool's error message that
// indicate a directory/sandbox restriction rather than a tool-permission
// denial.
var sandboxDenialPatterns = []string{
	"was blocked. For security, Claude Code may only",
	"only list files in the allowed working directories",
	"only access files within",
}

// IsSandboxDenial reports whether an error message indicates a sandbox
// denial rather than a tool-permission denial.
func IsSandboxDenial(message string) bool {
	for _, pattern := range sandboxDenialPatterns {
		if strings.Contains(message, pattern) {
			return true
		}
	}
	return false
}

type rawContentBlock struct {
	Type      string `json:"type"`
	ToolUseID string `json:"tool_use_id"`
	IsError   bool   `json:"is_error"`
	Content   string `json:"content"`
}

type rawMessage struct {
	Content []rawContentBlock `json:"content"`
}

type rawStreamRecord struct {
	Type              string          `json:"type"`
	Message           rawMessage      `json:"message"`
	ToolUseResult     json.RawMessage `json:"tool_use_result"`
	PermissionDenials []rawDenial     `json:"permission_denials"`
}

type rawDenial struct {
	ToolName  string                 `json:"tool_name"`
	ToolUseID string                 `json:"tool_use_id"`
	ToolInput map[string]interface{} `json:"tool_input"`
}

// ParseDenials performs a two-pass parse over the child's
// full captured stdout (newline-delimited JSON in the CLI's stream-json
// machine-readable mode): first collecting tool-error messages keyed by
// tool_use_id, then locating the "result" record's permission_denials
// array and enriching each entry with its error message and
// sandbox-vs-tool classification.
func ParseDenials(stdout string) []model.PermissionDenial {
	toolErrors := map[string]string{}

	for _, line := range strings.Split(strings.TrimSpace(stdout), "\n") {
		if line == "" {
			continue
		}
		var rec rawStreamRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue
		}
		if rec.Type != "user" {
			continue
		}
		for _, blk := range rec.Message.Content {
			if blk.Type == "tool_result" && blk.IsError && blk.ToolUseID != "" {
				toolErrors[blk.ToolUseID] = blk.Content
			}
		}
	}

	var out []model.PermissionDenial
	for _, line := range strings.Split(strings.TrimSpace(stdout), "\n") {
		if line == "" {
			continue
		}
		var rec rawStreamRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue
		}
		if rec.Type != "result" {
			continue
		}
		for _, d := range rec.PermissionDenials {
			errMsg := toolErrors[d.ToolUseID]
			out = append(out, model.PermissionDenial{
				ToolName:        d.ToolName,
				ToolUseID:       d.ToolUseID,
				ToolInput:       d.ToolInput,
				ErrorMessage:    errMsg,
				IsSandboxDenial: IsSandboxDenial(errMsg),
			})
		}
		break
	}
	return out
}

// GrantOptions generates the tool-shaped permission grant tiers. Bash
// gets up to three: the exact command, the command base with any further
// arguments (only when the command has at least two words), and all
// commands with this executable. File tools get the
// exact path and the whole tool; everything else gets the tool name.
func GrantOptions(toolName string, toolInput map[string]interface{}) []model.GrantOption {
	switch toolName {
	case "Bash":
		command, _ := toolInput["command"].(string)
		parts := strings.Fields(command)
		firstWord := command
		if len(parts) > 0 {
			firstWord = parts[0]
		}

		opts := []model.GrantOption{{
			Label:   "Allow this exact command",
			Value:   fmt.Sprintf("Bash(%s)", command),
			Example: command,
		}}

		if len(parts) >= 2 {
			firstTwo := strings.Join(parts[:2], " ")
			opts = append(opts, model.GrantOption{
				Label:   "Allow with any arguments",
				Value:   fmt.Sprintf("Bash(%s:*)", firstTwo),
				Example: firstTwo + " ...",
			})
		}

		opts = append(opts, model.GrantOption{
			Label:   fmt.Sprintf("Allow all %s commands", firstWord),
			Value:   fmt.Sprintf("Bash(%s:*)", firstWord),
			Example: firstWord + " ...",
		})
		return opts

	case "Read", "Write", "Edit":
		filePath, _ := toolInput["file_path"].(string)
		if filePath == "" {
			filePath, _ = toolInput["path"].(string)
		}
		return []model.GrantOption{
			{Label: "Allow this exact file", Value: fmt.Sprintf("%s(%s)", toolName, filePath), Example: filePath},
			{Label: fmt.Sprintf("Allow all %s operations", toolName), Value: toolName, Example: "Any file"},
		}

	default:
		return []model.GrantOption{
			{Label: fmt.Sprintf("Allow %s", toolName), Value: toolName, Example: "All operations"},
		}
	}
}

// SettingsPath returns the project's Claude-style settings file path,
// <projectPath>/.claude/settings.json.
func SettingsPath(projectPath string) string {
	return filepath.Join(projectPath, ".claude", "settings.json")
}

// UpdatePermissionsFile merges newPermissions into settingsPath's
// permissions.allow array, creating the file and parent directories if
// needed, preserving all other keys, and skipping duplicates. An
// advisory file lock guards the read-modify-write against a concurrent
// grant on the same settings file.
func UpdatePermissionsFile(settingsPath string, newPermissions []string) error {
	if err := os.MkdirAll(filepath.Dir(settingsPath), 0o755); err != nil {
		return fmt.Errorf("creating settings dir: %w", err)
	}

	lock := flock.New(settingsPath + ".lock")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if locked, err := lock.TryLockContext(ctx, 50*time.Millisecond); err == nil && locked {
		defer lock.Unlock()
	}

	settings := map[string]interface{}{}
	if data, err := os.ReadFile(settingsPath); err == nil {
		_ = json.Unmarshal(data, &settings) // invalid JSON starts fresh
	}

	perms, _ := settings["permissions"].(map[string]interface{})
	if perms == nil {
		perms = map[string]interface{}{}
	}
	var allow []string
	if rawAllow, ok := perms["allow"].([]interface{}); ok {
		for _, v := range rawAllow {
			if s, ok := v.(string); ok {
				allow = append(allow, s)
			}
		}
	}

	existing := map[string]bool{}
	for _, p := range allow {
		existing[p] = true
	}
	for _, p := range newPermissions {
		if !existing[p] {
			allow = append(allow, p)
			existing[p] = true
		}
	}
	sort.Strings(allow) // stable, readable settings.json across runs

	perms["allow"] = allow
	settings["permissions"] = perms

	out, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling settings: %w", err)
	}
	out = append(out, '\n')
	return os.WriteFile(settingsPath, out, 0o644)
}

