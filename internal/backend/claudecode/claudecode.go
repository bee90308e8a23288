// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package claudecode

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/wingedpig/sessiontail/internal/backend"
	"github.com/wingedpig/sessiontail/internal/model"
)

func firstTimestampAsTime(ts string) (time.Time, error) {
	return time.Parse(time.RFC3339, ts)
}

// Backend implements backend.Backend for Claude Code's JSON-lines
// transcript format (~/.claude/projects/<encoded-path>/<uuid>.jsonl).
type Backend struct {
	ProjectsDir string
	CLIPath     string // resolved lazily via exec.LookPath("claude") if empty
}

// New constructs the Claude Code backend adapter.
func New(projectsDir string) *Backend {
	return &Backend{ProjectsDir: projectsDir}
}

func (b *Backend) Name() string { return "claude-code" }
func (b *Backend) CLICommand() string { return "claude" }

func (b *Backend) Models() []string {
	return []string{"opus", "sonnet", "haiku", "claude-opus-4-5", "claude-sonnet-4-5", "claude-haiku-4-5"}
}

func (b *Backend) FindRecent(limit int, includeSubagents bool) ([]string, error) {
	return findRecent(b.ProjectsDir, limit, includeSubagents)
}

func (b *Backend) SessionID(path string) string { return sessionIDFromPath(path) }

func (b *Backend) Metadata(path string) (model.Metadata, error) {
	name, projectPath := getSessionName(path)
	md := model.Metadata{
		ProjectName: name,
		ProjectPath: projectPath,
	}
	if isSubagentSession(path) {
		md.IsSubagent = true
		md.ProjectName = "[subagent] " + md.ProjectName
		md.ParentSessionID = parentSessionID(path)
	}

	t := NewTailer(path)
	if ts, err := t.GetFirstTimestamp(); err == nil {
		if parsed, perr := firstTimestampAsTime(ts); perr == nil {
			md.StartedAt = parsed
		}
	}
	if first, ok := firstUserMessage(path); ok {
		md.FirstMessage = first
	}
	return md, nil
}

func (b *Backend) HasMessages(path string) bool { return hasMessages(path) }

func (b *Backend) CreateTailer(path string) (backend.Tailer, error) {
	return NewTailer(path), nil
}

func (b *Backend) TokenUsage(path string) (model.Usage, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.Usage{}, fmt.Errorf("opening transcript %s: %w", path, err)
	}
	defer f.Close()

	var usage model.Usage
	perModel := map[string]*model.ModelUsage{}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var rec rawRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		if rec.Type != "assistant" {
			continue
		}
		var rm rawMessage
		if len(rec.Message) > 0 {
			_ = json.Unmarshal(rec.Message, &rm)
		}
		if rm.Usage == nil {
			continue
		}
		pm := perModel[rm.Model]
		if pm == nil {
			pm = &model.ModelUsage{Model: rm.Model}
			perModel[rm.Model] = pm
		}
		pm.InputTokens += rm.Usage.InputTokens
		pm.OutputTokens += rm.Usage.OutputTokens
		pm.CacheReadTokens += rm.Usage.CacheReadInputTokens
		pm.CacheWriteTokens += rm.Usage.CacheCreationInputTokens
		pm.CostUSD += costUSD(rm.Model, rm.Usage.InputTokens, rm.Usage.OutputTokens,
			rm.Usage.CacheReadInputTokens, rm.Usage.CacheCreationInputTokens)

		usage.InputTokens += rm.Usage.InputTokens
		usage.OutputTokens += rm.Usage.OutputTokens
		usage.CacheReadTokens += rm.Usage.CacheReadInputTokens
		usage.CacheWriteTokens += rm.Usage.CacheCreationInputTokens
	}
	for _, pm := range perModel {
		usage.CostUSD += pm.CostUSD
		usage.PerModel = append(usage.PerModel, *pm)
	}
	return usage, scanner.Err()
}

func (b *Backend) GetModel(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		var rec rawRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		if rec.Type != "assistant" {
			continue
		}
		var rm rawMessage
		if len(rec.Message) > 0 {
			_ = json.Unmarshal(rec.Message, &rm)
		}
		if rm.Model != "" {
			return rm.Model
		}
	}
	return ""
}

func (b *Backend) SupportsSend() bool { return true }
func (b *Backend) SupportsFork() bool { return true }
func (b *Backend) SupportsPermissionDetection() bool { return true }

func (b *Backend) IsCLIAvailable() bool {
	_, err := b.resolveCLI()
	return err == nil
}

func (b *Backend) CLIInstallInstructions() string {
	return "Install the Claude Code CLI: npm install -g @anthropic-ai/claude-code"
}

func (b *Backend) resolveCLI() (string, error) {
	if b.CLIPath != "" {
		return b.CLIPath, nil
	}
	return exec.LookPath("claude")
}

func (b *Backend) BuildSendCommand(ctx context.Context, path, message string, opts backend.CommandOptions) (model.CommandSpec, error) {
	cli, err := b.resolveCLI()
	if err != nil {
		return model.CommandSpec{}, fmt.Errorf("claude CLI not available: %w", err)
	}
	_, projectPath := getSessionName(path)
	sessionID := sessionIDFromPath(path)

	argv := []string{cli, "--resume", sessionID, "-p", message}
	argv = append(argv, commonFlags(opts)...)

	return model.CommandSpec{
		Argv:   argv,
		Dir:    projectPath,
		Env:    envFor(opts),
		Stdout: opts.MachineReadable || opts.NoPersist,
	}, nil
}

func (b *Backend) BuildForkCommand(ctx context.Context, path, message string, opts backend.CommandOptions) (model.CommandSpec, error) {
	cli, err := b.resolveCLI()
	if err != nil {
		return model.CommandSpec{}, fmt.Errorf("claude CLI not available: %w", err)
	}
	_, projectPath := getSessionName(path)
	sessionID := sessionIDFromPath(path)

	argv := []string{cli, "--fork-session", "--resume", sessionID, "-p", message}
	argv = append(argv, commonFlags(opts)...)

	return model.CommandSpec{
		Argv:   argv,
		Dir:    projectPath,
		Env:    envFor(opts),
		Stdout: opts.MachineReadable || opts.NoPersist,
	}, nil
}

func (b *Backend) BuildNewSessionCommand(ctx context.Context, cwd, message string, opts backend.CommandOptions) (model.CommandSpec, error) {
	cli, err := b.resolveCLI()
	if err != nil {
		return model.CommandSpec{}, fmt.Errorf("claude CLI not available: %w", err)
	}

	argv := []string{cli, "-p", message}
	argv = append(argv, commonFlags(opts)...)

	return model.CommandSpec{
		Argv:   argv,
		Dir:    cwd,
		Env:    envFor(opts),
		Stdout: opts.MachineReadable || opts.NoPersist,
	}, nil
}

func commonFlags(opts backend.CommandOptions) []string {
	var flags []string
	if opts.NoPersist {
		// Read the session context without the run landing in the
		// transcript, used by the summarizer.
		flags = append(flags, "--no-session-persistence", "--output-format", "json")
	} else if opts.MachineReadable {
		flags = append(flags, "--output-format", "stream-json", "--include-partial-messages", "--verbose")
	}
	if opts.Model != "" {
		flags = append(flags, "--model", opts.Model)
	}
	if opts.SkipPermissions {
		flags = append(flags, "--dangerously-skip-permissions")
	}
	for _, dir := range opts.AllowedDirs {
		flags = append(flags, "--add-dir", dir)
	}
	return flags
}

func envFor(opts backend.CommandOptions) []string {
	if opts.ThinkingBudget <= 0 {
		return nil
	}
	return []string{fmt.Sprintf("MAX_THINKING_TOKENS=%d", opts.ThinkingBudget)}
}

func (b *Backend) ShouldWatchFile(path string, includeSubagents bool) bool {
	if strings.HasSuffix(path, ".jsonl") {
		if !includeSubagents && isSubagentSession(path) {
			return false
		}
		return true
	}
	return isSummaryFile(path)
}

func (b *Backend) SessionIDFromChangedFile(path string) (string, bool) {
	if isSummaryFile(path) {
		return sessionIDFromSummaryFile(path), true
	}
	if strings.HasSuffix(path, ".jsonl") {
		return sessionIDFromPath(path), true
	}
	return "", false
}

func (b *Backend) IsSummaryFile(path string) bool { return isSummaryFile(path) }

func firstUserMessage(path string) (string, bool) {
	f, err := os.Open(path)
	if err != nil {
		return "", false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var rec rawRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		if rec.Type != "user" {
			continue
		}
		var rm rawMessage
		if len(rec.Message) > 0 {
			_ = json.Unmarshal(rec.Message, &rm)
		}
		blocks := parseContent(rm.Content)
		for _, blk := range blocks {
			if blk.Type == "text" {
				return blk.Text, true
			}
		}
		return "", false
	}
	return "", false
}
