// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package opencode

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/wingedpig/sessiontail/internal/backend"
	"github.com/wingedpig/sessiontail/internal/model"
)

// Backend implements backend.Backend for the OpenCode directory-of-JSON
// transcript format.
type Backend struct {
	DataDir string
	CLIPath string
}

// New constructs the OpenCode backend adapter rooted at dataDir (typically
// ~/.local/share/opencode).
func New(dataDir string) *Backend {
	return &Backend{DataDir: dataDir}
}

func (b *Backend) Name() string { return "opencode" }
func (b *Backend) CLICommand() string { return "opencode" }

func (b *Backend) Models() []string {
	return []string{"claude-opus-4-5", "claude-sonnet-4-5", "claude-haiku-4-5", "gpt-5", "gpt-5-mini"}
}

func (b *Backend) FindRecent(limit int, includeSubagents bool) ([]string, error) {
	// OpenCode has no subagent concept; includeSubagents is a no-op here.
	return findRecent(b.DataDir, limit)
}

func (b *Backend) SessionID(path string) string {
	_, id, ok := splitSessionPathKey(path)
	if !ok {
		return path
	}
	return id
}

func (b *Backend) Metadata(path string) (model.Metadata, error) {
	root, id, ok := splitSessionPathKey(path)
	if !ok {
		return model.Metadata{}, fmt.Errorf("malformed opencode session key %q", path)
	}
	info, _ := readSessionInfo(root, id)

	md := model.Metadata{
		ProjectName: info.Title,
		ProjectPath: info.Directory,
	}
	if md.ProjectName == "" {
		md.ProjectName = id
	}

	t := NewTailer(root, id)
	if ts, err := t.GetFirstTimestamp(); err == nil {
		if parsed, perr := parseRFC3339(ts); perr == nil {
			md.StartedAt = parsed
		}
	}
	files, err := t.listMessageFiles()
	if err == nil {
		for _, f := range files {
			msgInfo, ok := t.readMessage(f)
			if !ok {
				continue
			}
			if msgInfo.Role != "user" {
				continue
			}
			parts := t.readParts(msgInfo.ID)
			for _, p := range parts {
				if p.Type == "text" && p.Text != "" {
					md.FirstMessage = p.Text
					break
				}
			}
			if md.FirstMessage != "" {
				break
			}
		}
	}
	return md, nil
}

func (b *Backend) HasMessages(path string) bool {
	root, id, ok := splitSessionPathKey(path)
	if !ok {
		return false
	}
	return hasMessages(root, id)
}

func (b *Backend) CreateTailer(path string) (backend.Tailer, error) {
	root, id, ok := splitSessionPathKey(path)
	if !ok {
		return nil, fmt.Errorf("malformed opencode session key %q", path)
	}
	return NewTailer(root, id), nil
}

func (b *Backend) TokenUsage(path string) (model.Usage, error) {
	root, id, ok := splitSessionPathKey(path)
	if !ok {
		return model.Usage{}, fmt.Errorf("malformed opencode session key %q", path)
	}
	t := NewTailer(root, id)
	files, err := t.listMessageFiles()
	if err != nil {
		return model.Usage{}, err
	}

	var usage model.Usage
	perModel := map[string]*model.ModelUsage{}
	for _, f := range files {
		info, ok := t.readMessage(f)
		if !ok {
			continue
		}
		parts := t.readParts(info.ID)
		u := usageFromParts(info, parts)
		if u == nil {
			continue
		}
		usage.InputTokens += u.InputTokens
		usage.OutputTokens += u.OutputTokens
		usage.CacheReadTokens += u.CacheReadTokens
		usage.CacheWriteTokens += u.CacheWriteTokens

		pm := perModel[info.ModelID]
		if pm == nil {
			pm = &model.ModelUsage{Model: info.ModelID}
			perModel[info.ModelID] = pm
		}
		pm.InputTokens += u.InputTokens
		pm.OutputTokens += u.OutputTokens
		pm.CacheReadTokens += u.CacheReadTokens
		pm.CacheWriteTokens += u.CacheWriteTokens
		pm.CostUSD += u.CostUSD
	}
	for _, pm := range perModel {
		usage.CostUSD += pm.CostUSD
		usage.PerModel = append(usage.PerModel, *pm)
	}
	return usage, nil
}

func (b *Backend) GetModel(path string) string {
	root, id, ok := splitSessionPathKey(path)
	if !ok {
		return ""
	}
	t := NewTailer(root, id)
	files, err := t.listMessageFiles()
	if err != nil {
		return ""
	}
	for _, f := range files {
		info, ok := t.readMessage(f)
		if ok && info.Role == "assistant" && info.ModelID != "" {
			return info.ModelID
		}
	}
	return ""
}

func (b *Backend) SupportsSend() bool { return true }
func (b *Backend) SupportsFork() bool { return false }
func (b *Backend) SupportsPermissionDetection() bool { return false }

func (b *Backend) IsCLIAvailable() bool {
	_, err := b.resolveCLI()
	return err == nil
}

func (b *Backend) CLIInstallInstructions() string {
	return "Install the OpenCode CLI: npm install -g opencode-ai"
}

func (b *Backend) resolveCLI() (string, error) {
	if b.CLIPath != "" {
		return b.CLIPath, nil
	}
	return exec.LookPath("opencode")
}

func (b *Backend) BuildSendCommand(ctx context.Context, path, message string, opts backend.CommandOptions) (model.CommandSpec, error) {
	cli, err := b.resolveCLI()
	if err != nil {
		return model.CommandSpec{}, fmt.Errorf("opencode CLI not available: %w", err)
	}
	root, id, ok := splitSessionPathKey(path)
	if !ok {
		return model.CommandSpec{}, fmt.Errorf("malformed opencode session key %q", path)
	}
	info, _ := readSessionInfo(root, id)

	argv := []string{cli, "run", "--session", id, message}
	if opts.Model != "" {
		argv = append(argv, "--model", opts.Model)
	}
	return model.CommandSpec{Argv: argv, Dir: info.Directory, Env: envFor(opts)}, nil
}

func (b *Backend) BuildForkCommand(ctx context.Context, path, message string, opts backend.CommandOptions) (model.CommandSpec, error) {
	return model.CommandSpec{}, fmt.Errorf("opencode backend does not support fork")
}

func (b *Backend) BuildNewSessionCommand(ctx context.Context, cwd, message string, opts backend.CommandOptions) (model.CommandSpec, error) {
	cli, err := b.resolveCLI()
	if err != nil {
		return model.CommandSpec{}, fmt.Errorf("opencode CLI not available: %w", err)
	}
	argv := []string{cli, "run", message}
	if opts.Model != "" {
		argv = append(argv, "--model", opts.Model)
	}
	return model.CommandSpec{Argv: argv, Dir: cwd, Env: envFor(opts)}, nil
}

func envFor(opts backend.CommandOptions) []string {
	if opts.ThinkingBudget <= 0 {
		return nil
	}
	return []string{fmt.Sprintf("MAX_THINKING_TOKENS=%d", opts.ThinkingBudget)}
}

func (b *Backend) ShouldWatchFile(path string, includeSubagents bool) bool {
	return strings.Contains(path, string(os.PathSeparator)+"message"+string(os.PathSeparator)) ||
		strings.Contains(path, string(os.PathSeparator)+"part"+string(os.PathSeparator)) ||
		b.IsSummaryFile(path)
}

// SessionIDFromChangedFile maps a message/part file change back to its
// owning session. Message files live directly under message/<sessionID>/,
// so the ID comes from the path; a part file's path only names the
// message ID, so the part file itself is read to recover the sessionID
// it embeds.
func (b *Backend) SessionIDFromChangedFile(path string) (string, bool) {
	if b.IsSummaryFile(path) {
		return sessionIDFromSummaryPath(path), true
	}

	sep := string(os.PathSeparator)
	if idx := strings.LastIndex(path, sep+"message"+sep); idx >= 0 {
		rest := path[idx+len(sep+"message"+sep):]
		parts := strings.SplitN(rest, sep, 2)
		if len(parts) >= 1 {
			return parts[0], true
		}
	}
	if strings.Contains(path, sep+"part"+sep) {
		return sessionIDFromPartFile(path)
	}
	return "", false
}

// sessionIDFromPartFile reads a part file's JSON and returns the
// sessionID field it carries.
func sessionIDFromPartFile(path string) (string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	var p partInfo
	if err := json.Unmarshal(data, &p); err != nil {
		return "", false
	}
	if p.SessionID == "" {
		return "", false
	}
	return p.SessionID, true
}

func (b *Backend) IsSummaryFile(path string) bool {
	return strings.HasSuffix(path, "_summary.json")
}
