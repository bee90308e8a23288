// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package backend defines the adapter contract implemented by the two
// concrete transcript formats (claudecode, opencode) and by the
// multi-backend aggregator that unions them.
package backend

import (
	"context"

	"github.com/wingedpig/sessiontail/internal/model"
)

// Tailer is a stateful incremental reader over one session's transcript.
// A single Tailer instance is owned by the registry entry for its session;
// it is never shared or called concurrently.
type Tailer interface {
	// ReadAll replays every message in the transcript, non-destructively
	// (does not advance the cursor used by ReadNew).
	ReadAll() ([]model.Message, error)

	// ReadNew returns messages emitted since the last ReadNew/SeekToEnd
	// call and advances the cursor.
	ReadNew() ([]model.Message, error)

	// SeekToEnd advances the cursor to the current end of the transcript
	// without emitting anything.
	SeekToEnd() error

	GetFirstTimestamp() (string, error)
	GetLastMessageTimestamp() (int64, bool)

	// WaitingForInput reports whether the transcript's tail indicates the
	// assistant is done and awaiting a follow-up from the user.
	WaitingForInput() bool
}

// Backend is the capability set a transcript format plus its CLI expose
// to the rest of the daemon.
type Backend interface {
	Name() string
	CLICommand() string

	FindRecent(limit int, includeSubagents bool) ([]string, error)
	SessionID(path string) string
	Metadata(path string) (model.Metadata, error)
	HasMessages(path string) bool
	CreateTailer(path string) (Tailer, error)
	TokenUsage(path string) (model.Usage, error)
	GetModel(path string) string

	SupportsSend() bool
	SupportsFork() bool
	SupportsPermissionDetection() bool

	IsCLIAvailable() bool
	CLIInstallInstructions() string

	BuildSendCommand(ctx context.Context, path, message string, opts CommandOptions) (model.CommandSpec, error)
	BuildForkCommand(ctx context.Context, path, message string, opts CommandOptions) (model.CommandSpec, error)
	BuildNewSessionCommand(ctx context.Context, cwd, message string, opts CommandOptions) (model.CommandSpec, error)

	Models() []string

	ShouldWatchFile(path string, includeSubagents bool) bool
	SessionIDFromChangedFile(path string) (string, bool)
	IsSummaryFile(path string) bool
}

// CommandOptions carries the per-call knobs a supervisor passes down into
// command construction: permission-detection mode, thinking budget, model
// selection, and the sandbox allow-list to thread through as --add-dir-style
// flags.
type CommandOptions struct {
	MachineReadable bool
	NoPersist       bool // read session context without appending to the transcript
	ThinkingBudget  int
	Model           string
	AllowedDirs     []string
	SkipPermissions bool
}
