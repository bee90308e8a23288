// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package model defines the normalized data types shared by every backend
// adapter, the registry, the event hub and the server façade.
package model

import "time"

// ContentBlock is the normalized tagged union of message content. Exactly
// one of the type-specific fields is populated, matching Type.
type ContentBlock struct {
	Type string `json:"type"` // text | thinking | tool_use | tool_result | image

	Text string `json:"text,omitempty"`

	ToolName  string                 `json:"tool_name,omitempty"`
	ToolID    string                 `json:"tool_id,omitempty"`
	ToolInput map[string]interface{} `json:"tool_input,omitempty"`

	ToolUseID string      `json:"tool_use_id,omitempty"`
	Content   interface{} `json:"content,omitempty"` // string or []ContentBlock-ish
	IsError   bool        `json:"is_error,omitempty"`

	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
}

// ModelUsage is the per-model slice of a session's cumulative token usage.
type ModelUsage struct {
	Model            string  `json:"model"`
	InputTokens      int64   `json:"input_tokens"`
	OutputTokens     int64   `json:"output_tokens"`
	CacheReadTokens  int64   `json:"cache_read_tokens"`
	CacheWriteTokens int64   `json:"cache_creation_tokens"`
	CostUSD          float64 `json:"cost_usd"`
}

// Usage is a session's cumulative token accounting.
type Usage struct {
	InputTokens      int64        `json:"input_tokens"`
	OutputTokens     int64        `json:"output_tokens"`
	CacheReadTokens  int64        `json:"cache_read_tokens"`
	CacheWriteTokens int64        `json:"cache_creation_tokens"`
	CostUSD          float64      `json:"cost_usd"`
	PerModel         []ModelUsage `json:"per_model,omitempty"`
}

// Add accumulates another usage sample in place.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.CacheReadTokens += other.CacheReadTokens
	u.CacheWriteTokens += other.CacheWriteTokens
	u.CostUSD += other.CostUSD
	for _, pm := range other.PerModel {
		u.mergeModel(pm)
	}
}

func (u *Usage) mergeModel(pm ModelUsage) {
	for i := range u.PerModel {
		if u.PerModel[i].Model == pm.Model {
			u.PerModel[i].InputTokens += pm.InputTokens
			u.PerModel[i].OutputTokens += pm.OutputTokens
			u.PerModel[i].CacheReadTokens += pm.CacheReadTokens
			u.PerModel[i].CacheWriteTokens += pm.CacheWriteTokens
			u.PerModel[i].CostUSD += pm.CostUSD
			return
		}
	}
	u.PerModel = append(u.PerModel, pm)
}

// Message is a normalized transcript record.
type Message struct {
	Role       string         `json:"role"` // user | assistant
	Timestamp  time.Time      `json:"timestamp"`
	Content    []ContentBlock `json:"content"`
	Model      string         `json:"model,omitempty"`
	StopReason string         `json:"stop_reason,omitempty"`
	Usage      *Usage         `json:"usage,omitempty"`
}

// Metadata is what an adapter reports about a transcript at discovery time.
type Metadata struct {
	ProjectName     string
	ProjectPath     string
	FirstMessage    string
	StartedAt       time.Time
	IsSubagent      bool
	ParentSessionID string
}

// CommandSpec is a backend-agnostic description of a CLI invocation.
type CommandSpec struct {
	Argv   []string
	Stdin  string
	Dir    string
	Env    []string // additional KEY=VALUE entries, appended to os.Environ()
	Stdout bool     // capture stdout (machine-readable mode requested)
}

// Summary holds the sidecar summary fields for a session.
type Summary struct {
	Title            string `json:"title"`
	ShortSummary     string `json:"short_summary"`
	ExecutiveSummary string `json:"executive_summary"`
	Branch           string `json:"branch,omitempty"`
	RawResponse      string `json:"raw_response,omitempty"` // debug-only, never read back
}

// PermissionDenial is a single denied tool-call, classified.
type PermissionDenial struct {
	ToolName        string                 `json:"tool_name"`
	ToolUseID       string                 `json:"tool_use_id"`
	ToolInput       map[string]interface{} `json:"tool_input"`
	IsSandboxDenial bool                   `json:"is_sandbox_denial"`
	ErrorMessage    string                 `json:"error_message"`
}

// GrantOption is one offered permission grant tier for a denied tool call.
type GrantOption struct {
	Label   string `json:"label"`
	Value   string `json:"value"`
	Example string `json:"example"`
}
