// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package opencode

import (
	"time"

	"github.com/wingedpig/sessiontail/internal/model"
)

// placeholderText is the known placeholder string an assistant message can
// contain alone; it is skipped unless the record carries a non-null
// stop_reason.
const placeholderText = "(no content)"

// normalize maps OpenCode's message+parts shape to the unified
// content-block union: reasoning -> thinking; completed tool ->
// tool_use + tool_result; errored tool -> tool_result{is_error};
// pending tool -> tool_use alone. Step markers and snapshots are
// dropped.
func normalize(info messageInfo, parts []partInfo) model.Message {
	msg := model.Message{
		Role:      info.Role,
		Timestamp: time.UnixMilli(firstNonZero(info.Time.Updated, info.Time.Created)).UTC(),
		Model:     info.ModelID,
	}

	var stopReason string
	for _, p := range parts {
		switch p.Type {
		case "text":
			msg.Content = append(msg.Content, model.ContentBlock{Type: "text", Text: p.Text})
		case "reasoning":
			msg.Content = append(msg.Content, model.ContentBlock{Type: "thinking", Text: p.Text})
		case "tool":
			msg.Content = append(msg.Content, toolBlocks(p)...)
		case "step-finish":
			stopReason = "end_turn"
		case "step-start":
			// dropped: internal step marker
		default:
			// snapshots/patches and any other adapter-internal types dropped
		}
	}

	if len(msg.Content) == 1 && msg.Content[0].Type == "text" && msg.Content[0].Text == placeholderText {
		if stopReason == "" {
			msg.Content = nil
		} else {
			msg.StopReason = stopReason
		}
	} else if stopReason != "" {
		msg.StopReason = stopReason
	}

	msg.Usage = usageFromParts(info, parts)
	return msg
}

func toolBlocks(p partInfo) []model.ContentBlock {
	input, _ := p.State.Input.(map[string]interface{})
	use := model.ContentBlock{
		Type:      "tool_use",
		ToolName:  p.Tool,
		ToolID:    p.CallID,
		ToolInput: input,
	}
	switch p.State.Status {
	case "completed":
		return []model.ContentBlock{use, {
			Type:      "tool_result",
			ToolUseID: p.CallID,
			Content:   p.State.Output,
		}}
	case "error":
		return []model.ContentBlock{use, {
			Type:      "tool_result",
			ToolUseID: p.CallID,
			Content:   p.State.Error,
			IsError:   true,
		}}
	default: // pending
		return []model.ContentBlock{use}
	}
}

// usageFromParts extracts usage from the message's top-level tokens or, if
// absent, the last step-finish part's tokens.
func usageFromParts(info messageInfo, parts []partInfo) *model.Usage {
	tok := info.Tokens
	if tok == nil {
		for i := len(parts) - 1; i >= 0; i-- {
			if parts[i].Type == "step-finish" && parts[i].Tokens != nil {
				tok = parts[i].Tokens
				break
			}
		}
	}
	if tok == nil {
		return nil
	}
	return &model.Usage{
		InputTokens:      tok.Input,
		OutputTokens:     tok.Output,
		CacheReadTokens:  tok.Cache.Read,
		CacheWriteTokens: tok.Cache.Write,
		CostUSD:          costUSD(info.ModelID, tok.Input, tok.Output, tok.Cache.Read, tok.Cache.Write),
	}
}

func firstNonZero(a, b int64) int64 {
	if a != 0 {
		return a
	}
	return b
}
