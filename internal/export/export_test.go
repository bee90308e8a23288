// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package export

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wingedpig/sessiontail/internal/model"
)

func TestRenderMarkdownProducesHTML(t *testing.T) {
	html, err := RenderMarkdown("# Hello\n\nSome **bold** text.")
	require.NoError(t, err)
	assert.Contains(t, html, "<h1>Hello</h1>")
	assert.Contains(t, html, "<strong>bold</strong>")
}

func TestTranscriptToHTMLComposesPage(t *testing.T) {
	messages := []model.Message{
		{
			Role:      "user",
			Timestamp: time.Now(),
			Content:   []model.ContentBlock{{Type: "text", Text: "hi there"}},
		},
		{
			Role:      "assistant",
			Timestamp: time.Now(),
			Content: []model.ContentBlock{
				{Type: "text", Text: "sure, one sec"},
				{Type: "tool_use", ToolName: "Bash", ToolInput: map[string]interface{}{"command": "ls"}},
			},
		},
	}

	html, err := TranscriptToHTML("My Session", messages)
	require.NoError(t, err)
	assert.Contains(t, html, "<title>My Session</title>")
	assert.Contains(t, html, "hi there")
	assert.Contains(t, html, "Bash(...)")
	assert.True(t, strings.HasPrefix(html, "<!doctype html>"))
}

func TestRenderTerminalPreviewRenders(t *testing.T) {
	out, err := RenderTerminalPreview("# Title\n\nbody text", 60)
	require.NoError(t, err)
	assert.NotEmpty(t, out)
}
