// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package export turns a session transcript into a standalone Markdown
// or HTML document: goldmark converts transcript Markdown content to
// HTML fragments, and a quicktemplate page wraps them.
package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/valyala/bytebufferpool"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/wingedpig/sessiontail/internal/model"
)

var mdRenderer = goldmark.New(goldmark.WithExtensions(extension.GFM))

// RenderMarkdown converts a block of transcript Markdown (assistant text
// content) to HTML fragment.
func RenderMarkdown(src string) (string, error) {
	var buf bytes.Buffer
	if err := mdRenderer.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("rendering markdown: %w", err)
	}
	return buf.String(), nil
}

// TranscriptToHTML renders a full transcript as a standalone HTML page:
// each message's text/thinking blocks go through goldmark, tool
// invocations are rendered as a labeled code block, and the whole page is
// composed via the quicktemplate-generated ExportPage template.
func TranscriptToHTML(title string, messages []model.Message) (string, error) {
	body := bytebufferpool.Get()
	defer bytebufferpool.Put(body)
	for _, msg := range messages {
		sectionHTML, err := renderMessage(msg)
		if err != nil {
			return "", err
		}
		body.WriteString(sectionHTML)
	}
	return ExportPage(title, body.String()), nil
}

func renderMessage(msg model.Message) (string, error) {
	var out strings.Builder
	out.WriteString(fmt.Sprintf("<section class=\"message %s\">\n", escapeAttr(msg.Role)))
	for _, block := range msg.Content {
		switch block.Type {
		case "text", "thinking":
			html, err := RenderMarkdown(block.Text)
			if err != nil {
				return "", err
			}
			out.WriteString(html)
		case "tool_use":
			out.WriteString(fmt.Sprintf("<pre class=\"tool-use\">%s(...)</pre>\n", escapeAttr(block.ToolName)))
		case "tool_result":
			if s, ok := block.Content.(string); ok {
				html, err := RenderMarkdown(s)
				if err != nil {
					return "", err
				}
				out.WriteString(fmt.Sprintf("<div class=\"tool-result\">%s</div>\n", html))
			}
		}
	}
	out.WriteString("</section>\n")
	return out.String(), nil
}

func roleTitle(role string) string {
	if role == "" {
		return role
	}
	return strings.ToUpper(role[:1]) + role[1:]
}

func escapeAttr(s string) string {
	r := strings.NewReplacer("&", "&amp;", "\"", "&quot;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}

// TranscriptToMarkdown renders a transcript as a standalone Markdown
// document, a plain-text sibling of TranscriptToHTML that needs no HTML
// renderer.
func TranscriptToMarkdown(title string, messages []model.Message) string {
	var out strings.Builder
	out.WriteString("# " + title + "\n\n")
	for _, msg := range messages {
		out.WriteString(fmt.Sprintf("## %s — %s\n\n", roleTitle(msg.Role), msg.Timestamp.Format("2006-01-02 15:04:05")))
		for _, block := range msg.Content {
			switch block.Type {
			case "text", "thinking":
				out.WriteString(block.Text)
				out.WriteString("\n\n")
			case "tool_use":
				out.WriteString(fmt.Sprintf("> **%s**(...)\n\n", block.ToolName))
			case "tool_result":
				if s, ok := block.Content.(string); ok {
					out.WriteString("```\n" + s + "\n```\n\n")
				}
			}
		}
	}
	return out.String()
}
