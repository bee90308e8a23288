// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package claudecode

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/wingedpig/sessiontail/internal/model"
)

// rawRecord is the on-disk shape of one JSON-lines transcript line.
type rawRecord struct {
	Type      string          `json:"type"`
	Timestamp string          `json:"timestamp"`
	Message   json.RawMessage `json:"message"`
}

type rawMessage struct {
	Content    json.RawMessage `json:"content"`
	Model      string          `json:"model"`
	StopReason string          `json:"stop_reason"`
	Usage      *rawUsage       `json:"usage"`
}

type rawUsage struct {
	InputTokens              int64 `json:"input_tokens"`
	OutputTokens             int64 `json:"output_tokens"`
	CacheReadInputTokens     int64 `json:"cache_read_input_tokens"`
	CacheCreationInputTokens int64 `json:"cache_creation_input_tokens"`
}

// Tailer implements backend.Tailer for one JSON-lines transcript file
// using a byte-offset cursor plus a partial-line buffer, so a line
// appended in multiple writes is emitted exactly once, when complete.
type Tailer struct {
	path   string
	offset int64
	buffer []byte

	lastEmittedWaiting bool
}

// NewTailer opens a tailer at byte offset 0.
func NewTailer(path string) *Tailer {
	return &Tailer{path: path}
}

// ReadAll replays the full transcript from byte 0 without touching the
// incremental cursor.
func (t *Tailer) ReadAll() ([]model.Message, error) {
	f, err := os.Open(t.path)
	if err != nil {
		return nil, fmt.Errorf("opening transcript %s: %w", t.path, err)
	}
	defer f.Close()
	return parseLines(f)
}

// ReadNew reads from the stored offset to EOF, emitting only newly
// completed lines and advancing the offset/buffer.
func (t *Tailer) ReadNew() ([]model.Message, error) {
	f, err := os.Open(t.path)
	if err != nil {
		return nil, fmt.Errorf("opening transcript %s: %w", t.path, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat transcript %s: %w", t.path, err)
	}
	if fi.Size() < t.offset {
		// File was truncated/replaced; restart from scratch.
		t.offset = 0
		t.buffer = nil
	}

	if _, err := f.Seek(t.offset, 0); err != nil {
		return nil, fmt.Errorf("seeking transcript %s: %w", t.path, err)
	}

	chunk := make([]byte, fi.Size()-t.offset)
	n, err := f.Read(chunk)
	if err != nil && n == 0 && fi.Size() > t.offset {
		return nil, fmt.Errorf("reading transcript %s: %w", t.path, err)
	}
	chunk = chunk[:n]

	combined := append(t.buffer, chunk...)
	lines := bytes.Split(combined, []byte("\n"))

	// Last fragment may be incomplete; keep it as the new buffer.
	t.buffer = lines[len(lines)-1]
	complete := lines[:len(lines)-1]

	var out []model.Message
	for _, line := range complete {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		msg, ok := parseLine(line)
		if !ok {
			continue
		}
		out = append(out, msg)
	}

	t.offset = fi.Size()
	if len(out) > 0 {
		t.lastEmittedWaiting = computeWaiting(out[len(out)-1])
	}
	return out, nil
}

// SeekToEnd advances the cursor to the current file size without emitting.
func (t *Tailer) SeekToEnd() error {
	fi, err := os.Stat(t.path)
	if err != nil {
		return fmt.Errorf("stat transcript %s: %w", t.path, err)
	}
	t.offset = fi.Size()
	t.buffer = nil
	return nil
}

// GetFirstTimestamp reads the first message's timestamp.
func (t *Tailer) GetFirstTimestamp() (string, error) {
	f, err := os.Open(t.path)
	if err != nil {
		return "", fmt.Errorf("opening transcript %s: %w", t.path, err)
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
		if rec.Type != "user" && rec.Type != "assistant" {
			continue
		}
		return rec.Timestamp, nil
	}
	return "", fmt.Errorf("no messages in %s", t.path)
}

// GetLastMessageTimestamp scans the file for the last message record's
// timestamp, returned as Unix seconds. ok is false if none found.
func (t *Tailer) GetLastMessageTimestamp() (int64, bool) {
	f, err := os.Open(t.path)
	if err != nil {
		return 0, false
	}
	defer f.Close()

	var last string
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
		if rec.Type != "user" && rec.Type != "assistant" {
			continue
		}
		last = rec.Timestamp
	}
	if last == "" {
		return 0, false
	}
	ts, err := time.Parse(time.RFC3339, last)
	if err != nil {
		return 0, false
	}
	return ts.Unix(), true
}

// WaitingForInput is true iff the last emitted record was an assistant
// message whose final content block is text (not tool-use).
func (t *Tailer) WaitingForInput() bool {
	return t.lastEmittedWaiting
}

func computeWaiting(msg model.Message) bool {
	if msg.Role != "assistant" || len(msg.Content) == 0 {
		return false
	}
	last := msg.Content[len(msg.Content)-1]
	return last.Type == "text"
}

func parseLines(r *os.File) ([]model.Message, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var out []model.Message
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		if msg, ok := parseLine(line); ok {
			out = append(out, msg)
		}
	}
	return out, scanner.Err()
}

func parseLine(line []byte) (model.Message, bool) {
	var rec rawRecord
	if err := json.Unmarshal(line, &rec); err != nil {
		log.Printf("claudecode: skipping malformed line: %v", err)
		return model.Message{}, false
	}
	if rec.Type != "user" && rec.Type != "assistant" {
		return model.Message{}, false
	}

	var rm rawMessage
	if len(rec.Message) > 0 {
		if err := json.Unmarshal(rec.Message, &rm); err != nil {
			log.Printf("claudecode: skipping line with malformed message: %v", err)
			return model.Message{}, false
		}
	}

	ts, err := time.Parse(time.RFC3339, rec.Timestamp)
	if err != nil {
		ts = time.Time{}
	}

	msg := model.Message{
		Role:       rec.Type,
		Timestamp:  ts,
		Model:      rm.Model,
		StopReason: rm.StopReason,
	}
	msg.Content = parseContent(rm.Content)
	if rm.Usage != nil {
		msg.Usage = &model.Usage{
			InputTokens:      rm.Usage.InputTokens,
			OutputTokens:     rm.Usage.OutputTokens,
			CacheReadTokens:  rm.Usage.CacheReadInputTokens,
			CacheWriteTokens: rm.Usage.CacheCreationInputTokens,
		}
	}
	return msg, true
}

// parseContent handles both the plain-string and content-block-array shapes
// that message.content can take in the JSON-lines format.
func parseContent(raw json.RawMessage) []model.ContentBlock {
	if len(raw) == 0 {
		return nil
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		if asString == "" {
			return nil
		}
		return []model.ContentBlock{{Type: "text", Text: asString}}
	}

	var blocks []json.RawMessage
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return nil
	}

	var out []model.ContentBlock
	for _, b := range blocks {
		var tagged struct {
			Type      string                 `json:"type"`
			Text      string                 `json:"text"`
			ID        string                 `json:"id"`
			Name      string                 `json:"name"`
			Input     map[string]interface{} `json:"input"`
			ToolUseID string                 `json:"tool_use_id"`
			Content   interface{}            `json:"content"`
			IsError   bool                   `json:"is_error"`
			Source    struct {
				MediaType string `json:"media_type"`
				Data      string `json:"data"`
			} `json:"source"`
		}
		if err := json.Unmarshal(b, &tagged); err != nil {
			continue
		}
		switch tagged.Type {
		case "text", "thinking":
			out = append(out, model.ContentBlock{Type: tagged.Type, Text: tagged.Text})
		case "tool_use":
			out = append(out, model.ContentBlock{
				Type:      "tool_use",
				ToolName:  tagged.Name,
				ToolID:    tagged.ID,
				ToolInput: tagged.Input,
			})
		case "tool_result":
			out = append(out, model.ContentBlock{
				Type:      "tool_result",
				ToolUseID: tagged.ToolUseID,
				Content:   tagged.Content,
				IsError:   tagged.IsError,
			})
		case "image":
			out = append(out, model.ContentBlock{
				Type:      "image",
				MediaType: tagged.Source.MediaType,
				Data:      tagged.Source.Data,
			})
		}
	}
	return out
}

// hasMessages reports whether path contains at least one user/assistant
// record.
func hasMessages(path string) bool {
	fi, err := os.Stat(path)
	if err != nil || fi.Size() == 0 {
		return false
	}
	f, err := os.Open(path)
	if err != nil {
		return false
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
		if rec.Type == "user" || rec.Type == "assistant" {
			return true
		}
	}
	return false
}

// isWarmupSession reports whether the first user message equals the
// warm-up sentinel.
func isWarmupSession(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
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
		if len(blocks) == 1 && blocks[0].Type == "text" {
			return isWarmupMessage(blocks[0].Text)
		}
		return false
	}
	return false
}
