// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package opencode implements the directory-of-JSON backend adapter:
// message/<session_id>/<message_id>.json plus
// part/<message_id>/<part_id>.json under the OpenCode storage root.
package opencode

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/wingedpig/sessiontail/internal/model"
)

type messageInfo struct {
	ID      string      `json:"id"`
	Role    string      `json:"role"`
	ModelID string      `json:"modelID"`
	Time    timeInfo    `json:"time"`
	Tokens  *tokensInfo `json:"tokens"`
}

type timeInfo struct {
	Created int64 `json:"created"` // unix ms
	Updated int64 `json:"updated"` // unix ms
}

type tokensInfo struct {
	Input     int64 `json:"input"`
	Output    int64 `json:"output"`
	Reasoning int64 `json:"reasoning"`
	Cache     struct {
		Read  int64 `json:"read"`
		Write int64 `json:"write"`
	} `json:"cache"`
}

type partInfo struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionID"`
	MessageID string `json:"messageID"`
	Type      string `json:"type"` // text | reasoning | tool | step-start | step-finish
	Text      string `json:"text"`
	State     struct {
		Status string      `json:"status"` // pending | completed | error
		Input  interface{} `json:"input"`
		Output string      `json:"output"`
		Error  string      `json:"error"`
	} `json:"state"`
	Tool   string      `json:"tool"`
	CallID string      `json:"callID"`
	Tokens *tokensInfo `json:"tokens"`
}

type entry struct {
	Info  messageInfo
	Parts []partInfo
}

// Tailer implements backend.Tailer over an OpenCode session directory.
type Tailer struct {
	root      string // sessionDir's storage root
	sessionID string

	seenMessages map[string]bool
	seenParts    map[string]map[string]bool
	msgMtimes    map[string]time.Time
	partMtimes   map[string]time.Time

	waitingForInput bool
}

// NewTailer returns a tailer over root/message/<sessionID> and
// root/part/<messageID>.
func NewTailer(root, sessionID string) *Tailer {
	return &Tailer{
		root:         root,
		sessionID:    sessionID,
		seenMessages: map[string]bool{},
		seenParts:    map[string]map[string]bool{},
		msgMtimes:    map[string]time.Time{},
		partMtimes:   map[string]time.Time{},
	}
}

func (t *Tailer) messageDir() string {
	return filepath.Join(t.root, "message", t.sessionID)
}

func (t *Tailer) partDir(messageID string) string {
	return filepath.Join(t.root, "part", messageID)
}

// listMessageFiles returns message-file paths sorted by message ID (which
// is lexically sortable since OpenCode mints monotonic ULID-style IDs).
func (t *Tailer) listMessageFiles() ([]string, error) {
	entries, err := os.ReadDir(t.messageDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		files = append(files, filepath.Join(t.messageDir(), e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

func (t *Tailer) readParts(messageID string) []partInfo {
	entries, err := os.ReadDir(t.partDir(messageID))
	if err != nil {
		return nil
	}
	var parts []partInfo
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(t.partDir(messageID), e.Name()))
		if err != nil {
			continue
		}
		var p partInfo
		if err := json.Unmarshal(data, &p); err != nil {
			continue
		}
		parts = append(parts, p)
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].ID < parts[j].ID })
	return parts
}

func (t *Tailer) readMessage(path string) (messageInfo, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return messageInfo{}, false
	}
	var info messageInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return messageInfo{}, false
	}
	return info, true
}

func messageIDFromPath(path string) string {
	base := filepath.Base(path)
	return base[:len(base)-len(filepath.Ext(base))]
}

// isReady reports whether a message can be emitted: user messages are
// ready when any part has non-empty text; assistant messages are ready
// when any part has type step-finish.
func isReady(info messageInfo, parts []partInfo) bool {
	if info.Role == "user" {
		for _, p := range parts {
			if p.Type == "text" && p.Text != "" {
				return true
			}
		}
		return false
	}
	for _, p := range parts {
		if p.Type == "step-finish" {
			return true
		}
	}
	return false
}

// SeekToEnd marks every currently-present message as seen without
// reading its content, so a freshly-tracked session never replays
// history to live readers.
func (t *Tailer) SeekToEnd() error {
	files, err := t.listMessageFiles()
	if err != nil {
		return err
	}
	for _, f := range files {
		id := messageIDFromPath(f)
		t.seenMessages[id] = true
		if fi, err := os.Stat(f); err == nil {
			t.msgMtimes[id] = fi.ModTime()
		}
	}
	return nil
}

// ReadAll replays every ready message in the session, non-destructively.
func (t *Tailer) ReadAll() ([]model.Message, error) {
	files, err := t.listMessageFiles()
	if err != nil {
		return nil, err
	}
	var out []model.Message
	var entries []entry
	for _, f := range files {
		info, ok := t.readMessage(f)
		if !ok {
			continue
		}
		parts := t.readParts(info.ID)
		if !isReady(info, parts) {
			continue
		}
		entries = append(entries, entry{Info: info, Parts: parts})
		out = append(out, normalize(info, parts))
	}
	if len(entries) > 0 {
		t.waitingForInput = computeWaiting(entries[len(entries)-1])
	}
	return out, nil
}

// ReadNew emits messages not yet seen whose readiness condition now holds,
// recording every current part ID at time of first emission so later part
// mutations are never re-emitted.
func (t *Tailer) ReadNew() ([]model.Message, error) {
	files, err := t.listMessageFiles()
	if err != nil {
		return nil, err
	}

	var out []model.Message
	var lastEntry *entry
	for _, f := range files {
		id := messageIDFromPath(f)
		if t.seenMessages[id] {
			continue
		}
		info, ok := t.readMessage(f)
		if !ok {
			continue
		}
		parts := t.readParts(info.ID)
		if !isReady(info, parts) {
			continue
		}

		out = append(out, normalize(info, parts))
		t.seenMessages[id] = true
		if fi, err := os.Stat(f); err == nil {
			t.msgMtimes[id] = fi.ModTime()
		}
		seen := map[string]bool{}
		for _, p := range parts {
			seen[p.ID] = true
		}
		t.seenParts[id] = seen

		e := entry{Info: info, Parts: parts}
		lastEntry = &e
	}
	if lastEntry != nil {
		t.waitingForInput = computeWaiting(*lastEntry)
	}
	return out, nil
}

// computeWaiting derives waiting-for-input from the last emitted
// message's last ready part.
func computeWaiting(e entry) bool {
	if e.Info.Role != "assistant" {
		return false
	}
	if len(e.Parts) == 0 {
		return false
	}
	last := e.Parts[len(e.Parts)-1]
	switch last.Type {
	case "text":
		return true
	case "tool", "step-start":
		return false
	case "step-finish":
		return true
	}
	return false
}

func (t *Tailer) WaitingForInput() bool { return t.waitingForInput }

// GetFirstTimestamp reads the earliest message file's created time.
func (t *Tailer) GetFirstTimestamp() (string, error) {
	files, err := t.listMessageFiles()
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", os.ErrNotExist
	}
	info, ok := t.readMessage(files[0])
	if !ok {
		return "", os.ErrNotExist
	}
	return time.UnixMilli(info.Time.Created).UTC().Format(time.RFC3339), nil
}

// GetLastMessageTimestamp returns the last message's updated (or created)
// time as Unix seconds.
func (t *Tailer) GetLastMessageTimestamp() (int64, bool) {
	files, err := t.listMessageFiles()
	if err != nil || len(files) == 0 {
		return 0, false
	}
	info, ok := t.readMessage(files[len(files)-1])
	if !ok {
		return 0, false
	}
	ms := info.Time.Updated
	if ms == 0 {
		ms = info.Time.Created
	}
	if ms == 0 {
		return 0, false
	}
	return ms / 1000, true
}
