// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package opencode

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// sessionInfo is OpenCode's per-session metadata file, storage/session/<id>.json.
type sessionInfo struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Directory string   `json:"directory"`
	Time      timeInfo `json:"time"`
}

func sessionInfoPath(root, sessionID string) string {
	return filepath.Join(root, "session", sessionID+".json")
}

func readSessionInfo(root, sessionID string) (sessionInfo, bool) {
	data, err := os.ReadFile(sessionInfoPath(root, sessionID))
	if err != nil {
		return sessionInfo{}, false
	}
	var info sessionInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return sessionInfo{}, false
	}
	return info, true
}

// findRecent lists session directories under root/message, sorted by the
// latest message file's mtime descending.
func findRecent(root string, limit int) ([]string, error) {
	messageRoot := filepath.Join(root, "message")
	entries, err := os.ReadDir(messageRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	type candidate struct {
		id    string
		mtime int64
	}
	var candidates []candidate
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		id := e.Name()
		dir := filepath.Join(messageRoot, id)
		files, err := os.ReadDir(dir)
		if err != nil || len(files) == 0 {
			continue
		}
		var latest int64
		for _, f := range files {
			if fi, err := f.Info(); err == nil {
				if mt := fi.ModTime().UnixNano(); mt > latest {
					latest = mt
				}
			}
		}
		if !hasMessages(root, id) {
			continue
		}
		candidates = append(candidates, candidate{id: id, mtime: latest})
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].mtime > candidates[j].mtime })

	var out []string
	for _, c := range candidates {
		out = append(out, sessionPathKey(root, c.id))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// sessionPathKey is the pseudo-path this adapter uses to identify a session
// in the registry: "<root>::<sessionID>", since OpenCode sessions are
// directories, not single files.
func sessionPathKey(root, sessionID string) string {
	return root + "::" + sessionID
}

func splitSessionPathKey(path string) (root, sessionID string, ok bool) {
	idx := strings.LastIndex(path, "::")
	if idx < 0 {
		return "", "", false
	}
	return path[:idx], path[idx+2:], true
}

func hasMessages(root, sessionID string) bool {
	t := NewTailer(root, sessionID)
	files, err := t.listMessageFiles()
	if err != nil {
		return false
	}
	for _, f := range files {
		info, ok := t.readMessage(f)
		if !ok {
			continue
		}
		parts := t.readParts(info.ID)
		if isReady(info, parts) {
			return true
		}
	}
	return false
}
