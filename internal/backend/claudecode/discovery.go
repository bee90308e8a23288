// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package claudecode implements the JSON-lines backend adapter: discovery
// of the project-path encoding the Claude Code CLI uses for its per-project
// transcript directories, incremental tailing, and normalization.
package claudecode

import (
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// warmupSentinel is the literal first-user-message text the CLI emits for
// its internal warm-up/benchmark sessions. Such sessions must never be
// tracked.
const warmupSentinel = "Warmup"

func isWarmupMessage(text string) bool {
	return strings.TrimSpace(text) == warmupSentinel
}

// isSubagentSession reports whether the transcript at path belongs to a
// subagent run rather than a top-level session.
func isSubagentSession(path string) bool {
	return strings.HasPrefix(filepath.Base(path), "agent-")
}

// parentSessionID returns the owning top-level session ID for a subagent
// transcript, or "" if path is not a subagent transcript or the directory
// layout doesn't match the expected <parent>/subagents/agent-xxx.jsonl shape.
func parentSessionID(path string) string {
	if !isSubagentSession(path) {
		return ""
	}
	dir := filepath.Dir(path)
	if filepath.Base(dir) == "subagents" {
		return filepath.Base(filepath.Dir(dir))
	}
	return ""
}

// getSessionName decodes the project folder name that encodes an absolute
// project path by replacing '/' and '.' with '-'. The reversal is
// ambiguous, so it probes the filesystem: for each of up to two folder-name
// variants (one treating "--" as "-." to recover dotfile directories), it
// tries every suffix-anchored placement of path separators among the
// dash positions, from most separators to fewest, and returns the first
// candidate that resolves to an existing directory. Falls back to the
// encoded name unchanged if nothing resolves.
func getSessionName(sessionPath string) (projectName, projectPath string) {
	dir := filepath.Dir(sessionPath)
	if filepath.Base(dir) == "subagents" {
		dir = filepath.Dir(filepath.Dir(dir))
	}
	folder := filepath.Base(dir)

	decoded, err := url.QueryUnescape(folder)
	if err == nil {
		folder = decoded
	}
	folder = strings.TrimPrefix(folder, "-")

	variants := []string{folder}
	if strings.Contains(folder, "--") {
		variants = append(variants, strings.ReplaceAll(folder, "--", "-."))
	}

	for _, variant := range variants {
		if name, path, ok := resolveFolderVariant(variant); ok {
			return name, path
		}
	}
	return folder, folder
}

// resolveFolderVariant tries replacing trailing runs of dashes with path
// separators, from the most separators down to one; for each run it also
// tries those same dashes as underscores, with and without a leading slash.
func resolveFolderVariant(folder string) (string, string, bool) {
	var dashPositions []int
	for i, c := range folder {
		if c == '-' {
			dashPositions = append(dashPositions, i)
		}
	}
	if len(dashPositions) == 0 {
		candidate := "/" + folder
		if isDir(candidate) {
			return filepath.Base(candidate), candidate, true
		}
		return "", "", false
	}

	for numSeps := len(dashPositions); numSeps >= 1; numSeps-- {
		seps := dashPositions[len(dashPositions)-numSeps:]
		candidate := replaceAt(folder, seps, '/')
		if !strings.HasPrefix(candidate, "/") {
			candidate = "/" + candidate
		}
		if isDir(candidate) {
			return filepath.Base(candidate), candidate, true
		}

		underscored := replaceAt(folder, seps, '_')
		if isDir(underscored) {
			return filepath.Base(underscored), underscored, true
		}
		altCandidate := "/" + underscored
		if isDir(altCandidate) {
			return filepath.Base(altCandidate), altCandidate, true
		}
	}
	return "", "", false
}

func replaceAt(s string, positions []int, r rune) string {
	b := []byte(s)
	for _, p := range positions {
		b[p] = byte(r)
	}
	return string(b)
}

func isDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}

// sessionIDFromPath returns the stable session ID for a transcript path:
// its filename stem.
func sessionIDFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// findRecent globs projectsDir for *.jsonl transcripts, filters subagents
// and empty files, sorts by mtime descending.
func findRecent(projectsDir string, limit int, includeSubagents bool) ([]string, error) {
	var matches []string
	err := filepath.Walk(projectsDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			return nil
		}
		if !strings.HasSuffix(path, ".jsonl") {
			return nil
		}
		if !includeSubagents && isSubagentSession(path) {
			return nil
		}
		if info.Size() == 0 {
			return nil
		}
		matches = append(matches, path)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(matches, func(i, j int) bool {
		fi, _ := os.Stat(matches[i])
		fj, _ := os.Stat(matches[j])
		if fi == nil || fj == nil {
			return false
		}
		return fi.ModTime().After(fj.ModTime())
	})

	var out []string
	for _, m := range matches {
		if !hasMessages(m) || isWarmupSession(m) {
			continue
		}
		out = append(out, m)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// isSummaryFile reports whether path is a sidecar summary file.
func isSummaryFile(path string) bool {
	return strings.HasSuffix(path, "_summary.json")
}

// sessionIDFromSummaryFile extracts the owning session ID from a sidecar
// summary path.
func sessionIDFromSummaryFile(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, ".json")
	return strings.TrimSuffix(base, "_summary")
}
