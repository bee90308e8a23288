// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package summarize orchestrates background session summarization: a
// per-session idle tracker that schedules a debounced summary job, plus
// an immediate long-running/forced trigger path. Each job invokes the
// owning backend's send-command builder with a summary prompt, a
// machine-readable/no-persist mode, and a 5-minute timeout; the child's
// JSON stdout becomes the session's sidecar summary.
package summarize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/wingedpig/sessiontail/internal/backend"
	"github.com/wingedpig/sessiontail/internal/model"
)

const subprocessTimeout = 5 * time.Minute

const summaryPrompt = `Summarize this conversation so far in a JSON object with exactly these keys:
"title" (a short 3-6 word title), "short_summary" (one sentence), and
"executive_summary" (a short paragraph). If the conversation is about a
specific git branch or topic, also include "branch". Respond with only
the JSON object, no other text.`

// OnSummaryWritten is invoked after a sidecar file is successfully written
// so the caller can broadcast a session_summary_updated event.
// The watcher itself will also pick up the file write independently; this
// callback lets the orchestrator notify immediately without waiting on a
// debounce round-trip.
type OnSummaryWritten func(sessionID, path string, summary model.Summary)

// Orchestrator schedules and runs summary jobs.
type Orchestrator struct {
	idleThreshold time.Duration
	longRunThresh time.Duration
	model         string
	logPath       string
	onWritten     OnSummaryWritten

	mu      sync.Mutex
	timers  map[string]*time.Timer
	pending map[string]context.CancelFunc
}

// Config carries the construction-time knobs from the core Config record.
type Config struct {
	IdleThreshold    time.Duration
	LongRunThreshold time.Duration
	Model            string
	LogPath          string // optional JSONL append log; empty disables it
}

// New constructs an Orchestrator.
func New(cfg Config, onWritten OnSummaryWritten) *Orchestrator {
	return &Orchestrator{
		idleThreshold: cfg.IdleThreshold,
		longRunThresh: cfg.LongRunThreshold,
		model:         cfg.Model,
		logPath:       cfg.LogPath,
		onWritten:     onWritten,
		timers:        map[string]*time.Timer{},
		pending:       map[string]context.CancelFunc{},
	}
}

// NoteActivity (re)starts the idle timer for a session: if activity
// resumes before the timer fires, the previous scheduled job is
// cancelled and rescheduled.
func (o *Orchestrator) NoteActivity(sessionID, path string, owner backend.Backend) {
	if o.idleThreshold <= 0 {
		return
	}
	o.mu.Lock()
	if t, ok := o.timers[sessionID]; ok {
		t.Stop()
	}
	o.timers[sessionID] = time.AfterFunc(o.idleThreshold, func() {
		o.run(sessionID, path, owner)
	})
	o.mu.Unlock()
}

// CancelIdle stops any pending idle-triggered job for a session, called
// when a summary job is already scheduled via a different trigger or the
// session is removed.
func (o *Orchestrator) CancelIdle(sessionID string) {
	o.mu.Lock()
	if t, ok := o.timers[sessionID]; ok {
		t.Stop()
		delete(o.timers, sessionID)
	}
	o.mu.Unlock()
}

// OnChildExited implements the summarization-trigger evaluation the
// supervisor runs after a send/fork child exits: a brand
// new session is always summarized; otherwise only if the run was at
// least as long as the long-running threshold.
func (o *Orchestrator) OnChildExited(sessionID, path string, owner backend.Backend, duration time.Duration, isNewSession bool) {
	if isNewSession || duration >= o.longRunThresh {
		go o.run(sessionID, path, owner)
	}
}

// Force immediately schedules a summary job regardless of triggers,
// servicing the POST /sessions/{id}/summarize endpoint.
func (o *Orchestrator) Force(sessionID, path string, owner backend.Backend) {
	go o.run(sessionID, path, owner)
}

func (o *Orchestrator) run(sessionID, path string, owner backend.Backend) {
	o.mu.Lock()
	if cancel, ok := o.pending[sessionID]; ok {
		// A job is already in flight for this session; don't pile another on.
		o.mu.Unlock()
		_ = cancel
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), subprocessTimeout)
	o.pending[sessionID] = cancel
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		delete(o.pending, sessionID)
		o.mu.Unlock()
		cancel()
	}()

	// Default to the session's own model so its prompt cache is still
	// warm for the summary prompt; the configured override wins.
	modelID := o.model
	if modelID == "" {
		modelID = owner.GetModel(path)
	}

	opts := backend.CommandOptions{NoPersist: true, Model: modelID}
	spec, err := owner.BuildSendCommand(ctx, path, summaryPrompt, opts)
	if err != nil {
		log.Printf("summarize: build command for %s: %v", sessionID, err)
		return
	}

	summary, err := o.invoke(ctx, spec)
	if err != nil {
		log.Printf("summarize: job for %s failed: %v", sessionID, err)
		return
	}

	sidecarPath := SidecarPath(path)
	if err := writeSidecar(sidecarPath, summary); err != nil {
		log.Printf("summarize: writing sidecar for %s: %v", sessionID, err)
		return
	}
	if o.logPath != "" {
		if err := appendLog(o.logPath, sessionID, summary); err != nil {
			log.Printf("summarize: append log for %s: %v", sessionID, err)
		}
	}
	if o.onWritten != nil {
		o.onWritten(sessionID, sidecarPath, summary)
	}
}

func (o *Orchestrator) invoke(ctx context.Context, spec model.CommandSpec) (model.Summary, error) {
	if len(spec.Argv) == 0 {
		return model.Summary{}, fmt.Errorf("empty command spec")
	}
	cmd := exec.CommandContext(ctx, spec.Argv[0], spec.Argv[1:]...)
	cmd.Dir = spec.Dir
	cmd.Env = append(os.Environ(), spec.Env...)
	if spec.Stdin != "" {
		cmd.Stdin = strings.NewReader(spec.Stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return model.Summary{}, fmt.Errorf("summary job timed out after %s", subprocessTimeout)
		}
		return model.Summary{}, fmt.Errorf("summary CLI exited: %w: %s", err, stderr.String())
	}

	return parseSummary(stdout.String())
}

// parseSummary extracts the {title, short_summary, executive_summary,
// branch?} object from the child's stdout. The raw stdout is retained
// for debugging.
func parseSummary(stdout string) (model.Summary, error) {
	start := strings.Index(stdout, "{")
	end := strings.LastIndex(stdout, "}")
	if start < 0 || end < start {
		return model.Summary{}, fmt.Errorf("no JSON object found in summarizer output")
	}

	var raw struct {
		Title            string `json:"title"`
		ShortSummary     string `json:"short_summary"`
		ExecutiveSummary string `json:"executive_summary"`
		Branch           string `json:"branch"`
	}
	if err := json.Unmarshal([]byte(stdout[start:end+1]), &raw); err != nil {
		return model.Summary{}, fmt.Errorf("malformed summary JSON: %w", err)
	}
	if raw.Title == "" && raw.ShortSummary == "" && raw.ExecutiveSummary == "" {
		return model.Summary{}, fmt.Errorf("summary JSON missing required fields")
	}

	return model.Summary{
		Title:            raw.Title,
		ShortSummary:     raw.ShortSummary,
		ExecutiveSummary: raw.ExecutiveSummary,
		Branch:           raw.Branch,
		RawResponse:      stdout,
	}, nil
}

// SidecarPath derives <transcript_stem>_summary.json from a transcript
// path.
func SidecarPath(transcriptPath string) string {
	ext := filepath.Ext(transcriptPath)
	stem := strings.TrimSuffix(transcriptPath, ext)
	return stem + "_summary.json"
}

func writeSidecar(path string, summary model.Summary) error {
	lock := flock.New(path + ".lock")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if locked, err := lock.TryLockContext(ctx, 50*time.Millisecond); err == nil && locked {
		defer lock.Unlock()
	}

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling summary: %w", err)
	}
	data = append(data, '\n')
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating summary dir: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

type logEntry struct {
	SessionID string       `json:"session_id"`
	Summary   model.Summary `json:"summary"`
}

func appendLog(logPath, sessionID string, summary model.Summary) error {
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening summary log: %w", err)
	}
	defer f.Close()

	line, err := json.Marshal(logEntry{SessionID: sessionID, Summary: summary})
	if err != nil {
		return err
	}
	_, err = f.Write(append(line, '\n'))
	return err
}
