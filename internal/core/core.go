// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package core wires the session tracking engine's components into one
// context value created at startup and threaded through everything,
// instead of package-level mutable globals. It owns the registry, the event
// hub, the supervisor, the summarization orchestrator, the preferences
// store, and the file watcher, and supplies each one the callbacks it
// needs via dependency injection rather than direct references between
// components.
package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/wingedpig/sessiontail/internal/backend"
	"github.com/wingedpig/sessiontail/internal/backend/aggregate"
	"github.com/wingedpig/sessiontail/internal/backend/claudecode"
	"github.com/wingedpig/sessiontail/internal/backend/opencode"
	"github.com/wingedpig/sessiontail/internal/config"
	"github.com/wingedpig/sessiontail/internal/events"
	"github.com/wingedpig/sessiontail/internal/model"
	"github.com/wingedpig/sessiontail/internal/prefs"
	"github.com/wingedpig/sessiontail/internal/registry"
	"github.com/wingedpig/sessiontail/internal/summarize"
	"github.com/wingedpig/sessiontail/internal/supervisor"
	"github.com/wingedpig/sessiontail/internal/terminal"
	"github.com/wingedpig/sessiontail/internal/watcher"
)

// Core is the application's single context value. Every REST handler
// and background task is constructed with a reference to it, rather
// than reaching through package-level globals.
type Core struct {
	Config     *config.Config
	Aggregator *aggregate.Aggregator
	Registry   *registry.Registry
	Bus        *events.MemoryEventBus
	Prefs      *prefs.Store
	Supervisor *supervisor.Supervisor
	Summarizer *summarize.Orchestrator
	Terminal   *terminal.Manager

	watcher *watcher.SessionWatcher

	denialMu     sync.Mutex
	lastDenialOf map[string]string // session ID -> original message that triggered its most recent permission_denied
}

// New constructs a Core from cfg but does not yet start the watcher or
// run initial discovery; call Start for that.
func New(cfg *config.Config) (*Core, error) {
	prefsStore, err := prefs.New(cfg.ConfigDir)
	if err != nil {
		return nil, fmt.Errorf("opening preferences store: %w", err)
	}

	backends := []backend.Backend{
		claudecode.New(cfg.ClaudeProjectsDir),
		opencode.New(cfg.OpenCodeDataDir),
	}
	agg := aggregate.New(backends, cfg.DefaultSendBackend)

	c := &Core{
		Config:     cfg,
		Aggregator: agg,
		Registry:   registry.New(cfg.MaxSessions),
		Bus: events.NewMemoryEventBus(events.MemoryBusConfig{
			HistoryMaxEvents: 10000,
			HistoryMaxAge:    time.Hour,
		}),
		Prefs:        prefsStore,
		Terminal:     terminal.New(""),
		lastDenialOf: map[string]string{},
	}

	c.Summarizer = summarize.New(summarize.Config{
		IdleThreshold:    time.Duration(cfg.SummarizeAfterIdleS) * time.Second,
		LongRunThreshold: time.Duration(cfg.SummaryAfterLongS) * time.Second,
		Model:            cfg.IdleSummaryModel,
		LogPath:          cfg.SummaryLogPath,
	}, c.onSummaryWritten)

	c.Supervisor = supervisor.New(c.lookupSession, c, c.onChildExited, supervisor.Config{
		ThinkingBudget:  cfg.ThinkingBudget,
		SkipPermissions: cfg.SkipPermissions,
		AllowedDirs:     c.Prefs.AllowedDirectories,
	})

	return c, nil
}

// Start runs the initial discovery pass and starts the file watcher.
func (c *Core) Start() error {
	c.discover()

	roots := []string{c.Config.ClaudeProjectsDir, c.Config.OpenCodeDataDir}
	var existing []string
	for _, r := range roots {
		if r == "" {
			continue
		}
		if _, err := os.Stat(r); err == nil {
			existing = append(existing, r)
		} else if os.IsNotExist(err) {
			if mkErr := os.MkdirAll(r, 0o755); mkErr == nil {
				existing = append(existing, r)
			}
		}
	}

	w, err := watcher.New(existing, watcher.Callbacks{
		ShouldWatch:              func(path string) bool { return c.Aggregator.ShouldWatchFile(path, c.Config.IncludeSubagents) },
		IsSummaryFile:            c.Aggregator.IsSummaryFile,
		SessionIDFromChangedFile: c.Aggregator.SessionIDFromChangedFile,
		KnownSession:             func(id string) bool { _, ok := c.Registry.Get(id); return ok },
		OnDiscover:               c.discover,
		OnTranscriptChanged:      c.onTranscriptChanged,
		OnSummaryChanged:         c.onSummaryChanged,
		OnDeleted:                c.onDeleted,
	}, 150*time.Millisecond)
	if err != nil {
		return fmt.Errorf("starting file watcher: %w", err)
	}
	c.watcher = w
	return nil
}

// Close shuts down the watcher, any open terminal shells, and the
// event bus.
func (c *Core) Close() error {
	if c.watcher != nil {
		_ = c.watcher.Close()
	}
	c.Terminal.CloseAll()
	return c.Bus.Close()
}

// lookupSession is the supervisor.SessionLookup callback.
func (c *Core) lookupSession(sessionID string) (path, projectPath string, owner backend.Backend, ok bool) {
	s, found := c.Registry.Get(sessionID)
	if !found {
		return "", "", nil, false
	}
	return s.Path, s.ProjectPath, c.Aggregator, true
}

// Status implements supervisor.Broadcaster, publishing session_status
// whenever the supervisor's running/queued state changes.
func (c *Core) Status(sessionID string, running bool, queueLen int) {
	waiting := false
	if s, ok := c.Registry.Get(sessionID); ok && s.Tailer != nil {
		waiting = s.Tailer.WaitingForInput()
	}
	c.publish(events.EventSessionStatus, map[string]interface{}{
		"session_id":        sessionID,
		"running":           running,
		"queue_length":      queueLen,
		"waiting_for_input": waiting,
	})
}

// PermissionDenied implements supervisor.Broadcaster. The
// original message is retained so a later grant-permission REST call can
// re-send it without the client having to echo it back.
func (c *Core) PermissionDenied(sessionID string, denials []model.PermissionDenial, originalMessage string) {
	c.denialMu.Lock()
	c.lastDenialOf[sessionID] = originalMessage
	c.denialMu.Unlock()

	c.publish(events.EventPermissionDenied, map[string]interface{}{
		"session_id":       sessionID,
		"denials":          denials,
		"original_message": originalMessage,
	})
}

// LastDenialMessage returns the original message that most recently
// triggered a permission_denied for sessionID, if any.
func (c *Core) LastDenialMessage(sessionID string) (string, bool) {
	c.denialMu.Lock()
	defer c.denialMu.Unlock()
	msg, ok := c.lastDenialOf[sessionID]
	return msg, ok
}

// SetPendingNewSessionDenial records the original message for a
// new-session denial, keyed by the resolved cwd rather than a session ID
// (no session exists yet). Consumed by grant-permission-new once the
// watcher has discovered the session.
func (c *Core) SetPendingNewSessionDenial(cwd, message string) {
	c.denialMu.Lock()
	c.lastDenialOf["cwd:"+cwd] = message
	c.denialMu.Unlock()
}

// PendingNewSessionDenial retrieves and clears the message recorded by
// SetPendingNewSessionDenial.
func (c *Core) PendingNewSessionDenial(cwd string) (string, bool) {
	c.denialMu.Lock()
	defer c.denialMu.Unlock()
	key := "cwd:" + cwd
	msg, ok := c.lastDenialOf[key]
	delete(c.lastDenialOf, key)
	return msg, ok
}

// onChildExited bridges the supervisor's per-run exit callback into the
// summarization orchestrator's trigger evaluation: a session is "new"
// the first time it exits with no sidecar summary file yet.
func (c *Core) onChildExited(sessionID, path string, owner backend.Backend, duration time.Duration) {
	isNew := false
	if _, err := os.Stat(summarize.SidecarPath(path)); os.IsNotExist(err) {
		isNew = true
	}
	c.Summarizer.OnChildExited(sessionID, path, owner, duration, isNew)
}

// onSummaryWritten is summarize.OnSummaryWritten: update the in-memory
// session entry immediately rather than waiting for the watcher's
// debounce round-trip on the sidecar file it just wrote.
func (c *Core) onSummaryWritten(sessionID, path string, summary model.Summary) {
	if s, ok := c.Registry.Get(sessionID); ok {
		s.Summary = &summary
	}
	c.publishSummary(sessionID, summary)
}

func (c *Core) publishSummary(sessionID string, summary model.Summary) {
	c.publish(events.EventSessionSummaryUpdated, map[string]interface{}{
		"session_id":        sessionID,
		"title":             summary.Title,
		"short_summary":     summary.ShortSummary,
		"executive_summary": summary.ExecutiveSummary,
		"branch":            summary.Branch,
	})
}

// discover runs a find_recent + add pass across every backend. It is safe to call
// concurrently with itself and with watcher-triggered dispatch; Registry.Add
// is the sole serialization point.
func (c *Core) discover() {
	paths, err := c.Aggregator.FindRecent(0, c.Config.IncludeSubagents)
	if err != nil {
		log.Printf("core: discovery FindRecent: %v", err)
		return
	}

	archived := map[string]bool{}
	for _, id := range c.Prefs.ArchivedSessions() {
		archived[id] = true
	}

	for _, path := range paths {
		id := c.Aggregator.SessionID(path)
		if archived[id] {
			continue
		}

		owner, ok := c.Aggregator.Owner(path)
		if !ok {
			continue
		}
		s, evictedID, err := c.Registry.Add(path, owner, true)
		if err != nil {
			log.Printf("core: registry add %s: %v", path, err)
			continue
		}
		if evictedID != "" {
			go func(evicted string) { _ = c.Supervisor.Interrupt(evicted) }(evictedID)
			c.publish(events.EventSessionRemoved, map[string]interface{}{"session_id": evictedID})
		}
		if s == nil {
			continue // already tracked, rejected, or empty
		}

		if owner, ok := c.Aggregator.ByName(s.BackendName); ok {
			if h := c.Supervisor.AttachPending(s.ID, s.Path, s.ProjectPath, owner); h != nil {
				s.Process = h
			}
		}

		c.publish(events.EventSessionAdded, s.ToEventPayload(c.Aggregator))
	}
}

// onTranscriptChanged implements watcher.Callbacks.OnTranscriptChanged:
// read_new, broadcast each message, then broadcast updated status and
// token usage.
func (c *Core) onTranscriptChanged(sessionID string) {
	s, ok := c.Registry.Get(sessionID)
	if !ok || s.Tailer == nil {
		return
	}

	msgs, err := s.Tailer.ReadNew()
	if err != nil {
		log.Printf("core: read_new for %s: %v", sessionID, err)
		return
	}
	for _, msg := range msgs {
		c.publish(events.EventMessage, map[string]interface{}{
			"session_id": sessionID,
			"message":    msg,
		})
		c.Summarizer.NoteActivity(sessionID, s.Path, c.Aggregator)
	}
	if len(msgs) == 0 {
		return
	}

	running, queueLen, _ := c.Supervisor.State(sessionID)
	c.publish(events.EventSessionStatus, map[string]interface{}{
		"session_id":        sessionID,
		"running":           running,
		"queue_length":      queueLen,
		"waiting_for_input": s.Tailer.WaitingForInput(),
	})

	if owner, ok := c.Aggregator.ByName(s.BackendName); ok {
		if usage, err := owner.TokenUsage(s.Path); err == nil {
			c.publish(events.EventSessionTokenUsageUpdated, map[string]interface{}{
				"session_id":  sessionID,
				"token_usage": usage,
			})
		}
	}
}

// onSummaryChanged implements watcher.Callbacks.OnSummaryChanged: reloads
// the sidecar and broadcasts, covering both an external summary-writer
// and the orchestrator's own write landing a second time through the
// watcher (idempotent: same content, same event).
func (c *Core) onSummaryChanged(sessionID string) {
	s, ok := c.Registry.Get(sessionID)
	if !ok {
		return
	}
	summary, err := readSidecar(summarize.SidecarPath(s.Path))
	if err != nil {
		log.Printf("core: malformed summary sidecar for %s: %v", sessionID, err)
		return
	}
	s.Summary = &summary
	c.publishSummary(sessionID, summary)
}

// onDeleted implements watcher.Callbacks.OnDeleted.
func (c *Core) onDeleted(sessionID string) {
	c.Summarizer.CancelIdle(sessionID)
	_ = c.Supervisor.Interrupt(sessionID)
	c.Registry.Remove(sessionID)
	c.publish(events.EventSessionRemoved, map[string]interface{}{"session_id": sessionID})
}

// FindSessionByProjectPath returns the most-recently-started tracked
// session rooted at projectPath, used by the grant-permission-new REST
// path and by new-session attach resolution.
func (c *Core) FindSessionByProjectPath(projectPath string) (*registry.Session, bool) {
	var best *registry.Session
	for _, s := range c.Registry.List() {
		if s.ProjectPath == projectPath {
			if best == nil || s.StartedAt.After(best.StartedAt) {
				best = s
			}
		}
	}
	if best == nil {
		return nil, false
	}
	return best, true
}

func (c *Core) publish(eventType string, payload map[string]interface{}) {
	ev := events.Event{Type: eventType, Payload: payload}
	if id, ok := payload["session_id"].(string); ok {
		ev.SessionID = id
	}
	if err := c.Bus.Publish(context.Background(), ev); err != nil {
		log.Printf("core: publish %s: %v", eventType, err)
	}
}

func readSidecar(path string) (model.Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Summary{}, err
	}
	var s model.Summary
	if err := json.Unmarshal(data, &s); err != nil {
		return model.Summary{}, fmt.Errorf("malformed summary JSON at %s: %w", filepath.Base(path), err)
	}
	return s, nil
}
