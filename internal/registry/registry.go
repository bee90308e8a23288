// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package registry holds the in-memory table of tracked sessions: a
// single coarse-locked map keyed by session ID, capped with eviction by
// last-updated-at, with each entry's tailer seeked to end on add so
// live readers never replay history.
package registry

import (
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/wingedpig/sessiontail/internal/backend"
	"github.com/wingedpig/sessiontail/internal/model"
)

// Session is one tracked entry. Process/Queue fields are owned by the
// supervisor; the registry never terminates a child itself (the caller
// of an evicting Add does, through the supervisor).
type Session struct {
	ID          string
	Path        string
	BackendName string
	Tailer      backend.Tailer

	ProjectName     string
	ProjectPath     string
	FirstMessage    string
	StartedAt       time.Time
	IsSubagent      bool
	ParentSessionID string

	Summary *model.Summary

	// Process is an opaque handle owned by the supervisor, set when a
	// pending new-session child is attached; the registry does not read it.
	Process interface {
		Terminate()
	}
	QueueLen int

	lastSeenMtime time.Time
}

// ToEventPayload is the JSON-shaped session summary broadcast over the push
// channel and returned by GET /sessions.
func (s *Session) ToEventPayload(owner backend.Backend) map[string]interface{} {
	started := ""
	if !s.StartedAt.IsZero() {
		started = s.StartedAt.UTC().Format(time.RFC3339)
	}

	lastUpdated := int64(0)
	if s.Tailer != nil {
		if ts, ok := s.Tailer.GetLastMessageTimestamp(); ok {
			lastUpdated = ts
		}
	}
	if lastUpdated == 0 {
		if fi, err := os.Stat(s.Path); err == nil {
			lastUpdated = fi.ModTime().Unix()
		}
	}

	var usage model.Usage
	if owner != nil {
		if u, err := owner.TokenUsage(s.Path); err == nil {
			usage = u
		}
	}

	payload := map[string]interface{}{
		"id":            s.ID,
		"name":          s.ProjectName,
		"path":          s.Path,
		"projectName":   s.ProjectName,
		"projectPath":   s.ProjectPath,
		"firstMessage":  s.FirstMessage,
		"startedAt":     started,
		"lastUpdatedAt": lastUpdated,
		"tokenUsage":    usage,
		"backend":       s.BackendName,
	}
	if s.Summary != nil {
		payload["summaryTitle"] = s.Summary.Title
		payload["summaryShort"] = s.Summary.ShortSummary
		payload["summaryExecutive"] = s.Summary.ExecutiveSummary
		payload["summaryBranch"] = s.Summary.Branch
	}
	if s.IsSubagent {
		payload["isSubagent"] = true
		payload["parentSessionId"] = s.ParentSessionID
	}
	return payload
}

func (s *Session) timestamp() int64 {
	if s.Tailer != nil {
		if ts, ok := s.Tailer.GetLastMessageTimestamp(); ok {
			return ts
		}
	}
	if fi, err := os.Stat(s.Path); err == nil {
		return fi.ModTime().Unix()
	}
	return 0
}

// Registry is the tracked-session table.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	maxSize  int
}

// New constructs an empty registry capped at maxSize entries.
func New(maxSize int) *Registry {
	return &Registry{sessions: map[string]*Session{}, maxSize: maxSize}
}

// Add creates and stores a new session entry for path, owned by b. It
// rejects non-files, empty files, files without messages, and duplicates.
// When the registry is at capacity and evictOldest is true, the oldest
// session by last-updated-at (file mtime as a fallback when no message
// timestamp is known) is removed; the evicted ID is returned so the
// caller can terminate its child and broadcast a removal event.
func (r *Registry) Add(path string, b backend.Backend, evictOldest bool) (*Session, string, error) {
	// Directory-backed sessions are identified by pseudo-keys that don't
	// stat; message presence is the real gate either way.
	var mtime time.Time
	if fi, err := os.Stat(path); err == nil {
		if fi.IsDir() {
			return nil, "", fmt.Errorf("not a regular file: %s", path)
		}
		if fi.Size() == 0 {
			return nil, "", nil
		}
		mtime = fi.ModTime()
	}
	if !b.HasMessages(path) {
		return nil, "", nil
	}

	id := b.SessionID(path)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[id]; exists {
		return nil, "", nil
	}

	var evictedID string
	if r.maxSize > 0 && len(r.sessions) >= r.maxSize {
		if !evictOldest {
			return nil, "", nil
		}
		oldest := r.oldestLocked()
		if oldest != "" {
			r.removeLocked(oldest)
			evictedID = oldest
		}
	}

	tailer, err := b.CreateTailer(path)
	if err != nil {
		return nil, "", fmt.Errorf("creating tailer for %s: %w", path, err)
	}
	if err := tailer.SeekToEnd(); err != nil {
		return nil, "", fmt.Errorf("seeking tailer to end for %s: %w", path, err)
	}

	md, err := b.Metadata(path)
	if err != nil {
		md = model.Metadata{ProjectName: id}
	}

	s := &Session{
		ID:              id,
		Path:            path,
		BackendName:     b.Name(),
		Tailer:          tailer,
		ProjectName:     md.ProjectName,
		ProjectPath:     md.ProjectPath,
		FirstMessage:    md.FirstMessage,
		StartedAt:       md.StartedAt,
		IsSubagent:      md.IsSubagent,
		ParentSessionID: md.ParentSessionID,
		lastSeenMtime:   mtime,
	}
	r.sessions[id] = s
	return s, evictedID, nil
}

// Remove deletes id from the table. It does not terminate any process;
// the caller is responsible during eviction.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(id)
}

func (r *Registry) removeLocked(id string) bool {
	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	return true
}

// Get returns the session with id, if tracked.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// List returns every tracked session sorted newest-first by last-updated
// timestamp.
func (r *Registry) List() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].timestamp() > out[j].timestamp() })
	return out
}

// Count returns the number of tracked sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// WithLock runs fn while holding the registry mutex, for catchup/broadcast
// operations that must be atomic with respect to Add/Remove.
func (r *Registry) WithLock(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn()
}

func (r *Registry) oldestLocked() string {
	var oldestID string
	var oldestTs int64 = -1
	for id, s := range r.sessions {
		ts := s.timestamp()
		if oldestTs == -1 || ts < oldestTs {
			oldestTs = ts
			oldestID = id
		}
	}
	return oldestID
}

// UpdateLastSeenMtime is used by the watcher to filter spurious events
// (mtime changes that do not alter content).
func (r *Registry) UpdateLastSeenMtime(id string, mtime time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return false
	}
	if !mtime.After(s.lastSeenMtime) {
		return false
	}
	s.lastSeenMtime = mtime
	return true
}
