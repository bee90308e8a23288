// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package watcher is the file watcher / change dispatcher: one
// fsnotify-backed task watching the union of backend root directories,
// debounced and batched, classifying each event and dispatching to the
// callbacks supplied at construction. Callbacks keep the watcher free
// of references to the registry, event hub, or supervisor.
package watcher

import (
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Callbacks are the dispatch targets the session watcher drives. They are
// supplied at construction so the watcher has no direct reference to the
// registry, event hub, or supervisor.
type Callbacks struct {
	// ShouldWatch reports whether path is a transcript or sidecar file
	// relevant to tracking (delegates to the aggregated backend).
	ShouldWatch func(path string) bool

	// IsSummaryFile reports whether path is a sidecar summary file.
	IsSummaryFile func(path string) bool

	// SessionIDFromChangedFile maps a changed path back to a session ID,
	// if it belongs to a known file shape.
	SessionIDFromChangedFile func(path string) (string, bool)

	// KnownSession reports whether id is currently tracked in the registry.
	KnownSession func(id string) bool

	// OnDiscover is invoked once per debounced batch that contained at
	// least one path with no resolvable/known session, triggering a
	// find_recent + add discovery pass.
	OnDiscover func()

	// OnTranscriptChanged is invoked once per known session whose
	// transcript changed, to read_new and broadcast.
	OnTranscriptChanged func(sessionID string)

	// OnSummaryChanged is invoked once per known session whose sidecar
	// summary file changed, to reload and broadcast.
	OnSummaryChanged func(sessionID string)

	// OnDeleted is invoked for a known session whose transcript file was
	// removed, so the caller can evict it and broadcast session_removed.
	OnDeleted func(sessionID string)
}

// SessionWatcher watches every backend root and dispatches classified
// change batches to its Callbacks.
type SessionWatcher struct {
	fsw       *fsnotify.Watcher
	cb        Callbacks
	debouncer *Debouncer

	mu      sync.Mutex
	batch   map[string]fsnotify.Op
	closeCh chan struct{}
	wg      sync.WaitGroup
}

// New creates a session watcher over roots, recursively adding every
// existing subdirectory (fsnotify does not recurse on its own). debounce
// is the "debounce at >= 100ms" aggregation window.
func New(roots []string, cb Callbacks, debounce time.Duration) (*SessionWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &SessionWatcher{
		fsw:       fsw,
		cb:        cb,
		debouncer: NewDebouncer(debounce),
		batch:     map[string]fsnotify.Op{},
		closeCh:   make(chan struct{}),
	}

	for _, root := range roots {
		if err := w.addRecursive(root); err != nil {
			log.Printf("watcher: failed to watch %s: %v", root, err)
		}
	}

	w.wg.Add(1)
	go w.loop()

	return w, nil
}

func (w *SessionWatcher) addRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // skip unreadable subtrees rather than aborting the walk
		}
		if info.IsDir() {
			if addErr := w.fsw.Add(path); addErr != nil {
				log.Printf("watcher: add %s: %v", path, addErr)
			}
		}
		return nil
	})
}

// Close stops the watcher and releases resources.
func (w *SessionWatcher) Close() error {
	select {
	case <-w.closeCh:
		return nil
	default:
		close(w.closeCh)
	}
	w.debouncer.Stop()
	err := w.fsw.Close()
	w.wg.Wait()
	return err
}

func (w *SessionWatcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.closeCh:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Printf("watcher: fsnotify error: %v", err)
		}
	}
}

func (w *SessionWatcher) handle(ev fsnotify.Event) {
	// A new directory appearing mid-run (e.g. a new OpenCode session/part
	// directory) must itself be watched so its children's events arrive.
	if ev.Has(fsnotify.Create) {
		if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
			if err := w.fsw.Add(ev.Name); err != nil {
				log.Printf("watcher: add new dir %s: %v", ev.Name, err)
			}
		}
	}

	w.mu.Lock()
	w.batch[ev.Name] |= ev.Op
	w.mu.Unlock()

	w.debouncer.Trigger(w.flush)
}

// flush partitions the accumulated batch and dispatches it: discard
// non-watched paths, separate deletions, bucket the
// rest into sidecar/transcript/unknown, and invoke the callbacks once per
// affected session rather than once per raw filesystem event.
func (w *SessionWatcher) flush() {
	w.mu.Lock()
	batch := w.batch
	w.batch = map[string]fsnotify.Op{}
	w.mu.Unlock()

	needDiscovery := false
	toProcess := map[string]bool{}
	toSummary := map[string]bool{}

	for path, op := range batch {
		if w.cb.ShouldWatch != nil && !w.cb.ShouldWatch(path) {
			continue
		}

		id, resolved := "", false
		if w.cb.SessionIDFromChangedFile != nil {
			id, resolved = w.cb.SessionIDFromChangedFile(path)
		}

		if op.Has(fsnotify.Remove) || op.Has(fsnotify.Rename) {
			if resolved && w.cb.KnownSession != nil && w.cb.KnownSession(id) {
				if w.cb.OnDeleted != nil {
					w.cb.OnDeleted(id)
				}
			}
			continue
		}

		if !resolved || w.cb.KnownSession == nil || !w.cb.KnownSession(id) {
			needDiscovery = true
			continue
		}

		if w.cb.IsSummaryFile != nil && w.cb.IsSummaryFile(path) {
			toSummary[id] = true
		} else {
			toProcess[id] = true
		}
	}

	if needDiscovery && w.cb.OnDiscover != nil {
		w.cb.OnDiscover()
	}
	for id := range toProcess {
		if w.cb.OnTranscriptChanged != nil {
			w.cb.OnTranscriptChanged(id)
		}
	}
	for id := range toSummary {
		if w.cb.OnSummaryChanged != nil {
			w.cb.OnSummaryChanged(id)
		}
	}
}
