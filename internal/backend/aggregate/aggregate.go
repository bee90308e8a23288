// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package aggregate implements the multi-backend aggregator:
// it unions N backend.Backend adapters behind the same interface, routing
// per-session operations to the owning adapter via a session-path map.
package aggregate

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/wingedpig/sessiontail/internal/backend"
	"github.com/wingedpig/sessiontail/internal/model"
)

// Aggregator implements backend.Backend over a fixed set of named backends.
type Aggregator struct {
	mu       sync.Mutex
	backends map[string]backend.Backend
	order    []string // deterministic iteration order
	owner    map[string]backend.Backend

	defaultBackend string
}

// New constructs an aggregator over the given backends, keyed by name.
func New(backends []backend.Backend, defaultBackend string) *Aggregator {
	a := &Aggregator{
		backends:       map[string]backend.Backend{},
		owner:          map[string]backend.Backend{},
		defaultBackend: defaultBackend,
	}
	for _, b := range backends {
		a.backends[b.Name()] = b
		a.order = append(a.order, b.Name())
	}
	return a
}

func (a *Aggregator) Name() string { return "aggregate" }
func (a *Aggregator) CLICommand() string { return "" }

func (a *Aggregator) Models() []string { return nil }

// Backends returns the underlying backend list in construction order.
func (a *Aggregator) Backends() []backend.Backend {
	var out []backend.Backend
	for _, name := range a.order {
		out = append(out, a.backends[name])
	}
	return out
}

// ByName resolves a backend by its advertised name.
func (a *Aggregator) ByName(name string) (backend.Backend, bool) {
	b, ok := a.backends[name]
	return b, ok
}

// Owner resolves the concrete backend that owns a session path.
func (a *Aggregator) Owner(path string) (backend.Backend, bool) {
	return a.resolveOwner(path)
}

func (a *Aggregator) resolveOwner(path string) (backend.Backend, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if b, ok := a.owner[path]; ok {
		return b, true
	}
	for _, name := range a.order {
		b := a.backends[name]
		if b.HasMessages(path) {
			a.owner[path] = b
			return b, true
		}
	}
	return nil, false
}

func (a *Aggregator) setOwner(path string, b backend.Backend) {
	a.mu.Lock()
	a.owner[path] = b
	a.mu.Unlock()
}

// FindRecent merges find_recent results from every backend, scanning the
// backends concurrently, and re-sorts the union by mtime descending.
func (a *Aggregator) FindRecent(limit int, includeSubagents bool) ([]string, error) {
	type found struct {
		path  string
		owner backend.Backend
	}
	perBackend := make([][]found, len(a.order))
	var g errgroup.Group
	for i, name := range a.order {
		i, b := i, a.backends[name]
		g.Go(func() error {
			paths, err := b.FindRecent(0, includeSubagents)
			if err != nil {
				return nil // one backend failing must not hide the others
			}
			for _, p := range paths {
				perBackend[i] = append(perBackend[i], found{path: p, owner: b})
			}
			return nil
		})
	}
	_ = g.Wait()

	var all []found
	for _, fs := range perBackend {
		for _, f := range fs {
			all = append(all, f)
			a.setOwner(f.path, f.owner)
		}
	}

	sort.Slice(all, func(i, j int) bool {
		ti, _ := mtimeOf(all[i].owner, all[i].path)
		tj, _ := mtimeOf(all[j].owner, all[j].path)
		return ti > tj
	})

	var out []string
	for _, f := range all {
		out = append(out, f.path)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func mtimeOf(b backend.Backend, path string) (int64, bool) {
	if fi, err := os.Stat(path); err == nil {
		return fi.ModTime().Unix(), true
	}
	// Directory-backed pseudo-keys don't stat; use the last message time.
	t, err := b.CreateTailer(path)
	if err != nil {
		return 0, false
	}
	return t.GetLastMessageTimestamp()
}

func (a *Aggregator) SessionID(path string) string {
	if b, ok := a.resolveOwner(path); ok {
		return b.SessionID(path)
	}
	return path
}

func (a *Aggregator) Metadata(path string) (model.Metadata, error) {
	b, ok := a.resolveOwner(path)
	if !ok {
		return model.Metadata{}, fmt.Errorf("no backend owns session path %q", path)
	}
	return b.Metadata(path)
}

func (a *Aggregator) HasMessages(path string) bool {
	b, ok := a.resolveOwner(path)
	if !ok {
		return false
	}
	return b.HasMessages(path)
}

func (a *Aggregator) CreateTailer(path string) (backend.Tailer, error) {
	b, ok := a.resolveOwner(path)
	if !ok {
		return nil, fmt.Errorf("no backend owns session path %q", path)
	}
	return b.CreateTailer(path)
}

func (a *Aggregator) TokenUsage(path string) (model.Usage, error) {
	b, ok := a.resolveOwner(path)
	if !ok {
		return model.Usage{}, fmt.Errorf("no backend owns session path %q", path)
	}
	return b.TokenUsage(path)
}

func (a *Aggregator) GetModel(path string) string {
	b, ok := a.resolveOwner(path)
	if !ok {
		return ""
	}
	return b.GetModel(path)
}

func (a *Aggregator) SupportsSend() bool { return true }
func (a *Aggregator) SupportsFork() bool { return true }
func (a *Aggregator) SupportsPermissionDetection() bool { return true }
func (a *Aggregator) IsCLIAvailable() bool { return true }
func (a *Aggregator) CLIInstallInstructions() string { return "" }

// resolveForCommand resolves the adapter a CLI builder should run on:
// builders are not directly supported on the aggregate itself, so the
// owning adapter is resolved by session path, by caller-supplied backend
// name, or by the configured default, in that order.
func (a *Aggregator) resolveForCommand(path, backendName string) (backend.Backend, error) {
	if path != "" {
		if b, ok := a.resolveOwner(path); ok {
			return b, nil
		}
	}
	if backendName != "" {
		if b, ok := a.backends[backendName]; ok {
			return b, nil
		}
		return nil, fmt.Errorf("unknown backend %q", backendName)
	}
	if b, ok := a.backends[a.defaultBackend]; ok {
		return b, nil
	}
	return nil, fmt.Errorf("no backend resolvable (no path, no name, no default)")
}

func (a *Aggregator) BuildSendCommand(ctx context.Context, path, message string, opts backend.CommandOptions) (model.CommandSpec, error) {
	b, err := a.resolveForCommand(path, "")
	if err != nil {
		return model.CommandSpec{}, err
	}
	return b.BuildSendCommand(ctx, path, message, opts)
}

func (a *Aggregator) BuildForkCommand(ctx context.Context, path, message string, opts backend.CommandOptions) (model.CommandSpec, error) {
	b, err := a.resolveForCommand(path, "")
	if err != nil {
		return model.CommandSpec{}, err
	}
	return b.BuildForkCommand(ctx, path, message, opts)
}

// BuildNewSessionCommandFor resolves by explicit backend name since a new
// session has no path yet.
func (a *Aggregator) BuildNewSessionCommandFor(ctx context.Context, backendName, cwd, message string, opts backend.CommandOptions) (model.CommandSpec, backend.Backend, error) {
	b, err := a.resolveForCommand("", backendName)
	if err != nil {
		return model.CommandSpec{}, nil, err
	}
	spec, err := b.BuildNewSessionCommand(ctx, cwd, message, opts)
	return spec, b, err
}

func (a *Aggregator) BuildNewSessionCommand(ctx context.Context, cwd, message string, opts backend.CommandOptions) (model.CommandSpec, error) {
	spec, _, err := a.BuildNewSessionCommandFor(ctx, "", cwd, message, opts)
	return spec, err
}

func (a *Aggregator) ShouldWatchFile(path string, includeSubagents bool) bool {
	for _, name := range a.order {
		if a.backends[name].ShouldWatchFile(path, includeSubagents) {
			return true
		}
	}
	return false
}

func (a *Aggregator) SessionIDFromChangedFile(path string) (string, bool) {
	for _, name := range a.order {
		if id, ok := a.backends[name].SessionIDFromChangedFile(path); ok {
			return id, true
		}
	}
	return "", false
}

func (a *Aggregator) IsSummaryFile(path string) bool {
	for _, name := range a.order {
		if a.backends[name].IsSummaryFile(path) {
			return true
		}
	}
	return false
}
