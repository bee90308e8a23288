// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wingedpig/sessiontail/internal/backend"
	"github.com/wingedpig/sessiontail/internal/model"
)

// fakeBackend builds commands that just run `sh -c` so tests exercise real
// process spawn/wait without depending on an installed CLI.
type fakeBackend struct {
	name           string
	supportsFork   bool
	supportsDetect bool
	script         string
}

func (f *fakeBackend) Name() string { return f.name }
func (f *fakeBackend) CLICommand() string { return "sh" }

func (f *fakeBackend) FindRecent(limit int, includeSubagents bool) ([]string, error) { return nil, nil }
func (f *fakeBackend) SessionID(path string) string { return path }
func (f *fakeBackend) Metadata(path string) (model.Metadata, error) { return model.Metadata{}, nil }
func (f *fakeBackend) HasMessages(path string) bool { return true }
func (f *fakeBackend) CreateTailer(path string) (backend.Tailer, error) { return nil, nil }
func (f *fakeBackend) TokenUsage(path string) (model.Usage, error) { return model.Usage{}, nil }
func (f *fakeBackend) GetModel(path string) string { return "" }

func (f *fakeBackend) SupportsSend() bool { return true }
func (f *fakeBackend) SupportsFork() bool { return f.supportsFork }
func (f *fakeBackend) SupportsPermissionDetection() bool { return f.supportsDetect }
func (f *fakeBackend) IsCLIAvailable() bool { return true }
func (f *fakeBackend) CLIInstallInstructions() string { return "" }

func (f *fakeBackend) BuildSendCommand(ctx context.Context, path, message string, opts backend.CommandOptions) (model.CommandSpec, error) {
	return model.CommandSpec{Argv: []string{"sh", "-c", f.script}, Stdout: opts.MachineReadable}, nil
}
func (f *fakeBackend) BuildForkCommand(ctx context.Context, path, message string, opts backend.CommandOptions) (model.CommandSpec, error) {
	return model.CommandSpec{Argv: []string{"sh", "-c", f.script}, Stdout: opts.MachineReadable}, nil
}
func (f *fakeBackend) BuildNewSessionCommand(ctx context.Context, cwd, message string, opts backend.CommandOptions) (model.CommandSpec, error) {
	return model.CommandSpec{Argv: []string{"sh", "-c", f.script}, Stdout: opts.MachineReadable}, nil
}
func (f *fakeBackend) Models() []string { return []string{"default"} }

func (f *fakeBackend) ShouldWatchFile(path string, includeSubagents bool) bool { return false }
func (f *fakeBackend) SessionIDFromChangedFile(path string) (string, bool) { return "", false }
func (f *fakeBackend) IsSummaryFile(path string) bool { return false }

type fakeBus struct {
	statusCalls   int
	lastRunning   bool
	lastQueueLen  int
	deniedCalls   int
	lastDenials   []model.PermissionDenial
}

func (b *fakeBus) Status(sessionID string, running bool, queueLen int) {
	b.statusCalls++
	b.lastRunning = running
	b.lastQueueLen = queueLen
}

func (b *fakeBus) PermissionDenied(sessionID string, denials []model.PermissionDenial, originalMessage string) {
	b.deniedCalls++
	b.lastDenials = denials
}

func TestSendSpawnsImmediatelyWhenIdle(t *testing.T) {
	be := &fakeBackend{name: "fake", script: "exit 0"}
	bus := &fakeBus{}
	exited := make(chan struct{}, 1)

	s := New(
		func(id string) (string, string, backend.Backend, bool) { return "/tmp/x", "/tmp", be, true },
		bus,
		func(sessionID, path string, owner backend.Backend, d time.Duration) {
			select {
			case exited <- struct{}{}:
			default:
			}
		},
		Config{},
	)

	queued, pos, err := s.Send(context.Background(), "s1", "hello")
	require.NoError(t, err)
	assert.False(t, queued)
	assert.Equal(t, 0, pos)

	select {
	case <-exited:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for onExit")
	}
}

func TestSendQueuesWhileRunning(t *testing.T) {
	be := &fakeBackend{name: "fake", script: "sleep 1"}
	bus := &fakeBus{}

	s := New(
		func(id string) (string, string, backend.Backend, bool) { return "/tmp/x", "/tmp", be, true },
		bus,
		nil,
		Config{},
	)

	_, _, err := s.Send(context.Background(), "s1", "first")
	require.NoError(t, err)
	time.Sleep(100 * time.Millisecond) // let the first child actually start

	queued, pos, err := s.Send(context.Background(), "s1", "second")
	require.NoError(t, err)
	assert.True(t, queued)
	assert.Equal(t, 1, pos)
}

func TestForkRejectedWhenUnsupported(t *testing.T) {
	be := &fakeBackend{name: "fake", supportsFork: false}
	bus := &fakeBus{}
	s := New(
		func(id string) (string, string, backend.Backend, bool) { return "/tmp/x", "/tmp", be, true },
		bus, nil, Config{},
	)
	err := s.Fork(context.Background(), "s1", "msg")
	assert.Error(t, err)
}

func TestInterruptWithNoRunningProcessErrors(t *testing.T) {
	be := &fakeBackend{name: "fake"}
	bus := &fakeBus{}
	s := New(
		func(id string) (string, string, backend.Backend, bool) { return "/tmp/x", "/tmp", be, true },
		bus, nil, Config{},
	)
	err := s.Interrupt("unknown-session")
	assert.Error(t, err)
}

func TestNewSessionRejectsRelativeCwd(t *testing.T) {
	be := &fakeBackend{name: "fake", script: "exit 0"}
	bus := &fakeBus{}
	s := New(nil, bus, nil, Config{})

	_, _, err := s.NewSession(context.Background(), be, "relative/path", "hi", nil, be.Models())
	assert.Error(t, err)
}

func TestNewSessionStartsAndStoresPending(t *testing.T) {
	be := &fakeBackend{name: "fake", script: "sleep 1"}
	bus := &fakeBus{}
	s := New(nil, bus, nil, Config{})

	dir := t.TempDir()
	status, denials, err := s.NewSession(context.Background(), be, dir, "hi", nil, be.Models())
	require.NoError(t, err)
	assert.Equal(t, "started", status)
	assert.Empty(t, denials)

	h := s.AttachPending("new-session-id", "/tmp/path.jsonl", dir, be)
	assert.NotNil(t, h)
}
