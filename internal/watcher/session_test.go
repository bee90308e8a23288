// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionWatcherDispatchesTranscriptChange(t *testing.T) {
	root := t.TempDir()
	known := filepath.Join(root, "known.jsonl")
	require.NoError(t, os.WriteFile(known, []byte("{}\n"), 0o644))

	var gotID string
	done := make(chan struct{}, 1)

	w, err := New([]string{root}, Callbacks{
		ShouldWatch: func(path string) bool { return filepath.Ext(path) == ".jsonl" },
		SessionIDFromChangedFile: func(path string) (string, bool) {
			return filepath.Base(path), true
		},
		KnownSession: func(id string) bool { return id == "known.jsonl" },
		OnTranscriptChanged: func(id string) {
			gotID = id
			select {
			case done <- struct{}{}:
			default:
			}
		},
	}, 20*time.Millisecond)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(known, []byte("{}\n{}\n"), 0o644))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for transcript change dispatch")
	}
	assert.Equal(t, "known.jsonl", gotID)
}

func TestSessionWatcherTriggersDiscoveryForUnknownSession(t *testing.T) {
	root := t.TempDir()

	discovered := make(chan struct{}, 1)
	w, err := New([]string{root}, Callbacks{
		ShouldWatch:  func(path string) bool { return filepath.Ext(path) == ".jsonl" },
		KnownSession: func(string) bool { return false },
		OnDiscover: func() {
			select {
			case discovered <- struct{}{}:
			default:
			}
		},
	}, 20*time.Millisecond)
	require.NoError(t, err)
	defer w.Close()

	newFile := filepath.Join(root, "new.jsonl")
	require.NoError(t, os.WriteFile(newFile, []byte("{}\n"), 0o644))

	select {
	case <-discovered:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for discovery trigger")
	}
}
