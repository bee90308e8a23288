// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package prefs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowDirectoryPersistsAndReloads(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	require.NoError(t, s.AllowDirectory("/home/user/project"))
	assert.Equal(t, []string{"/home/user/project"}, s.AllowedDirectories())

	reloaded, err := New(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"/home/user/project"}, reloaded.AllowedDirectories())
}

func TestArchiveSessionIdempotent(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	already, err := s.ArchiveSession("s1")
	require.NoError(t, err)
	assert.False(t, already)

	already, err = s.ArchiveSession("s1")
	require.NoError(t, err)
	assert.True(t, already)

	assert.Equal(t, []string{"s1"}, s.ArchivedSessions())

	was, err := s.UnarchiveSession("s1")
	require.NoError(t, err)
	assert.True(t, was)
	assert.Empty(t, s.ArchivedSessions())
}

func TestArchiveProjectRoundTrip(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = s.ArchiveProject("/repo/a")
	require.NoError(t, err)
	assert.Equal(t, []string{"/repo/a"}, s.ArchivedProjects())
}

func TestSetSessionStatusAndClear(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.SetSessionStatus("s1", StatusWaiting))
	assert.Equal(t, StatusWaiting, s.SessionStatuses()["s1"])

	require.NoError(t, s.SetSessionStatus("s1", ""))
	_, ok := s.SessionStatuses()["s1"]
	assert.False(t, ok)
}

func TestValidStatus(t *testing.T) {
	assert.True(t, ValidStatus(StatusDone))
	assert.False(t, ValidStatus(Status("bogus")))
}

func TestMalformedJSONStartsFresh(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/allowed-dirs.json"
	require.NoError(t, writeJSON(path, "not an object"))

	s, err := New(dir)
	require.NoError(t, err)
	assert.Empty(t, s.AllowedDirectories())
}
