// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package terminal backs the UI's embedded terminal: an interactive
// shell on a pseudo-tty, rooted at a tracked session's project
// directory, independent of the non-interactive CLI children the
// supervisor spawns for send/fork/new-session. PTY reads block, so they
// run on their own goroutine and are bridged to the HTTP layer through
// the returned reader.
package terminal

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/creack/pty"
	"github.com/google/uuid"
)

// Session is one live pseudo-tty-backed shell.
type Session struct {
	ID  string
	cmd *exec.Cmd
	pty *os.File

	mu     sync.Mutex
	closed bool
}

// Manager tracks live terminal sessions so shutdown can reap them.
// Nothing here needs to survive a daemon restart, so a guarded map is
// enough.
type Manager struct {
	shell string

	mu       sync.Mutex
	sessions map[string]*Session
}

// New constructs a Manager. shell overrides the default login shell;
// empty uses $SHELL or /bin/sh.
func New(shell string) *Manager {
	return &Manager{shell: shell, sessions: map[string]*Session{}}
}

// Open starts a new shell in cwd and returns the Session plus its pty
// master, which the caller (the websocket handler) pumps in both
// directions.
func (m *Manager) Open(cwd string) (*Session, *os.File, error) {
	shell := m.shell
	if shell == "" {
		shell = os.Getenv("SHELL")
	}
	if shell == "" {
		shell = "/bin/sh"
	}

	cmd := exec.Command(shell)
	cmd.Dir = cwd
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")

	ptmx, err := pty.Start(cmd)
	if err != nil {
		return nil, nil, fmt.Errorf("starting pty shell: %w", err)
	}

	s := &Session{ID: uuid.NewString(), cmd: cmd, pty: ptmx}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	return s, ptmx, nil
}

// Resize applies new terminal dimensions, ignored if the session has
// already exited.
func (m *Manager) Resize(s *Session, rows, cols uint16) {
	if rows == 0 || cols == 0 {
		return
	}
	_ = pty.Setsize(s.pty, &pty.Winsize{Rows: rows, Cols: cols})
}

// Close terminates the shell and releases the pty, idempotent.
func (m *Manager) Close(s *Session) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	_ = s.pty.Close()
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
		_ = s.cmd.Wait()
	}

	m.mu.Lock()
	delete(m.sessions, s.ID)
	m.mu.Unlock()
}

// CloseAll terminates every open session; used at daemon shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		m.Close(s)
	}
}

// Count returns the number of live sessions, used by tests and /health.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Pump copies ptmx output to dst until EOF or error; exported as a
// package-level helper (rather than a Session method) so the handler
// can run it in its own goroutine without reaching into Session
// internals.
func Pump(dst io.Writer, ptmx *os.File, onErr func(error)) {
	buf := make([]byte, 4096)
	for {
		n, err := ptmx.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				if onErr != nil {
					onErr(werr)
				}
				return
			}
		}
		if err != nil {
			if err != io.EOF && onErr != nil {
				onErr(err)
			}
			return
		}
	}
}
