// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/wingedpig/sessiontail/internal/core"
	"github.com/wingedpig/sessiontail/internal/terminal"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The daemon binds to loopback; the browser UI is the only client.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// terminalMessage is one frame from the terminal frontend.
type terminalMessage struct {
	Type string `json:"type"` // "input" | "resize"
	Data string `json:"data"`
	Rows int    `json:"rows"`
	Cols int    `json:"cols"`
}

// TerminalHandler serves the embedded-terminal websocket: an interactive
// shell rooted at a tracked session's project directory.
type TerminalHandler struct {
	Core *core.Core

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// NewTerminalHandler constructs a TerminalHandler.
func NewTerminalHandler(c *core.Core) *TerminalHandler {
	return &TerminalHandler{Core: c, conns: make(map[*websocket.Conn]struct{})}
}

func (h *TerminalHandler) trackConn(conn *websocket.Conn) {
	h.mu.Lock()
	h.conns[conn] = struct{}{}
	h.mu.Unlock()
}

func (h *TerminalHandler) untrackConn(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
}

// Shutdown closes all active websocket connections so the HTTP server
// can drain during graceful shutdown.
func (h *TerminalHandler) Shutdown() {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for conn := range h.conns {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		conn.Close()
	}
}

// WebSocket handles GET /sessions/{id}/terminal: upgrades, opens a shell
// in the session's project directory, and pumps bytes both ways until
// either side closes.
func (h *TerminalHandler) WebSocket(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s, ok := h.Core.Registry.Get(id)
	if !ok {
		WriteError(w, http.StatusNotFound, ErrNotFound, "unknown session: "+id)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("terminal: upgrade failed: %v", err)
		return
	}
	h.trackConn(conn)
	defer func() {
		h.untrackConn(conn)
		conn.Close()
	}()

	sess, ptmx, err := h.Core.Terminal.Open(s.ProjectPath)
	if err != nil {
		conn.WriteMessage(websocket.TextMessage, []byte("Error: "+err.Error()+"\r\n"))
		return
	}
	defer h.Core.Terminal.Close(sess)

	// Keepalive with ping/pong
	const pongWait = 60 * time.Second
	const pingPeriod = (pongWait * 9) / 10
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// gorilla/websocket requires a single writer
	var writeMu sync.Mutex

	stopPing := make(chan struct{})
	defer close(stopPing)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				writeMu.Lock()
				err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second))
				writeMu.Unlock()
				if err != nil {
					return
				}
			case <-stopPing:
				return
			}
		}
	}()

	// PTY -> websocket
	ptyDone := make(chan struct{})
	go func() {
		defer close(ptyDone)
		terminal.Pump(wsWriter{conn: conn, mu: &writeMu}, ptmx, nil)
		writeMu.Lock()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shell exited"),
			time.Now().Add(time.Second))
		writeMu.Unlock()
	}()

	// websocket -> PTY
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg terminalMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			// Raw bytes from older clients go straight to the shell
			if _, werr := ptmx.Write(data); werr != nil {
				return
			}
			continue
		}
		switch msg.Type {
		case "input":
			if _, err := ptmx.Write([]byte(msg.Data)); err != nil {
				return
			}
		case "resize":
			h.Core.Terminal.Resize(sess, uint16(msg.Rows), uint16(msg.Cols))
		}

		select {
		case <-ptyDone:
			return
		default:
		}
	}
}

// wsWriter adapts a websocket connection to io.Writer for the PTY pump,
// holding the shared write mutex per frame.
type wsWriter struct {
	conn *websocket.Conn
	mu   *sync.Mutex
}

func (w wsWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}
