// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package handlers implements the daemon's REST surface over a *core.Core.
package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/wingedpig/sessiontail/internal/core"
	"github.com/wingedpig/sessiontail/internal/procstats"
)

// SessionsHandler serves the session-tracking endpoints.
type SessionsHandler struct {
	Core *core.Core
}

// NewSessionsHandler constructs a SessionsHandler.
func NewSessionsHandler(c *core.Core) *SessionsHandler {
	return &SessionsHandler{Core: c}
}

// List handles GET /sessions.
func (h *SessionsHandler) List(w http.ResponseWriter, r *http.Request) {
	sessions := h.Core.Registry.List()
	out := make([]map[string]interface{}, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.ToEventPayload(h.Core.Aggregator))
	}
	WriteJSON(w, http.StatusOK, out)
}

// Status handles GET /sessions/{id}/status.
func (h *SessionsHandler) Status(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s, ok := h.Core.Registry.Get(id)
	if !ok {
		WriteError(w, http.StatusNotFound, ErrNotFound, "unknown session")
		return
	}

	running, queueLen, pid := h.Core.Supervisor.State(id)
	waiting := false
	if s.Tailer != nil {
		waiting = s.Tailer.WaitingForInput()
	}

	payload := map[string]interface{}{
		"session_id":        id,
		"running":           running,
		"queued":            queueLen,
		"waiting_for_input": waiting,
	}
	if running && procstats.IsAlive(pid) {
		if stats, ok := procstats.Snapshot(pid); ok {
			payload["resource_stats"] = stats
		}
	}
	WriteJSON(w, http.StatusOK, payload)
}

type sendRequest struct {
	Message string `json:"message"`
}

// Send handles POST /sessions/{id}/send.
func (h *SessionsHandler) Send(w http.ResponseWriter, r *http.Request) {
	if !h.Core.Config.SendEnabled {
		WriteError(w, http.StatusForbidden, ErrForbidden, "sending is disabled")
		return
	}

	id := mux.Vars(r)["id"]
	s, ok := h.Core.Registry.Get(id)
	if !ok {
		WriteError(w, http.StatusNotFound, ErrNotFound, "unknown session")
		return
	}

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "message must not be empty")
		return
	}

	owner, ok := h.Core.Aggregator.ByName(s.BackendName)
	if !ok || !owner.IsCLIAvailable() {
		WriteError(w, http.StatusServiceUnavailable, ErrServiceUnavailable, cliMissingMessage(owner))
		return
	}

	queued, pos, err := h.Core.Supervisor.Send(r.Context(), id, req.Message)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, ErrInternalError, err.Error())
		return
	}
	if queued {
		WriteJSON(w, http.StatusOK, map[string]interface{}{"status": "queued", "queue_position": pos})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"status": "sent"})
}

// Fork handles POST /sessions/{id}/fork.
func (h *SessionsHandler) Fork(w http.ResponseWriter, r *http.Request) {
	if !h.Core.Config.ForkEnabled {
		WriteError(w, http.StatusForbidden, ErrForbidden, "forking is disabled")
		return
	}

	id := mux.Vars(r)["id"]
	s, ok := h.Core.Registry.Get(id)
	if !ok {
		WriteError(w, http.StatusNotFound, ErrNotFound, "unknown session")
		return
	}

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "message must not be empty")
		return
	}

	owner, ok := h.Core.Aggregator.ByName(s.BackendName)
	if !ok || !owner.IsCLIAvailable() {
		WriteError(w, http.StatusServiceUnavailable, ErrServiceUnavailable, cliMissingMessage(owner))
		return
	}
	if !owner.SupportsFork() {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "backend does not support fork")
		return
	}

	if err := h.Core.Supervisor.Fork(r.Context(), id, req.Message); err != nil {
		WriteError(w, http.StatusInternalServerError, ErrInternalError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"status": "forked"})
}

// Interrupt handles POST /sessions/{id}/interrupt.
func (h *SessionsHandler) Interrupt(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, ok := h.Core.Registry.Get(id); !ok {
		WriteError(w, http.StatusNotFound, ErrNotFound, "unknown session")
		return
	}
	if err := h.Core.Supervisor.Interrupt(id); err != nil {
		WriteJSON(w, http.StatusOK, map[string]interface{}{"status": "not_running"})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"status": "interrupted"})
}

// Summarize handles POST /sessions/{id}/summarize.
func (h *SessionsHandler) Summarize(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s, ok := h.Core.Registry.Get(id)
	if !ok {
		WriteError(w, http.StatusNotFound, ErrNotFound, "unknown session")
		return
	}
	owner, ok := h.Core.Aggregator.ByName(s.BackendName)
	if !ok {
		WriteError(w, http.StatusInternalServerError, ErrInternalError, "unknown backend for session")
		return
	}
	h.Core.Summarizer.Force(id, s.Path, owner)
	WriteJSON(w, http.StatusOK, map[string]interface{}{"status": "scheduled"})
}

func cliMissingMessage(owner interface{ CLIInstallInstructions() string }) string {
	if owner == nil {
		return "backend CLI not available"
	}
	return owner.CLIInstallInstructions()
}
