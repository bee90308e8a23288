// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/wingedpig/sessiontail/internal/core"
)

// NewSessionHandler serves POST /sessions/new.
type NewSessionHandler struct {
	Core *core.Core
}

// NewNewSessionHandler constructs a NewSessionHandler.
func NewNewSessionHandler(c *core.Core) *NewSessionHandler {
	return &NewSessionHandler{Core: c}
}

type newSessionRequest struct {
	Message    string `json:"message"`
	Cwd        string `json:"cwd"`
	Backend    string `json:"backend"`
	ModelIndex *int   `json:"model_index"`
}

// Create handles POST /sessions/new.
func (h *NewSessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	if !h.Core.Config.SendEnabled {
		WriteError(w, http.StatusForbidden, ErrForbidden, "sending is disabled")
		return
	}

	var req newSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "message must not be empty")
		return
	}

	backendName := req.Backend
	if backendName == "" {
		backendName = h.Core.Config.DefaultSendBackend
	}
	owner, ok := h.Core.Aggregator.ByName(backendName)
	if !ok {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "unknown backend: "+backendName)
		return
	}
	if !owner.IsCLIAvailable() {
		WriteError(w, http.StatusServiceUnavailable, ErrServiceUnavailable, owner.CLIInstallInstructions())
		return
	}

	status, denials, err := h.Core.Supervisor.NewSession(r.Context(), owner, req.Cwd, req.Message, req.ModelIndex, owner.Models())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, ErrInternalError, err.Error())
		return
	}
	if status == "permission_denied" {
		h.Core.SetPendingNewSessionDenial(req.Cwd, req.Message)
		WriteJSON(w, http.StatusOK, map[string]interface{}{"status": status, "denials": denials})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"status": status})
}
