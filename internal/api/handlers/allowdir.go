// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/wingedpig/sessiontail/internal/core"
)

// AllowDirectoryHandler serves POST /allow-directory: records a
// directory the user has approved for new-session creation outside the
// backend's own sandboxing.
type AllowDirectoryHandler struct {
	Core *core.Core
}

// NewAllowDirectoryHandler constructs an AllowDirectoryHandler.
func NewAllowDirectoryHandler(c *core.Core) *AllowDirectoryHandler {
	return &AllowDirectoryHandler{Core: c}
}

type allowDirectoryRequest struct {
	Directory string `json:"directory"`
}

// Allow handles POST /allow-directory.
func (h *AllowDirectoryHandler) Allow(w http.ResponseWriter, r *http.Request) {
	var req allowDirectoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Directory) == "" {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "directory must not be empty")
		return
	}

	if err := h.Core.Prefs.AllowDirectory(req.Directory); err != nil {
		WriteError(w, http.StatusInternalServerError, ErrInternalError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"status": "allowed"})
}
