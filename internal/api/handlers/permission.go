// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/wingedpig/sessiontail/internal/core"
	"github.com/wingedpig/sessiontail/internal/permission"
)

// PermissionHandler serves the permission-grant endpoints.
type PermissionHandler struct {
	Core *core.Core
}

// NewPermissionHandler constructs a PermissionHandler.
func NewPermissionHandler(c *core.Core) *PermissionHandler {
	return &PermissionHandler{Core: c}
}

type grantRequest struct {
	Permissions []string `json:"permissions"`
}

// Grant handles POST /sessions/{id}/grant-permission: writes the chosen
// grant options into the session's project settings file, then re-sends
// the message that originally triggered the denial.
func (h *PermissionHandler) Grant(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s, ok := h.Core.Registry.Get(id)
	if !ok {
		WriteError(w, http.StatusNotFound, ErrNotFound, "unknown session")
		return
	}

	var req grantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "invalid request body")
		return
	}
	if len(req.Permissions) == 0 {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "permissions must not be empty")
		return
	}

	if err := permission.UpdatePermissionsFile(permission.SettingsPath(s.ProjectPath), req.Permissions); err != nil {
		WriteError(w, http.StatusInternalServerError, ErrInternalError, err.Error())
		return
	}

	original, hadDenial := h.Core.LastDenialMessage(id)
	if !hadDenial || strings.TrimSpace(original) == "" {
		WriteJSON(w, http.StatusOK, map[string]interface{}{"status": "granted"})
		return
	}

	if _, _, err := h.Core.Supervisor.Send(r.Context(), id, original); err != nil {
		WriteError(w, http.StatusInternalServerError, ErrInternalError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"status": "granted_and_resent"})
}

type grantNewRequest struct {
	Cwd         string   `json:"cwd"`
	Permissions []string `json:"permissions"`
}

// GrantNew handles POST /sessions/grant-permission-new: a denial during
// session creation has no session ID yet, so the client identifies it by
// the cwd it attempted to start in.
func (h *PermissionHandler) GrantNew(w http.ResponseWriter, r *http.Request) {
	var req grantNewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "invalid request body")
		return
	}
	if len(req.Permissions) == 0 || strings.TrimSpace(req.Cwd) == "" {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "cwd and permissions are required")
		return
	}

	if err := permission.UpdatePermissionsFile(permission.SettingsPath(req.Cwd), req.Permissions); err != nil {
		WriteError(w, http.StatusInternalServerError, ErrInternalError, err.Error())
		return
	}

	s, found := h.Core.FindSessionByProjectPath(req.Cwd)
	original, hadDenial := h.Core.PendingNewSessionDenial(req.Cwd)
	if !found || !hadDenial || strings.TrimSpace(original) == "" {
		WriteJSON(w, http.StatusOK, map[string]interface{}{"status": "granted"})
		return
	}

	if _, _, err := h.Core.Supervisor.Send(r.Context(), s.ID, original); err != nil {
		WriteError(w, http.StatusInternalServerError, ErrInternalError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"status": "granted_and_resent"})
}
