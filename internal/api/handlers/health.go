// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"net/http"

	"github.com/wingedpig/sessiontail/internal/core"
)

// SettingsHandler serves the small read-only config-probe endpoints
// (/health, /send-enabled, /fork-enabled, /default-send-backend) that
// let the UI configure itself without parsing the full config file.
type SettingsHandler struct {
	Core *core.Core
}

// NewSettingsHandler constructs a SettingsHandler.
func NewSettingsHandler(c *core.Core) *SettingsHandler {
	return &SettingsHandler{Core: c}
}

// Health handles GET /health.
func (h *SettingsHandler) Health(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "ok",
		"session_count": h.Core.Registry.Count(),
	})
}

// SendEnabled handles GET /send-enabled.
func (h *SettingsHandler) SendEnabled(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]interface{}{"send_enabled": h.Core.Config.SendEnabled})
}

// ForkEnabled handles GET /fork-enabled.
func (h *SettingsHandler) ForkEnabled(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]interface{}{"fork_enabled": h.Core.Config.ForkEnabled})
}

// DefaultSendBackend handles GET /default-send-backend.
func (h *SettingsHandler) DefaultSendBackend(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]interface{}{"default_send_backend": h.Core.Config.DefaultSendBackend})
}
