// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/wingedpig/sessiontail/internal/core"
)

// BackendsHandler serves GET /backends and GET /backends/{name}/models,
// letting the UI populate its new-session backend/model pickers.
type BackendsHandler struct {
	Core *core.Core
}

// NewBackendsHandler constructs a BackendsHandler.
func NewBackendsHandler(c *core.Core) *BackendsHandler {
	return &BackendsHandler{Core: c}
}

// List handles GET /backends.
func (h *BackendsHandler) List(w http.ResponseWriter, r *http.Request) {
	backends := h.Core.Aggregator.Backends()
	out := make([]map[string]interface{}, 0, len(backends))
	for _, b := range backends {
		out = append(out, map[string]interface{}{
			"name":                          b.Name(),
			"cli_available":                 b.IsCLIAvailable(),
			"supports_send":                 b.SupportsSend(),
			"supports_fork":                 b.SupportsFork(),
			"supports_permission_detection": b.SupportsPermissionDetection(),
			"models":                        b.Models(),
		})
	}
	WriteJSON(w, http.StatusOK, out)
}

// Models handles GET /backends/{name}/models.
func (h *BackendsHandler) Models(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	b, ok := h.Core.Aggregator.ByName(name)
	if !ok {
		WriteError(w, http.StatusNotFound, ErrNotFound, "unknown backend: "+name)
		return
	}
	WriteJSON(w, http.StatusOK, b.Models())
}
