// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/wingedpig/sessiontail/internal/core"
	"github.com/wingedpig/sessiontail/internal/export"
)

// ExportHandler serves static transcript exports and the Markdown
// file-preview endpoint.
type ExportHandler struct {
	Core *core.Core
}

// NewExportHandler constructs an ExportHandler.
func NewExportHandler(c *core.Core) *ExportHandler {
	return &ExportHandler{Core: c}
}

// HTML handles GET /sessions/{id}/export/html: the full transcript as a
// standalone HTML page, replayed via the tailer's non-destructive
// ReadAll so the live cursor is untouched.
func (h *ExportHandler) HTML(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s, ok := h.Core.Registry.Get(id)
	if !ok || s.Tailer == nil {
		WriteError(w, http.StatusNotFound, ErrNotFound, "unknown session: "+id)
		return
	}

	msgs, err := s.Tailer.ReadAll()
	if err != nil {
		WriteError(w, http.StatusInternalServerError, ErrInternalError, err.Error())
		return
	}

	page, err := export.TranscriptToHTML(h.exportTitle(id), msgs)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, ErrInternalError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(page))
}

// Markdown handles GET /sessions/{id}/export/markdown.
func (h *ExportHandler) Markdown(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s, ok := h.Core.Registry.Get(id)
	if !ok || s.Tailer == nil {
		WriteError(w, http.StatusNotFound, ErrNotFound, "unknown session: "+id)
		return
	}

	msgs, err := s.Tailer.ReadAll()
	if err != nil {
		WriteError(w, http.StatusInternalServerError, ErrInternalError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Write([]byte(export.TranscriptToMarkdown(h.exportTitle(id), msgs)))
}

func (h *ExportHandler) exportTitle(id string) string {
	if s, ok := h.Core.Registry.Get(id); ok {
		if s.Summary != nil && s.Summary.Title != "" {
			return s.Summary.Title
		}
		if s.ProjectName != "" {
			return s.ProjectName
		}
	}
	return id
}

// Preview handles GET /preview?path=...&width=...: an ANSI-styled
// Markdown preview of a file under one of the tracked project roots.
// Paths outside every tracked project are rejected.
func (h *ExportHandler) Preview(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" || !filepath.IsAbs(path) {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "path must be absolute")
		return
	}
	path = filepath.Clean(path)

	if !h.underTrackedProject(path) {
		WriteError(w, http.StatusForbidden, ErrForbidden, "path is outside every tracked project")
		return
	}

	width := 80
	if ws := r.URL.Query().Get("width"); ws != "" {
		if n, err := strconv.Atoi(ws); err == nil {
			width = n
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		WriteError(w, http.StatusNotFound, ErrNotFound, err.Error())
		return
	}

	out, err := export.RenderTerminalPreview(string(data), width)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, ErrInternalError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(out))
}

func (h *ExportHandler) underTrackedProject(path string) bool {
	for _, s := range h.Core.Registry.List() {
		if s.ProjectPath == "" {
			continue
		}
		root := filepath.Clean(s.ProjectPath)
		if path == root || strings.HasPrefix(path, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
