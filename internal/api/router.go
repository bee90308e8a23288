// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package api wires the REST and SSE surface onto a *core.Core.
package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/wingedpig/sessiontail/internal/api/handlers"
	"github.com/wingedpig/sessiontail/internal/api/middleware"
	"github.com/wingedpig/sessiontail/internal/core"
)

// ServerConfig holds configuration for the API server.
type ServerConfig struct {
	Host         string
	Port         int
	TLSCert      string // Path to TLS certificate file
	TLSKey       string // Path to TLS private key file
	TLSTailscale bool   // Fetch certificates from the local Tailscale daemon
}

// NewRouter builds the full mux.Router for the daemon, every endpoint
// wrapped in logging/recovery/CORS middleware.
func NewRouter(c *core.Core) *mux.Router {
	r := mux.NewRouter()

	r.Use(middleware.Logging)
	r.Use(middleware.Recovery)
	r.Use(middleware.CORS)

	sessions := handlers.NewSessionsHandler(c)
	newSession := handlers.NewNewSessionHandler(c)
	perms := handlers.NewPermissionHandler(c)
	allowDir := handlers.NewAllowDirectoryHandler(c)
	backends := handlers.NewBackendsHandler(c)
	settings := handlers.NewSettingsHandler(c)
	ev := handlers.NewEventsHandler(c)
	term := handlers.NewTerminalHandler(c)
	exp := handlers.NewExportHandler(c)

	r.HandleFunc("/", indexHandler).Methods("GET")
	r.HandleFunc("/events", ev.Stream).Methods("GET")

	r.HandleFunc("/sessions", sessions.List).Methods("GET")
	r.HandleFunc("/sessions/new", newSession.Create).Methods("POST")
	r.HandleFunc("/sessions/grant-permission-new", perms.GrantNew).Methods("POST")
	r.HandleFunc("/sessions/{id}/status", sessions.Status).Methods("GET")
	r.HandleFunc("/sessions/{id}/send", sessions.Send).Methods("POST")
	r.HandleFunc("/sessions/{id}/fork", sessions.Fork).Methods("POST")
	r.HandleFunc("/sessions/{id}/interrupt", sessions.Interrupt).Methods("POST")
	r.HandleFunc("/sessions/{id}/summarize", sessions.Summarize).Methods("POST")
	r.HandleFunc("/sessions/{id}/grant-permission", perms.Grant).Methods("POST")
	r.HandleFunc("/sessions/{id}/terminal", term.WebSocket).Methods("GET")
	r.HandleFunc("/sessions/{id}/export/html", exp.HTML).Methods("GET")
	r.HandleFunc("/sessions/{id}/export/markdown", exp.Markdown).Methods("GET")
	r.HandleFunc("/preview", exp.Preview).Methods("GET")

	r.HandleFunc("/allow-directory", allowDir.Allow).Methods("POST")

	r.HandleFunc("/backends", backends.List).Methods("GET")
	r.HandleFunc("/backends/{name}/models", backends.Models).Methods("GET")

	r.HandleFunc("/health", settings.Health).Methods("GET")
	r.HandleFunc("/send-enabled", settings.SendEnabled).Methods("GET")
	r.HandleFunc("/fork-enabled", settings.ForkEnabled).Methods("GET")
	r.HandleFunc("/default-send-backend", settings.DefaultSendBackend).Methods("GET")

	return r
}

// indexHandler serves a minimal placeholder at "/". Serving a polished,
// branded UI bundle is out of scope; the path exists so a browser or
// health-checker pointed at the daemon root gets a response rather than a
// 404.
func indexHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, "sessiontail daemon is running")
}

// Server represents the API server.
type Server struct {
	router *mux.Router
	cfg    ServerConfig
	server *http.Server
}

// NewServer creates a new API server bound to the given core.
func NewServer(cfg ServerConfig, c *core.Core) *Server {
	return &Server{
		router: NewRouter(c),
		cfg:    cfg,
	}
}

// Router returns the underlying router.
func (s *Server) Router() *mux.Router {
	return s.router
}

// ListenAndServe starts the server.
// If TLS is configured (tls_cert and tls_key), uses HTTPS.
func (s *Server) ListenAndServe() error {
	addr := s.cfg.Host + ":" + strconv.Itoa(s.cfg.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.router,
		// /events streams indefinitely; the daemon is a single trusted
		// local client, not an internet-facing listener.
		WriteTimeout: 0,
		ReadTimeout:  15 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	mode, err := resolveTLS(s.cfg)
	if err != nil {
		return fmt.Errorf("TLS configuration error: %w", err)
	}

	switch mode {
	case tlsTailscale:
		s.server.TLSConfig = tailscaleTLSConfig()
		log.Printf("API server listening on https://%s (Tailscale TLS)", addr)
		return s.server.ListenAndServeTLS("", "")
	case tlsCertFiles:
		certPath := expandPath(s.cfg.TLSCert)
		keyPath := expandPath(s.cfg.TLSKey)
		log.Printf("API server listening on https://%s (TLS enabled)", addr)
		return s.server.ListenAndServeTLS(certPath, keyPath)
	default:
		log.Printf("API server listening on http://%s", addr)
		return s.server.ListenAndServe()
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	log.Println("Shutting down API server...")

	shutdownCtx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		shutdownCtx, cancel = context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
	}

	return s.server.Shutdown(shutdownCtx)
}
