// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Command sessiontaild is the session-tracking daemon: it tails Claude
// Code / OpenCode transcripts, serves the push channel and REST surface
// the browser UI consumes, and supervises CLI children on behalf of
// connected clients.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wingedpig/sessiontail/internal/api"
	"github.com/wingedpig/sessiontail/internal/config"
	"github.com/wingedpig/sessiontail/internal/core"
)

var version = "0.1"

func main() {
	var (
		configPath  string
		host        string
		port        int
		showVersion bool
	)

	flag.StringVar(&configPath, "config", "", "Path to config file (default: auto-detect sessiontail.hjson/.json)")
	flag.StringVar(&configPath, "c", "", "Path to config file (short)")
	flag.StringVar(&host, "host", "", "HTTP server host (overrides config)")
	flag.IntVar(&port, "port", 0, "HTTP server port (overrides config)")
	flag.BoolVar(&showVersion, "version", false, "Show version")
	flag.BoolVar(&showVersion, "v", false, "Show version (short)")
	flag.Parse()

	if showVersion {
		fmt.Printf("sessiontaild %s\n", version)
		os.Exit(0)
	}

	loader := config.NewLoader()
	if configPath == "" {
		if found, ok := loader.FindConfig(); ok {
			configPath = found
		}
	}

	var cfg *config.Config
	var err error
	if configPath != "" {
		log.Printf("Using config: %s", configPath)
		cfg, err = loader.LoadWithDefaults(configPath)
	} else {
		log.Printf("No config file found, using defaults")
		cfg, err = loader.LoadWithDefaults("")
	}
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}

	if host != "" {
		cfg.Host = host
	}
	if port > 0 {
		cfg.Port = port
	}

	c, err := core.New(cfg)
	if err != nil {
		log.Fatalf("Failed to construct core: %v", err)
	}
	if err := c.Start(); err != nil {
		log.Fatalf("Failed to start core: %v", err)
	}
	defer c.Close()

	server := api.NewServer(api.ServerConfig{
		Host:         cfg.Host,
		Port:         cfg.Port,
		TLSCert:      cfg.TLSCert,
		TLSKey:       cfg.TLSKey,
		TLSTailscale: cfg.TLSTailscale,
	}, c)

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("Received signal %v, shutting down", sig)
	case err := <-errCh:
		log.Fatalf("Server error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}
}
