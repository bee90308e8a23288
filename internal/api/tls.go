// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"crypto/tls"
	"fmt"
	"os"

	"github.com/tailscale/tscert"
)

// tlsMode describes how the listener should terminate TLS.
type tlsMode int

const (
	tlsOff tlsMode = iota
	tlsCertFiles
	tlsTailscale
)

// resolveTLS validates the TLS fields of cfg and returns the mode to run
// in. The daemon usually binds plain HTTP on loopback; cert files or the
// local Tailscale daemon cover the tailnet-exposed setups.
func resolveTLS(cfg ServerConfig) (tlsMode, error) {
	if cfg.TLSTailscale {
		if cfg.TLSCert != "" || cfg.TLSKey != "" {
			return tlsOff, fmt.Errorf("tls_tailscale is mutually exclusive with tls_cert/tls_key")
		}
		return tlsTailscale, nil
	}

	// Neither specified - no TLS
	if cfg.TLSCert == "" && cfg.TLSKey == "" {
		return tlsOff, nil
	}

	// Only one specified - invalid config
	if cfg.TLSCert == "" || cfg.TLSKey == "" {
		return tlsOff, fmt.Errorf("both tls_cert and tls_key must be specified (got cert=%q, key=%q)", cfg.TLSCert, cfg.TLSKey)
	}

	if !fileExists(expandPath(cfg.TLSCert)) {
		return tlsOff, fmt.Errorf("tls_cert file not found: %s", cfg.TLSCert)
	}
	if !fileExists(expandPath(cfg.TLSKey)) {
		return tlsOff, fmt.Errorf("tls_key file not found: %s", cfg.TLSKey)
	}

	return tlsCertFiles, nil
}

// tailscaleTLSConfig fetches certificates from the local Tailscale
// daemon on demand, so the machine's tailnet HTTPS name works without
// managing cert files.
func tailscaleTLSConfig() *tls.Config {
	return &tls.Config{
		GetCertificate: tscert.GetCertificate,
	}
}

func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return home + path[1:]
		}
	}
	return path
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
