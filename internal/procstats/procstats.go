// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package procstats supplies the optional per-child resource stats
// surfaced on session_status events (RSS, CPU%) and a lightweight
// process-liveness probe used when checking whether a CLI binary's
// child is still running.
package procstats

import (
	ps "github.com/mitchellh/go-ps"
	"github.com/shirou/gopsutil/v3/process"
)

// Stats is the resource snapshot for one running child.
type Stats struct {
	PID        int32   `json:"pid"`
	RSSBytes   uint64  `json:"rss_bytes"`
	CPUPercent float64 `json:"cpu_percent"`
}

// IsAlive reports whether pid names a live OS process, independent of
// whether this process is our child (used to sanity-check a supervisor
// handle before trusting its reported PID).
func IsAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := ps.FindProcess(pid)
	return err == nil && p != nil
}

// Snapshot returns RSS and CPU% for pid, or ok=false if the process is
// gone or stats could not be read (e.g. permission, or exited between
// the supervisor reporting the PID and this call).
func Snapshot(pid int) (Stats, bool) {
	if pid <= 0 {
		return Stats{}, false
	}
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return Stats{}, false
	}
	mem, err := proc.MemoryInfo()
	if err != nil || mem == nil {
		return Stats{}, false
	}
	cpuPct, _ := proc.CPUPercent()
	return Stats{PID: int32(pid), RSSBytes: mem.RSS, CPUPercent: cpuPct}, true
}
