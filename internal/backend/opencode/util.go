// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package opencode

import (
	"path/filepath"
	"strings"
	"time"
)

func parseRFC3339(ts string) (time.Time, error) {
	return time.Parse(time.RFC3339, ts)
}

func sessionIDFromSummaryPath(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, ".json")
	return strings.TrimSuffix(base, "_summary")
}
