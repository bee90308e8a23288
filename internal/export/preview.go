// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package export

import (
	"fmt"

	"github.com/charmbracelet/glamour"
)

// RenderTerminalPreview renders Markdown source as ANSI-styled text for
// the file-preview endpoints, sized to width columns. Terminal previews
// style with glamour; the HTML exporter goes through goldmark instead.
func RenderTerminalPreview(src string, width int) (string, error) {
	if width <= 0 {
		width = 80
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", fmt.Errorf("creating preview renderer: %w", err)
	}
	out, err := r.Render(src)
	if err != nil {
		return "", fmt.Errorf("rendering preview: %w", err)
	}
	return out, nil
}
