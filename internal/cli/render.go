// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
)

// =============================================================================
// MARKDOWN RENDERING
// =============================================================================

// markdown renders replies with glamour, falling back to plain text when
// rendering is disabled or fails.
type markdown struct {
	enabled bool
	width   int

	once     sync.Once
	renderer *glamour.TermRenderer
}

func newMarkdown(enabled bool, width int) *markdown {
	return &markdown{enabled: enabled, width: width}
}

// Render returns text formatted for the terminal.
func (m *markdown) Render(text string) string {
	if !m.enabled {
		return text
	}
	m.once.Do(func() {
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(m.width),
		)
		if err == nil {
			m.renderer = r
		}
	})
	if m.renderer == nil {
		return text
	}
	out, err := m.renderer.Render(text)
	if err != nil {
		return text
	}
	return strings.Trim(out, "\n")
}
