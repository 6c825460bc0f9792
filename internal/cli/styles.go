// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"github.com/charmbracelet/lipgloss"
)

func init() {
	lipgloss.SetColorProfile(ColorProfile())
}

// =============================================================================
// STYLES
// =============================================================================

var (
	// promptStyle is the REPL prompt.
	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	// titleStyle is the welcome banner.
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("141")).
			Bold(true)

	// assistantStyle labels replies.
	assistantStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Width(18)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	// dimStyle is for status lines such as "thinking...".
	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("242")).
			Italic(true)

	commandStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("48"))

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	// offlineStyle is the offline-mode badge.
	offlineStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("204")).
			Bold(true)
)

// keyValue renders one aligned status row.
func keyValue(key, value string) string {
	return labelStyle.Render(key) + valueStyle.Render(value)
}
