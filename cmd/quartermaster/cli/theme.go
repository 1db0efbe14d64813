// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"github.com/charmbracelet/lipgloss"
)

// Theme is the palette for status output. Colors are ANSI 256 codes;
// lipgloss drops them when stdout is not a terminal.
type Theme struct {
	Header  lipgloss.Color
	Faint   lipgloss.Color
	Good    lipgloss.Color
	Warning lipgloss.Color
	Bad     lipgloss.Color
}

// DefaultTheme suits dark terminals.
var DefaultTheme = Theme{
	Header:  lipgloss.Color("252"),
	Faint:   lipgloss.Color("243"),
	Good:    lipgloss.Color("42"),
	Warning: lipgloss.Color("214"),
	Bad:     lipgloss.Color("196"),
}

// StatusColor maps result and task states, log severities, and
// recommendation levels to a color. Unknown states render faint.
func (theme Theme) StatusColor(status string) lipgloss.Color {
	switch status {
	case "success", "completed", "ok", "valid":
		return theme.Good
	case "partial", "skipped", "overdue", "pending", "running",
		"warn", "warning", "deprecated", "medium":
		return theme.Warning
	case "failed", "invalid", "missing",
		"error", "fatal", "critical", "alert", "emergency", "high":
		return theme.Bad
	}
	return theme.Faint
}

// Status renders status in its color.
func (theme Theme) Status(status string) string {
	return lipgloss.NewStyle().Foreground(theme.StatusColor(status)).Render(status)
}

// Heading renders a bold section title.
func (theme Theme) Heading(text string) string {
	return lipgloss.NewStyle().Bold(true).Foreground(theme.Header).Render(text)
}

// Dim renders secondary text.
func (theme Theme) Dim(text string) string {
	return lipgloss.NewStyle().Foreground(theme.Faint).Render(text)
}
