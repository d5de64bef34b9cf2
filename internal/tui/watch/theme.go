// Package watch implements the live trace ledger viewer TUI and the shared
// record rendering used by the static trace inspection command.
package watch

import "github.com/charmbracelet/lipgloss"

// Theme centralizes all styling for trace rendering.
// Even with a single default theme, this keeps all colors in one place
// and makes future theme support trivial.
type Theme struct {
	// Record status colors
	ExitOK      lipgloss.Style
	ExitFailed  lipgloss.Style
	ExitTimeout lipgloss.Style
	ExitDenied  lipgloss.Style

	// UI elements
	Border    lipgloss.Style
	Title     lipgloss.Style
	Header    lipgloss.Style
	Dim       lipgloss.Style
	Highlight lipgloss.Style
}

func NewDefaultTheme() Theme {
	purple := lipgloss.Color("#874BFD")

	return Theme{
		ExitOK:      lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")),
		ExitFailed:  lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")),
		ExitTimeout: lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00")),
		ExitDenied:  lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B")),

		Border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(purple),
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Padding(0, 1),
		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#61AFEF")),
		Dim:       lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),
		Highlight: lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B")),
	}
}
