// Package tui is the interactive terminal front end of the examiner.
package tui

import "github.com/charmbracelet/lipgloss"

var (
	colorGood   = lipgloss.Color("#8BC34A")
	colorBad    = lipgloss.Color("#e53935")
	colorWarn   = lipgloss.Color("#FFC107")
	colorInfo   = lipgloss.Color("#2196F3")
	colorDim    = lipgloss.Color("#6b7280")
	colorBorder = lipgloss.Color("#2a3850")
)

// Styles holds every style the screen uses.
type Styles struct {
	StatusBar lipgloss.Style
	Title     lipgloss.Style
	Dim       lipgloss.Style
	Good      lipgloss.Style
	Warn      lipgloss.Style
	Bad       lipgloss.Style
	Info      lipgloss.Style
	Sidebar   lipgloss.Style
	Detail    lipgloss.Style
	Selected  lipgloss.Style
	Header    lipgloss.Style
	Footer    lipgloss.Style
}

// DefaultStyles returns the dark palette.
func DefaultStyles() Styles {
	return Styles{
		StatusBar: lipgloss.NewStyle().Padding(0, 1).Border(lipgloss.NormalBorder(), false, false, true, false).BorderForeground(colorBorder),
		Title:     lipgloss.NewStyle().Bold(true),
		Dim:       lipgloss.NewStyle().Foreground(colorDim),
		Good:      lipgloss.NewStyle().Foreground(colorGood),
		Warn:      lipgloss.NewStyle().Foreground(colorWarn),
		Bad:       lipgloss.NewStyle().Foreground(colorBad),
		Info:      lipgloss.NewStyle().Foreground(colorInfo),
		Sidebar:   lipgloss.NewStyle().Padding(0, 1).Border(lipgloss.NormalBorder(), false, true, false, false).BorderForeground(colorBorder),
		Detail:    lipgloss.NewStyle().Padding(0, 1),
		Selected:  lipgloss.NewStyle().Reverse(true),
		Header:    lipgloss.NewStyle().Bold(true).Underline(true),
		Footer:    lipgloss.NewStyle().Foreground(colorDim).Padding(0, 1),
	}
}
