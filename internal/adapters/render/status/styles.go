package status

import "github.com/charmbracelet/lipgloss"

type styles struct {
	title      lipgloss.Style
	header     lipgloss.Style
	address    lipgloss.Style
	detail     lipgloss.Style
	warning    lipgloss.Style
	action     lipgloss.Style
	section    lipgloss.Style
	empty      lipgloss.Style
	entryKey   lipgloss.Style
	entryMeta  lipgloss.Style
	barBracket lipgloss.Style
	barFill    lipgloss.Style
	barEmpty   lipgloss.Style
	stateColor map[string]lipgloss.Color
}

func newStyles() styles {
	return styles{
		title:      lipgloss.NewStyle().Bold(true),
		header:     lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		address:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		detail:     lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		warning:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
		action:     lipgloss.NewStyle().Underline(true).Foreground(lipgloss.Color("117")),
		section:    lipgloss.NewStyle().MarginTop(1),
		empty:      lipgloss.NewStyle().Faint(true),
		entryKey:   lipgloss.NewStyle().Foreground(lipgloss.Color("250")),
		entryMeta:  lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		barBracket: lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
		barFill:    lipgloss.NewStyle().Foreground(lipgloss.Color("159")),
		barEmpty:   lipgloss.NewStyle().Foreground(lipgloss.Color("238")),
		stateColor: map[string]lipgloss.Color{
			"connected":    lipgloss.Color("42"),
			"errored":      lipgloss.Color("203"),
			"disconnected": lipgloss.Color("245"),
		},
	}
}
