package ui

import "github.com/charmbracelet/lipgloss"

// Color palette, lime accent on grays.
const (
	ColorLime     = "154" // primary accent
	ColorLimeDim  = "106" // dimmed accent
	ColorWhite    = "255" // headers
	ColorGray     = "245" // secondary text, labels
	ColorDarkGray = "238" // separators, heartbeats
	ColorRed      = "196" // errors, deletions
	ColorYellow   = "220" // warnings, drafts
)

// Styles holds the styles used by Printer.
type Styles struct {
	Header  lipgloss.Style
	Saved   lipgloss.Style
	Deleted lipgloss.Style
	Draft   lipgloss.Style
	Error   lipgloss.Style
	Dim     lipgloss.Style
	Label   lipgloss.Style
	Slug    lipgloss.Style
	Count   lipgloss.Style
}

// DefaultStyles returns the colored styles.
func DefaultStyles() Styles {
	return Styles{
		Header:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorLime)),
		Saved:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorLime)),
		Deleted: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorRed)),
		Draft:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorYellow)),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorRed)),
		Dim:     lipgloss.NewStyle().Foreground(lipgloss.Color(ColorDarkGray)),
		Label:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGray)),
		Slug:    lipgloss.NewStyle().Foreground(lipgloss.Color(ColorWhite)),
		Count:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorLimeDim)),
	}
}

// NoColorStyles returns unstyled components for plain mode.
func NoColorStyles() Styles {
	plain := lipgloss.NewStyle()
	return Styles{
		Header:  plain,
		Saved:   plain,
		Deleted: plain,
		Draft:   plain,
		Error:   plain,
		Dim:     plain,
		Label:   plain,
		Slug:    plain,
		Count:   plain,
	}
}

// GetStyles returns the appropriate styles based on color preference.
func GetStyles(noColor bool) Styles {
	if noColor {
		return NoColorStyles()
	}
	return DefaultStyles()
}
