package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"lumora/model"
)

var (
	dimColor       = lipgloss.Color("7")
	accentColor    = lipgloss.Color("12")
	successColor   = lipgloss.Color("10")
	warningColor   = lipgloss.Color("11")
	dangerColor    = lipgloss.Color("9")
	highlightColor = lipgloss.Color("13")
)

// Styles holds every style that depends on the theme setting. No style sets
// a background so the terminal's transparency is preserved.
type Styles struct {
	User      lipgloss.Style
	Assistant lipgloss.Style
	Dim       lipgloss.Style
	Title     lipgloss.Style
	Status    lipgloss.Style
	Selected  lipgloss.Style
	Highlight lipgloss.Style
	Error     lipgloss.Style
	Group     lipgloss.Style
	Border    lipgloss.Style
}

// NewStyles builds the palette for a theme. "system" follows the terminal
// background.
func NewStyles(theme string) Styles {
	dark := true
	switch theme {
	case model.ThemeLight:
		dark = false
	case model.ThemeSystem:
		dark = lipgloss.HasDarkBackground()
	}

	dim, accent, user := dimColor, accentColor, successColor
	if !dark {
		dim = lipgloss.Color("8")
		accent = lipgloss.Color("4")
		user = lipgloss.Color("2")
	}

	return Styles{
		User:      lipgloss.NewStyle().Foreground(user).Bold(true),
		Assistant: lipgloss.NewStyle().Foreground(accent),
		Dim:       lipgloss.NewStyle().Foreground(dim),
		Title:     lipgloss.NewStyle().Bold(true),
		Status:    lipgloss.NewStyle().Foreground(dim),
		Selected:  lipgloss.NewStyle().Foreground(warningColor).Bold(true),
		Highlight: lipgloss.NewStyle().Foreground(highlightColor).Bold(true),
		Error:     lipgloss.NewStyle().Foreground(dangerColor).Bold(true),
		Group:     lipgloss.NewStyle().Foreground(accent).Bold(true),
		Border:    lipgloss.NewStyle().Foreground(dim),
	}
}

// FormatFooter renders alternating key/description pairs:
// FormatFooter("j/k", "Navigate", "Esc", "Close").
func FormatFooter(parts ...string) string {
	descStyle := lipgloss.NewStyle().Foreground(accentColor).Bold(true)
	var result []string
	for i := 0; i+1 < len(parts); i += 2 {
		result = append(result, parts[i]+" "+descStyle.Render(parts[i+1]))
	}
	return strings.Join(result, "  ")
}
