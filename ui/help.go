package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

func (a AppView) renderHelp(width, height int) string {
	blue := lipgloss.NewStyle().Foreground(accentColor)

	sendKey, newlineKey := "Enter", "Alt+Enter"
	if !a.settingsSnapshot.SendWithEnter {
		sendKey, newlineKey = newlineKey, sendKey
	}

	keys := []string{blue.Render("## Keys")}
	for _, kv := range [][2]string{
		{sendKey, "Send message"},
		{newlineKey, "New line"},
		{"Esc", "Stop reply / close"},
		{"Ctrl+N", "New chat"},
		{"Tab", "Focus chat list"},
		{"Ctrl+F", "Search chats"},
		{"Alt+Y", "Copy last reply"},
		{"PgUp/PgDn", "Scroll"},
		{"F1", "Toggle this help"},
		{"Ctrl+C", "Quit"},
	} {
		keys = append(keys, fmt.Sprintf("• %-11s %s", kv[0], kv[1]))
	}
	keys = append(keys, "", blue.Render("## Chat list"), "• j/k         Move", "• Enter       Open", "• d           Delete")

	commands := []string{blue.Render("## Commands")}
	for _, kv := range commandHelp {
		commands = append(commands, fmt.Sprintf("• %-25s %s", kv[0], kv[1]))
	}

	columns := lipgloss.JoinHorizontal(
		lipgloss.Top,
		lipgloss.NewStyle().Width(36).Render(lipgloss.JoinVertical(lipgloss.Left, keys...)),
		"  ",
		lipgloss.JoinVertical(lipgloss.Left, commands...),
	)

	content := lipgloss.JoinVertical(
		lipgloss.Center,
		lipgloss.NewStyle().Bold(true).Foreground(successColor).Render("Lumora "+a.version+" - Keys and Commands"),
		"",
		columns,
		"",
		lipgloss.NewStyle().Foreground(dimColor).Render("Press F1 or Esc to close"),
	)

	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("8")).
		Padding(1, 2)
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, box.Render(content))
}
