package ui

import (
	"strings"

	"github.com/mattn/go-runewidth"

	"lumora/storage"
)

const sidebarWidth = 30

// sidebarEntry is one selectable row of the sidebar.
type sidebarEntry struct {
	id    string
	title string
}

// sidebarEntries flattens the grouped list in display order so the cursor
// can move across group boundaries.
func sidebarEntries(groups []storage.ConversationGroup) []sidebarEntry {
	var entries []sidebarEntry
	for _, g := range groups {
		for _, c := range g.Conversations {
			entries = append(entries, sidebarEntry{id: c.ID, title: c.Title})
		}
	}
	return entries
}

// renderSidebar draws the conversation list grouped by recency. The active
// conversation is marked with a bullet and the cursor row is highlighted
// when the sidebar has focus.
func renderSidebar(styles Styles, groups []storage.ConversationGroup, activeID, cursorID string, focused bool, width, height int) string {
	inner := width - 2
	lines := []string{styles.Title.Render(" Conversations"), ""}

	if len(groups) == 0 {
		lines = append(lines, styles.Dim.Render(" No conversations yet"))
	}
	for _, g := range groups {
		lines = append(lines, styles.Group.Render(" "+g.Label))
		for _, c := range g.Conversations {
			marker := "  "
			if c.ID == activeID {
				marker = "• "
			}
			title := runewidth.Truncate(c.Title, inner-len(marker)-1, "…")
			row := " " + marker + title
			switch {
			case focused && c.ID == cursorID:
				row = styles.Selected.Render(row)
			case c.ID == activeID:
				row = styles.User.Render(row)
			}
			lines = append(lines, row)
		}
		lines = append(lines, "")
	}

	if len(lines) > height {
		lines = lines[:height]
	}
	for len(lines) < height {
		lines = append(lines, "")
	}
	for i, line := range lines {
		lines[i] = padRight(line, width-1) + styles.Border.Render("│")
	}
	return strings.Join(lines, "\n")
}

// padRight pads s with spaces to width display cells, ignoring ANSI codes.
func padRight(s string, width int) string {
	w := runewidth.StringWidth(stripANSI(s))
	if w >= width {
		return s
	}
	return s + strings.Repeat(" ", width-w)
}
