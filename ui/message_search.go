package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"lumora/model"
	"lumora/storage"
)

// searchOverlay searches every conversation; Enter opens the match.
type searchOverlay struct {
	input    textinput.Model
	results  []storage.SearchResult
	selected int
	scroll   int
}

func (a *AppView) openSearch(query string) {
	input := textinput.New()
	input.Placeholder = "Search all chats"
	input.CharLimit = 200
	input.SetValue(query)
	input.CursorEnd()
	input.Focus()

	a.search = &searchOverlay{input: input}
	a.refreshSearch()
}

func (a *AppView) refreshSearch() {
	s := a.search
	s.results = a.conversations.Search(s.input.Value())
	s.selected = 0
	s.scroll = 0
}

func (a AppView) updateSearch(msg tea.KeyMsg) (AppView, tea.Cmd) {
	s := a.search
	switch msg.String() {
	case "esc":
		a.search = nil
		return a, nil
	case "up", "ctrl+k", "ctrl+p":
		if s.selected > 0 {
			s.selected--
		}
		if s.selected < s.scroll {
			s.scroll = s.selected
		}
		return a, nil
	case "down", "ctrl+j", "ctrl+n":
		if s.selected < len(s.results)-1 {
			s.selected++
		}
		if visible := a.searchVisibleResults(); s.selected >= s.scroll+visible {
			s.scroll = s.selected - visible + 1
		}
		return a, nil
	case "enter":
		if len(s.results) == 0 {
			return a, nil
		}
		return a.openSearchResult(s.results[s.selected])
	}

	before := s.input.Value()
	var cmd tea.Cmd
	s.input, cmd = s.input.Update(msg)
	if s.input.Value() != before {
		a.refreshSearch()
	}
	return a, cmd
}

func (a AppView) openSearchResult(r storage.SearchResult) (AppView, tea.Cmd) {
	if r.ConversationID != a.conversations.ActiveID() {
		if err := a.orch.SwitchConversation(r.ConversationID); err != nil {
			return a.busyOr(err)
		}
	}
	a.search = nil
	a.highlightIdx = r.MessageIndex
	a.messages = a.orch.Messages().Messages()
	a.updateViewportContent(false)
	a.scrollToHighlight()
	return a, nil
}

// searchVisibleResults is how many results fit; each takes three lines.
func (a AppView) searchVisibleResults() int {
	n := (a.height - 14) / 3
	if n < 1 {
		n = 1
	}
	return n
}

func (a AppView) renderSearch(width, height int) string {
	s := a.search
	modalWidth := width - 4
	if modalWidth > 100 {
		modalWidth = 100
	}

	var body strings.Builder
	switch {
	case len(s.results) == 0 && strings.TrimSpace(s.input.Value()) == "":
		body.WriteString(a.styles.Dim.Render("Type to search titles and messages..."))
	case len(s.results) == 0:
		body.WriteString(a.styles.Dim.Render("No matches found"))
	default:
		end := s.scroll + a.searchVisibleResults()
		if end > len(s.results) {
			end = len(s.results)
		}
		fmt.Fprintf(&body, "Found %d matches:\n\n", len(s.results))
		if s.scroll > 0 {
			body.WriteString(a.styles.Dim.Render(fmt.Sprintf("↑ %d more above", s.scroll)) + "\n")
		}
		for i := s.scroll; i < end; i++ {
			body.WriteString(a.renderSearchResult(s.results[i], i == s.selected) + "\n")
		}
		if end < len(s.results) {
			body.WriteString(a.styles.Dim.Render(fmt.Sprintf("↓ %d more below", len(s.results)-end)))
		}
	}

	content := lipgloss.JoinVertical(
		lipgloss.Left,
		a.styles.Title.Render("🔍 Search Chats"),
		"",
		s.input.View(),
		"",
		body.String(),
		"",
		FormatFooter("↑/↓", "Navigate", "Enter", "Open", "Esc", "Close"),
	)

	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(dimColor).
		Padding(1, 2).
		Width(modalWidth)
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, box.Render(content))
}

func (a AppView) renderSearchResult(r storage.SearchResult, selected bool) string {
	label := a.styles.Group.Render("title")
	if r.MessageIndex >= 0 {
		style := a.styles.User
		if r.Role == model.RoleAssistant {
			style = a.styles.Assistant
		}
		label = style.Render(string(r.Role))
	}

	text := fmt.Sprintf("%s  %s  %s\n  %s",
		r.Title, label,
		a.styles.Dim.Render(r.Timestamp.Format("Jan 2, 3:04 PM")),
		r.Preview)
	if selected {
		return a.styles.Selected.Render("> ") + text
	}
	return "  " + text
}
