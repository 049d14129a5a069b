package ui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"lumora/chat"
)

const maxToasts = 3

// toast is a transient notification shown above the input.
type toast struct {
	id    int
	level chat.Level
	title string
	text  string
}

func (a AppView) pushToast(level chat.Level, title, text string) (AppView, tea.Cmd) {
	a.nextToastID++
	t := toast{id: a.nextToastID, level: level, title: title, text: text}

	toasts := append(append([]toast{}, a.toasts...), t)
	if len(toasts) > maxToasts {
		toasts = toasts[len(toasts)-maxToasts:]
	}
	a.toasts = toasts
	return a, expireToast(t.id)
}

func (a AppView) info(title, text string) (AppView, tea.Cmd) {
	return a.pushToast(chat.LevelInfo, title, text)
}

func (a AppView) fail(title, text string) (AppView, tea.Cmd) {
	return a.pushToast(chat.LevelError, title, text)
}

func (a *AppView) dropToast(id int) {
	kept := make([]toast, 0, len(a.toasts))
	for _, t := range a.toasts {
		if t.id != id {
			kept = append(kept, t)
		}
	}
	a.toasts = kept
}

func expireToast(id int) tea.Cmd {
	return tea.Tick(toastDuration, func(time.Time) tea.Msg {
		return toastExpiredMsg{id: id}
	})
}
