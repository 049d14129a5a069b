package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"lumora/chat"
	"lumora/config"
	"lumora/provider"
)

func (a AppView) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.ready = true
		a.layout()
		a.updateViewportContent(a.highlightIdx < 0)
		return a, nil

	case storeChangedMsg:
		return a.handleStoreChanged()

	case sendFinishedMsg:
		return a.handleSendFinished(msg)

	case toastExpiredMsg:
		a.dropToast(msg.id)
		return a, nil

	case provider.PingGatewayMsg:
		if !msg.Valid {
			return a.fail("Gateway unreachable", fmt.Sprintf("%s: %v", msg.URL, msg.Err))
		}
		return a, nil

	case spinner.TickMsg:
		if !a.busy {
			return a, nil
		}
		atBottom := a.viewport.AtBottom()
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		a.updateViewportContent(atBottom)
		return a, cmd

	case tea.KeyMsg:
		return a.handleKey(msg)
	}

	var cmd tea.Cmd
	a.textarea, cmd = a.textarea.Update(msg)
	return a, cmd
}

func (a AppView) handleStoreChanged() (tea.Model, tea.Cmd) {
	wasBusy := a.busy
	atBottom := a.viewport.AtBottom() && a.highlightIdx < 0
	a.refresh()

	cmds := []tea.Cmd{a.bridge.listen()}
	for _, n := range a.bridge.drainNotifications() {
		var cmd tea.Cmd
		a, cmd = a.pushToast(n.Level, n.Title, n.Message)
		cmds = append(cmds, cmd)
	}
	if a.busy && !wasBusy {
		cmds = append(cmds, a.spinner.Tick)
	}

	a.updateViewportContent(atBottom)
	return a, tea.Batch(cmds...)
}

func (a AppView) handleSendFinished(msg sendFinishedMsg) (tea.Model, tea.Cmd) {
	stopped := a.stopRequested
	a.stopRequested = false

	switch {
	case msg.err == nil:
		if !stopped && a.settingsSnapshot.SoundEffects && a.bell != nil {
			fmt.Fprint(a.bell, "\a")
		}
		return a, nil

	case errors.Is(msg.err, chat.ErrBusy):
		if a.textarea.Value() == "" {
			a.textarea.SetValue(msg.text)
		}
		a.attachments = append(msg.files, a.attachments...)
		return a.busyOr(msg.err)
	}

	// failures were already reported through the notification listeners
	if config.DebugLog != nil {
		config.DebugLog.Printf("[UI] send finished with error: %v", msg.err)
	}
	return a, nil
}

func (a AppView) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "ctrl+c" {
		return a.quit()
	}

	switch {
	case a.confirm != nil:
		return a.handleConfirmKey(key)
	case a.search != nil:
		return a.updateSearch(msg)
	case a.showHelp:
		if key == "esc" || key == "f1" || key == "q" {
			a.showHelp = false
		}
		return a, nil
	case a.sidebarFocused:
		return a.updateSidebar(key)
	}

	switch key {
	case "f1":
		a.showHelp = true
		return a, nil

	case "esc":
		if a.highlightIdx >= 0 {
			a.highlightIdx = -1
			a.updateViewportContent(true)
			return a, nil
		}
		if a.orch.Stop() {
			a.stopRequested = true
		}
		return a, nil

	case "ctrl+n":
		return a.newConversation()

	case "tab":
		if a.showSidebar() {
			if id := a.conversations.ActiveID(); id != "" {
				a.sidebarCursor = id
			}
			a.sidebarFocused = true
			a.textarea.Blur()
		}
		return a, nil

	case "ctrl+f":
		a.openSearch("")
		return a, textinput.Blink

	case "alt+y":
		return a.copyLastReply()

	case "pgup":
		a.viewport.PageUp()
		return a, nil

	case "pgdown":
		a.viewport.PageDown()
		return a, nil

	case "alt+q":
		return a.quit()

	case "enter", "alt+enter":
		send := key == "enter"
		if !a.settingsSnapshot.SendWithEnter {
			send = !send
		}
		if send {
			return a.submit()
		}
		a.textarea.InsertString("\n")
		return a, nil
	}

	var cmd tea.Cmd
	a.textarea, cmd = a.textarea.Update(msg)
	return a, cmd
}

func (a AppView) handleConfirmKey(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "y", "Y", "enter":
		c := a.confirm
		a.confirm = nil
		if err := c.run(); err != nil {
			return a.busyOr(err)
		}
		a.highlightIdx = -1
		return a.info(c.done, "")
	case "n", "N", "esc", "q":
		a.confirm = nil
	}
	return a, nil
}

func (a AppView) updateSidebar(key string) (tea.Model, tea.Cmd) {
	entries := sidebarEntries(a.groups)
	idx := -1
	for i, e := range entries {
		if e.id == a.sidebarCursor {
			idx = i
			break
		}
	}

	switch key {
	case "esc", "tab":
		a.sidebarFocused = false
		a.textarea.Focus()
		return a, textarea.Blink

	case "j", "down":
		if idx+1 < len(entries) {
			a.sidebarCursor = entries[idx+1].id
		}

	case "k", "up":
		if idx > 0 {
			a.sidebarCursor = entries[idx-1].id
		}

	case "enter":
		if idx < 0 {
			return a, nil
		}
		if err := a.orch.SwitchConversation(entries[idx].id); err != nil {
			return a.busyOr(err)
		}
		a.sidebarFocused = false
		a.highlightIdx = -1
		a.textarea.Focus()
		return a, textarea.Blink

	case "d", "delete":
		if idx < 0 {
			return a, nil
		}
		id, title := entries[idx].id, entries[idx].title
		a.confirm = &confirmation{
			title:   "Delete chat?",
			message: fmt.Sprintf("%q will be deleted permanently.", title),
			run:     func() error { return a.orch.DeleteConversation(id) },
			done:    "Chat deleted",
		}

	case "n":
		return a.newConversation()
	}
	return a, nil
}

// submit runs a slash command or sends the input with pending attachments.
func (a AppView) submit() (tea.Model, tea.Cmd) {
	text := a.textarea.Value()
	if c, ok := parseCommand(text); ok {
		a.textarea.Reset()
		return a.runCommand(c)
	}

	if strings.TrimSpace(text) == "" && len(a.attachments) == 0 {
		return a, nil
	}
	if a.busy {
		return a.busyOr(chat.ErrBusy)
	}

	files := a.attachments
	a.attachments = nil
	a.textarea.Reset()
	a.highlightIdx = -1
	a.stopRequested = false

	orch := a.orch
	return a, func() tea.Msg {
		return sendFinishedMsg{err: orch.Send(context.Background(), text, files), text: text, files: files}
	}
}

func (a AppView) quit() (AppView, tea.Cmd) {
	a.orch.Stop()
	return a, tea.Quit
}
