package ui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/sahilm/fuzzy"

	"lumora/chat"
	"lumora/config"
	"lumora/model"
	"lumora/storage"
)

// command is a parsed slash command such as "/rename Trip ideas".
type command struct {
	name string
	arg  string
}

// parseCommand recognises input starting with "/". The name is lowercased;
// the argument keeps its case and inner spacing.
func parseCommand(input string) (command, bool) {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "/") || len(input) == 1 {
		return command{}, false
	}
	name, arg, _ := strings.Cut(input[1:], " ")
	if name == "" {
		return command{}, false
	}
	return command{name: strings.ToLower(name), arg: strings.TrimSpace(arg)}, true
}

// parseToggle reads on/off style arguments. An empty argument flips current.
func parseToggle(arg string, current bool) (bool, error) {
	switch strings.ToLower(arg) {
	case "":
		return !current, nil
	case "on", "true", "yes", "1":
		return true, nil
	case "off", "false", "no", "0":
		return false, nil
	}
	return current, fmt.Errorf("expected on or off, got %q", arg)
}

// matchModel picks the model named by query: an exact id wins, otherwise the
// best fuzzy match, so "/model nano" selects openai/gpt-5-nano.
func matchModel(query string, models []string) (string, bool) {
	for _, m := range models {
		if strings.EqualFold(m, query) {
			return m, true
		}
	}
	matches := fuzzy.Find(query, models)
	if len(matches) == 0 {
		return "", false
	}
	return models[matches[0].Index], true
}

var commandHelp = [][2]string{
	{"/new", "Start a new chat"},
	{"/delete", "Delete the current chat"},
	{"/clear", "Delete every chat"},
	{"/rename <title>", "Rename the current chat"},
	{"/model [name]", "Show or pick the model"},
	{"/theme light|dark|system", "Change the theme"},
	{"/enter [on|off]", "Send with Enter"},
	{"/sound [on|off]", "Bell when a reply completes"},
	{"/attach <path>", "Attach an image"},
	{"/detach", "Drop pending attachments"},
	{"/search <text>", "Search all chats"},
	{"/export [path]", "Export the current chat as JSON"},
	{"/copy", "Copy the last reply"},
	{"/help", "Show keys and commands"},
	{"/quit", "Exit"},
}

func (a AppView) runCommand(c command) (AppView, tea.Cmd) {
	if config.DebugLog != nil {
		config.DebugLog.Printf("[UI] command /%s %q", c.name, c.arg)
	}

	switch c.name {
	case "new":
		return a.newConversation()

	case "delete":
		id := a.conversations.ActiveID()
		if id == "" {
			return a.info("Nothing to delete", "")
		}
		conv, _ := a.conversations.Get(id)
		a.confirm = &confirmation{
			title:   "Delete chat?",
			message: fmt.Sprintf("%q will be deleted permanently.", conv.Title),
			run:     func() error { return a.orch.DeleteConversation(id) },
			done:    "Chat deleted",
		}
		return a, nil

	case "clear":
		if len(a.conversations.List()) == 0 {
			return a.info("Nothing to clear", "")
		}
		a.confirm = &confirmation{
			title:   "Delete all chats?",
			message: "Every conversation will be deleted permanently.",
			run:     a.orch.ClearAll,
			done:    "All chats deleted",
		}
		return a, nil

	case "rename":
		id := a.conversations.ActiveID()
		if id == "" || c.arg == "" {
			return a.fail("Rename", "usage: /rename <title>")
		}
		a.conversations.Rename(id, c.arg)
		return a.info("Chat renamed", c.arg)

	case "model":
		if c.arg == "" {
			return a.info("Model: "+a.settingsSnapshot.Model, "Available: "+strings.Join(model.AvailableModels, ", "))
		}
		name, ok := matchModel(c.arg, model.AvailableModels)
		if !ok {
			return a.fail("Unknown model", c.arg)
		}
		if err := a.settings.SetModel(name); err != nil {
			return a.fail("Model", err.Error())
		}
		return a.info("Model set", name)

	case "theme":
		if err := a.settings.SetTheme(strings.ToLower(c.arg)); err != nil {
			return a.fail("Theme", "choose light, dark or system")
		}
		return a.info("Theme set", strings.ToLower(c.arg))

	case "enter":
		on, err := parseToggle(c.arg, a.settingsSnapshot.SendWithEnter)
		if err != nil {
			return a.fail("Send with Enter", err.Error())
		}
		a.settings.SetSendWithEnter(on)
		if on {
			return a.info("Enter sends", "Alt+Enter inserts a new line")
		}
		return a.info("Alt+Enter sends", "Enter inserts a new line")

	case "sound":
		on, err := parseToggle(c.arg, a.settingsSnapshot.SoundEffects)
		if err != nil {
			return a.fail("Sound", err.Error())
		}
		a.settings.SetSoundEffects(on)
		return a.info("Sound effects", onOff(on))

	case "attach":
		if c.arg == "" {
			return a.fail("Attach", "usage: /attach <path>")
		}
		att, err := chat.LoadAttachment(c.arg)
		if err != nil {
			return a.fail("Attach", err.Error())
		}
		if !att.IsImage() {
			return a.fail("Attach", att.Name+" is not an image")
		}
		a.attachments = append(a.attachments, att)
		return a, nil

	case "detach":
		a.attachments = nil
		return a, nil

	case "search":
		a.openSearch(c.arg)
		return a, nil

	case "export":
		id := a.conversations.ActiveID()
		if id == "" {
			return a.fail("Export", "no active chat")
		}
		path := c.arg
		if path == "" {
			conv, _ := a.conversations.Get(id)
			path = storage.GenerateExportPath(conv.Title, time.Now())
		}
		path = config.ExpandPath(path)
		if err := a.conversations.ExportJSON(id, path); err != nil {
			return a.fail("Export failed", err.Error())
		}
		return a.info("Exported", path)

	case "copy":
		return a.copyLastReply()

	case "help":
		a.showHelp = true
		return a, nil

	case "quit", "exit":
		return a.quit()
	}

	return a.fail("Unknown command", "/"+c.name+" (try /help)")
}

func (a AppView) newConversation() (AppView, tea.Cmd) {
	if err := a.orch.NewConversation(); err != nil {
		return a.busyOr(err)
	}
	a.attachments = nil
	a.highlightIdx = -1
	return a, nil
}

func (a AppView) copyLastReply() (AppView, tea.Cmd) {
	for i := len(a.messages) - 1; i >= 0; i-- {
		if a.messages[i].Role == model.RoleAssistant && a.messages[i].Content != "" {
			if err := clipboard.WriteAll(a.messages[i].Content); err != nil {
				return a.fail("Copy failed", err.Error())
			}
			return a.info("Copied", "Last reply is on the clipboard")
		}
	}
	return a.info("Nothing to copy", "")
}

// busyOr reports ErrBusy as a hint and anything else as an error.
func (a AppView) busyOr(err error) (AppView, tea.Cmd) {
	if errors.Is(err, chat.ErrBusy) {
		return a.info("Please wait", "Lumora is still replying. Press Esc to stop.")
	}
	return a.fail("Error", err.Error())
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
