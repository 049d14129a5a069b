package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"lumora/chat"
	"lumora/config"
	"lumora/model"
	"lumora/provider"
	"lumora/storage"
)

const (
	toastDuration  = 4 * time.Second
	inputHeight    = 3
	minSidebarCols = 100
)

// AppView is the chat screen. It owns no chat state of its own: after every
// store change it re-reads the orchestrator and the stores.
type AppView struct {
	cfg           *config.Config
	orch          *chat.Orchestrator
	conversations *storage.ConversationStore
	settings      *storage.SettingsStore
	client        *provider.GatewayClient
	bridge        *eventBridge
	bell          io.Writer
	version       string

	viewport viewport.Model
	textarea textarea.Model
	spinner  spinner.Model
	markdown *markdownCache
	styles   Styles

	width  int
	height int
	ready  bool

	// Snapshots of the stores, refreshed on storeChangedMsg.
	messages         []model.Message
	groups           []storage.ConversationGroup
	settingsSnapshot model.Settings
	state            chat.State
	busy             bool
	stopRequested    bool

	highlightIdx int
	attachments  []chat.Attachment
	toasts       []toast
	nextToastID  int

	sidebarFocused bool
	sidebarCursor  string

	search   *searchOverlay
	confirm  *confirmation
	showHelp bool
}

// NewAppView builds the chat screen. client may be nil, which skips the
// startup health check.
func NewAppView(cfg *config.Config, orch *chat.Orchestrator, conversations *storage.ConversationStore, settings *storage.SettingsStore, client *provider.GatewayClient, version string) AppView {
	ta := textarea.New()
	ta.Placeholder = "Message Lumora..."
	ta.Focus()
	ta.Prompt = "┃ "
	ta.CharLimit = 0
	ta.SetHeight(inputHeight)
	ta.ShowLineNumbers = false
	ta.KeyMap.InsertNewline.SetEnabled(false)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(accentColor)

	a := AppView{
		cfg:           cfg,
		orch:          orch,
		conversations: conversations,
		settings:      settings,
		client:        client,
		bridge:        newEventBridge(orch, conversations, settings),
		version:       version,
		viewport:      viewport.New(80, 20),
		textarea:      ta,
		spinner:       sp,
		markdown:      newMarkdownCache(),
		highlightIdx:  -1,
	}
	a.settingsSnapshot = settings.Get()
	a.styles = NewStyles(a.settingsSnapshot.Theme)
	a.refresh()
	return a
}

// WithBell sets where the completion bell is written. Nil disables it.
func (a AppView) WithBell(w io.Writer) AppView {
	a.bell = w
	return a
}

// WithNotice queues a toast shown when the view starts, used for startup
// problems that do not prevent chatting.
func (a AppView) WithNotice(level chat.Level, title, text string) AppView {
	a, _ = a.pushToast(level, title, text)
	return a
}

func (a AppView) Init() tea.Cmd {
	cmds := []tea.Cmd{textarea.Blink, a.bridge.listen()}
	for _, t := range a.toasts {
		cmds = append(cmds, expireToast(t.id))
	}
	if a.client != nil {
		cmds = append(cmds, provider.PingGateway(a.client, a.cfg.GatewayURL))
	}
	return tea.Batch(cmds...)
}

// refresh re-reads every store the view shows.
func (a *AppView) refresh() {
	a.messages = a.orch.Messages().Messages()
	a.state = a.orch.State()
	a.busy = a.state != chat.StateIdle
	a.groups = storage.Group(time.Now(), a.conversations.List())

	s := a.settings.Get()
	if s.Theme != a.settingsSnapshot.Theme {
		a.styles = NewStyles(s.Theme)
	}
	a.settingsSnapshot = s

	if a.highlightIdx >= len(a.messages) {
		a.highlightIdx = -1
	}
	if a.sidebarCursor == "" || !a.hasEntry(a.sidebarCursor) {
		a.sidebarCursor = a.conversations.ActiveID()
		if a.sidebarCursor == "" {
			if entries := sidebarEntries(a.groups); len(entries) > 0 {
				a.sidebarCursor = entries[0].id
			}
		}
	}
}

func (a AppView) hasEntry(id string) bool {
	for _, e := range sidebarEntries(a.groups) {
		if e.id == id {
			return true
		}
	}
	return false
}

func (a AppView) showSidebar() bool {
	return a.width >= minSidebarCols
}

// layout sizes the viewport and input for the current window.
func (a *AppView) layout() {
	mainWidth := a.width
	if a.showSidebar() {
		mainWidth -= sidebarWidth
	}
	// title, blank, notice line, input and status bar
	vpHeight := a.height - inputHeight - 4
	if vpHeight < 1 {
		vpHeight = 1
	}
	a.viewport.Width = mainWidth
	a.viewport.Height = vpHeight
	a.textarea.SetWidth(mainWidth)
}

func (a AppView) View() string {
	if !a.ready {
		return "Loading..."
	}
	if a.width < 40 || a.height < 12 {
		return "Terminal too small"
	}

	switch {
	case a.confirm != nil:
		return renderConfirmation(a.confirm, a.width, a.height)
	case a.search != nil:
		return a.renderSearch(a.width, a.height)
	case a.showHelp:
		return a.renderHelp(a.width, a.height)
	}

	main := lipgloss.JoinVertical(
		lipgloss.Left,
		a.renderTitle(),
		"",
		a.viewport.View(),
		a.renderNotice(),
		a.textarea.View(),
		a.renderStatus(),
	)
	if !a.showSidebar() {
		return main
	}
	side := renderSidebar(a.styles, a.groups, a.conversations.ActiveID(), a.sidebarCursor, a.sidebarFocused, sidebarWidth, a.height)
	return lipgloss.JoinHorizontal(lipgloss.Top, side, main)
}

func (a AppView) renderTitle() string {
	title := model.DefaultConversationTitle
	if conv, ok := a.conversations.Active(); ok {
		title = conv.Title
	}
	return a.styles.Title.Render(" " + title)
}

// renderNotice shows the newest toast, else pending attachments.
func (a AppView) renderNotice() string {
	if n := len(a.toasts); n > 0 {
		t := a.toasts[n-1]
		style := a.styles.Status
		if t.level == chat.LevelError {
			style = a.styles.Error
		}
		line := style.Render(" " + t.title)
		if t.text != "" {
			line += " " + t.text
		}
		return truncateLine(line, a.viewport.Width)
	}
	if len(a.attachments) > 0 {
		names := make([]string, len(a.attachments))
		for i, att := range a.attachments {
			names[i] = att.Name
		}
		return a.styles.Dim.Render(" 📎 " + strings.Join(names, ", ") + "  (/detach to remove)")
	}
	return ""
}

func (a AppView) renderStatus() string {
	state := "Ready"
	switch a.state {
	case chat.StateSending:
		state = "Sending"
	case chat.StateStreaming:
		state = "Streaming (Esc to stop)"
	case chat.StateFailed:
		state = "Failed"
	}
	sendKey := "Enter"
	if !a.settingsSnapshot.SendWithEnter {
		sendKey = "Alt+Enter"
	}
	left := fmt.Sprintf(" %s │ %s", a.settingsSnapshot.Model, state)
	right := FormatFooter(sendKey, "Send", "F1", "Help") + " "
	gap := a.viewport.Width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		return a.styles.Status.Render(left)
	}
	return a.styles.Status.Render(left) + strings.Repeat(" ", gap) + right
}

func truncateLine(s string, width int) string {
	if width <= 0 || lipgloss.Width(s) <= width {
		return s
	}
	return lipgloss.NewStyle().MaxWidth(width).Render(s)
}

// scrollToHighlight moves the viewport to the highlighted message.
func (a *AppView) scrollToHighlight() {
	if a.highlightIdx < 0 {
		a.viewport.GotoBottom()
		return
	}
	for i, line := range strings.Split(stripANSI(a.renderThread(a.viewport.Width)), "\n") {
		if strings.HasPrefix(line, ">>> ") {
			a.viewport.SetYOffset(i)
			return
		}
	}
}
