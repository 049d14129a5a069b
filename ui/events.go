package ui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"lumora/chat"
	"lumora/model"
	"lumora/storage"
)

// eventBridge turns store callbacks into tea messages. Callbacks run on
// whichever goroutine mutated the store, often the UI goroutine itself, so
// they never block: they set a pending flag and the UI re-reads the stores.
type eventBridge struct {
	wake chan struct{}

	mu    sync.Mutex
	notes []chat.Notification
}

func newEventBridge(orch *chat.Orchestrator, conversations *storage.ConversationStore, settings *storage.SettingsStore) *eventBridge {
	b := &eventBridge{wake: make(chan struct{}, 1)}

	orch.Messages().Subscribe(func(chat.MessageEvent) { b.signal() })
	orch.SubscribeState(func(chat.State) { b.signal() })
	orch.SubscribeNotifications(func(n chat.Notification) {
		b.mu.Lock()
		b.notes = append(b.notes, n)
		b.mu.Unlock()
		b.signal()
	})
	conversations.Subscribe(func(storage.ConversationEvent) { b.signal() })
	settings.Subscribe(func(model.Settings) { b.signal() })
	return b
}

func (b *eventBridge) signal() {
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// listen blocks until the next change.
func (b *eventBridge) listen() tea.Cmd {
	return func() tea.Msg {
		<-b.wake
		return storeChangedMsg{}
	}
}

// drainNotifications returns and clears the queued notifications.
func (b *eventBridge) drainNotifications() []chat.Notification {
	b.mu.Lock()
	defer b.mu.Unlock()
	notes := b.notes
	b.notes = nil
	return notes
}
