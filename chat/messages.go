package chat

import (
	"sync"

	"lumora/model"
)

type MessageEventKind int

const (
	MessageAppended MessageEventKind = iota
	MessageUpdated
	MessagesReset
)

// MessageEvent describes one mutation. Message is set for appends and
// updates; Messages is the full thread after the mutation.
type MessageEvent struct {
	Kind     MessageEventKind
	Message  model.Message
	Messages []model.Message
}

// MessageStore is the ordered message list of the thread on screen.
// Messages are never removed one by one: a rollback or thread switch
// replaces the whole list.
type MessageStore struct {
	mu       sync.RWMutex
	messages []model.Message

	listenersMu sync.Mutex
	listeners   map[int]func(MessageEvent)
	nextID      int
}

func NewMessageStore() *MessageStore {
	return &MessageStore{listeners: make(map[int]func(MessageEvent))}
}

// Append adds msg at the tail.
func (s *MessageStore) Append(msg model.Message) error {
	if msg.ID == "" {
		return ErrEmptyMessageID
	}

	s.mu.Lock()
	s.messages = append(s.messages, msg.Clone())
	snapshot := model.CloneMessages(s.messages)
	s.mu.Unlock()

	s.notify(MessageEvent{Kind: MessageAppended, Message: msg.Clone(), Messages: snapshot})
	return nil
}

// UpdateContent replaces the content of an assistant message. User
// messages are immutable; unknown ids and user messages report false.
func (s *MessageStore) UpdateContent(id, content string) bool {
	s.mu.Lock()
	idx := -1
	for i := range s.messages {
		if s.messages[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 || s.messages[idx].Role != model.RoleAssistant {
		s.mu.Unlock()
		return false
	}
	s.messages[idx].Content = content
	updated := s.messages[idx].Clone()
	snapshot := model.CloneMessages(s.messages)
	s.mu.Unlock()

	s.notify(MessageEvent{Kind: MessageUpdated, Message: updated, Messages: snapshot})
	return true
}

// ReplaceAll swaps in a whole thread.
func (s *MessageStore) ReplaceAll(messages []model.Message) {
	s.mu.Lock()
	s.messages = model.CloneMessages(messages)
	snapshot := model.CloneMessages(s.messages)
	s.mu.Unlock()

	s.notify(MessageEvent{Kind: MessagesReset, Messages: snapshot})
}

// Messages returns a copy of the thread.
func (s *MessageStore) Messages() []model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return model.CloneMessages(s.messages)
}

func (s *MessageStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Subscribe registers fn for every later mutation, delivered synchronously
// in mutation order.
func (s *MessageStore) Subscribe(fn func(MessageEvent)) func() {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners[id] = fn

	return func() {
		s.listenersMu.Lock()
		defer s.listenersMu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *MessageStore) notify(ev MessageEvent) {
	s.listenersMu.Lock()
	fns := make([]func(MessageEvent), 0, len(s.listeners))
	for i := 0; i < s.nextID; i++ {
		if fn, ok := s.listeners[i]; ok {
			fns = append(fns, fn)
		}
	}
	s.listenersMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
