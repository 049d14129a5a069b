package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"lumora/config"
	"lumora/model"
)

const titleMaxRunes = 30

// EventKind says what changed in a ConversationStore.
type EventKind int

const (
	ConversationCreated EventKind = iota
	ConversationUpdated
	ConversationDeleted
	ConversationsCleared
	ActiveChanged
)

// ConversationEvent is delivered to subscribers after every mutation.
type ConversationEvent struct {
	Kind           EventKind
	ConversationID string
}

// ConversationStore owns every conversation and the active selection. All
// mutations are persisted in full through the backend before subscribers
// are notified. Persistence failures never abort a mutation: the in-memory
// state stays authoritative and the error is kept for LastError.
type ConversationStore struct {
	mu            sync.RWMutex
	backend       Backend
	conversations []model.Conversation
	activeID      string
	lastErr       error
	// unreadable is set when the persisted collection could not be loaded.
	// It is copied aside before the first save replaces it.
	unreadable bool

	listenersMu sync.Mutex
	listeners   map[int]func(ConversationEvent)
	nextID      int

	now func() time.Time
}

// NewConversationStore hydrates the store from backend. Unreadable or corrupt
// records are logged and leave the store empty.
func NewConversationStore(backend Backend) *ConversationStore {
	s := &ConversationStore{
		backend:   backend,
		listeners: make(map[int]func(ConversationEvent)),
		now:       time.Now,
	}
	s.load()
	return s
}

func (s *ConversationStore) load() {
	data, err := s.backend.Load(ConversationsKey)
	switch {
	case errors.Is(err, ErrNotFound):
		return
	case err != nil:
		s.lastErr = err
		s.unreadable = true
		if config.DebugLog != nil {
			config.DebugLog.Printf("[ConversationStore] load failed, starting empty: %v", err)
		}
		return
	}

	var conversations []model.Conversation
	if err := json.Unmarshal(data, &conversations); err != nil {
		s.lastErr = fmt.Errorf("failed to parse conversations: %w", err)
		s.unreadable = true
		if config.DebugLog != nil {
			config.DebugLog.Printf("[ConversationStore] corrupt record, starting empty: %v", err)
		}
		return
	}
	for i := range conversations {
		if conversations[i].Messages == nil {
			conversations[i].Messages = []model.Message{}
		}
	}
	s.conversations = conversations

	if raw, err := s.backend.Load(ActiveConversationKey); err == nil {
		id := strings.TrimSpace(string(raw))
		if s.indexOf(id) >= 0 {
			s.activeID = id
		}
	}

	if config.DebugLog != nil {
		config.DebugLog.Printf("[ConversationStore] loaded %d conversations (active=%q)", len(s.conversations), s.activeID)
	}
}

// persist writes the whole collection. Callers hold s.mu.
func (s *ConversationStore) persist() error {
	if err := s.preserveUnreadable(); err != nil {
		return err
	}
	data, err := json.Marshal(s.conversations)
	if err != nil {
		return fmt.Errorf("failed to marshal conversations: %w", err)
	}
	return s.backend.Save(ConversationsKey, data)
}

// persistActive writes the active id. Callers hold s.mu.
func (s *ConversationStore) persistActive() error {
	if s.activeID == "" {
		return s.backend.Delete(ActiveConversationKey)
	}
	return s.backend.Save(ActiveConversationKey, []byte(s.activeID))
}

// preserveUnreadable copies a collection that failed to load to
// ConversationsKey+CorruptSuffix, so the next save cannot destroy it. Until
// the copy succeeds the collection is not overwritten.
func (s *ConversationStore) preserveUnreadable() error {
	if !s.unreadable {
		return nil
	}
	if err := MoveAside(s.backend, ConversationsKey); err != nil {
		return fmt.Errorf("unreadable conversations kept, not saving: %w", err)
	}
	s.unreadable = false
	if config.DebugLog != nil {
		config.DebugLog.Printf("[ConversationStore] unreadable record saved as %s%s", ConversationsKey, CorruptSuffix)
	}
	return nil
}

// recordSaveErr keeps every failure of one mutation. Callers hold s.mu.
func (s *ConversationStore) recordSaveErr(errs ...error) {
	var result *multierror.Error
	for _, err := range errs {
		if err != nil {
			result = multierror.Append(result, err)
		}
	}
	s.lastErr = result.ErrorOrNil()
	if s.lastErr != nil && config.DebugLog != nil {
		config.DebugLog.Printf("[ConversationStore] save failed: %v", s.lastErr)
	}
}

// LastError returns the error of the most recent load or save, or nil.
func (s *ConversationStore) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

func (s *ConversationStore) indexOf(id string) int {
	if id == "" {
		return -1
	}
	for i := range s.conversations {
		if s.conversations[i].ID == id {
			return i
		}
	}
	return -1
}

// Subscribe registers fn for every later mutation and returns a function
// that removes it.
func (s *ConversationStore) Subscribe(fn func(ConversationEvent)) func() {
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

// notify runs outside s.mu so listeners may read the store.
func (s *ConversationStore) notify(ev ConversationEvent) {
	s.listenersMu.Lock()
	fns := make([]func(ConversationEvent), 0, len(s.listeners))
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

// Create inserts an empty conversation at the front, makes it active and
// returns its id.
func (s *ConversationStore) Create() string {
	now := s.now()
	conv := model.Conversation{
		ID:        uuid.New().String(),
		Title:     model.DefaultConversationTitle,
		Messages:  []model.Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.conversations = append([]model.Conversation{conv}, s.conversations...)
	s.activeID = conv.ID
	s.recordSaveErr(s.persist(), s.persistActive())
	s.mu.Unlock()

	s.notify(ConversationEvent{Kind: ConversationCreated, ConversationID: conv.ID})
	return conv.ID
}

// AddMessage appends msg to the conversation. The first user message of a
// conversation still carrying the default title names it. Unknown ids are
// ignored and reported as false.
func (s *ConversationStore) AddMessage(convID string, msg model.Message) bool {
	s.mu.Lock()
	i := s.indexOf(convID)
	if i < 0 {
		s.mu.Unlock()
		return false
	}

	conv := &s.conversations[i]
	if msg.Role == model.RoleUser && conv.Title == model.DefaultConversationTitle && !hasUserMessage(conv.Messages) {
		if title := DeriveTitle(msg.Content); title != "" {
			conv.Title = title
		}
	}
	conv.Messages = append(conv.Messages, msg.Clone())
	conv.UpdatedAt = s.now()
	s.recordSaveErr(s.persist())
	s.mu.Unlock()

	s.notify(ConversationEvent{Kind: ConversationUpdated, ConversationID: convID})
	return true
}

func hasUserMessage(messages []model.Message) bool {
	for _, m := range messages {
		if m.Role == model.RoleUser {
			return true
		}
	}
	return false
}

// DeriveTitle turns the first user message into a conversation title: line
// breaks become spaces, surrounding space is trimmed and anything past 30
// characters is replaced by an ellipsis.
func DeriveTitle(content string) string {
	title := strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(content)
	title = strings.TrimSpace(title)

	if utf8.RuneCountInString(title) <= titleMaxRunes {
		return title
	}
	runes := []rune(title)
	return string(runes[:titleMaxRunes]) + "…"
}

// UpdateMessage replaces the content of one message. Unknown conversation or
// message ids are a silent no-op.
func (s *ConversationStore) UpdateMessage(convID, msgID, content string) bool {
	s.mu.Lock()
	i := s.indexOf(convID)
	if i < 0 {
		s.mu.Unlock()
		return false
	}

	conv := &s.conversations[i]
	found := false
	for j := range conv.Messages {
		if conv.Messages[j].ID == msgID {
			conv.Messages[j].Content = content
			found = true
			break
		}
	}
	if !found {
		s.mu.Unlock()
		return false
	}
	conv.UpdatedAt = s.now()
	s.recordSaveErr(s.persist())
	s.mu.Unlock()

	s.notify(ConversationEvent{Kind: ConversationUpdated, ConversationID: convID})
	return true
}

// RemoveMessage drops one message, used to roll back an assistant reply
// that never received content.
func (s *ConversationStore) RemoveMessage(convID, msgID string) bool {
	s.mu.Lock()
	i := s.indexOf(convID)
	if i < 0 {
		s.mu.Unlock()
		return false
	}

	conv := &s.conversations[i]
	kept := conv.Messages[:0]
	removed := false
	for _, m := range conv.Messages {
		if !removed && m.ID == msgID {
			removed = true
			continue
		}
		kept = append(kept, m)
	}
	conv.Messages = kept
	if !removed {
		s.mu.Unlock()
		return false
	}
	s.recordSaveErr(s.persist())
	s.mu.Unlock()

	s.notify(ConversationEvent{Kind: ConversationUpdated, ConversationID: convID})
	return true
}

// Rename sets a custom title. Blank titles are rejected.
func (s *ConversationStore) Rename(convID, title string) bool {
	title = strings.TrimSpace(title)
	if title == "" {
		return false
	}

	s.mu.Lock()
	i := s.indexOf(convID)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	s.conversations[i].Title = title
	s.conversations[i].UpdatedAt = s.now()
	s.recordSaveErr(s.persist())
	s.mu.Unlock()

	s.notify(ConversationEvent{Kind: ConversationUpdated, ConversationID: convID})
	return true
}

// Delete removes a conversation and clears the active selection if it
// pointed at it.
func (s *ConversationStore) Delete(convID string) bool {
	s.mu.Lock()
	i := s.indexOf(convID)
	if i < 0 {
		s.mu.Unlock()
		return false
	}

	s.conversations = append(s.conversations[:i], s.conversations[i+1:]...)
	wasActive := s.activeID == convID
	var activeErr error
	if wasActive {
		s.activeID = ""
		activeErr = s.persistActive()
	}
	s.recordSaveErr(s.persist(), activeErr)
	s.mu.Unlock()

	s.notify(ConversationEvent{Kind: ConversationDeleted, ConversationID: convID})
	if wasActive {
		s.notify(ConversationEvent{Kind: ActiveChanged})
	}
	return true
}

// ClearAll drops every conversation and erases the persisted records. A
// collection that could not be loaded is preserved rather than deleted.
func (s *ConversationStore) ClearAll() error {
	s.mu.Lock()
	s.conversations = nil
	s.activeID = ""

	preserveErr := s.preserveUnreadable()
	var deleteErr error
	if preserveErr == nil {
		deleteErr = s.backend.Delete(ConversationsKey)
	}
	s.recordSaveErr(preserveErr, deleteErr, s.backend.Delete(ActiveConversationKey))
	err := s.lastErr
	s.mu.Unlock()

	s.notify(ConversationEvent{Kind: ConversationsCleared})
	return err
}

// SetActive selects a conversation. An empty id clears the selection;
// unknown ids are refused.
func (s *ConversationStore) SetActive(convID string) bool {
	s.mu.Lock()
	if convID != "" && s.indexOf(convID) < 0 {
		s.mu.Unlock()
		return false
	}
	if s.activeID == convID {
		s.mu.Unlock()
		return true
	}
	s.activeID = convID
	s.recordSaveErr(s.persistActive())
	s.mu.Unlock()

	s.notify(ConversationEvent{Kind: ActiveChanged, ConversationID: convID})
	return true
}

func (s *ConversationStore) ActiveID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID
}

// Active returns a copy of the active conversation.
func (s *ConversationStore) Active() (model.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.indexOf(s.activeID)
	if i < 0 {
		return model.Conversation{}, false
	}
	return s.conversations[i].Clone(), true
}

// Get returns a copy of one conversation.
func (s *ConversationStore) Get(convID string) (model.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.indexOf(convID)
	if i < 0 {
		return model.Conversation{}, false
	}
	return s.conversations[i].Clone(), true
}

// List returns copies of all conversations, newest first.
func (s *ConversationStore) List() []model.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Conversation, len(s.conversations))
	for i := range s.conversations {
		out[i] = s.conversations[i].Clone()
	}
	return out
}
