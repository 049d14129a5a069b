package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"lumora/config"
	"lumora/model"
)

var (
	ErrInvalidTheme = errors.New("theme must be light, dark or system")
	ErrInvalidModel = errors.New("model must not be empty")
)

// SettingsStore holds the user's preferences and persists them on every
// change.
type SettingsStore struct {
	mu       sync.RWMutex
	backend  Backend
	settings model.Settings

	listenersMu sync.Mutex
	listeners   map[int]func(model.Settings)
	nextID      int
}

// NewSettingsStore loads the stored settings merged over the defaults. A
// missing or corrupt record yields the defaults.
func NewSettingsStore(backend Backend) *SettingsStore {
	s := &SettingsStore{
		backend:   backend,
		settings:  model.DefaultSettings(),
		listeners: make(map[int]func(model.Settings)),
	}

	data, err := backend.Load(SettingsKey)
	if err != nil {
		if !errors.Is(err, ErrNotFound) && config.DebugLog != nil {
			config.DebugLog.Printf("[SettingsStore] load failed, using defaults: %v", err)
		}
		return s
	}

	merged := model.DefaultSettings()
	if err := json.Unmarshal(data, &merged); err != nil {
		if config.DebugLog != nil {
			config.DebugLog.Printf("[SettingsStore] corrupt record, using defaults: %v", err)
		}
		return s
	}
	if !model.ValidTheme(merged.Theme) {
		merged.Theme = model.DefaultSettings().Theme
	}
	if strings.TrimSpace(merged.Model) == "" {
		merged.Model = model.DefaultModel
	}
	s.settings = merged
	return s
}

func (s *SettingsStore) Get() model.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// Update applies fn to a copy of the settings, validates the result and
// persists it. An invalid result leaves the settings untouched.
func (s *SettingsStore) Update(fn func(*model.Settings)) error {
	s.mu.Lock()
	next := s.settings
	fn(&next)

	if !model.ValidTheme(next.Theme) {
		s.mu.Unlock()
		return ErrInvalidTheme
	}
	if strings.TrimSpace(next.Model) == "" {
		s.mu.Unlock()
		return ErrInvalidModel
	}

	s.settings = next
	err := s.persist()
	s.mu.Unlock()

	s.notify(next)
	return err
}

func (s *SettingsStore) persist() error {
	data, err := json.Marshal(s.settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	if err := s.backend.Save(SettingsKey, data); err != nil {
		if config.DebugLog != nil {
			config.DebugLog.Printf("[SettingsStore] save failed: %v", err)
		}
		return err
	}
	return nil
}

func (s *SettingsStore) SetModel(name string) error {
	return s.Update(func(st *model.Settings) { st.Model = strings.TrimSpace(name) })
}

func (s *SettingsStore) SetTheme(theme string) error {
	return s.Update(func(st *model.Settings) { st.Theme = theme })
}

func (s *SettingsStore) SetSendWithEnter(on bool) error {
	return s.Update(func(st *model.Settings) { st.SendWithEnter = on })
}

func (s *SettingsStore) SetSoundEffects(on bool) error {
	return s.Update(func(st *model.Settings) { st.SoundEffects = on })
}

// Subscribe registers fn for every successful change.
func (s *SettingsStore) Subscribe(fn func(model.Settings)) func() {
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

func (s *SettingsStore) notify(settings model.Settings) {
	s.listenersMu.Lock()
	fns := make([]func(model.Settings), 0, len(s.listeners))
	for i := 0; i < s.nextID; i++ {
		if fn, ok := s.listeners[i]; ok {
			fns = append(fns, fn)
		}
	}
	s.listenersMu.Unlock()

	for _, fn := range fns {
		fn(settings)
	}
}
