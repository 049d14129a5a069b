package storage

import (
	"errors"
	"fmt"
	"sync"

	"lumora/config"
)

// Record keys.
const (
	ConversationsKey      = "lumora-conversations"
	ActiveConversationKey = "lumora-active-conversation"
	SettingsKey           = "lumora-settings"
)

// CorruptSuffix is appended to the key of a record that could not be read
// when it is copied aside.
const CorruptSuffix = ".corrupt"

var ErrNotFound = errors.New("record not found")

// Backend is a durable map from record key to opaque bytes. Implementations
// must be safe for concurrent use.
type Backend interface {
	// Load returns ErrNotFound when the key has never been saved or was
	// deleted.
	Load(key string) ([]byte, error)
	Save(key string, data []byte) error
	// Delete is a no-op for unknown keys.
	Delete(key string) error
	Close() error
}

// OpenBackend builds the backend named by kind under dataDir.
func OpenBackend(kind, dataDir string) (Backend, error) {
	switch kind {
	case config.BackendFile, "":
		return NewFileBackend(dataDir)
	case config.BackendSQLite:
		return NewSQLiteBackend(dataDir)
	case config.BackendMemory:
		return NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", kind)
	}
}

// MemoryBackend keeps records in process memory.
type MemoryBackend struct {
	mu      sync.RWMutex
	records map[string][]byte
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{records: make(map[string][]byte)}
}

func (m *MemoryBackend) Load(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.records[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryBackend) Save(key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records[key] = append([]byte(nil), data...)
	return nil
}

func (m *MemoryBackend) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.records, key)
	return nil
}

func (m *MemoryBackend) Close() error { return nil }

// Cipher seals records before they reach the wrapped backend.
// *config.RecordCipher satisfies it.
type Cipher interface {
	Seal(plaintext []byte) ([]byte, error)
	Open(sealed []byte) ([]byte, error)
}

// EncryptedBackend encrypts every record on Save and decrypts on Load.
type EncryptedBackend struct {
	inner  Backend
	cipher Cipher
}

func NewEncryptedBackend(inner Backend, cipher Cipher) *EncryptedBackend {
	return &EncryptedBackend{inner: inner, cipher: cipher}
}

func (e *EncryptedBackend) Load(key string) ([]byte, error) {
	sealed, err := e.inner.Load(key)
	if err != nil {
		return nil, err
	}

	plain, err := e.cipher.Open(sealed)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt record %s: %w", key, err)
	}
	return plain, nil
}

func (e *EncryptedBackend) Save(key string, data []byte) error {
	sealed, err := e.cipher.Seal(data)
	if err != nil {
		return fmt.Errorf("failed to encrypt record %s: %w", key, err)
	}
	return e.inner.Save(key, sealed)
}

func (e *EncryptedBackend) Delete(key string) error {
	return e.inner.Delete(key)
}

func (e *EncryptedBackend) Close() error {
	return e.inner.Close()
}

// Unwrap returns the backend holding the sealed bytes.
func (e *EncryptedBackend) Unwrap() Backend {
	return e.inner
}

// MoveAside copies the stored bytes of key, undecoded, to key+CorruptSuffix
// on the innermost backend. A sealed record stays sealed so it can still be
// opened with the right key. A missing record is not an error.
func MoveAside(b Backend, key string) error {
	for {
		w, ok := b.(interface{ Unwrap() Backend })
		if !ok {
			break
		}
		b = w.Unwrap()
	}

	data, err := b.Load(key)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", key, err)
	}
	if err := b.Save(key+CorruptSuffix, data); err != nil {
		return fmt.Errorf("failed to save %s%s: %w", key, CorruptSuffix, err)
	}
	return nil
}
