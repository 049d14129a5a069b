package main

import (
	"errors"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"lumora/chat"
	"lumora/config"
	"lumora/provider"
	"lumora/storage"
	"lumora/ui"
)

const (
	Version = "v0.1.0"

	maxPassphraseAttempts = 3
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		showError("Configuration Error", err.Error())
		os.Exit(1)
	}

	dataDir := cfg.DataDir()
	config.InitDebugLog(dataDir)

	lock, err := storage.AcquireInstanceLock(dataDir)
	if err != nil {
		if errors.Is(err, storage.ErrInstanceRunning) {
			showError("⚠️  Lumora Already Running", fmt.Sprintf(
				"%v.\n\nOnly one Lumora can use a data directory at a time.\n"+
					"Close the other instance or set LUMORA_DATA_DIR.", err))
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Failed to lock data directory: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if err := lock.Release(); err != nil && config.DebugLog != nil {
			config.DebugLog.Printf("Warning: failed to release instance lock: %v", err)
		}
	}()

	if err := run(cfg, dataDir); err != nil {
		fmt.Fprintf(os.Stderr, "Error running lumora: %v\n", err)
		lock.Release()
		os.Exit(1)
	}
}

func run(cfg *config.Config, dataDir string) error {
	backend, err := storage.OpenBackend(cfg.StorageBackend, dataDir)
	if err != nil {
		return fmt.Errorf("failed to open %s storage: %w", cfg.StorageBackend, err)
	}
	defer backend.Close()

	if cfg.EncryptionMethod == config.EncryptionSSHKey {
		cipher, ok, err := unlockRecords(cfg.SSHKeyPath)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		backend = storage.NewEncryptedBackend(backend, cipher)
	}

	conversations := storage.NewConversationStore(backend)
	settings := storage.NewSettingsStore(backend)

	client, err := provider.NewClient(cfg)
	if err != nil {
		return err
	}

	orch := chat.NewOrchestrator(client, conversations, settings, chat.Options{
		IdleTimeout: cfg.StreamIdleTimeout,
	})
	defer orch.Stop()

	view := ui.NewAppView(cfg, orch, conversations, settings, client, Version).WithBell(os.Stderr)
	if err := conversations.LastError(); err != nil {
		view = view.WithNotice(chat.LevelError, "Could not load chats", err.Error())
	}

	p := tea.NewProgram(view, tea.WithAltScreen())
	_, err = p.Run()
	return err
}

// unlockRecords derives the record cipher from the configured SSH key,
// prompting for its passphrase when the key is encrypted. ok is false when
// the user cancelled the prompt.
func unlockRecords(keyPath string) (*config.RecordCipher, bool, error) {
	cipher, err := config.NewRecordCipher(keyPath, "")
	if err == nil {
		return cipher, true, nil
	}
	if !errors.Is(err, config.ErrPassphraseRequired) {
		return nil, false, fmt.Errorf("failed to load encryption key: %w", err)
	}

	errMsg := ""
	for attempt := 0; attempt < maxPassphraseAttempts; attempt++ {
		final, err := tea.NewProgram(ui.NewPassphraseModal(keyPath, errMsg), tea.WithAltScreen()).Run()
		if err != nil {
			return nil, false, err
		}
		modal := final.(ui.PassphraseModal)
		if modal.Cancelled() {
			return nil, false, nil
		}

		cipher, err := config.NewRecordCipher(keyPath, modal.Passphrase())
		if err == nil {
			return cipher, true, nil
		}
		if config.DebugLog != nil {
			config.DebugLog.Printf("[Main] passphrase attempt %d failed: %v", attempt+1, err)
		}
		errMsg = ui.IncorrectPassphraseMessage
	}
	return nil, false, errors.New("too many incorrect passphrase attempts")
}

// showError runs a standalone error modal for failures before the chat view.
func showError(title, message string) {
	if _, err := tea.NewProgram(ui.NewErrorModal(title, message), tea.WithAltScreen()).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %s\n", title, message)
	}
}
