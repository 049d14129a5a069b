package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"lumora/config"
)

// ExportJSON writes one conversation as indented JSON to exportPath.
func (s *ConversationStore) ExportJSON(convID, exportPath string) error {
	conv, ok := s.Get(convID)
	if !ok {
		return fmt.Errorf("conversation %s: %w", convID, ErrNotFound)
	}

	data, err := json.MarshalIndent(conv, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal conversation: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(exportPath), 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// 0600 - exports contain conversation history
	if err := os.WriteFile(exportPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}

// GenerateExportPath returns ~/Downloads/lumora-<title>-<timestamp>.json.
func GenerateExportPath(title string, now time.Time) string {
	filename := fmt.Sprintf("lumora-%s-%s.json", SanitizeFilename(title), now.Format("20060102-150405"))
	return filepath.Join(config.GetHomeDir(), "Downloads", filename)
}

var filenameReplacer = strings.NewReplacer(
	"/", "-", "\\", "-", ":", "-", "*", "-", "?", "-", "\"", "-",
	"<", "-", ">", "-", "|", "-", " ", "-", "\n", "-", "\r", "-",
)

// SanitizeFilename maps name onto a portable file name of at most 50
// characters.
func SanitizeFilename(name string) string {
	name = filenameReplacer.Replace(name)
	name = strings.Trim(name, "-.")

	if runes := []rune(name); len(runes) > 50 {
		name = string(runes[:50])
	}
	if name == "" {
		name = "conversation"
	}
	return name
}
