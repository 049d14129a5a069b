package ui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var errEmptyPassphrase = errors.New("passphrase cannot be empty")

// IncorrectPassphraseMessage is shown when the retried key still fails.
const IncorrectPassphraseMessage = "Incorrect passphrase. Please try again."

// PassphraseModal prompts for the passphrase of the SSH key that protects
// the local conversation store. It runs as its own program before the
// chat view starts.
type PassphraseModal struct {
	keyPath   string
	input     textinput.Model
	err       string
	width     int
	height    int
	cancelled bool
}

// NewPassphraseModal builds the prompt. errMsg is shown under the input,
// used to report a wrong passphrase on retry.
func NewPassphraseModal(keyPath, errMsg string) PassphraseModal {
	input := NewPassphraseInput("Enter passphrase")
	input.Focus()
	return PassphraseModal{keyPath: keyPath, input: input, err: errMsg}
}

func (m PassphraseModal) Init() tea.Cmd {
	return textinput.Blink
}

func (m PassphraseModal) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.cancelled = true
			return m, tea.Quit
		case "enter":
			if err := validatePassphrase(m.input.Value()); err != nil {
				m.err = err.Error()
				return m, nil
			}
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m PassphraseModal) View() string {
	return RenderPassphraseModal("SSH Key Passphrase Required", m.keyPath, m.input, m.err, m.width, m.height)
}

// Passphrase returns the entered passphrase, empty if cancelled.
func (m PassphraseModal) Passphrase() string {
	if m.cancelled {
		return ""
	}
	return m.input.Value()
}

func (m PassphraseModal) Cancelled() bool {
	return m.cancelled
}

// NewPassphraseInput creates a masked input for SSH passphrases.
func NewPassphraseInput(placeholder string) textinput.Model {
	input := textinput.New()
	input.Placeholder = placeholder
	input.Width = 50
	input.CharLimit = 200
	input.EchoMode = textinput.EchoPassword
	input.EchoCharacter = '•'
	return input
}

func RenderPassphraseModal(title, keyPath string, input textinput.Model, errorMsg string, width, height int) string {
	if width < 20 || height < 10 {
		return "Terminal too small"
	}

	modalWidth := 70
	if width < modalWidth+10 {
		modalWidth = width - 10
	}

	blank := strings.Repeat(" ", max(modalWidth, 0))
	lines := []string{
		centerTextLine("Your chats are encrypted with an SSH key.", modalWidth),
		centerTextLine(fmt.Sprintf("Key: %s", keyPath), modalWidth),
		centerTextLine("Please enter the passphrase:", modalWidth),
		blank,
		centerTextLine(input.View(), modalWidth),
	}

	if errorMsg != "" {
		styled := lipgloss.NewStyle().Foreground(dangerColor).Bold(true).Render("⚠ " + errorMsg)
		lines = append(lines, blank, centerTextLine(styled, modalWidth))
	}

	return RenderThreeSectionModal(title, lines, FormatFooter("Enter", "Continue", "Esc", "Cancel"), ModalTypeInfo, modalWidth, width, height)
}

func validatePassphrase(passphrase string) error {
	if passphrase == "" {
		return errEmptyPassphrase
	}
	return nil
}
