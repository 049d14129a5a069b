package chat

import (
	"errors"

	"lumora/model"
)

type Level int

const (
	LevelInfo Level = iota
	LevelError
)

// Notification is a transient, dismissible message for the user.
type Notification struct {
	Level   Level
	Title   string
	Message string
}

const fallbackErrorMessage = "Failed to send message"

// failureNotification turns a send or stream error into what the user sees.
func failureNotification(err error) Notification {
	n := Notification{Level: LevelError, Title: "Error", Message: fallbackErrorMessage}

	var resp *model.ErrorResponse
	switch {
	case errors.As(err, &resp):
		if resp.Message != "" {
			n.Message = resp.Message
		}
		if resp.IsRateLimited() {
			n.Title = "Rate limited"
		} else if resp.IsQuotaExceeded() {
			n.Title = "Usage limit"
		}
	case errors.Is(err, ErrStreamIdle):
		n.Message = "The reply stopped arriving. Please try again."
	}
	return n
}
