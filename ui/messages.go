package ui

import (
	"lumora/chat"
)

// storeChangedMsg wakes the view after any store or orchestrator change; the
// view then re-reads what it shows.
type storeChangedMsg struct{}

// sendFinishedMsg is returned when Orchestrator.Send unwinds. text and files
// are what was submitted, restored into the input when the send was refused.
type sendFinishedMsg struct {
	err   error
	text  string
	files []chat.Attachment
}

type toastExpiredMsg struct {
	id int
}
