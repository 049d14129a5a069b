package ui

import (
	"strings"
)

// confirmation is a pending destructive action awaiting y/n.
type confirmation struct {
	title   string
	message string
	run     func() error
	// done is the toast shown after run succeeds.
	done string
}

func renderConfirmation(c *confirmation, width, height int) string {
	modalWidth := 60
	if width < modalWidth+10 {
		modalWidth = width - 10
	}

	var lines []string
	for _, line := range strings.Split(wordWrap(c.message, modalWidth-4), "\n") {
		lines = append(lines, centerTextLine(line, modalWidth))
	}
	return RenderThreeSectionModal(c.title, lines, FormatFooter("y", "Yes", "n", "No"), ModalTypeWarning, modalWidth, width, height)
}
