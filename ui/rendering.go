package ui

import (
	"fmt"
	"regexp"
	"strings"

	markdown "github.com/MichaelMure/go-term-markdown"
	gomarkdown "github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/parser"

	"lumora/model"
)

const streamCursor = "▋"

var (
	inlineCodeRegex = regexp.MustCompile(`(?s)\x1b\[44;3m(.*?)\x1b\[0m`)
	mdLinkRegex     = regexp.MustCompile(`\[([^\]]+)\]\((https?://[^\)]+)\)`)
	ansiRegex       = regexp.MustCompile(`\x1b\[[0-9;]*m`)
)

// markdownCache keeps rendered assistant replies. Entries are keyed by
// message id and invalidated when the content or the width changes.
type markdownCache struct {
	entries map[string]cachedRender
}

type cachedRender struct {
	content  string
	width    int
	rendered string
}

func newMarkdownCache() *markdownCache {
	return &markdownCache{entries: make(map[string]cachedRender)}
}

func (c *markdownCache) render(id, content string, width int) string {
	if e, ok := c.entries[id]; ok && e.content == content && e.width == width {
		return e.rendered
	}
	rendered := renderMarkdown(content, width)
	c.entries[id] = cachedRender{content: content, width: width, rendered: rendered}
	return rendered
}

// renderMarkdown renders a reply for the terminal. Links are reduced to
// their URL so the terminal can make them clickable.
func renderMarkdown(content string, width int) string {
	if width < 20 {
		width = 20
	}
	content = mdLinkRegex.ReplaceAllString(content, "$2")

	p := parser.NewWithExtensions(markdown.Extensions() &^ parser.Autolink)
	doc := p.Parse([]byte(content))
	rendered := string(gomarkdown.Render(doc, markdown.NewRenderer(width, 0)))

	rendered = inlineCodeRegex.ReplaceAllString(rendered, "\x1b[31m$1\x1b[0m")
	return strings.TrimRight(rendered, "\n")
}

// renderThread lays out the whole conversation. The last assistant message
// is shown raw with a cursor while streaming is true.
func (a *AppView) renderThread(width int) string {
	if len(a.messages) == 0 {
		return a.styles.Dim.Render("How can I help you today?")
	}

	var b strings.Builder
	for i, msg := range a.messages {
		prefix := ""
		if i == a.highlightIdx {
			prefix = a.styles.Highlight.Render(">>> ")
		}
		timestamp := a.styles.Dim.Render(msg.Timestamp.Local().Format("[15:04]"))

		if msg.Role == model.RoleUser {
			b.WriteString(formatUserMessage(prefix, timestamp, a.styles.User.Render("You"), userBody(msg)))
			continue
		}

		streaming := a.busy && i == len(a.messages)-1
		var body string
		switch {
		case streaming && msg.Content == "":
			body = a.spinner.View()
		case streaming:
			body = msg.Content + streamCursor
		default:
			body = a.markdown.render(msg.ID, msg.Content, width-4)
		}
		fmt.Fprintf(&b, "%s%s %s\n%s\n\n", prefix, timestamp, a.styles.Assistant.Render("Lumora"), body)
	}

	if a.busy && a.messages[len(a.messages)-1].Role == model.RoleUser {
		fmt.Fprintf(&b, "%s %s\n", a.spinner.View(), a.styles.Dim.Render("Thinking..."))
	}
	return b.String()
}

func userBody(msg model.Message) string {
	lines := []string{}
	if msg.Content != "" {
		lines = append(lines, msg.Content)
	}
	for _, img := range msg.Images {
		name := img.Name
		if name == "" {
			name = "image"
		}
		lines = append(lines, "[image: "+name+"]")
	}
	return strings.Join(lines, "\n")
}

// formatUserMessage draws user messages behind a vertical bar.
func formatUserMessage(prefix, timestamp, role, content string) string {
	bar := "\x1b[32;1m┃\x1b[0m"

	var b strings.Builder
	fmt.Fprintf(&b, "%s%s %s %s\n", prefix, bar, timestamp, role)
	for _, line := range strings.Split(content, "\n") {
		fmt.Fprintf(&b, "%s %s\n", bar, line)
	}
	b.WriteString("\n")
	return b.String()
}

func (a *AppView) updateViewportContent(gotoBottom bool) {
	a.viewport.SetContent(a.renderThread(a.viewport.Width))
	if gotoBottom {
		a.viewport.GotoBottom()
	}
}

func stripANSI(s string) string {
	return ansiRegex.ReplaceAllString(s, "")
}
