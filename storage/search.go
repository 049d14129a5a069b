package storage

import (
	"strings"
	"time"

	"github.com/sahilm/fuzzy"

	"lumora/model"
)

const previewRunes = 100

// SearchResult points at a conversation whose title or a message matched.
// MessageIndex is -1 for title matches.
type SearchResult struct {
	ConversationID string
	Title          string
	MessageIndex   int
	Role           model.Role
	Preview        string
	Timestamp      time.Time
	Score          int
}

// Search looks for query across all conversations. Titles are matched
// fuzzily and ranked by score; message content is matched by
// case-insensitive substring and follows in list order.
func (s *ConversationStore) Search(query string) []SearchResult {
	query = strings.TrimSpace(query)
	if query == "" {
		return []SearchResult{}
	}

	conversations := s.List()
	var results []SearchResult

	titles := make([]string, len(conversations))
	for i, conv := range conversations {
		titles[i] = conv.Title
	}
	for _, m := range fuzzy.Find(query, titles) {
		conv := conversations[m.Index]
		results = append(results, SearchResult{
			ConversationID: conv.ID,
			Title:          conv.Title,
			MessageIndex:   -1,
			Preview:        conv.Title,
			Timestamp:      conv.UpdatedAt,
			Score:          m.Score,
		})
	}

	queryLower := strings.ToLower(query)
	for _, conv := range conversations {
		for i, msg := range conv.Messages {
			if !strings.Contains(strings.ToLower(msg.Content), queryLower) {
				continue
			}
			results = append(results, SearchResult{
				ConversationID: conv.ID,
				Title:          conv.Title,
				MessageIndex:   i,
				Role:           msg.Role,
				Preview:        preview(msg.Content),
				Timestamp:      msg.Timestamp,
			})
		}
	}

	return results
}

func preview(content string) string {
	content = strings.Join(strings.Fields(content), " ")
	runes := []rune(content)
	if len(runes) <= previewRunes {
		return content
	}
	return string(runes[:previewRunes]) + "…"
}
