package testutil

import (
	"encoding/json"
	"strings"
	"time"

	"lumora/model"
)

// TestMessages returns a sample conversation for testing
func TestMessages() []model.Message {
	return []model.Message{
		{
			ID:        "m1",
			Role:      model.RoleUser,
			Content:   "Hello, how are you?",
			Timestamp: time.Now(),
		},
		{
			ID:        "m2",
			Role:      model.RoleAssistant,
			Content:   "I'm doing well, thank you!",
			Timestamp: time.Now(),
		},
		{
			ID:        "m3",
			Role:      model.RoleUser,
			Content:   "Can you help me with a task?",
			Timestamp: time.Now(),
		},
	}
}

// SSEChunk renders one OpenAI-style streaming event carrying delta
func SSEChunk(delta string) string {
	payload, _ := json.Marshal(map[string]any{
		"choices": []any{
			map[string]any{"delta": map[string]any{"content": delta}},
		},
	})
	return "data: " + string(payload) + "\n\n"
}

// SSEBody renders a complete stream: one event per delta, then [DONE]
func SSEBody(deltas ...string) string {
	var b strings.Builder
	b.WriteString(": keep-alive\n\n")
	for _, d := range deltas {
		b.WriteString(SSEChunk(d))
	}
	b.WriteString("data: [DONE]\n\n")
	return b.String()
}

// PNG is the smallest valid PNG image: one transparent pixel
var PNG = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a,
	0x00, 0x00, 0x00, 0x0d, 0x49, 0x48, 0x44, 0x52,
	0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4,
	0x89, 0x00, 0x00, 0x00, 0x0d, 0x49, 0x44, 0x41,
	0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00,
	0x00, 0x00, 0x00, 0x49, 0x45, 0x4e, 0x44, 0xae,
	0x42, 0x60, 0x82,
}
