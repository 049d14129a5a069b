package model

import "time"

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// DefaultConversationTitle is the title of a conversation until its first
// user message arrives.
const DefaultConversationTitle = "New chat"

// ImageAttachment is an image sent along with a user message. URL is either a
// data URI or a remote URL.
type ImageAttachment struct {
	URL  string `json:"url"`
	Name string `json:"name"`
}

// Message represents a chat message in a conversation.
//
// Only assistant messages change after creation: their Content grows while a
// reply is streamed. User messages and Images are immutable once created.
type Message struct {
	ID        string            `json:"id"`
	Role      Role              `json:"role"`
	Content   string            `json:"content"`
	Timestamp time.Time         `json:"timestamp"`
	Images    []ImageAttachment `json:"images,omitempty"`
}

// Clone returns a copy that shares no slices with m.
func (m Message) Clone() Message {
	if m.Images != nil {
		images := make([]ImageAttachment, len(m.Images))
		copy(images, m.Images)
		m.Images = images
	}
	return m
}

// Conversation is one persisted thread of messages.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Clone returns a deep copy of the conversation.
func (c Conversation) Clone() Conversation {
	msgs := make([]Message, len(c.Messages))
	for i, msg := range c.Messages {
		msgs[i] = msg.Clone()
	}
	c.Messages = msgs
	return c
}

// CloneMessages deep-copies a message slice.
func CloneMessages(messages []Message) []Message {
	out := make([]Message, len(messages))
	for i, msg := range messages {
		out[i] = msg.Clone()
	}
	return out
}
