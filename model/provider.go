package model

import (
	"context"
	"fmt"
	"io"
)

// ChatClient is the network boundary of the chat core: it submits a
// conversation to the gateway and returns the raw server-sent-event body.
//
// The interface lives in the model package so that both the chat orchestrator
// and the provider implementations can depend on it without importing each
// other.
type ChatClient interface {
	// Stream sends the request and returns the response body on success. The
	// caller owns the returned reader and must close it. A non-success
	// response is reported as an *ErrorResponse.
	Stream(ctx context.Context, req ChatRequest) (io.ReadCloser, error)
}

// ChatRequest is the JSON body sent from the client to the gateway.
type ChatRequest struct {
	Model    string        `json:"model,omitempty"`
	Messages []WireMessage `json:"messages"`
}

// WireMessage is a message as it travels to the gateway.
type WireMessage struct {
	Role    Role              `json:"role"`
	Content string            `json:"content"`
	Images  []ImageAttachment `json:"images,omitempty"`
}

// ToWire converts stored messages into their wire form.
func ToWire(messages []Message) []WireMessage {
	out := make([]WireMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, WireMessage{
			Role:    m.Role,
			Content: m.Content,
			Images:  m.Images,
		})
	}
	return out
}

// ErrorResponse is a failed gateway response: the HTTP status and the
// human-readable message from the {"error": "..."} body.
type ErrorResponse struct {
	StatusCode int    `json:"-"`
	Message    string `json:"error"`
}

func (e *ErrorResponse) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("gateway returned status %d", e.StatusCode)
	}
	return e.Message
}

// IsRateLimited reports whether the gateway refused the request because of
// rate limiting.
func (e *ErrorResponse) IsRateLimited() bool {
	return e.StatusCode == 429
}

// IsQuotaExceeded reports whether the account ran out of credits.
func (e *ErrorResponse) IsQuotaExceeded() bool {
	return e.StatusCode == 402
}
