package chat

import "errors"

var (
	// ErrEmptyMessage is returned by Send when there is neither text nor an
	// attachment. Nothing is sent and no state changes.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrBusy is returned while a reply is still being sent or streamed.
	ErrBusy = errors.New("a reply is in progress")
	// ErrEmptyMessageID rejects messages without an id.
	ErrEmptyMessageID = errors.New("message id is empty")
	// ErrStreamIdle ends a reply that stopped producing bytes.
	ErrStreamIdle = errors.New("reply stream went idle")
	// ErrConversationNotFound is returned for unknown conversation ids.
	ErrConversationNotFound = errors.New("conversation not found")
)
