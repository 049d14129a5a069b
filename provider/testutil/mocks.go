package testutil

import (
	"context"
	"io"
	"strings"
	"sync"

	"lumora/model"
)

// MockClient implements model.ChatClient for testing
type MockClient struct {
	// Configurable response
	StreamFunc func(ctx context.Context, req model.ChatRequest) (io.ReadCloser, error)

	mu       sync.Mutex
	requests []model.ChatRequest
}

// NewMockClient creates a client that answers every request with the given
// deltas followed by [DONE]
func NewMockClient(deltas ...string) *MockClient {
	return &MockClient{
		StreamFunc: func(ctx context.Context, req model.ChatRequest) (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(SSEBody(deltas...))), nil
		},
	}
}

// NewErrorClient creates a client whose every request fails with status and
// message, the way the gateway reports rate limits and quota problems
func NewErrorClient(status int, message string) *MockClient {
	return &MockClient{
		StreamFunc: func(ctx context.Context, req model.ChatRequest) (io.ReadCloser, error) {
			return nil, &model.ErrorResponse{StatusCode: status, Message: message}
		},
	}
}

func (m *MockClient) Stream(ctx context.Context, req model.ChatRequest) (io.ReadCloser, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	return m.StreamFunc(ctx, req)
}

// Requests returns every request received so far
func (m *MockClient) Requests() []model.ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.ChatRequest(nil), m.requests...)
}

// ScriptedBody is a response body fed chunk by chunk from a test. Read
// blocks until a chunk is pushed, the body is finished or it is closed.
type ScriptedBody struct {
	chunks chan []byte
	done   chan struct{}
	once   sync.Once
	closed chan struct{}
	cOnce  sync.Once
	rest   []byte
	err    error
}

func NewScriptedBody() *ScriptedBody {
	return &ScriptedBody{
		chunks: make(chan []byte),
		done:   make(chan struct{}),
		closed: make(chan struct{}),
	}
}

// Push delivers one chunk to the reader. It returns false if the body was
// closed first.
func (b *ScriptedBody) Push(chunk string) bool {
	select {
	case b.chunks <- []byte(chunk):
		return true
	case <-b.closed:
		return false
	}
}

// Finish makes the next Read return err, or io.EOF when err is nil.
func (b *ScriptedBody) Finish(err error) {
	b.once.Do(func() {
		if err == nil {
			err = io.EOF
		}
		b.err = err
		close(b.done)
	})
}

// Closed is closed once the consumer closes the body.
func (b *ScriptedBody) Closed() <-chan struct{} {
	return b.closed
}

func (b *ScriptedBody) Read(p []byte) (int, error) {
	if len(b.rest) > 0 {
		n := copy(p, b.rest)
		b.rest = b.rest[n:]
		return n, nil
	}

	select {
	case chunk := <-b.chunks:
		n := copy(p, chunk)
		b.rest = chunk[n:]
		return n, nil
	case <-b.done:
		return 0, b.err
	case <-b.closed:
		return 0, io.ErrClosedPipe
	}
}

func (b *ScriptedBody) Close() error {
	b.cOnce.Do(func() { close(b.closed) })
	return nil
}
