package chat

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"lumora/model"
	"lumora/provider/testutil"
	"lumora/storage"
)

type harness struct {
	orch          *Orchestrator
	conversations *storage.ConversationStore
	settings      *storage.SettingsStore

	mu     sync.Mutex
	states []State
	notes  []Notification
}

func newHarness(t *testing.T, client model.ChatClient, opts Options) *harness {
	t.Helper()
	backend := storage.NewMemoryBackend()
	h := &harness{
		conversations: storage.NewConversationStore(backend),
		settings:      storage.NewSettingsStore(backend),
	}
	h.orch = NewOrchestrator(client, h.conversations, h.settings, opts)
	h.orch.SubscribeState(func(s State) {
		h.mu.Lock()
		h.states = append(h.states, s)
		h.mu.Unlock()
	})
	h.orch.SubscribeNotifications(func(n Notification) {
		h.mu.Lock()
		h.notes = append(h.notes, n)
		h.mu.Unlock()
	})
	return h
}

func (h *harness) notifications() []Notification {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Notification(nil), h.notes...)
}

func (h *harness) stateLog() []State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]State(nil), h.states...)
}

func (h *harness) activeMessages(t *testing.T) []model.Message {
	t.Helper()
	conv, ok := h.conversations.Active()
	if !ok {
		t.Fatal("no active conversation")
	}
	return conv.Messages
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSendStreamsReply(t *testing.T) {
	deltas := []string{"The ", "answer ", "is ", "42."}
	client := testutil.NewMockClient(deltas...)
	h := newHarness(t, client, Options{})

	if err := h.orch.Send(context.Background(), "  What is the answer?  ", nil); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	msgs := h.orch.Messages().Messages()
	if len(msgs) != 2 {
		t.Fatalf("message store has %d messages, want 2", len(msgs))
	}
	if msgs[0].Role != model.RoleUser || msgs[0].Content != "What is the answer?" {
		t.Errorf("user message = %+v", msgs[0])
	}
	if msgs[1].Role != model.RoleAssistant || msgs[1].Content != strings.Join(deltas, "") {
		t.Errorf("assistant message = %+v", msgs[1])
	}

	persisted := h.activeMessages(t)
	if len(persisted) != 2 || persisted[1].Content != "The answer is 42." {
		t.Errorf("persisted = %+v", persisted)
	}
	if conv, _ := h.conversations.Active(); conv.Title != "What is the answer?" {
		t.Errorf("title = %q", conv.Title)
	}

	want := []State{StateSending, StateStreaming, StateIdle}
	got := h.stateLog()
	if len(got) != len(want) {
		t.Fatalf("states = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("state %d = %v, want %v", i, got[i], want[i])
		}
	}
	if len(h.notifications()) != 0 {
		t.Errorf("unexpected notifications: %+v", h.notifications())
	}
}

func TestSendUsesSettingsModelAndHistory(t *testing.T) {
	client := testutil.NewMockClient("ok")
	h := newHarness(t, client, Options{})
	h.settings.SetModel("openai/gpt-5-nano")

	h.orch.Send(context.Background(), "first", nil)
	h.orch.Send(context.Background(), "second", nil)

	reqs := client.Requests()
	if len(reqs) != 2 {
		t.Fatalf("got %d requests", len(reqs))
	}
	last := reqs[1]
	if last.Model != "openai/gpt-5-nano" {
		t.Errorf("model = %q", last.Model)
	}
	roles := []model.Role{model.RoleUser, model.RoleAssistant, model.RoleUser}
	if len(last.Messages) != len(roles) {
		t.Fatalf("history has %d messages, want %d", len(last.Messages), len(roles))
	}
	for i, r := range roles {
		if last.Messages[i].Role != r {
			t.Errorf("message %d role = %s, want %s", i, last.Messages[i].Role, r)
		}
	}
	if last.Messages[2].Content != "second" {
		t.Errorf("last content = %q", last.Messages[2].Content)
	}
}

func TestSendEmptyIsNoOp(t *testing.T) {
	client := testutil.NewMockClient("never")
	h := newHarness(t, client, Options{})

	for _, text := range []string{"", "   ", "\n\t"} {
		if err := h.orch.Send(context.Background(), text, nil); !errors.Is(err, ErrEmptyMessage) {
			t.Errorf("Send(%q) error = %v, want ErrEmptyMessage", text, err)
		}
	}

	if len(client.Requests()) != 0 {
		t.Error("empty send reached the network")
	}
	if h.orch.Messages().Len() != 0 || len(h.conversations.List()) != 0 {
		t.Error("empty send changed state")
	}
	if len(h.stateLog()) != 0 {
		t.Error("empty send changed the orchestrator state")
	}
}

func TestSendImageOnly(t *testing.T) {
	client := testutil.NewMockClient("A single pixel.")
	h := newHarness(t, client, Options{})

	files := []Attachment{{Name: "pixel.png", Data: testutil.PNG}}
	if err := h.orch.Send(context.Background(), "", files); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	req := client.Requests()[0]
	if len(req.Messages[0].Images) != 1 || !strings.HasPrefix(req.Messages[0].Images[0].URL, "data:image/png;base64,") {
		t.Errorf("request images = %+v", req.Messages[0].Images)
	}
	if conv, _ := h.conversations.Active(); conv.Title != model.DefaultConversationTitle {
		t.Errorf("image-only message retitled conversation to %q", conv.Title)
	}
}

func TestSendRateLimited(t *testing.T) {
	client := testutil.NewErrorClient(429, "Rate limit exceeded. Please try again in a moment.")
	h := newHarness(t, client, Options{})

	err := h.orch.Send(context.Background(), "Hello", nil)
	var resp *model.ErrorResponse
	if !errors.As(err, &resp) || !resp.IsRateLimited() {
		t.Fatalf("Send() error = %v, want rate limit", err)
	}

	notes := h.notifications()
	if len(notes) != 1 {
		t.Fatalf("got %d notifications, want exactly 1", len(notes))
	}
	if notes[0].Level != LevelError || notes[0].Message != "Rate limit exceeded. Please try again in a moment." {
		t.Errorf("notification = %+v", notes[0])
	}

	for _, m := range h.orch.Messages().Messages() {
		if m.Role == model.RoleAssistant {
			t.Error("assistant message left in the message store")
		}
	}
	for _, m := range h.activeMessages(t) {
		if m.Role == model.RoleAssistant {
			t.Error("assistant message persisted")
		}
	}
	if msgs := h.activeMessages(t); len(msgs) != 1 || msgs[0].Content != "Hello" {
		t.Errorf("user message not kept: %+v", msgs)
	}

	states := h.stateLog()
	if states[len(states)-2] != StateFailed || states[len(states)-1] != StateIdle {
		t.Errorf("states = %v, want ... failed, idle", states)
	}

	// The next send is accepted.
	h.orch.client = testutil.NewMockClient("ok")
	if err := h.orch.Send(context.Background(), "again", nil); err != nil {
		t.Errorf("send after failure error = %v", err)
	}
}

func TestSendErrorFallbackMessage(t *testing.T) {
	h := newHarness(t, testutil.NewErrorClient(500, ""), Options{})
	h.orch.Send(context.Background(), "Hello", nil)

	notes := h.notifications()
	if len(notes) != 1 || notes[0].Message != "Failed to send message" {
		t.Errorf("notifications = %+v", notes)
	}
}

func TestStreamErrorRollsBackEmptyReply(t *testing.T) {
	body := testutil.NewScriptedBody()
	client := &testutil.MockClient{
		StreamFunc: func(context.Context, model.ChatRequest) (io.ReadCloser, error) { return body, nil },
	}
	h := newHarness(t, client, Options{IdleTimeout: -1})

	done := make(chan error, 1)
	go func() { done <- h.orch.Send(context.Background(), "Hello", nil) }()

	body.Push(": keep-alive\n")
	body.Finish(errors.New("connection reset"))

	if err := <-done; err == nil {
		t.Fatal("Send() error = nil, want stream error")
	}
	for _, m := range h.activeMessages(t) {
		if m.Role == model.RoleAssistant {
			t.Error("empty assistant message persisted after stream error")
		}
	}
	if h.orch.Messages().Len() != 1 {
		t.Errorf("message store has %d messages, want only the user message", h.orch.Messages().Len())
	}
	if len(h.notifications()) != 1 {
		t.Errorf("got %d notifications, want 1", len(h.notifications()))
	}
}

func TestStreamErrorKeepsPartialReply(t *testing.T) {
	body := testutil.NewScriptedBody()
	client := &testutil.MockClient{
		StreamFunc: func(context.Context, model.ChatRequest) (io.ReadCloser, error) { return body, nil },
	}
	h := newHarness(t, client, Options{IdleTimeout: -1})

	done := make(chan error, 1)
	go func() { done <- h.orch.Send(context.Background(), "Hello", nil) }()

	body.Push(testutil.SSEChunk("Partial"))
	body.Finish(errors.New("connection reset"))
	<-done

	msgs := h.activeMessages(t)
	if len(msgs) != 2 || msgs[1].Content != "Partial" {
		t.Errorf("persisted = %+v", msgs)
	}
}

func TestStopKeepsPartialContent(t *testing.T) {
	body := testutil.NewScriptedBody()
	client := &testutil.MockClient{
		StreamFunc: func(context.Context, model.ChatRequest) (io.ReadCloser, error) { return body, nil },
	}
	h := newHarness(t, client, Options{IdleTimeout: -1})

	done := make(chan error, 1)
	go func() { done <- h.orch.Send(context.Background(), "Tell me a story", nil) }()

	body.Push(testutil.SSEChunk("Once upon"))
	waitFor(t, func() bool {
		msgs := h.orch.Messages().Messages()
		return len(msgs) == 2 && msgs[1].Content == "Once upon"
	})

	if err := h.orch.Send(context.Background(), "another", nil); !errors.Is(err, ErrBusy) {
		t.Errorf("concurrent Send() error = %v, want ErrBusy", err)
	}
	if err := h.orch.SwitchConversation("whatever"); !errors.Is(err, ErrBusy) {
		t.Errorf("SwitchConversation() while busy error = %v, want ErrBusy", err)
	}
	if err := h.orch.NewConversation(); !errors.Is(err, ErrBusy) {
		t.Errorf("NewConversation() while busy error = %v, want ErrBusy", err)
	}

	if !h.orch.Stop() {
		t.Fatal("Stop() = false while streaming")
	}
	if err := <-done; err != nil {
		t.Errorf("Send() after Stop error = %v, want nil", err)
	}

	select {
	case <-body.Closed():
	default:
		t.Error("response body not closed")
	}
	if h.orch.State() != StateIdle {
		t.Errorf("state = %v, want idle", h.orch.State())
	}
	if len(h.notifications()) != 0 {
		t.Errorf("Stop produced notifications: %+v", h.notifications())
	}
	msgs := h.activeMessages(t)
	if len(msgs) != 2 || msgs[1].Content != "Once upon" {
		t.Errorf("persisted = %+v", msgs)
	}
	if h.orch.Stop() {
		t.Error("Stop() = true while idle")
	}
}

func TestStopWhileSending(t *testing.T) {
	entered := make(chan struct{})
	client := &testutil.MockClient{
		StreamFunc: func(ctx context.Context, _ model.ChatRequest) (io.ReadCloser, error) {
			close(entered)
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	h := newHarness(t, client, Options{})

	done := make(chan error, 1)
	go func() { done <- h.orch.Send(context.Background(), "Hello", nil) }()

	<-entered
	h.orch.Stop()

	if err := <-done; err != nil {
		t.Errorf("Send() error = %v, want nil", err)
	}
	if len(h.notifications()) != 0 {
		t.Error("Stop during request produced a notification")
	}
	for _, m := range h.activeMessages(t) {
		if m.Role == model.RoleAssistant {
			t.Error("assistant placeholder created before the response arrived")
		}
	}
}

func TestIdleTimeoutFails(t *testing.T) {
	body := testutil.NewScriptedBody()
	client := &testutil.MockClient{
		StreamFunc: func(context.Context, model.ChatRequest) (io.ReadCloser, error) { return body, nil },
	}
	h := newHarness(t, client, Options{IdleTimeout: 30 * time.Millisecond})

	err := h.orch.Send(context.Background(), "Hello", nil)
	if !errors.Is(err, ErrStreamIdle) {
		t.Fatalf("Send() error = %v, want ErrStreamIdle", err)
	}

	notes := h.notifications()
	if len(notes) != 1 || notes[0].Level != LevelError {
		t.Errorf("notifications = %+v", notes)
	}
	for _, m := range h.activeMessages(t) {
		if m.Role == model.RoleAssistant {
			t.Error("empty assistant message kept after idle timeout")
		}
	}
}

func TestConcatenationProperty(t *testing.T) {
	cases := [][]string{
		{"a"},
		{"Hello", ", ", "world", "!"},
		{"多", "字节", " ✓", "\n\n", "```go\n", "x := 1\n```"},
		{`quote "inside"`, ` back\slash`},
	}

	for _, deltas := range cases {
		h := newHarness(t, testutil.NewMockClient(deltas...), Options{})
		if err := h.orch.Send(context.Background(), "q", nil); err != nil {
			t.Fatalf("Send() error = %v", err)
		}
		msgs := h.activeMessages(t)
		if got, want := msgs[len(msgs)-1].Content, strings.Join(deltas, ""); got != want {
			t.Errorf("content = %q, want %q", got, want)
		}
	}
}

func TestSwitchAndNewConversation(t *testing.T) {
	h := newHarness(t, testutil.NewMockClient("reply"), Options{})

	h.orch.Send(context.Background(), "first thread", nil)
	first := h.conversations.ActiveID()

	if err := h.orch.NewConversation(); err != nil {
		t.Fatal(err)
	}
	if h.orch.Messages().Len() != 0 {
		t.Error("NewConversation did not clear the message store")
	}
	h.orch.Send(context.Background(), "second thread", nil)

	if err := h.orch.SwitchConversation(first); err != nil {
		t.Fatalf("SwitchConversation() error = %v", err)
	}
	msgs := h.orch.Messages().Messages()
	if len(msgs) != 2 || msgs[0].Content != "first thread" {
		t.Errorf("message store after switch = %+v", msgs)
	}
	if err := h.orch.SwitchConversation("missing"); !errors.Is(err, ErrConversationNotFound) {
		t.Errorf("SwitchConversation(missing) error = %v", err)
	}

	if err := h.orch.DeleteConversation(first); err != nil {
		t.Fatal(err)
	}
	if h.orch.Messages().Len() != 0 || h.conversations.ActiveID() != "" {
		t.Error("deleting the active thread left it on screen")
	}

	// With no active thread, the next send creates one.
	h.orch.Send(context.Background(), "third thread", nil)
	if len(h.conversations.List()) != 2 {
		t.Errorf("got %d conversations, want 2", len(h.conversations.List()))
	}
}

func TestNewOrchestratorLoadsActiveConversation(t *testing.T) {
	backend := storage.NewMemoryBackend()
	conversations := storage.NewConversationStore(backend)
	id := conversations.Create()
	conversations.AddMessage(id, model.Message{ID: "u1", Role: model.RoleUser, Content: "persisted"})

	reopened := storage.NewConversationStore(backend)
	o := NewOrchestrator(testutil.NewMockClient(), reopened, storage.NewSettingsStore(backend), Options{})

	msgs := o.Messages().Messages()
	if len(msgs) != 1 || msgs[0].Content != "persisted" {
		t.Errorf("message store = %+v", msgs)
	}
}

func TestFailureNotification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantTitle string
		wantMsg   string
	}{
		{"rate limit", &model.ErrorResponse{StatusCode: 429, Message: "slow down"}, "Rate limited", "slow down"},
		{"quota", &model.ErrorResponse{StatusCode: 402, Message: "pay up"}, "Usage limit", "pay up"},
		{"server error without body", &model.ErrorResponse{StatusCode: 500}, "Error", "Failed to send message"},
		{"network", errors.New("dial tcp: refused"), "Error", "Failed to send message"},
		{"idle", ErrStreamIdle, "Error", "The reply stopped arriving. Please try again."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := failureNotification(tt.err)
			if n.Level != LevelError || n.Title != tt.wantTitle || n.Message != tt.wantMsg {
				t.Errorf("got %+v", n)
			}
		})
	}
}

func TestStopHaltsRemainingDeltasOfChunk(t *testing.T) {
	// All three events arrive in a single read.
	h := newHarness(t, testutil.NewMockClient("a", "b", "c"), Options{IdleTimeout: -1})

	var once sync.Once
	h.orch.Messages().Subscribe(func(ev MessageEvent) {
		if ev.Kind == MessageUpdated {
			once.Do(func() { h.orch.Stop() })
		}
	})

	if err := h.orch.Send(context.Background(), "letters", nil); err != nil {
		t.Fatalf("Send() after Stop error = %v, want nil", err)
	}

	msgs := h.orch.Messages().Messages()
	if len(msgs) != 2 || msgs[1].Content != "a" {
		t.Fatalf("messages = %+v, want reply %q", msgs, "a")
	}
	if persisted := h.activeMessages(t); persisted[1].Content != "a" {
		t.Errorf("persisted reply = %q, want %q", persisted[1].Content, "a")
	}
	if len(h.notifications()) != 0 {
		t.Errorf("Stop produced notifications: %+v", h.notifications())
	}
}

func TestSendRefusedWhileSwitching(t *testing.T) {
	client := testutil.NewMockClient("ok")
	h := newHarness(t, client, Options{})
	first := h.conversations.Create()
	h.conversations.Create()

	var sendErr error
	var once sync.Once
	h.conversations.Subscribe(func(ev storage.ConversationEvent) {
		if ev.Kind == storage.ActiveChanged {
			once.Do(func() { sendErr = h.orch.Send(context.Background(), "mid-switch", nil) })
		}
	})

	if err := h.orch.SwitchConversation(first); err != nil {
		t.Fatalf("SwitchConversation() error = %v", err)
	}
	if !errors.Is(sendErr, ErrBusy) {
		t.Errorf("Send() during switch error = %v, want ErrBusy", sendErr)
	}
	if len(client.Requests()) != 0 {
		t.Error("a request was sent during the switch")
	}
	if n := h.orch.Messages().Len(); n != 0 {
		t.Errorf("message store has %d messages, want 0", n)
	}

	// The guard is released afterwards.
	if err := h.orch.Send(context.Background(), "after", nil); err != nil {
		t.Fatalf("Send() after switch error = %v", err)
	}
}
