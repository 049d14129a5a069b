package chat

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"lumora/config"
	"lumora/model"
	"lumora/storage"
	"lumora/stream"
)

type State int

const (
	StateIdle State = iota
	StateSending
	StateStreaming
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateStreaming:
		return "streaming"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Options tune an Orchestrator. Zero values pick the defaults.
type Options struct {
	// IdleTimeout fails a reply that produces no bytes for this long.
	// Negative disables the watchdog.
	IdleTimeout time.Duration
}

// Orchestrator runs one chat turn at a time: it records the user message,
// asks the gateway for a reply and streams the reply into both the
// MessageStore and the ConversationStore.
type Orchestrator struct {
	client        model.ChatClient
	conversations *storage.ConversationStore
	settings      *storage.SettingsStore
	messages      *MessageStore
	idleTimeout   time.Duration

	mu      sync.Mutex
	state   State
	cancel  context.CancelFunc
	body    io.ReadCloser
	stopped bool
	// switching is set while a thread change rewrites the message store.
	switching bool

	listenersMu    sync.Mutex
	stateListeners []func(State)
	noteListeners  []func(Notification)

	now   func() time.Time
	newID func() string
}

// NewOrchestrator wires the chat core together and loads the active
// conversation into the message store.
func NewOrchestrator(client model.ChatClient, conversations *storage.ConversationStore, settings *storage.SettingsStore, opts Options) *Orchestrator {
	idle := opts.IdleTimeout
	if idle == 0 {
		idle = config.DefaultStreamIdleTimeout
	}

	o := &Orchestrator{
		client:        client,
		conversations: conversations,
		settings:      settings,
		messages:      NewMessageStore(),
		idleTimeout:   idle,
		now:           time.Now,
		newID:         func() string { return uuid.New().String() },
	}

	if conv, ok := conversations.Active(); ok {
		o.messages.ReplaceAll(conv.Messages)
	}
	return o
}

// Messages is the store of the thread on screen.
func (o *Orchestrator) Messages() *MessageStore {
	return o.messages
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Busy reports whether a send is in flight.
func (o *Orchestrator) Busy() bool {
	return o.State() != StateIdle
}

func (o *Orchestrator) SubscribeState(fn func(State)) {
	o.listenersMu.Lock()
	defer o.listenersMu.Unlock()
	o.stateListeners = append(o.stateListeners, fn)
}

func (o *Orchestrator) SubscribeNotifications(fn func(Notification)) {
	o.listenersMu.Lock()
	defer o.listenersMu.Unlock()
	o.noteListeners = append(o.noteListeners, fn)
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()

	o.listenersMu.Lock()
	fns := append([]func(State){}, o.stateListeners...)
	o.listenersMu.Unlock()
	for _, fn := range fns {
		fn(s)
	}
}

func (o *Orchestrator) notify(n Notification) {
	o.listenersMu.Lock()
	fns := append([]func(Notification){}, o.noteListeners...)
	o.listenersMu.Unlock()
	for _, fn := range fns {
		fn(n)
	}
}

// Send runs one turn and blocks until the reply is complete, stopped or
// failed. It returns nil on completion and on Stop. Failures are both
// returned and reported once through the notification listeners.
func (o *Orchestrator) Send(ctx context.Context, text string, files []Attachment) error {
	text = strings.TrimSpace(text)
	if text == "" && len(files) == 0 {
		return ErrEmptyMessage
	}

	o.mu.Lock()
	if o.state != StateIdle || o.switching {
		o.mu.Unlock()
		return ErrBusy
	}
	ctx, cancel := context.WithCancel(ctx)
	o.state = StateSending
	o.cancel = cancel
	o.stopped = false
	o.body = nil
	o.mu.Unlock()
	defer cancel()

	o.setState(StateSending)

	convID := o.conversations.ActiveID()
	if convID == "" {
		convID = o.conversations.Create()
		o.messages.ReplaceAll(nil)
	}

	userMsg := model.Message{
		ID:        o.newID(),
		Role:      model.RoleUser,
		Content:   text,
		Timestamp: o.now(),
		Images:    imageAttachments(files),
	}
	o.messages.Append(userMsg)
	o.conversations.AddMessage(convID, userMsg)

	req := model.ChatRequest{
		Model:    o.settings.Get().Model,
		Messages: model.ToWire(o.messages.Messages()),
	}

	if config.DebugLog != nil {
		config.DebugLog.Printf("[Chat] sending %d messages to %s (conversation %s)", len(req.Messages), req.Model, convID)
	}

	body, err := o.client.Stream(ctx, req)
	if err != nil {
		if o.wasStopped(ctx) {
			o.finish()
			return nil
		}
		return o.fail(err)
	}

	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		body.Close()
		o.finish()
		return nil
	}
	o.body = body
	o.mu.Unlock()

	o.setState(StateStreaming)

	assistant := model.Message{
		ID:        o.newID(),
		Role:      model.RoleAssistant,
		Timestamp: o.now(),
	}
	o.messages.Append(assistant)
	o.conversations.AddMessage(convID, assistant)

	var content strings.Builder
	err = o.readReply(ctx, cancel, body, func(delta string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		content.WriteString(delta)
		full := content.String()
		o.messages.UpdateContent(assistant.ID, full)
		o.conversations.UpdateMessage(convID, assistant.ID, full)
		return nil
	})

	switch {
	case err == nil:
		if config.DebugLog != nil {
			config.DebugLog.Printf("[Chat] reply complete (%d bytes)", content.Len())
		}
		o.finish()
		return nil
	case o.wasStopped(ctx) && !errors.Is(err, ErrStreamIdle):
		if config.DebugLog != nil {
			config.DebugLog.Printf("[Chat] reply stopped after %d bytes", content.Len())
		}
		o.finish()
		return nil
	}

	if content.Len() == 0 {
		o.rollback(convID, assistant.ID)
	}
	return o.fail(err)
}

// readReply decodes body until EOF. A watchdog closes the body when no
// bytes arrive for idleTimeout, which surfaces as ErrStreamIdle.
func (o *Orchestrator) readReply(ctx context.Context, cancel context.CancelFunc, body io.ReadCloser, fn stream.DeltaFunc) error {
	defer body.Close()

	if o.idleTimeout <= 0 {
		return stream.Decode(ctx, body, fn)
	}

	var idle atomic.Bool
	timer := time.AfterFunc(o.idleTimeout, func() {
		idle.Store(true)
		cancel()
		body.Close()
	})

	err := stream.Decode(ctx, &watchedReader{r: body, timer: timer, timeout: o.idleTimeout}, fn)
	timer.Stop()
	if err != nil && idle.Load() {
		return ErrStreamIdle
	}
	return err
}

// watchedReader pushes the idle deadline back on every successful read.
type watchedReader struct {
	r       io.Reader
	timer   *time.Timer
	timeout time.Duration
}

func (w *watchedReader) Read(p []byte) (int, error) {
	n, err := w.r.Read(p)
	if n > 0 {
		w.timer.Reset(w.timeout)
	}
	return n, err
}

// wasStopped reports whether the send ended because of Stop or because the
// caller's context went away.
func (o *Orchestrator) wasStopped(ctx context.Context) bool {
	o.mu.Lock()
	stopped := o.stopped
	o.mu.Unlock()
	return stopped || errors.Is(ctx.Err(), context.Canceled)
}

// rollback removes the empty assistant placeholder from both stores.
func (o *Orchestrator) rollback(convID, assistantID string) {
	current := o.messages.Messages()
	kept := current[:0]
	for _, m := range current {
		if m.ID != assistantID {
			kept = append(kept, m)
		}
	}
	o.messages.ReplaceAll(kept)
	o.conversations.RemoveMessage(convID, assistantID)
}

func (o *Orchestrator) fail(err error) error {
	if config.DebugLog != nil {
		config.DebugLog.Printf("[Chat] send failed: %v", err)
	}
	o.setState(StateFailed)
	o.notify(failureNotification(err))
	o.finish()
	return err
}

func (o *Orchestrator) finish() {
	o.mu.Lock()
	o.cancel = nil
	o.body = nil
	o.mu.Unlock()
	o.setState(StateIdle)
}

// Stop abandons the in-flight reply. Content received so far is kept and
// no notification is emitted. It returns false when nothing was running.
// The state returns to Idle once Send has unwound.
func (o *Orchestrator) Stop() bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state == StateIdle || o.cancel == nil {
		return false
	}
	o.stopped = true
	o.cancel()
	if o.body != nil {
		o.body.Close()
	}
	return true
}

// beginSwitch claims the orchestrator for a thread change so that no Send
// can start until endSwitch. It fails with ErrBusy while a reply is running.
func (o *Orchestrator) beginSwitch() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateIdle || o.switching {
		return ErrBusy
	}
	o.switching = true
	return nil
}

func (o *Orchestrator) endSwitch() {
	o.mu.Lock()
	o.switching = false
	o.mu.Unlock()
}

// SwitchConversation shows another thread. Refused while busy.
func (o *Orchestrator) SwitchConversation(id string) error {
	if err := o.beginSwitch(); err != nil {
		return err
	}
	defer o.endSwitch()

	conv, ok := o.conversations.Get(id)
	if !ok {
		return ErrConversationNotFound
	}
	o.conversations.SetActive(id)
	o.messages.ReplaceAll(conv.Messages)
	return nil
}

// NewConversation starts an empty thread. Refused while busy.
func (o *Orchestrator) NewConversation() error {
	if err := o.beginSwitch(); err != nil {
		return err
	}
	defer o.endSwitch()

	o.conversations.Create()
	o.messages.ReplaceAll(nil)
	return nil
}

// DeleteConversation removes a thread, clearing the screen if it was the
// active one. Deleting the active thread is refused while busy.
func (o *Orchestrator) DeleteConversation(id string) error {
	if o.conversations.ActiveID() != id {
		if !o.conversations.Delete(id) {
			return ErrConversationNotFound
		}
		return nil
	}

	if err := o.beginSwitch(); err != nil {
		return err
	}
	defer o.endSwitch()

	active := o.conversations.ActiveID() == id
	if !o.conversations.Delete(id) {
		return ErrConversationNotFound
	}
	if active {
		o.messages.ReplaceAll(nil)
	}
	return nil
}

// ClearAll deletes every thread. Refused while busy.
func (o *Orchestrator) ClearAll() error {
	if err := o.beginSwitch(); err != nil {
		return err
	}
	defer o.endSwitch()

	err := o.conversations.ClearAll()
	o.messages.ReplaceAll(nil)
	return err
}
