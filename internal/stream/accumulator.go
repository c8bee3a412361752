package stream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"genesis/internal/bus"
	"genesis/internal/models"
)

// active is the single open stream. At most one exists at a time.
type active struct {
	messageID string
	streamID  string
	buf       *Buffer
	cancel    context.CancelFunc
}

// Accumulator owns the durable message list and the active stream pointer.
// All mutation goes through its methods; bus events are emitted after the
// lock is released.
type Accumulator struct {
	bus     bus.Bus
	log     *zap.Logger
	persist *Persister
	now     func() time.Time

	mu        sync.Mutex
	messages  []models.Message
	index     map[string]int
	active    *active
	toolCalls int

	unsubs []bus.Unsubscribe
}

type Option func(*Accumulator)

func WithLogger(log *zap.Logger) Option {
	return func(a *Accumulator) {
		if log != nil {
			a.log = log
		}
	}
}

func WithPersister(p *Persister) Option {
	return func(a *Accumulator) { a.persist = p }
}

func WithClock(now func() time.Time) Option {
	return func(a *Accumulator) { a.now = now }
}

func NewAccumulator(b bus.Bus, opts ...Option) *Accumulator {
	a := &Accumulator{
		bus:   b,
		log:   zap.NewNop(),
		now:   time.Now,
		index: make(map[string]int),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.persist != nil {
		a.persist.bind(a.History)
	}
	return a
}

// Attach subscribes to chunk, stop and error events.
func (a *Accumulator) Attach() {
	a.unsubs = append(a.unsubs,
		bus.On(a.bus, a.log, models.EventChatStream, a.Apply),
		a.bus.Listen(models.EventStop, func(bus.Event) { a.Cancel() }),
		bus.On(a.bus, a.log, models.EventChatError, func(e models.StreamError) { a.Fail(e.StreamID, e.Error) }),
	)
}

func (a *Accumulator) Detach() {
	for _, u := range a.unsubs {
		u()
	}
	a.unsubs = nil
}

// AddUser appends a closed user message.
func (a *Accumulator) AddUser(display, model string) models.Message {
	msg := models.Message{
		ID:             uuid.NewString(),
		Role:           models.RoleUser,
		DisplayContent: display,
		ModelContent:   model,
		Timestamp:      a.now(),
	}
	a.mu.Lock()
	a.appendLocked(msg)
	a.mu.Unlock()

	a.changed()
	return msg.Clone()
}

// Begin opens a new assistant message and makes it the active stream. A
// stream that is still open is closed first with what it has accumulated.
func (a *Accumulator) Begin(ctx context.Context) (context.Context, string) {
	streamCtx, cancel := context.WithCancel(ctx)
	msg := models.Message{
		ID:        uuid.NewString(),
		Role:      models.RoleAssistant,
		Timestamp: a.now(),
		Streaming: true,
	}
	st := &active{
		messageID: msg.ID,
		streamID:  uuid.NewString(),
		buf:       &Buffer{},
		cancel:    cancel,
	}

	a.mu.Lock()
	prev, hadPrev := a.closeLocked()
	a.appendLocked(msg)
	a.active = st
	a.toolCalls = 0
	a.mu.Unlock()

	if hadPrev {
		a.log.Warn("new stream started while another was open", zap.String("closed", prev.ID))
		a.finalized(prev)
	}
	a.emitUpdate(msg.ID, "", 0, false)
	a.changed()
	return streamCtx, st.streamID
}

// Apply folds one chunk into the active stream.
func (a *Accumulator) Apply(c models.Chunk) {
	a.mu.Lock()
	st := a.active
	if st == nil {
		a.mu.Unlock()
		a.log.Debug("chunk without an active stream dropped", zap.Bool("done", c.Done))
		return
	}
	if c.StreamID != "" && c.StreamID != st.streamID {
		a.mu.Unlock()
		a.log.Debug("chunk for a stale stream dropped", zap.String("stream", c.StreamID))
		return
	}

	if c.Content != "" && !c.IsThinking {
		st.buf.Append(c.Content)
	}
	if len(c.ToolCalls) > 0 {
		i := a.index[st.messageID]
		a.messages[i].ToolCalls = append(a.messages[i].ToolCalls, c.ToolCalls...)
		a.toolCalls += len(c.ToolCalls)
	}
	tools := a.toolCalls
	id := st.messageID

	if !c.Done {
		a.mu.Unlock()
		a.emitUpdate(id, st.buf.String(), tools, false)
		return
	}

	closed, _ := a.closeLocked()
	a.mu.Unlock()

	a.finalized(closed)
	a.changed()
}

// Cancel aborts the in-flight stream and keeps its partial text.
func (a *Accumulator) Cancel() bool {
	a.mu.Lock()
	closed, ok := a.closeLocked()
	a.mu.Unlock()
	if !ok {
		return false
	}
	a.log.Info("stream cancelled", zap.String("message", closed.ID), zap.Int("chars", len(closed.DisplayContent)))
	a.finalized(closed)
	a.changed()
	return true
}

// Fail closes the active stream and appends an assistant message describing
// the failure. A streamID that does not match the active stream is ignored.
func (a *Accumulator) Fail(streamID, reason string) {
	a.mu.Lock()
	if a.active == nil || (streamID != "" && streamID != a.active.streamID) {
		a.mu.Unlock()
		a.log.Debug("stream error without a matching stream", zap.String("stream", streamID), zap.String("error", reason))
		return
	}
	closed, _ := a.closeLocked()
	text := fmt.Sprintf("Error: %s", reason)
	errMsg := models.Message{
		ID:             uuid.NewString(),
		Role:           models.RoleAssistant,
		DisplayContent: text,
		ModelContent:   text,
		Timestamp:      a.now(),
	}
	a.appendLocked(errMsg)
	a.mu.Unlock()

	a.log.Warn("stream failed", zap.String("message", closed.ID), zap.String("error", reason))
	a.finalized(closed)
	a.emitUpdate(errMsg.ID, text, 0, true)
	a.changed()
}

// Reset replaces the whole conversation. The active stream, if any, is
// cancelled and discarded rather than merged.
func (a *Accumulator) Reset(msgs []models.Message) {
	a.mu.Lock()
	if a.active != nil {
		a.active.cancel()
		a.active = nil
	}
	a.messages = nil
	a.index = make(map[string]int)
	a.toolCalls = 0
	for _, m := range msgs {
		m = m.Clone()
		m.Streaming = false
		a.appendLocked(m)
	}
	count := len(a.messages)
	a.mu.Unlock()

	a.bus.Emit(models.EventChatReset, map[string]int{"messages": count})
	a.changed()
}

// Messages returns copies of all messages. The open message's text is read
// from the stream buffer.
func (a *Accumulator) Messages() []models.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]models.Message, len(a.messages))
	for i, m := range a.messages {
		out[i] = m.Clone()
	}
	if a.active != nil {
		i := a.index[a.active.messageID]
		text := a.active.buf.String()
		out[i].DisplayContent = text
		out[i].ModelContent = text
	}
	return out
}

// History returns the closed messages, the context for the next agent turn.
func (a *Accumulator) History() []models.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]models.Message, 0, len(a.messages))
	for _, m := range a.messages {
		if m.Streaming {
			continue
		}
		out = append(out, m.Clone())
	}
	return out
}

// Active reports the open message id, if any.
func (a *Accumulator) Active() (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.active == nil {
		return "", false
	}
	return a.active.messageID, true
}

// Text returns the visible text of a message.
func (a *Accumulator) Text(id string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.active != nil && a.active.messageID == id {
		return a.active.buf.String()
	}
	if i, ok := a.index[id]; ok {
		return a.messages[i].DisplayContent
	}
	return ""
}

func (a *Accumulator) ToolCallCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.toolCalls
}

func (a *Accumulator) appendLocked(m models.Message) {
	a.index[m.ID] = len(a.messages)
	a.messages = append(a.messages, m)
}

// closeLocked copies the buffer into the message and clears the active
// pointer in one step, so no reader sees a closed message without its text.
func (a *Accumulator) closeLocked() (models.Message, bool) {
	st := a.active
	if st == nil {
		return models.Message{}, false
	}
	st.cancel()
	i := a.index[st.messageID]
	text := st.buf.String()
	a.messages[i].DisplayContent = text
	a.messages[i].ModelContent = text
	a.messages[i].Streaming = false
	a.active = nil
	return a.messages[i].Clone(), true
}

func (a *Accumulator) finalized(m models.Message) {
	a.emitUpdate(m.ID, m.DisplayContent, len(m.ToolCalls), true)
	a.bus.Emit(models.EventMessageFinalized, m)
}

func (a *Accumulator) emitUpdate(id, text string, tools int, done bool) {
	a.bus.Emit(models.EventStreamUpdated, models.StreamUpdate{
		MessageID: id,
		Text:      text,
		ToolCalls: tools,
		Done:      done,
	})
}

func (a *Accumulator) changed() {
	if a.persist != nil {
		a.persist.Schedule()
	}
}
