package ui

import (
	"context"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"genesis/internal/bus"
	"genesis/internal/canvas"
	"genesis/internal/models"
	"genesis/internal/snapshot"
	"genesis/internal/stream"
	"genesis/internal/surface"
)

// fakeRunner answers every turn with a fixed reply over the bus.
type fakeRunner struct {
	bus   bus.Bus
	reply string
	block bool

	mu      sync.Mutex
	model   string
	history [][]models.Message
}

func (r *fakeRunner) Run(ctx context.Context, streamID string, history []models.Message) error {
	r.mu.Lock()
	r.history = append(r.history, history)
	r.mu.Unlock()
	if r.block {
		<-ctx.Done()
		return ctx.Err()
	}
	r.bus.Emit(models.EventChatStream, models.Chunk{Content: r.reply, StreamID: streamID})
	r.bus.Emit(models.EventChatStream, models.Chunk{Done: true, StreamID: streamID})
	return nil
}

func (r *fakeRunner) Model() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.model
}

func (r *fakeRunner) SetModel(model string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.model = model
}

type harness struct {
	t      *testing.T
	m      *Model
	deps   Deps
	runner *fakeRunner

	mu     sync.Mutex
	events []bus.Event
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	b := bus.NewLocalBus(nil)
	chat := stream.NewAccumulator(b)
	router := canvas.NewRouter(b, nil)
	mainSurface := surface.NewManager(canvas.Main, b, surface.WithMounted(true), surface.WithSettleDelay(0))
	left := surface.NewManager(canvas.Left, b, surface.WithSettleDelay(0))
	chat.Attach()
	router.Attach()
	mainSurface.Attach()
	left.Attach()
	t.Cleanup(func() {
		left.Detach()
		mainSurface.Detach()
		router.Detach()
		chat.Detach()
	})

	runner := &fakeRunner{bus: b, reply: "Hello **there**", model: "a"}
	h := &harness{
		t:      t,
		runner: runner,
		deps: Deps{
			Bus:       b,
			Chat:      chat,
			Main:      mainSurface,
			Left:      left,
			Sessions:  snapshot.NewStore(t.TempDir(), nil),
			Agent:     runner,
			Models:    []string{"a", "b"},
			Transport: b.TransportName(),
		},
	}
	for _, name := range uiEvents {
		b.Listen(name, func(ev bus.Event) {
			h.mu.Lock()
			h.events = append(h.events, ev)
			h.mu.Unlock()
		})
	}

	h.m = NewModel(context.Background(), h.deps)
	h.m.WorkingDir = t.TempDir()
	h.m.Init()
	h.update(tea.WindowSizeMsg{Width: 140, Height: 40})
	return h
}

// update feeds msg, runs the commands it returns and delivers the bus
// events they caused, until everything settles.
func (h *harness) update(msg tea.Msg) {
	h.t.Helper()
	pending := []tea.Msg{msg}
	for len(pending) > 0 {
		next := pending[0]
		pending = pending[1:]
		_, cmd := h.m.Update(next)
		pending = append(pending, h.flush()...)
		pending = append(pending, runCmd(cmd)...)
		pending = append(pending, h.flush()...)
	}
}

func (h *harness) flush() []tea.Msg {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]tea.Msg, 0, len(h.events))
	for _, ev := range h.events {
		out = append(out, busMsg{ev: ev})
	}
	h.events = nil
	return out
}

func (h *harness) key(k tea.KeyType) {
	h.update(tea.KeyMsg{Type: k})
}

func (h *harness) submit(text string) {
	h.m.TextInput.SetValue(text)
	h.key(tea.KeyEnter)
}

// runCmd executes cmd, expanding batches. Spinner ticks are dropped so the
// harness terminates.
func runCmd(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		var out []tea.Msg
		for _, c := range batch {
			out = append(out, runCmd(c)...)
		}
		return out
	}
	switch msg.(type) {
	case nil, tea.QuitMsg:
		return nil
	case runDoneMsg:
		return []tea.Msg{msg}
	}
	return nil
}

func TestSendStreamsReply(t *testing.T) {
	h := newHarness(t)
	h.submit("hi")

	msgs := h.deps.Chat.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "hi", msgs[0].DisplayContent)
	assert.Equal(t, "Hello **there**", msgs[1].DisplayContent)
	assert.False(t, msgs[1].Streaming)
	assert.False(t, h.m.Loading)
	assert.Empty(t, h.m.TextInput.Value())

	require.Len(t, h.runner.history, 1)
	require.Len(t, h.runner.history[0], 1)
	assert.Equal(t, models.RoleUser, h.runner.history[0][0].Role)
	assert.Contains(t, h.m.Viewport.View(), "GENESIS")
}

func TestQuotedBlockGoesToModelOnly(t *testing.T) {
	h := newHarness(t)
	h.deps.Bus.Emit(models.EventNativeCanvas, map[string]any{"add_block": map[string]any{"content": "first\n\nsecond"}})
	h.update(nil)

	h.key(tea.KeyCtrlY)
	require.NotNil(t, h.m.Snippet)
	assert.Equal(t, "second", h.m.Snippet.Text)
	assert.Equal(t, "main", h.m.Snippet.CanvasID)

	h.submit("why")
	assert.Nil(t, h.m.Snippet)
	user := h.deps.Chat.Messages()[0]
	assert.Equal(t, "why\nContext: second", user.DisplayContent)
	assert.Contains(t, user.ModelContent, "<<<context source=canvas:main>>>\nsecond\n<<<end context>>>")
}

func TestHiddenLeftOpensOnCommand(t *testing.T) {
	h := newHarness(t)
	require.False(t, h.m.LeftOpen)

	h.deps.Bus.Emit(models.EventNativeCanvas, map[string]any{"add_block": map[string]any{"target": "left", "content": "aside"}})
	h.update(nil)

	assert.True(t, h.m.LeftOpen)
	assert.True(t, h.deps.Left.Mounted())
	assert.Equal(t, "aside", h.deps.Left.State().Content)
	assert.Empty(t, h.deps.Left.Pending())
}

func TestToggleLeftAndFocus(t *testing.T) {
	h := newHarness(t)

	h.key(tea.KeyTab)
	assert.Equal(t, canvas.Main, h.m.Focus, "focus stays on main while left is hidden")

	h.key(tea.KeyCtrlL)
	assert.True(t, h.m.LeftOpen)
	h.key(tea.KeyTab)
	assert.Equal(t, canvas.Left, h.m.Focus)

	h.key(tea.KeyCtrlL)
	assert.False(t, h.m.LeftOpen)
	assert.False(t, h.deps.Left.Mounted())
	assert.Equal(t, canvas.Main, h.m.Focus)
}

func TestSaveAndLoadSession(t *testing.T) {
	h := newHarness(t)
	h.deps.Chat.AddUser("remember this", "remember this")
	h.deps.Bus.Emit(models.EventNativeCanvas, map[string]any{"add_block": map[string]any{"content": "# Plan"}})
	h.update(nil)

	h.submit("/save demo")
	require.Empty(t, h.m.Alert)
	names, err := h.deps.Sessions.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"demo"}, names)

	h.key(tea.KeyCtrlN)
	h.deps.Bus.Emit(models.EventNativeCanvas, map[string]any{"clear_canvas": map[string]any{}})
	h.update(nil)
	require.Empty(t, h.deps.Chat.Messages())
	require.Empty(t, h.deps.Main.State().Content)

	h.submit("/load demo")
	require.Empty(t, h.m.Alert)
	msgs := h.deps.Chat.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "remember this", msgs[0].DisplayContent)
	assert.Equal(t, "# Plan", h.deps.Main.State().Content)
}

func TestLoadMissingSessionAlerts(t *testing.T) {
	h := newHarness(t)
	h.submit("/load nope")
	assert.True(t, strings.Contains(h.m.Alert, "nope"))

	h.key(tea.KeyEsc)
	assert.Empty(t, h.m.Alert)
}

func TestUsageErrorKeepsInput(t *testing.T) {
	h := newHarness(t)
	h.submit("/save")
	assert.True(t, h.m.NoticeErr)
	assert.Equal(t, "/save", h.m.TextInput.Value())
}

func TestSessionsModalLoadsSelection(t *testing.T) {
	h := newHarness(t)
	h.deps.Chat.AddUser("one", "one")
	h.submit("/save first chat")
	h.key(tea.KeyCtrlN)

	h.key(tea.KeyCtrlO)
	require.True(t, h.m.SessionsOpen)
	assert.Equal(t, []string{"first"}, h.m.SessionNames)
	assert.Contains(t, h.m.View(), "first")

	h.key(tea.KeyEnter)
	assert.False(t, h.m.SessionsOpen)
	require.Len(t, h.deps.Chat.Messages(), 1)
}

func TestStopCancelsTurn(t *testing.T) {
	h := newHarness(t)
	h.runner.block = true

	var stops int
	h.deps.Bus.Listen(models.EventStop, func(bus.Event) { stops++ })

	h.m.TextInput.SetValue("long question")
	_, cmd := h.m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	require.True(t, h.m.Loading)

	h.key(tea.KeyCtrlX)
	_, active := h.deps.Chat.Active()
	assert.False(t, active)
	assert.False(t, h.m.Loading)
	assert.Equal(t, 1, stops)

	// The blocked run returns once its context is cancelled.
	h.update(runCmd(cmd)[0])
	assert.False(t, h.m.NoticeErr)
}

func TestCycleModel(t *testing.T) {
	h := newHarness(t)
	h.key(tea.KeyCtrlB)
	assert.Equal(t, "b", h.runner.Model())
	h.key(tea.KeyCtrlB)
	assert.Equal(t, "a", h.runner.Model())
}

func TestViewShowsPanes(t *testing.T) {
	h := newHarness(t)
	out := h.m.View()
	assert.Contains(t, out, "MAIN")
	assert.NotContains(t, out, "LEFT")

	h.key(tea.KeyCtrlL)
	assert.Contains(t, h.m.View(), "LEFT")
}
