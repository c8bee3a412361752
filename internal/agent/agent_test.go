package agent

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/openai/openai-go/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"genesis/internal/bus"
	"genesis/internal/models"
)

type fakeStream struct {
	ctx    context.Context
	chunks []openai.ChatCompletionChunk
	err    error
	i      int
	cur    openai.ChatCompletionChunk
}

func (s *fakeStream) Next() bool {
	if s.ctx.Err() != nil || s.i >= len(s.chunks) {
		return false
	}
	s.cur = s.chunks[s.i]
	s.i++
	return true
}

func (s *fakeStream) Current() openai.ChatCompletionChunk { return s.cur }

func (s *fakeStream) Err() error {
	if err := s.ctx.Err(); err != nil {
		return err
	}
	return s.err
}

func (s *fakeStream) Close() error { return nil }

type script struct {
	chunks []openai.ChatCompletionChunk
	err    error
}

type fakeStreamer struct {
	mu      sync.Mutex
	scripts []script
	calls   []openai.ChatCompletionNewParams
}

func (f *fakeStreamer) Stream(ctx context.Context, params openai.ChatCompletionNewParams) Stream {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, params)
	var sc script
	if len(f.scripts) > 0 {
		sc, f.scripts = f.scripts[0], f.scripts[1:]
	}
	return &fakeStream{ctx: ctx, chunks: sc.chunks, err: sc.err}
}

func text(id, s string) openai.ChatCompletionChunk {
	return openai.ChatCompletionChunk{
		ID: id,
		Choices: []openai.ChatCompletionChunkChoice{{
			Delta: openai.ChatCompletionChunkChoiceDelta{Content: s},
		}},
	}
}

func toolCall(id, callID, name, args string) openai.ChatCompletionChunk {
	return openai.ChatCompletionChunk{
		ID: id,
		Choices: []openai.ChatCompletionChunkChoice{{
			Delta: openai.ChatCompletionChunkChoiceDelta{
				ToolCalls: []openai.ChatCompletionChunkChoiceDeltaToolCall{{
					Index: 0,
					ID:    callID,
					Function: openai.ChatCompletionChunkChoiceDeltaToolCallFunction{
						Name:      name,
						Arguments: args,
					},
				}},
			},
		}},
	}
}

type recorded struct {
	chunks []models.Chunk
	errs   []models.StreamError
	canvas int
}

func record(b bus.Bus) *recorded {
	r := &recorded{}
	bus.On(b, nil, models.EventChatStream, func(c models.Chunk) { r.chunks = append(r.chunks, c) })
	bus.On(b, nil, models.EventChatError, func(e models.StreamError) { r.errs = append(r.errs, e) })
	b.Listen(models.EventNativeCanvas, func(bus.Event) { r.canvas++ })
	return r
}

func (r *recorded) text() string {
	s := ""
	for _, c := range r.chunks {
		s += c.Content
	}
	return s
}

var history = []models.Message{{ID: "u1", Role: models.RoleUser, ModelContent: "hi"}}

func TestRunStreamsTextThenDone(t *testing.T) {
	b := bus.NewLocalBus(nil)
	rec := record(b)
	s := &fakeStreamer{scripts: []script{{chunks: []openai.ChatCompletionChunk{text("c", "Hel"), text("c", "lo")}}}}
	r := NewRunner(s, b, Options{Model: "m1"})

	require.NoError(t, r.Run(context.Background(), "s1", history))

	assert.Equal(t, "Hello", rec.text())
	last := rec.chunks[len(rec.chunks)-1]
	assert.True(t, last.Done)
	for _, c := range rec.chunks {
		assert.Equal(t, "s1", c.StreamID)
	}
	require.Len(t, s.calls, 1)
	assert.Equal(t, "m1", string(s.calls[0].Model))
	assert.Len(t, s.calls[0].Messages, 2, "system prompt plus one user turn")
}

func TestRunExecutesCanvasToolAndContinues(t *testing.T) {
	b := bus.NewLocalBus(nil)
	rec := record(b)
	s := &fakeStreamer{scripts: []script{
		{chunks: []openai.ChatCompletionChunk{
			text("a", "Drawing"),
			toolCall("a", "call_1", "canvas_update", `{"action":"add_block","content":"# Note"}`),
		}},
		{chunks: []openai.ChatCompletionChunk{text("b", "Done.")}},
	}}
	r := NewRunner(s, b, Options{Model: "m1"})

	require.NoError(t, r.Run(context.Background(), "s1", history))

	assert.Equal(t, "Drawing\n\nDone.", rec.text())
	assert.Equal(t, 1, rec.canvas)

	var calls []models.ToolCall
	for _, c := range rec.chunks {
		calls = append(calls, c.ToolCalls...)
	}
	require.Len(t, calls, 1)
	assert.Equal(t, "canvas_update", calls[0].Name)

	require.Len(t, s.calls, 2)
	assert.Len(t, s.calls[1].Messages, 4, "assistant tool call and tool result appended")
}

func TestRunStopsAfterMaxIterations(t *testing.T) {
	b := bus.NewLocalBus(nil)
	rec := record(b)
	loop := script{chunks: []openai.ChatCompletionChunk{toolCall("x", "c", "canvas_update", `{"action":"clear"}`)}}
	s := &fakeStreamer{scripts: []script{loop, loop, loop}}
	r := NewRunner(s, b, Options{Model: "m1", MaxIterations: 2})

	require.NoError(t, r.Run(context.Background(), "s1", history))
	assert.Len(t, s.calls, 2)
	assert.Contains(t, rec.text(), "Stopped after 2 tool iterations")
	assert.True(t, rec.chunks[len(rec.chunks)-1].Done)
}

func TestRunReportsStreamError(t *testing.T) {
	b := bus.NewLocalBus(nil)
	rec := record(b)
	s := &fakeStreamer{scripts: []script{{chunks: []openai.ChatCompletionChunk{text("c", "part")}, err: errors.New("boom")}}}
	r := NewRunner(s, b, Options{Model: "m1"})

	err := r.Run(context.Background(), "s1", history)
	require.Error(t, err)
	require.Len(t, rec.errs, 1)
	assert.Equal(t, models.StreamError{StreamID: "s1", Error: "boom"}, rec.errs[0])
	for _, c := range rec.chunks {
		assert.False(t, c.Done)
	}
}

func TestRunCancelledIsQuiet(t *testing.T) {
	b := bus.NewLocalBus(nil)
	rec := record(b)
	s := &fakeStreamer{scripts: []script{{chunks: []openai.ChatCompletionChunk{text("c", "x")}}}}
	r := NewRunner(s, b, Options{Model: "m1"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := r.Run(ctx, "s1", history)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, rec.errs)
	assert.Empty(t, rec.chunks)
}

func TestBuildHistorySkipsUnpairedTurns(t *testing.T) {
	msgs := []models.Message{
		{Role: models.RoleUser, ModelContent: "q"},
		{Role: models.RoleAssistant, ModelContent: ""},
		{Role: models.RoleTool, ModelContent: "result"},
		{Role: models.RoleAssistant, ModelContent: "a"},
		{Role: models.RoleAssistant, ModelContent: "partial", Streaming: true},
	}
	out := BuildHistory("sys", msgs)
	require.Len(t, out, 3)
	assert.NotNil(t, out[0].OfSystem)
	assert.NotNil(t, out[1].OfUser)
	assert.NotNil(t, out[2].OfAssistant)
}

func TestSetModel(t *testing.T) {
	r := NewRunner(&fakeStreamer{}, bus.NewLocalBus(nil), Options{Model: "a"})
	r.SetModel("b")
	assert.Equal(t, "b", r.Model())
}
