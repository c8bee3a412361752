package canvas

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"genesis/internal/bus"
	"genesis/internal/models"
)

type surfaces struct {
	main, left []Command
}

func listenSurfaces(b bus.Bus) *surfaces {
	s := &surfaces{}
	bus.On(b, nil, CommandEvent(Main), func(c Command) { s.main = append(s.main, c) })
	bus.On(b, nil, CommandEvent(Left), func(c Command) { s.left = append(s.left, c) })
	return s
}

func TestRouterNativeEventsReachOneSurface(t *testing.T) {
	b := bus.NewLocalBus(nil)
	s := listenSurfaces(b)
	r := NewRouter(b, nil)
	r.Attach()
	defer r.Detach()

	b.Emit(models.EventNativeCanvas, map[string]any{"add_block": map[string]any{"target": "left", "content": "L"}})
	b.Emit(models.EventNativeCanvas, map[string]any{"add_block": map[string]any{"content": "M"}})
	b.Emit(models.EventNativeCanvas, map[string]any{"clear_canvas": map[string]any{"target": "elsewhere"}})

	require.Len(t, s.left, 1)
	assert.Equal(t, "L", s.left[0].Block.Body)
	require.Len(t, s.main, 1)
	assert.Equal(t, "M", s.main[0].Block.Body)
}

func TestRouterSplitEvent(t *testing.T) {
	b := bus.NewLocalBus(nil)
	s := listenSurfaces(b)
	r := NewRouter(b, nil)
	r.Attach()
	defer r.Detach()

	b.Emit(models.EventCanvasSplit, map[string]string{"url": "https://example.com/a.png", "type": "image", "targetId": "main"})
	require.Len(t, s.main, 1)
	assert.Empty(t, s.left)
	assert.Equal(t, KindPreview, s.main[0].Kind)
}

func TestRouterTextFallbackOnlyForFinalizedAssistant(t *testing.T) {
	b := bus.NewLocalBus(nil)
	s := listenSurfaces(b)
	r := NewRouter(b, nil)

	text := "```json\n{\"canvas_update\":{\"add_block\":{\"target\":\"left\",\"content\":\"x\"}}}\n```"

	assert.Zero(t, r.HandleFinalized(models.Message{Role: models.RoleUser, DisplayContent: text}))
	assert.Zero(t, r.HandleFinalized(models.Message{Role: models.RoleAssistant, DisplayContent: text, Streaming: true}))
	assert.Zero(t, r.HandleFinalized(models.Message{
		Role:           models.RoleAssistant,
		DisplayContent: text,
		ToolCalls:      []models.ToolCall{{Name: ToolName}},
	}), "tool-driven commands are not parsed twice")

	assert.Equal(t, 1, r.HandleFinalized(models.Message{Role: models.RoleAssistant, DisplayContent: text}))
	assert.Len(t, s.left, 1)
	assert.Empty(t, s.main)
}

func TestRouterParsesFinalizedMessageFromBus(t *testing.T) {
	b := bus.NewLocalBus(nil)
	s := listenSurfaces(b)
	r := NewRouter(b, nil)
	r.Attach()
	defer r.Detach()

	text := "Done.\n```json\n{\"canvas_update\":{\"add_block\":{\"content\":\"# Draft\"}}}\n```"
	b.Emit(models.EventMessageFinalized, models.Message{Role: models.RoleAssistant, DisplayContent: text})

	require.Len(t, s.main, 1)
	assert.Equal(t, "# Draft", s.main[0].Block.Body)
	assert.Empty(t, s.left)

	r.Detach()
	b.Emit(models.EventMessageFinalized, models.Message{Role: models.RoleAssistant, DisplayContent: text})
	assert.Len(t, s.main, 1)
}

func TestDispatchRejectsUnresolvedTarget(t *testing.T) {
	r := NewRouter(bus.NewLocalBus(nil), nil)
	assert.ErrorIs(t, r.Dispatch(Command{Kind: KindClear}), ErrUnknownTarget)
	assert.ErrorIs(t, r.Dispatch(Command{Kind: KindClear, Target: "both"}), ErrUnknownTarget)
}
