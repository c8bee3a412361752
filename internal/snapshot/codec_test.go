package snapshot

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"genesis/internal/bus"
	"genesis/internal/canvas"
	"genesis/internal/models"
	"genesis/internal/stream"
	"genesis/internal/surface"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type session struct {
	acc  *stream.Accumulator
	main *surface.Manager
	left *surface.Manager
}

func newSession(leftMounted bool) *session {
	b := bus.NewLocalBus(nil)
	return &session{
		acc:  stream.NewAccumulator(b),
		main: surface.NewManager(canvas.Main, b, surface.WithMounted(true), surface.WithSettleDelay(0)),
		left: surface.NewManager(canvas.Left, b, surface.WithMounted(leftMounted), surface.WithSettleDelay(0)),
	}
}

func (s *session) state() State {
	return State{Messages: s.acc.Messages(), Main: s.main.State(), Left: s.left.State()}
}

func (s *session) targets() Targets {
	return Targets{Chat: s.acc, Main: s.main, Left: s.left}
}

func sampleState() State {
	return State{
		Messages: []models.Message{
			{ID: "m1", Role: models.RoleUser, DisplayContent: "draw a cube\nAttached: notes.md", ModelContent: "draw a cube", Timestamp: fixedNow},
			{ID: "m2", Role: models.RoleAssistant, DisplayContent: "done", ModelContent: "done", Timestamp: fixedNow.Add(time.Second),
				ToolCalls: []models.ToolCall{{Name: "canvas_update", Arguments: `{"action":"preview"}`}}},
		},
		Main: surface.Buffer{Content: "# Notes\n\nbody", Media: &canvas.Media{Kind: canvas.MediaScene3D, Source: "cube()"}},
		Left: surface.Buffer{Content: "side"},
	}
}

func roundTrip(t *testing.T, doc Document) Document {
	t.Helper()
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	var out Document
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestRoundTripAllCategories(t *testing.T) {
	want := sampleState()
	doc := roundTrip(t, Encode(want, AllOptions(), "demo", fixedNow))

	plan, err := Decode(doc, true)
	require.NoError(t, err)
	s := newSession(true)
	plan.Apply(s.targets())

	if diff := cmp.Diff(want, s.state()); diff != "" {
		t.Errorf("state mismatch (-want +got):\n%s", diff)
	}
}

func TestExcludedCategoriesAreNoOps(t *testing.T) {
	doc := roundTrip(t, Encode(sampleState(), Options{LeftCanvas: true}, "partial", fixedNow))
	assert.Nil(t, doc.Chat)
	assert.Nil(t, doc.MainCanvas)
	assert.Nil(t, doc.Visuals)
	require.NotNil(t, doc.LeftCanvas)

	s := newSession(true)
	s.acc.AddUser("existing", "existing")
	s.main.Handle(canvas.Command{Kind: canvas.KindAddBlock, Target: canvas.Main, Block: &canvas.Block{Body: "keep"}})
	s.main.Handle(canvas.Command{Kind: canvas.KindPreview, Target: canvas.Main, Preview: &canvas.Preview{URL: "https://example.com"}})
	before := s.state()

	plan, err := Decode(doc, true)
	require.NoError(t, err)
	assert.False(t, plan.ResetChat)
	plan.Apply(s.targets())

	after := s.state()
	assert.Equal(t, before.Messages, after.Messages)
	assert.Equal(t, before.Main, after.Main)
	assert.Equal(t, "side", after.Left.Content)
}

func TestHelloScenario(t *testing.T) {
	raw := `{"name":"hello","timestamp":"2026-03-01T12:00:00Z","chat":null,"mainCanvas":"# Hello","leftCanvas":null,"visuals":null}`
	var doc Document
	require.NoError(t, json.Unmarshal([]byte(raw), &doc))

	s := newSession(false)
	plan, err := Decode(doc, false)
	require.NoError(t, err)
	plan.Apply(s.targets())

	assert.Empty(t, s.acc.Messages())
	assert.Equal(t, surface.Buffer{Content: "# Hello"}, s.main.State())
	assert.True(t, s.left.State().Empty())
	assert.Empty(t, s.left.Pending())
}

func TestEmptyButPresentIsDistinctFromNull(t *testing.T) {
	doc := Encode(State{}, AllOptions(), "blank", fixedNow)
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"blank","timestamp":"2026-03-01T12:00:00Z","chat":[],"mainCanvas":"","leftCanvas":"","visuals":{"main":null,"left":null}}`, string(data))

	doc = Encode(State{}, Options{}, "none", fixedNow)
	data, err = json.Marshal(doc)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"none","timestamp":"2026-03-01T12:00:00Z","chat":null,"mainCanvas":null,"leftCanvas":null,"visuals":null}`, string(data))
}

func TestChatLoadIsFullReset(t *testing.T) {
	s := newSession(false)
	s.acc.AddUser("old", "old")

	plan, err := Decode(Document{Name: "x", Chat: []models.Message{}}, false)
	require.NoError(t, err)
	assert.True(t, plan.ResetChat)
	plan.Apply(s.targets())
	assert.Empty(t, s.acc.Messages())
}

func TestPerSurfaceVisuals(t *testing.T) {
	raw := `{"name":"v","visuals":{"left":{"type":"threejs","content":"scene()"}}}`
	var doc Document
	require.NoError(t, json.Unmarshal([]byte(raw), &doc))

	plan, err := Decode(doc, false)
	require.NoError(t, err)
	assert.Empty(t, plan.Main, "absent main entry is a no-op")
	require.Len(t, plan.Left, 1)
	assert.Equal(t, &canvas.Media{Kind: canvas.MediaScene3D, Source: "scene()"}, plan.Left[0].Restore.Media)

	raw = `{"name":"v","visuals":{"main":null}}`
	doc = Document{}
	require.NoError(t, json.Unmarshal([]byte(raw), &doc))
	plan, err = Decode(doc, false)
	require.NoError(t, err)
	require.Len(t, plan.Main, 1)
	assert.True(t, plan.Main[0].Restore.SetMedia)
	assert.Nil(t, plan.Main[0].Restore.Media, "present null clears the media pane")
}

func TestLegacyVisualFollowsOpenSurface(t *testing.T) {
	raw := `{"name":"old","timestamp":"t","chat":null,"main_canvas":"from snake","left_canvas":null,"visuals":{"type_":"url","content":"https://example.com"}}`
	var doc Document
	require.NoError(t, json.Unmarshal([]byte(raw), &doc))
	require.NotNil(t, doc.MainCanvas)
	assert.Equal(t, "from snake", *doc.MainCanvas)
	require.NotNil(t, doc.Visuals)
	require.NotNil(t, doc.Visuals.Legacy)

	plan, err := Decode(doc, true)
	require.NoError(t, err)
	require.Len(t, plan.Left, 1)
	assert.Equal(t, canvas.MediaFrame, plan.Left[0].Restore.Media.Kind)
	require.Len(t, plan.Main, 1)
	assert.Nil(t, plan.Main[0].Restore.Media)
	assert.False(t, plan.Main[0].Restore.SetMedia)

	plan, err = Decode(doc, false)
	require.NoError(t, err)
	assert.Empty(t, plan.Left)
	require.Len(t, plan.Main, 1)
	assert.Equal(t, "https://example.com", plan.Main[0].Restore.Media.Source)
}

func TestUnmountedSurfaceQueuesRestore(t *testing.T) {
	s := newSession(false)
	content := "restored"
	plan, err := Decode(Document{Name: "q", LeftCanvas: &content}, false)
	require.NoError(t, err)
	plan.Apply(s.targets())

	assert.True(t, s.left.State().Empty())
	assert.Len(t, s.left.Pending(), 1)
	s.left.Mount()
	assert.Equal(t, "restored", s.left.State().Content)
}

func TestDecodeRejectsInvalidDocuments(t *testing.T) {
	_, err := Decode(Document{Chat: []models.Message{{Role: models.RoleUser}}}, false)
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = Decode(Document{Chat: []models.Message{{ID: "a", Role: "narrator"}}}, false)
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = Decode(Document{Visuals: &Visuals{Main: Slot{Present: true, Visual: &Visual{Type: "hologram"}}}}, false)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestUnknownLegacyVisualLoadsAsFrame(t *testing.T) {
	raw := `{"name":"old","timestamp":"t","chat":[{"id":"1","role":"user","displayContent":"still here"}],"main_canvas":null,"left_canvas":null,"visuals":{"type_":"hologram","content":"https://example.com/h"}}`
	var doc Document
	require.NoError(t, json.Unmarshal([]byte(raw), &doc))

	plan, err := Decode(doc, false)
	require.NoError(t, err)
	require.Len(t, plan.Chat, 1)
	assert.Equal(t, "still here", plan.Chat[0].DisplayContent)
	require.Len(t, plan.Main, 1)
	assert.Equal(t, &canvas.Media{Kind: canvas.MediaFrame, Source: "https://example.com/h"}, plan.Main[0].Restore.Media)
}
