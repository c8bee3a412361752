package ui

import (
	"context"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/glamour"
	"go.uber.org/zap"

	"genesis/internal/bus"
	"genesis/internal/canvas"
	"genesis/internal/models"
	"genesis/internal/snapshot"
	"genesis/internal/stream"
	"genesis/internal/surface"
)

const (
	MaxChatWidth        = 100
	MinCanvasWidth      = 32
	SideBySideThreshold = 110 // below this the canvases stack under the chat

	SessionsPageSize = 10

	MaxAttachmentLines = 500
)

var ModalWidth = 60

// Runner is the agent that answers a turn.
type Runner interface {
	Run(ctx context.Context, streamID string, history []models.Message) error
	Model() string
	SetModel(model string)
}

// Deps are the runtime pieces the TUI drives.
type Deps struct {
	Bus      bus.Bus
	Chat     *stream.Accumulator
	Main     *surface.Manager
	Left     *surface.Manager
	Sessions *snapshot.Store
	Agent    Runner
	Models   []string
	// Transport names the bus transport for the status bar.
	Transport string
	Log       *zap.Logger
}

// busMsg carries a bus event into the update loop.
type busMsg struct {
	ev bus.Event
}

type runDoneMsg struct {
	streamID string
	err      error
}

type Model struct {
	deps Deps
	ctx  context.Context
	log  *zap.Logger

	Viewport       viewport.Model
	MainPane       viewport.Model
	LeftPane       viewport.Model
	TextInput      textarea.Model
	Spinner        spinner.Model
	Renderer       *glamour.TermRenderer
	CanvasRenderer *glamour.TermRenderer

	WindowWidth  int
	WindowHeight int

	chatWidth    int
	canvasWidth  int
	canvasHeight int
	stacked      bool

	// rendered caches glamour output for closed messages by id.
	rendered map[string]string
	Loading  bool

	Focus    canvas.Target
	LeftOpen bool

	Snippet   *models.SelectionSnippet
	Notice    string
	NoticeErr bool
	Alert     string

	SessionsOpen bool
	SessionNames []string
	SessionIdx   int
	SessionPage  int
	SessionsErr  error

	ShortcutsOpen bool

	// File mention autocomplete
	FileSuggestOpen bool
	FileSuggestions []string
	FileSuggestIdx  int
	PendingFiles    []string

	WorkingDir string
}
