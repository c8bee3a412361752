package ui

import (
	"context"
	"os"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"genesis/internal/canvas"
	"genesis/internal/styles"
)

func NewModel(ctx context.Context, deps Deps) *Model {
	ti := textarea.New()
	ti.Placeholder = "Ask, @mention a file, or /save NAME"
	ti.Prompt = "❯ "
	ti.ShowLineNumbers = false
	ti.CharLimit = 0
	ti.MaxHeight = 6
	ti.SetHeight(2)
	ti.SetWidth(80)
	prompt := lipgloss.NewStyle().Foreground(styles.FgPrimary).Bold(true)
	placeholder := lipgloss.NewStyle().Foreground(styles.FgMuted)
	ti.FocusedStyle.Prompt = prompt
	ti.BlurredStyle.Prompt = prompt
	ti.FocusedStyle.Placeholder = placeholder
	ti.BlurredStyle.Placeholder = placeholder
	ti.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ti.BlurredStyle.CursorLine = lipgloss.NewStyle()
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(styles.FgPrimary)

	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	cwd, _ := os.Getwd()

	m := &Model{
		deps:       deps,
		ctx:        ctx,
		log:        log.Named("ui"),
		TextInput:  ti,
		Spinner:    sp,
		Viewport:   viewport.New(60, 15),
		MainPane:   viewport.New(40, 15),
		LeftPane:   viewport.New(40, 15),
		rendered:   make(map[string]string),
		Focus:      canvas.Main,
		WorkingDir: cwd,
	}
	_, m.Loading = deps.Chat.Active()
	return m
}

func (m *Model) Init() tea.Cmd {
	m.refreshChat()
	m.refreshCanvas(canvas.Main)
	return tea.Batch(
		m.TextInput.Cursor.BlinkCmd(),
		m.Spinner.Tick,
	)
}
