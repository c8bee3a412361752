package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"go.uber.org/zap"

	"genesis/internal/bus"
	"genesis/internal/canvas"
	"genesis/internal/models"
	"genesis/internal/snapshot"
	"genesis/internal/styles"
	"genesis/internal/surface"
)

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
		spCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case spinner.TickMsg:
		m.Spinner, spCmd = m.Spinner.Update(msg)
		if m.Loading {
			m.refreshChat()
		}
		return m, spCmd

	case busMsg:
		return m, m.handleEvent(msg.ev)

	case runDoneMsg:
		_, m.Loading = m.deps.Chat.Active()
		if msg.err != nil && !errors.Is(msg.err, context.Canceled) {
			m.log.Warn("agent run failed", zap.String("stream", msg.streamID), zap.Error(msg.err))
			m.setError("Agent error: " + msg.err.Error())
		}
		m.refreshChat()
		return m, nil

	case tea.KeyMsg:
		if m.Alert != "" {
			switch msg.String() {
			case "ctrl+c":
				return m, tea.Quit
			case "esc", "enter", " ":
				m.Alert = ""
			}
			return m, nil
		}

		if m.SessionsOpen {
			return m, m.handleSessionsKey(msg)
		}

		if m.ShortcutsOpen {
			switch msg.String() {
			case "ctrl+c":
				return m, tea.Quit
			case "esc", "enter", "?", "ctrl+s":
				m.ShortcutsOpen = false
			}
			return m, nil
		}

		if isNewlineShortcut(msg) {
			m.TextInput.InsertString("\n")
			m.FileSuggestOpen = false
			m.updateInputLayout()
			return m, nil
		}

		if m.FileSuggestOpen {
			switch msg.String() {
			case "esc":
				m.FileSuggestOpen = false
				return m, nil
			case "up", "ctrl+p":
				if n := len(m.FileSuggestions); n > 0 {
					m.FileSuggestIdx = (m.FileSuggestIdx - 1 + n) % n
				}
				return m, nil
			case "down", "ctrl+n":
				if n := len(m.FileSuggestions); n > 0 {
					m.FileSuggestIdx = (m.FileSuggestIdx + 1) % n
				}
				return m, nil
			case "tab", "enter":
				m.insertSuggestion()
				return m, nil
			}
		}

		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit

		case "ctrl+x":
			m.stop()
			return m, nil

		case "ctrl+l":
			if m.LeftOpen {
				m.closeLeft()
			} else {
				m.openLeft()
			}
			return m, nil

		case "tab":
			if m.LeftOpen && m.Focus == canvas.Main {
				m.Focus = canvas.Left
			} else {
				m.Focus = canvas.Main
			}
			return m, nil

		case "ctrl+y":
			m.quoteFocused()
			return m, nil

		case "ctrl+o":
			m.openSessions()
			return m, nil

		case "ctrl+n":
			m.newChat()
			return m, nil

		case "ctrl+b":
			m.cycleModel()
			return m, nil

		case "ctrl+s":
			m.ShortcutsOpen = true
			m.SessionsOpen = false
			return m, nil

		case "pgup", "pgdown":
			pane := m.pane(m.Focus)
			*pane, vpCmd = pane.Update(msg)
			return m, vpCmd

		case "enter":
			input := strings.TrimSpace(m.TextInput.Value())
			if input == "" {
				return m, nil
			}
			cmd, handled := m.submit(input)
			if handled {
				m.TextInput.Reset()
				m.PendingFiles = nil
				m.FileSuggestOpen = false
				m.updateInputLayout()
			}
			return m, cmd
		}

	case tea.WindowSizeMsg:
		m.WindowWidth = msg.Width
		m.WindowHeight = msg.Height

		ModalWidth = max(30, min(60, msg.Width-10))
		styles.ContentWidth = ModalWidth - 6

		m.layout()
		m.refreshChat()
		m.refreshCanvas(canvas.Main)
		m.refreshCanvas(canvas.Left)
		return m, nil
	}

	m.TextInput, tiCmd = m.TextInput.Update(msg)
	m.updateInputLayout()

	// Terminal background and cursor reports can leak into the input.
	val := m.TextInput.Value()
	if strings.Contains(val, "]11;rgb:") || strings.Contains(val, "1;rgb:") || strings.Contains(val, "[1;1R") {
		m.TextInput.Reset()
		val = ""
	}

	if prefix, _, found := GetAtPosition(val, TextareaCursorIndex(m.TextInput)); found {
		m.FileSuggestions = GetFileSuggestions(m.WorkingDir, prefix)
		m.FileSuggestOpen = len(m.FileSuggestions) > 0
		m.FileSuggestIdx = 0
	} else {
		m.FileSuggestOpen = false
	}
	_, m.PendingFiles = ExtractFileMentions(m.WorkingDir, val)

	m.Viewport, vpCmd = m.Viewport.Update(msg)
	return m, tea.Batch(tiCmd, vpCmd)
}

func isNewlineShortcut(msg tea.KeyMsg) bool {
	switch msg.String() {
	case "shift+enter", "shift+return", "ctrl+j", "ctrl+enter", "alt+enter":
		return true
	default:
		return false
	}
}

// handleEvent reacts to runtime state changes published on the bus.
func (m *Model) handleEvent(ev bus.Event) tea.Cmd {
	switch ev.Name {
	case models.EventStreamUpdated:
		_, m.Loading = m.deps.Chat.Active()
		m.refreshChat()
	case models.EventMessageFinalized:
		var fin models.Message
		if err := ev.Decode(&fin); err == nil {
			delete(m.rendered, fin.ID)
		}
		_, m.Loading = m.deps.Chat.Active()
		m.refreshChat()
	case models.EventChatReset:
		m.rendered = make(map[string]string)
		_, m.Loading = m.deps.Chat.Active()
		m.refreshChat()
	case models.EventSurfaceChanged:
		var n models.SurfaceNotice
		if err := ev.Decode(&n); err == nil {
			m.refreshCanvas(canvas.Target(n.Surface))
		}
	case models.EventSurfaceReveal:
		var n models.SurfaceNotice
		if err := ev.Decode(&n); err == nil && canvas.Target(n.Surface) == canvas.Left && !m.LeftOpen {
			m.openLeft()
		}
	case models.EventSessionsChanged:
		if m.SessionsOpen {
			m.loadSessionNames()
		}
	case models.EventSelection:
		var snip models.SelectionSnippet
		if err := ev.Decode(&snip); err == nil && strings.TrimSpace(snip.Text) != "" {
			m.Snippet = &snip
			m.setNotice("Quoted " + TruncateRunes(PromptPreview(snip.Text), 40))
		}
	}
	return nil
}

// submit runs a slash command or sends a chat turn. handled is false when
// the input was left in place, as when a reply is still streaming.
func (m *Model) submit(input string) (cmd tea.Cmd, handled bool) {
	sc, err := parseCommand(input)
	if err != nil {
		m.setError(err.Error())
		return nil, false
	}
	switch sc.kind {
	case cmdSave:
		m.saveSession(sc.name, sc.opts)
		return nil, true
	case cmdLoad:
		m.loadSession(sc.name)
		return nil, true
	case cmdClear:
		m.newChat()
		return nil, true
	case cmdSessions:
		m.openSessions()
		return nil, true
	}

	if m.Loading {
		m.setNotice("Still answering. Ctrl+X stops.")
		return nil, false
	}
	return m.send(input), true
}

func (m *Model) send(input string) tea.Cmd {
	clean, files := ExtractFileMentions(m.WorkingDir, input)
	display, modelText := ComposeMessage(clean, ReadAttachments(m.WorkingDir, files), m.Snippet)
	m.Snippet = nil
	m.Notice = ""

	m.deps.Chat.AddUser(display, modelText)
	if m.deps.Agent == nil {
		m.refreshChat()
		return nil
	}
	ctx, streamID := m.deps.Chat.Begin(m.ctx)
	history := m.deps.Chat.History()
	m.Loading = true
	m.refreshChat()

	agent := m.deps.Agent
	run := func() tea.Msg {
		return runDoneMsg{streamID: streamID, err: agent.Run(ctx, streamID, history)}
	}
	return tea.Batch(run, m.Spinner.Tick)
}

// stop cancels the running turn locally and tells a remote agent to stop.
func (m *Model) stop() {
	if !m.deps.Chat.Cancel() {
		return
	}
	m.deps.Bus.Emit(models.EventStop, nil)
	m.Loading = false
	m.setNotice("Stopped")
	m.refreshChat()
}

func (m *Model) newChat() {
	m.deps.Chat.Cancel()
	m.deps.Chat.Reset(nil)
	m.Snippet = nil
	m.Loading = false
	m.SessionsOpen = false
	m.TextInput.Reset()
	m.updateInputLayout()
	m.setNotice("New chat")
}

func (m *Model) openLeft() {
	m.LeftOpen = true
	m.deps.Left.Mount()
	m.layout()
	m.refreshCanvas(canvas.Main)
	m.refreshCanvas(canvas.Left)
}

func (m *Model) closeLeft() {
	m.deps.Left.Unmount()
	m.LeftOpen = false
	m.Focus = canvas.Main
	m.layout()
	m.refreshCanvas(canvas.Main)
}

func (m *Model) quoteFocused() {
	mgr := m.surface(m.Focus)
	if !mgr.Select(mgr.State().LastBlock()) {
		m.setNotice("Nothing to quote on " + string(m.Focus))
	}
}

func (m *Model) cycleModel() {
	if m.deps.Agent == nil || len(m.deps.Models) == 0 {
		return
	}
	next := m.deps.Models[0]
	current := m.deps.Agent.Model()
	for i, name := range m.deps.Models {
		if name == current {
			next = m.deps.Models[(i+1)%len(m.deps.Models)]
			break
		}
	}
	m.deps.Agent.SetModel(next)
	m.setNotice("Model: " + next)
}

func (m *Model) insertSuggestion() {
	if len(m.FileSuggestions) == 0 || m.FileSuggestIdx >= len(m.FileSuggestions) {
		m.FileSuggestOpen = false
		return
	}
	selected := m.FileSuggestions[m.FileSuggestIdx]
	val := m.TextInput.Value()
	prefix, startPos, found := GetAtPosition(val, TextareaCursorIndex(m.TextInput))
	if found {
		newVal := val[:startPos] + "@" + selected + " " + val[startPos+1+len(prefix):]
		m.TextInput.SetValue(newVal)
		row, col := TextareaCursorFromIndex(newVal, startPos+len(selected)+2)
		SetTextareaCursor(&m.TextInput, row, col)
		_, m.PendingFiles = ExtractFileMentions(m.WorkingDir, newVal)
	}
	m.FileSuggestOpen = false
}

func (m *Model) handleSessionsKey(msg tea.KeyMsg) tea.Cmd {
	pages := max(1, (len(m.SessionNames)+SessionsPageSize-1)/SessionsPageSize)
	onPage := m.pageNames()
	switch msg.String() {
	case "ctrl+c":
		return tea.Quit
	case "esc", "ctrl+o":
		m.SessionsOpen = false
		m.SessionsErr = nil
	case "up", "k":
		if len(onPage) > 0 {
			m.SessionIdx = (m.SessionIdx - 1 + len(onPage)) % len(onPage)
		}
	case "down", "j":
		if len(onPage) > 0 {
			m.SessionIdx = (m.SessionIdx + 1) % len(onPage)
		}
	case "left", "h":
		if m.SessionPage > 0 {
			m.SessionPage--
			m.SessionIdx = 0
		}
	case "right", "l":
		if m.SessionPage < pages-1 {
			m.SessionPage++
			m.SessionIdx = 0
		}
	case "enter":
		if len(onPage) == 0 {
			return nil
		}
		m.SessionsOpen = false
		m.loadSession(onPage[m.SessionIdx])
	}
	return nil
}

func (m *Model) openSessions() {
	m.SessionsOpen = true
	m.ShortcutsOpen = false
	m.SessionPage = 0
	m.SessionIdx = 0
	m.loadSessionNames()
}

func (m *Model) loadSessionNames() {
	m.SessionsErr = nil
	names, err := m.deps.Sessions.List()
	if err != nil {
		m.SessionsErr = err
		m.SessionNames = nil
		return
	}
	m.SessionNames = names
	pages := max(1, (len(names)+SessionsPageSize-1)/SessionsPageSize)
	m.SessionPage = min(m.SessionPage, pages-1)
	if n := len(m.pageNames()); m.SessionIdx >= n {
		m.SessionIdx = max(0, n-1)
	}
}

func (m *Model) pageNames() []string {
	start := m.SessionPage * SessionsPageSize
	if start >= len(m.SessionNames) {
		return nil
	}
	return m.SessionNames[start:min(start+SessionsPageSize, len(m.SessionNames))]
}

func (m *Model) saveSession(name string, opts snapshot.Options) {
	state := snapshot.State{
		Messages: m.deps.Chat.Messages(),
		Main:     m.deps.Main.State(),
		Left:     m.deps.Left.State(),
	}
	doc := snapshot.Encode(state, opts, name, time.Now())
	path, err := m.deps.Sessions.Save(doc)
	if err != nil {
		m.log.Warn("session save failed", zap.String("name", name), zap.Error(err))
		m.Alert = fmt.Sprintf("Could not save session %q.\n\n%v", name, err)
		return
	}
	m.setNotice("Saved " + path)
}

func (m *Model) loadSession(name string) {
	doc, err := m.deps.Sessions.Load(name)
	if err != nil {
		m.log.Warn("session load failed", zap.String("name", name), zap.Error(err))
		m.Alert = fmt.Sprintf("Could not load session %q.\n\n%v", name, err)
		return
	}
	plan, err := snapshot.Decode(doc, m.LeftOpen)
	if err != nil {
		m.log.Warn("session rejected", zap.String("name", name), zap.Error(err))
		m.Alert = fmt.Sprintf("Session %q is not valid.\n\n%v", name, err)
		return
	}
	plan.Apply(snapshot.Targets{Chat: m.deps.Chat, Main: m.deps.Main, Left: m.deps.Left})
	m.Snippet = nil
	m.setNotice("Loaded " + doc.Name)
	m.refreshChat()
	m.refreshCanvas(canvas.Main)
	m.refreshCanvas(canvas.Left)
}

func (m *Model) setNotice(s string) {
	m.Notice = s
	m.NoticeErr = false
}

func (m *Model) setError(s string) {
	m.Notice = s
	m.NoticeErr = true
}

func (m *Model) surface(t canvas.Target) *surface.Manager {
	if t == canvas.Left {
		return m.deps.Left
	}
	return m.deps.Main
}

func (m *Model) pane(t canvas.Target) *viewport.Model {
	if t == canvas.Left {
		return &m.LeftPane
	}
	return &m.MainPane
}

// layout splits the window between the chat column and the canvas panes.
// Narrow windows stack the canvases above the chat.
func (m *Model) layout() {
	if m.WindowWidth == 0 || m.WindowHeight == 0 {
		return
	}
	w := m.WindowWidth
	bodyH := m.WindowHeight - 2 // bottom bar

	m.stacked = w < SideBySideThreshold
	if m.stacked {
		m.chatWidth = w
		m.canvasWidth = w
		m.canvasHeight = max(6, bodyH/2)
	} else {
		m.chatWidth = min(MaxChatWidth, max(w*2/5, w-MinCanvasWidth*3))
		m.canvasWidth = w - m.chatWidth
		m.canvasHeight = bodyH
	}

	mainW := m.canvasWidth
	if m.LeftOpen {
		leftW := m.canvasWidth / 2
		mainW = m.canvasWidth - leftW
		m.LeftPane.Width = max(1, leftW-4)
		m.LeftPane.Height = max(1, m.canvasHeight-3)
	}
	m.MainPane.Width = max(1, mainW-4)
	m.MainPane.Height = max(1, m.canvasHeight-3)

	m.Viewport.Width = max(10, m.chatWidth-4)
	m.updateInputLayout()

	m.Renderer, _ = glamour.NewTermRenderer(
		glamour.WithStylePath(styles.GlamourStyle()),
		glamour.WithWordWrap(max(20, m.chatWidth-8)),
	)
	m.CanvasRenderer, _ = glamour.NewTermRenderer(
		glamour.WithStylePath(styles.GlamourStyle()),
		glamour.WithWordWrap(max(20, m.MainPane.Width-2)),
	)
	m.rendered = make(map[string]string)
}

func (m *Model) updateInputLayout() {
	if m.WindowWidth == 0 || m.WindowHeight == 0 {
		return
	}

	inputWidth := max(20, m.chatWidth-6)
	contentWidth := max(1, inputWidth-2)

	maxInputHeight := 6
	lineCount := min(max(1, WrappedLineCount(m.TextInput.Value(), contentWidth)), maxInputHeight)

	m.TextInput.MaxHeight = maxInputHeight
	m.TextInput.SetWidth(inputWidth)
	m.TextInput.SetHeight(lineCount)

	available := m.WindowHeight - 2
	if m.stacked {
		available -= m.canvasHeight
	}
	inputBoxHeight := m.TextInput.Height() + 2
	reserved := inputBoxHeight + 4 // title, notice line and spacing
	if len(m.PendingFiles) > 0 {
		reserved++
	}
	m.Viewport.Height = max(3, available-reserved)
}

// refreshChat re-renders the transcript. Closed messages are rendered once
// and cached; the streaming one is shown raw with a status line.
func (m *Model) refreshChat() {
	msgs := m.deps.Chat.Messages()
	if len(msgs) == 0 {
		m.Viewport.SetContent(GetWelcomeScreen(m.Viewport.Width, m.Viewport.Height))
		m.Viewport.GotoTop()
		return
	}

	parts := make([]string, 0, len(msgs))
	for i, msg := range msgs {
		switch msg.Role {
		case models.RoleUser:
			parts = append(parts, FormatUserMessage(msg.DisplayContent, m.Viewport.Width, i == 0))
		case models.RoleAssistant:
			toolDisplay := FormatToolActions(msg.ToolCalls)
			if msg.Streaming {
				status := m.Spinner.View() + " Generating..."
				if n := m.deps.Chat.ToolCallCount(); n > 0 {
					status = fmt.Sprintf("%s Generating... (%d tool calls)", m.Spinner.View(), n)
				}
				body := status
				if msg.DisplayContent != "" {
					body = msg.DisplayContent + "\n\n" + status
				}
				parts = append(parts, FormatAIMessage(body, toolDisplay))
				continue
			}
			parts = append(parts, FormatAIMessage(m.renderMarkdown(msg), toolDisplay))
		}
	}
	m.Viewport.SetContent(strings.Join(parts, "\n\n"))
	m.Viewport.GotoBottom()
}

func (m *Model) renderMarkdown(msg models.Message) string {
	if out, ok := m.rendered[msg.ID]; ok {
		return out
	}
	out := msg.DisplayContent
	if m.Renderer != nil && out != "" {
		if r, err := m.Renderer.Render(out); err == nil {
			out = strings.TrimSpace(r)
		}
	}
	m.rendered[msg.ID] = out
	return out
}

func (m *Model) refreshCanvas(t canvas.Target) {
	if t != canvas.Main && t != canvas.Left {
		return
	}
	mgr := m.surface(t)
	buf := mgr.State()

	var parts []string
	if card := MediaCard(buf.Media); card != "" {
		parts = append(parts, styles.MediaCardStyle.Render(card))
	}
	if body := buf.Content; body != "" {
		if m.CanvasRenderer != nil {
			if r, err := m.CanvasRenderer.Render(body); err == nil {
				body = strings.TrimSpace(r)
			}
		}
		parts = append(parts, body)
	}
	if n := len(mgr.Pending()); n > 0 {
		parts = append(parts, styles.WelcomeSubtitleStyle.Render(fmt.Sprintf("%d update(s) waiting", n)))
	}
	if len(parts) == 0 {
		parts = append(parts, styles.WelcomeSubtitleStyle.Render("Nothing here yet"))
	}

	pane := m.pane(t)
	pane.SetContent(strings.Join(parts, "\n"))
	pane.GotoBottom()
}
