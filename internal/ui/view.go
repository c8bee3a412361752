package ui

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"genesis/internal/canvas"
	"genesis/internal/styles"
)

func (m *Model) RenderSessionsModal() string {
	pages := max(1, (len(m.SessionNames)+SessionsPageSize-1)/SessionsPageSize)
	title := styles.ModalTitleStyle.Render(fmt.Sprintf("Saved Sessions (%d) - Page %d/%d", len(m.SessionNames), m.SessionPage+1, pages))

	var body string
	switch names := m.pageNames(); {
	case m.SessionsErr != nil:
		body = lipgloss.NewStyle().Width(styles.ContentWidth).Render(styles.ErrorStyle.Render(fmt.Sprintf("Error: %v", m.SessionsErr)))
	case len(names) == 0:
		body = styles.ModalItemStyle.Render(lipgloss.NewStyle().Foreground(styles.HintColor).Render("No sessions yet. /save NAME creates one."))
	default:
		items := make([]string, 0, len(names))
		for i, name := range names {
			cursor := "  "
			if i == m.SessionIdx {
				cursor = "> "
			}
			line := cursor + TruncateRunes(name, styles.ContentWidth-4)
			if i == m.SessionIdx {
				items = append(items, styles.ModalSelectedStyle.Render(line))
			} else {
				items = append(items, styles.ModalItemStyle.Render(line))
			}
		}
		body = lipgloss.JoinVertical(lipgloss.Left, items...)
	}

	hint := lipgloss.NewStyle().
		Foreground(styles.HintColor).
		Width(styles.ContentWidth).
		PaddingTop(1).
		Render("↑/↓: navigate • ←/→: page • Enter: load • Esc: close")

	return lipgloss.JoinVertical(lipgloss.Left, title, body, hint)
}

func (m *Model) RenderShortcutsModal() string {
	title := styles.ModalTitleStyle.Render("Keyboard Shortcuts")

	shortcuts := []struct {
		key  string
		desc string
	}{
		{"Enter", "Send message or /command"},
		{"Ctrl+J", "New line"},
		{"Ctrl+X", "Stop the reply"},
		{"Ctrl+L", "Show or hide the left canvas"},
		{"Tab", "Switch canvas focus"},
		{"Ctrl+Y", "Quote last canvas block"},
		{"PgUp/PgDn", "Scroll focused canvas"},
		{"Ctrl+O", "Saved sessions"},
		{"Ctrl+N", "New chat"},
		{"Ctrl+B", "Next model"},
		{"@", "Mention file (in input)"},
		{"Ctrl+C", "Quit"},
	}
	commands := []string{
		"/save NAME [chat,main,left,visuals]",
		"/load NAME",
		"/sessions",
		"/clear",
	}

	keyStyle := lipgloss.NewStyle().
		Foreground(styles.FgAccent).
		Bold(true).
		Width(12)
	descStyle := lipgloss.NewStyle().Foreground(styles.FgText)

	var items []string
	for _, s := range shortcuts {
		items = append(items, styles.ModalItemStyle.Render(keyStyle.Render(s.key)+" "+descStyle.Render(s.desc)))
	}
	items = append(items, "")
	for _, c := range commands {
		items = append(items, styles.ModalItemStyle.Render(descStyle.Render(c)))
	}

	hint := lipgloss.NewStyle().
		Foreground(styles.HintColor).
		Width(styles.ContentWidth).
		PaddingTop(1).
		Render("Esc/Enter: close")

	return lipgloss.JoinVertical(lipgloss.Left, title, lipgloss.JoinVertical(lipgloss.Left, items...), hint)
}

func (m *Model) RenderAlert() string {
	title := styles.ModalTitleStyle.Foreground(styles.FgError).Render("Session")
	body := lipgloss.NewStyle().Width(styles.ContentWidth).Render(m.Alert)
	hint := lipgloss.NewStyle().
		Foreground(styles.HintColor).
		Width(styles.ContentWidth).
		PaddingTop(1).
		Render("Enter/Esc: dismiss")
	return lipgloss.JoinVertical(lipgloss.Left, title, body, hint)
}

func (m *Model) RenderBottomBar() string {
	transport := strings.ToUpper(m.deps.Transport)
	if transport == "" {
		transport = "LOCAL"
	}
	badge := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(styles.SurfaceColor(string(canvas.Main))).
		Padding(0, 1).
		Render(transport)

	cwdDisplay := m.WorkingDir
	if home, err := os.UserHomeDir(); err == nil && strings.HasPrefix(cwdDisplay, home) {
		cwdDisplay = "~" + cwdDisplay[len(home):]
	}
	cwd := lipgloss.NewStyle().Foreground(styles.FgMuted).Render(TruncateRunes(cwdDisplay, 30))

	modelName := ""
	if m.deps.Agent != nil {
		modelName = m.deps.Agent.Model()
	}
	model := lipgloss.NewStyle().Foreground(styles.FgAccent).Render(TruncateRunes(modelName, 30))

	focus := styles.CanvasLabel(string(m.Focus)).Render(strings.ToUpper(string(m.Focus)))
	left := "left: hidden"
	if m.LeftOpen {
		left = "left: open"
	} else if n := len(m.deps.Left.Pending()); n > 0 {
		left = fmt.Sprintf("left: %d waiting", n)
	}
	leftInfo := lipgloss.NewStyle().Foreground(styles.FgMuted).Render(left)
	help := lipgloss.NewStyle().Foreground(styles.HintColor).Render("Help: ^S")

	leftSide := lipgloss.JoinHorizontal(lipgloss.Center, badge, "  ", cwd, "  ", model)
	rightSide := lipgloss.JoinHorizontal(lipgloss.Center, focus, "  ", leftInfo, "  ", help)

	spacer := strings.Repeat(" ", max(0, m.WindowWidth-lipgloss.Width(leftSide)-lipgloss.Width(rightSide)-2))
	bar := lipgloss.JoinHorizontal(lipgloss.Center, leftSide, spacer, rightSide)

	return lipgloss.NewStyle().
		Width(m.WindowWidth).
		BorderTop(true).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(styles.BorderColor).
		Padding(0, 1).
		Render(bar)
}

// RenderStatusLine shows the quoted snippet and the latest notice above the
// input.
func (m *Model) RenderStatusLine() string {
	var parts []string
	if m.Snippet != nil {
		src := m.Snippet.Source
		if m.Snippet.CanvasID != "" {
			src = m.Snippet.CanvasID
		}
		parts = append(parts, styles.ChipStyle.Render("❝ "+src+": "+TruncateRunes(PromptPreview(m.Snippet.Text), 30)))
	}
	if m.Notice != "" {
		style := styles.NoticeStyle
		if m.NoticeErr {
			style = styles.ErrorStyle
		}
		parts = append(parts, style.Render(TruncateRunes(m.Notice, max(10, m.chatWidth-10))))
	}
	return strings.Join(parts, " ")
}

func (m *Model) RenderPendingFiles() string {
	if len(m.PendingFiles) == 0 {
		return ""
	}
	var chips []string
	for _, file := range m.PendingFiles {
		chips = append(chips, styles.ChipStyle.Render("📄 "+filepath.Base(file)))
	}
	return lipgloss.NewStyle().Foreground(styles.FgMuted).Render("Attached: ") + strings.Join(chips, " ")
}

func (m *Model) RenderFileSuggestions() string {
	if !m.FileSuggestOpen || len(m.FileSuggestions) == 0 {
		return ""
	}

	suggestionStyle := lipgloss.NewStyle().Foreground(styles.FgText).Padding(0, 1)
	selectedStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(lipgloss.Color("#7C4DFF")).
		Padding(0, 1)

	lines := []string{
		lipgloss.NewStyle().Foreground(styles.FgMuted).Italic(true).Render("  Files (↑↓ to select, Tab/Enter to insert)"),
	}
	for i, suggestion := range m.FileSuggestions {
		display := suggestion
		if info, err := os.Stat(filepath.Join(m.WorkingDir, suggestion)); err == nil && info.IsDir() {
			display += "/"
		}
		if i == m.FileSuggestIdx {
			lines = append(lines, selectedStyle.Render("▸ "+display))
		} else {
			lines = append(lines, suggestionStyle.Render("  "+display))
		}
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#7C4DFF")).
		Padding(0, 1).
		Render(strings.Join(lines, "\n"))
}

func GetWelcomeScreen(width, height int) string {
	art := `
  ┏━╸┏━╸┏┓╻┏━╸┏━┓╻┏━┓
  ┃╺┓┣╸ ┃┗┫┣╸ ┗━┓┃┗━┓
  ┗━┛┗━╸╹ ╹┗━╸┗━┛╹┗━┛
`
	subtitle := "Ask anything. Answers that need room land on the canvas."

	content := lipgloss.JoinVertical(lipgloss.Center,
		styles.WelcomeArtStyle.Render(art),
		"",
		styles.WelcomeSubtitleStyle.Render(subtitle),
	)
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, content)
}

// renderPane frames one canvas viewport with its label.
func (m *Model) renderPane(t canvas.Target, width int) string {
	label := styles.CanvasLabel(string(t)).Render(strings.ToUpper(string(t)))
	return styles.CanvasFrame(string(t), m.Focus == t).
		Width(max(1, width-2)).
		Render(lipgloss.JoinVertical(lipgloss.Left, label, m.pane(t).View()))
}

func (m *Model) renderCanvases() string {
	if !m.LeftOpen {
		return m.renderPane(canvas.Main, m.canvasWidth)
	}
	leftW := m.canvasWidth / 2
	return lipgloss.JoinHorizontal(lipgloss.Top,
		m.renderPane(canvas.Left, leftW),
		m.renderPane(canvas.Main, m.canvasWidth-leftW),
	)
}

func (m *Model) renderChat() string {
	inputBox := styles.InputBoxStyle.Width(max(10, m.chatWidth-4)).Render(m.TextInput.View())

	parts := []string{
		styles.TitleStyle.Render("GENESIS"),
		m.Viewport.View(),
		m.RenderStatusLine(),
	}
	if pending := m.RenderPendingFiles(); pending != "" {
		parts = append(parts, pending)
	}
	if popup := m.RenderFileSuggestions(); popup != "" {
		parts = append(parts, popup)
	}
	parts = append(parts, inputBox)

	return lipgloss.NewStyle().
		Width(m.chatWidth).
		Padding(0, 1).
		Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

func (m *Model) overlay(modal string) string {
	return lipgloss.Place(m.WindowWidth, m.WindowHeight, lipgloss.Center, lipgloss.Center, modal)
}

func (m *Model) View() string {
	if m.WindowWidth == 0 {
		return ""
	}

	switch {
	case m.Alert != "":
		return m.overlay(styles.AlertModalStyle.Width(ModalWidth).Render(m.RenderAlert()))
	case m.SessionsOpen:
		return m.overlay(styles.ModalStyle.Width(ModalWidth).Render(m.RenderSessionsModal()))
	case m.ShortcutsOpen:
		return m.overlay(styles.ModalStyle.Width(ModalWidth).Render(m.RenderShortcutsModal()))
	}

	var body string
	if m.stacked {
		body = lipgloss.JoinVertical(lipgloss.Left, m.renderCanvases(), m.renderChat())
	} else {
		body = lipgloss.JoinHorizontal(lipgloss.Top, m.renderCanvases(), m.renderChat())
	}
	return lipgloss.JoinVertical(lipgloss.Left, body, m.RenderBottomBar())
}
