package ui

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/mattn/go-runewidth"

	"genesis/internal/canvas"
	"genesis/internal/models"
	"genesis/internal/styles"
	"genesis/internal/tools"
)

var (
	mentionRE    = regexp.MustCompile(`@("([^"]+)"|([^\s]+))`)
	whitespaceRE = regexp.MustCompile(`\s+`)
)

// Attachment is a file the user mentioned with @, read at send time.
type Attachment struct {
	Name string
	Body string
}

// GetFileSuggestions returns up to ten paths under root matching prefix. A
// prefix containing '/' lists that directory; otherwise the tree is searched
// by file name.
func GetFileSuggestions(root, prefix string) []string {
	var suggestions []string
	if i := strings.LastIndex(prefix, "/"); i >= 0 {
		dir, base := prefix[:i+1], strings.ToLower(prefix[i+1:])
		entries, err := os.ReadDir(filepath.Join(root, dir))
		if err != nil {
			return nil
		}
		for _, e := range entries {
			name := e.Name()
			if strings.HasPrefix(name, ".") && !strings.HasPrefix(base, ".") {
				continue
			}
			if strings.HasPrefix(strings.ToLower(name), base) {
				suggestions = append(suggestions, dir+name)
			}
		}
		return sortSuggestions(root, suggestions)
	}

	lower := strings.ToLower(prefix)
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		name := d.Name()
		if d.IsDir() {
			if path != root && (strings.HasPrefix(name, ".") || name == "node_modules" || name == "vendor") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") && !strings.HasPrefix(prefix, ".") {
			return nil
		}
		if strings.Contains(strings.ToLower(name), lower) {
			rel, _ := filepath.Rel(root, path)
			suggestions = append(suggestions, filepath.ToSlash(rel))
		}
		if len(suggestions) >= 20 {
			return filepath.SkipAll
		}
		return nil
	})
	return sortSuggestions(root, suggestions)
}

// sortSuggestions puts directories first, then shallower paths, then names.
func sortSuggestions(root string, suggestions []string) []string {
	isDir := func(p string) bool {
		info, err := os.Stat(filepath.Join(root, p))
		return err == nil && info.IsDir()
	}
	sort.Slice(suggestions, func(i, j int) bool {
		a, b := suggestions[i], suggestions[j]
		if da, db := isDir(a), isDir(b); da != db {
			return da
		}
		if ca, cb := strings.Count(a, "/"), strings.Count(b, "/"); ca != cb {
			return ca < cb
		}
		return strings.ToLower(a) < strings.ToLower(b)
	})
	if len(suggestions) > 10 {
		suggestions = suggestions[:10]
	}
	return suggestions
}

// ExtractFileMentions strips @mentions that name existing files relative to
// root and returns the remaining text with the mentioned paths.
func ExtractFileMentions(root, input string) (cleanInput string, files []string) {
	seen := make(map[string]bool)
	for _, match := range mentionRE.FindAllStringSubmatch(input, -1) {
		name := match[3]
		if match[2] != "" {
			name = match[2]
		}
		if name == "" || seen[name] {
			continue
		}
		info, err := os.Stat(filepath.Join(root, name))
		if err != nil || info.IsDir() {
			continue
		}
		files = append(files, name)
		seen[name] = true
	}

	cleanInput = mentionRE.ReplaceAllStringFunc(input, func(m string) string {
		sub := mentionRE.FindStringSubmatch(m)
		name := sub[3]
		if sub[2] != "" {
			name = sub[2]
		}
		if seen[name] {
			return ""
		}
		return m
	})
	cleanInput = strings.TrimSpace(whitespaceRE.ReplaceAllString(cleanInput, " "))
	return cleanInput, files
}

// ReadAttachments loads the mentioned files, keeping at most
// MaxAttachmentLines lines of each. Unreadable files are skipped.
func ReadAttachments(root string, files []string) []Attachment {
	out := make([]Attachment, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(filepath.Join(root, f))
		if err != nil {
			continue
		}
		text := string(data)
		lines := strings.Split(text, "\n")
		if len(lines) > MaxAttachmentLines {
			text = strings.Join(lines[:MaxAttachmentLines], "\n")
			text += fmt.Sprintf("\n\n[... truncated, %d more lines]", len(lines)-MaxAttachmentLines)
		}
		out = append(out, Attachment{Name: filepath.Base(f), Body: text})
	}
	return out
}

// ComposeMessage builds the two views of a user turn. The display text gets
// short annotations; the model text carries attachment bodies and the quoted
// snippet between markers.
func ComposeMessage(input string, attachments []Attachment, snippet *models.SelectionSnippet) (display, model string) {
	var d, m strings.Builder
	d.WriteString(input)
	m.WriteString(input)

	if len(attachments) > 0 {
		names := make([]string, len(attachments))
		for i, a := range attachments {
			names[i] = a.Name
			fmt.Fprintf(&m, "\n\n<<<attachment %s>>>\n%s\n<<<end attachment>>>", a.Name, strings.TrimRight(a.Body, "\n"))
		}
		fmt.Fprintf(&d, "\nAttached: %s", strings.Join(names, ", "))
	}

	if snippet != nil && strings.TrimSpace(snippet.Text) != "" {
		source := snippet.Source
		if snippet.CanvasID != "" {
			source += ":" + snippet.CanvasID
		}
		if source == "" {
			source = "selection"
		}
		fmt.Fprintf(&m, "\n\n<<<context source=%s>>>\n%s\n<<<end context>>>", source, strings.TrimSpace(snippet.Text))
		fmt.Fprintf(&d, "\nContext: %s", TruncateRunes(PromptPreview(snippet.Text), 60))
	}
	return d.String(), m.String()
}

// GetAtPosition finds the @ mention being typed at the cursor.
func GetAtPosition(input string, cursorPos int) (prefix string, startPos int, found bool) {
	if cursorPos > len(input) {
		cursorPos = len(input)
	}
	for i := cursorPos - 1; i >= 0; i-- {
		switch input[i] {
		case '@':
			return input[i+1 : cursorPos], i, true
		case ' ', '\n', '\t':
			return "", 0, false
		}
	}
	return "", 0, false
}

func TextareaCursorIndex(t textarea.Model) int {
	li := t.LineInfo()
	return cursorIndexFromRowCol(t.Value(), t.Line(), li.StartColumn+li.ColumnOffset)
}

func TextareaCursorFromIndex(value string, index int) (row int, col int) {
	index = max(0, min(index, len(value)))
	pos := 0
	lines := strings.Split(value, "\n")
	for i, line := range lines {
		if index <= pos+len(line) {
			return i, utf8.RuneCountInString(line[:index-pos])
		}
		pos += len(line) + 1
	}
	row = len(lines) - 1
	return row, utf8.RuneCountInString(lines[row])
}

func SetTextareaCursor(t *textarea.Model, row int, col int) {
	if t.LineCount() == 0 {
		t.SetCursor(0)
		return
	}
	row = max(0, min(row, t.LineCount()-1))
	for i := 0; i < 10000 && t.Line() > row; i++ {
		t.CursorUp()
	}
	for i := 0; i < 10000 && t.Line() < row; i++ {
		t.CursorDown()
	}
	t.SetCursor(col)
}

func cursorIndexFromRowCol(value string, row int, col int) int {
	lines := strings.Split(value, "\n")
	row = max(0, min(row, len(lines)-1))
	index := 0
	for i := 0; i < row; i++ {
		index += len(lines[i]) + 1
	}
	line := lines[row]
	n := 0
	for i := range line {
		if n >= col {
			return index + i
		}
		n++
	}
	return index + len(line)
}

func WrappedLineCount(value string, width int) int {
	if width <= 0 {
		return 1
	}
	count := 0
	for _, line := range strings.Split(value, "\n") {
		w := runewidth.StringWidth(line)
		if w == 0 {
			count++
			continue
		}
		count += (w-1)/width + 1
	}
	return count
}

func PromptPreview(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	const maxRunes = 500
	if r := []rune(s); len(r) > maxRunes {
		return string(r[:maxRunes])
	}
	return s
}

func TruncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 1 {
		return "…"
	}
	return string(r[:max-1]) + "…"
}

func RelativeTime(t time.Time) string {
	d := time.Since(t)
	if d < 0 {
		d = -d
	}
	plural := func(n int, unit string) string {
		if n == 1 {
			return "1 " + unit + " ago"
		}
		return fmt.Sprintf("%d %ss ago", n, unit)
	}
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return plural(int(d.Minutes()), "min")
	case d < 24*time.Hour:
		return plural(int(d.Hours()), "hr")
	case d < 14*24*time.Hour:
		return plural(int(d.Hours()/24), "day")
	default:
		return plural(int(d.Hours()/24/7), "week")
	}
}

func FormatUserMessage(content string, width int, isFirst bool) string {
	label := styles.UserLabelStyle.Render("YOU")
	msg := styles.UserMsgStyle.Width(max(width-4, 10)).Render(content)
	if isFirst {
		return fmt.Sprintf("\n%s\n%s", label, msg)
	}
	return fmt.Sprintf("%s\n%s", label, msg)
}

func FormatAIMessage(content, toolDisplay string) string {
	label := styles.AiLabelStyle.Render("GENESIS")
	msg := styles.AiMsgStyle.Render(content)
	if toolDisplay == "" {
		return fmt.Sprintf("%s\n%s", label, msg)
	}
	return fmt.Sprintf("%s\n%s\n%s", label, toolDisplay, msg)
}

// FormatToolActions lists the tool calls recorded on a message.
func FormatToolActions(calls []models.ToolCall) string {
	if len(calls) == 0 {
		return ""
	}
	lines := make([]string, 0, len(calls))
	for _, tc := range calls {
		icon := styles.ToolIconStyle.Render("→")
		name := styles.ToolNameStyle.Render(tools.GenerateToolSummary(tc.Name, tc.Arguments, ""))
		lines = append(lines, styles.ToolActionStyle.Render(icon+" "+name))
	}
	return strings.Join(lines, "\n")
}

// MediaCard is the one-line stand-in for a surface's media pane.
func MediaCard(m *canvas.Media) string {
	if m == nil {
		return ""
	}
	icon := "▣"
	switch m.Kind {
	case canvas.MediaVideo:
		icon = "▶"
	case canvas.MediaImage:
		icon = "◩"
	case canvas.MediaScene3D, canvas.MediaSolidModel:
		icon = "◆"
	}
	source := m.Source
	if m.Kind.IsCode() {
		source = fmt.Sprintf("%d lines of %s", strings.Count(strings.TrimRight(source, "\n"), "\n")+1, m.Kind)
	}
	return fmt.Sprintf("%s %s  %s", icon, m.Kind, TruncateRunes(PromptPreview(source), 80))
}
