package canvas

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gmtext "github.com/yuin/goldmark/text"
)

type rawPreview struct {
	Target   string `json:"target"`
	TargetID string `json:"targetId"`
	URL      string `json:"url"`
	Code     string `json:"code"`
	Type     string `json:"type"`
	Popup    bool   `json:"popup"`
}

type rawBlock struct {
	Target   string `json:"target"`
	TargetID string `json:"targetId"`
	Type     string `json:"type"`
	Content  string `json:"content"`
	Lang     string `json:"lang"`
}

type rawClear struct {
	Target string `json:"target"`
}

type envelope struct {
	Preview  *rawPreview `json:"preview"`
	AddBlock *rawBlock   `json:"add_block"`
	Clear    *rawClear   `json:"clear_canvas"`
}

// DecodeNative decodes a native-canvas-update payload. A payload may carry
// several keys; each becomes one command, in preview, add_block, clear order.
// Parts that fail to resolve are left out and reported in the joined error.
func DecodeNative(raw []byte) ([]Command, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformed)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Preview == nil && env.AddBlock == nil && env.Clear == nil {
		return nil, fmt.Errorf("%w: no preview, add_block or clear_canvas key", ErrMalformed)
	}

	var (
		cmds []Command
		errs []error
	)
	if p := env.Preview; p != nil {
		target, _, err := ResolveTarget(KindPreview, p.Target, p.TargetID)
		switch {
		case err != nil:
			errs = append(errs, err)
		case strings.TrimSpace(p.URL) == "" && strings.TrimSpace(p.Code) == "":
			errs = append(errs, ErrEmptyPreview)
		default:
			cmds = append(cmds, Command{
				Kind:    KindPreview,
				Target:  target,
				Preview: &Preview{URL: p.URL, Code: p.Code, Type: p.Type, Popup: p.Popup},
			})
		}
	}
	if b := env.AddBlock; b != nil {
		target, _, err := ResolveTarget(KindAddBlock, b.Target, b.TargetID)
		if err != nil {
			errs = append(errs, err)
		} else {
			cmds = append(cmds, Command{
				Kind:   KindAddBlock,
				Target: target,
				Block:  &Block{Type: b.Type, Body: b.Content, Lang: b.Lang},
			})
		}
	}
	if c := env.Clear; c != nil {
		target, global, err := ResolveTarget(KindClear, c.Target, "")
		if err != nil {
			errs = append(errs, err)
		} else {
			cmds = append(cmds, Command{Kind: KindClear, Target: target, Global: global})
		}
	}
	return cmds, errors.Join(errs...)
}

type splitPayload struct {
	URL      string `json:"url"`
	Type     string `json:"type"`
	TargetID string `json:"targetId"`
	Target   string `json:"target"`
}

// DecodeSplit decodes a canvas-split payload into a preview.
func DecodeSplit(raw []byte) (Command, error) {
	var p splitPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if strings.TrimSpace(p.URL) == "" {
		return Command{}, ErrEmptyPreview
	}
	target, _, err := ResolveTarget(KindPreview, p.Target, p.TargetID)
	if err != nil {
		return Command{}, err
	}
	return Command{
		Kind:    KindPreview,
		Target:  target,
		Preview: &Preview{URL: p.URL, Type: p.Type},
	}, nil
}

// ToolArgs are the arguments of the canvas_update tool.
type ToolArgs struct {
	Action  string  `json:"action"`
	Target  *string `json:"target,omitempty"`
	Type    *string `json:"type,omitempty"`
	Content *string `json:"content,omitempty"`
	URL     *string `json:"url,omitempty"`
	Code    *string `json:"code,omitempty"`
	Popup   *bool   `json:"popup,omitempty"`
}

// FromToolArgs turns canvas_update tool arguments into the native wire
// envelope. Models often double-escape newlines, so a literal \n in content
// or code becomes a newline.
func FromToolArgs(args []byte) (json.RawMessage, error) {
	var a ToolArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return a.Envelope()
}

func (a ToolArgs) Envelope() (json.RawMessage, error) {
	body := map[string]any{}
	if a.Target != nil {
		body["target"] = *a.Target
	}

	var key string
	switch normalize(a.Action) {
	case "preview":
		key = "preview"
		if a.URL != nil {
			body["url"] = *a.URL
		}
		if a.Code != nil {
			body["code"] = unescapeNewlines(*a.Code)
		}
		if a.Type != nil {
			body["type"] = *a.Type
		}
		if a.Popup != nil {
			body["popup"] = *a.Popup
		}
	case "add_block":
		key = "add_block"
		if a.Content != nil {
			body["content"] = unescapeNewlines(*a.Content)
		}
		if a.Type != nil {
			body["type"] = *a.Type
		}
	case "clear", "clear_canvas":
		key = "clear_canvas"
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, a.Action)
	}
	return json.Marshal(map[string]any{key: body})
}

func unescapeNewlines(s string) string {
	return strings.ReplaceAll(s, `\n`, "\n")
}

// fencedBodies returns the contents of every fenced code block in text. A
// fence only closes on its own line, so backticks inside a JSON string do
// not end the block.
func fencedBodies(text string) []string {
	src := []byte(text)
	doc := goldmark.DefaultParser().Parse(gmtext.NewReader(src))
	var out []string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		fb, ok := n.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}
		var sb strings.Builder
		lines := fb.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			sb.Write(seg.Value(src))
		}
		out = append(out, sb.String())
		return ast.WalkSkipChildren, nil
	})
	return out
}

// ParseText scans finalized assistant text for fenced blocks holding a JSON
// object with a canvas_update key. The value may be the wire envelope or the
// tool argument shape. Blocks that are not canvas updates are ignored.
func ParseText(text string) ([]Command, error) {
	if !strings.Contains(text, "canvas_update") {
		return nil, nil
	}
	var (
		cmds []Command
		errs []error
	)
	for _, raw := range fencedBodies(text) {
		body := strings.TrimSpace(raw)
		if !strings.HasPrefix(body, "{") {
			continue
		}
		var outer map[string]json.RawMessage
		if err := json.Unmarshal([]byte(body), &outer); err != nil {
			if strings.Contains(body, "canvas_update") {
				errs = append(errs, fmt.Errorf("%w: %v", ErrMalformed, err))
			}
			continue
		}
		inner, ok := outer["canvas_update"]
		if !ok {
			continue
		}
		wire, err := normalizeTextPayload(inner)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		got, err := DecodeNative(wire)
		cmds = append(cmds, got...)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return cmds, errors.Join(errs...)
}

func normalizeTextPayload(inner json.RawMessage) (json.RawMessage, error) {
	var probe struct {
		Action *string `json:"action"`
	}
	if err := json.Unmarshal(inner, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if probe.Action != nil {
		return FromToolArgs(inner)
	}
	return inner, nil
}
