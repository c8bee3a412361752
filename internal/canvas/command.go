// Package canvas decodes canvas commands from host events, tool arguments and
// finalized assistant text, and routes each one to exactly one surface.
package canvas

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownTarget = errors.New("canvas: unknown target")
	ErrMalformed     = errors.New("canvas: malformed command")
	ErrEmptyPreview  = errors.New("canvas: preview has neither url nor code")
	ErrUnknownAction = errors.New("canvas: unknown action")
)

type Kind string

const (
	KindPreview  Kind = "preview"
	KindAddBlock Kind = "add_block"
	KindClear    Kind = "clear"
	// KindRestore sets a surface's content or media wholesale. Only snapshot
	// loading produces it.
	KindRestore Kind = "restore"
)

type Target string

const (
	Main Target = "main"
	Left Target = "left"
)

func (t Target) Valid() bool {
	return t == Main || t == Left
}

// Targets lists the surfaces in a fixed order.
var Targets = []Target{Main, Left}

type Preview struct {
	URL   string `json:"url,omitempty"`
	Code  string `json:"code,omitempty"`
	Type  string `json:"type,omitempty"`
	Popup bool   `json:"popup,omitempty"`
}

type Block struct {
	Type string `json:"type,omitempty"`
	Body string `json:"body"`
	Lang string `json:"lang,omitempty"`
}

// Restore carries snapshot state. A nil Content leaves the text alone;
// SetMedia with a nil Media clears the media pane.
type Restore struct {
	Content  *string `json:"content,omitempty"`
	Media    *Media  `json:"media,omitempty"`
	SetMedia bool    `json:"setMedia,omitempty"`
}

// Command is one resolved instruction for one surface.
type Command struct {
	Kind   Kind   `json:"kind"`
	Target Target `json:"target"`
	// Global marks a clear that named no surface.
	Global  bool     `json:"global,omitempty"`
	Preview *Preview `json:"preview,omitempty"`
	Block   *Block   `json:"block,omitempty"`
	Restore *Restore `json:"restore,omitempty"`
}

func (c Command) String() string {
	switch c.Kind {
	case KindPreview:
		if c.Preview != nil && c.Preview.URL != "" {
			return fmt.Sprintf("preview %s -> %s", c.Preview.URL, c.Target)
		}
		return fmt.Sprintf("preview code -> %s", c.Target)
	case KindAddBlock:
		t := "text"
		if c.Block != nil && c.Block.Type != "" {
			t = c.Block.Type
		}
		return fmt.Sprintf("add_block %s -> %s", t, c.Target)
	default:
		return fmt.Sprintf("%s -> %s", c.Kind, c.Target)
	}
}

// CommandEvent is the bus event a surface listens on.
func CommandEvent(t Target) string {
	return "canvas-command:" + string(t)
}

// ResolveTarget is the one place a requested surface name becomes a Target.
//
//	preview, add_block: target, then targetId; neither means main.
//	clear:              target; none means a global clear, applied to main.
//	restore:            target is required.
//
// Any other name is ErrUnknownTarget.
func ResolveTarget(kind Kind, target, targetID string) (Target, bool, error) {
	target = normalize(target)
	targetID = normalize(targetID)

	var requested string
	global := false
	switch kind {
	case KindPreview, KindAddBlock:
		requested = target
		if requested == "" {
			requested = targetID
		}
		if requested == "" {
			return Main, false, nil
		}
	case KindClear:
		requested = target
		if requested == "" {
			return Main, true, nil
		}
	case KindRestore:
		requested = target
	default:
		return "", false, fmt.Errorf("%w: kind %q", ErrMalformed, kind)
	}

	t := Target(requested)
	if !t.Valid() {
		return "", global, fmt.Errorf("%w: %q", ErrUnknownTarget, requested)
	}
	return t, global, nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
