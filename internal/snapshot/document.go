// Package snapshot encodes session state into a portable document and turns a
// loaded document back into state changes.
package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"genesis/internal/canvas"
	"genesis/internal/models"
)

var (
	ErrNotFound = errors.New("snapshot: not found")
	ErrInvalid  = errors.New("snapshot: invalid document")
)

// Document is the saved form of a session. A null field was not requested
// when saving; an empty but present one was genuinely empty.
type Document struct {
	Name       string           `json:"name"`
	Timestamp  string           `json:"timestamp"`
	Chat       []models.Message `json:"chat"`
	MainCanvas *string          `json:"mainCanvas"`
	LeftCanvas *string          `json:"leftCanvas"`
	Visuals    *Visuals         `json:"visuals"`
}

// UnmarshalJSON also reads the snake_case canvas keys of older documents.
func (d *Document) UnmarshalJSON(data []byte) error {
	type plain Document
	var aux struct {
		plain
		SnakeMain *string `json:"main_canvas"`
		SnakeLeft *string `json:"left_canvas"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*d = Document(aux.plain)
	if d.MainCanvas == nil {
		d.MainCanvas = aux.SnakeMain
	}
	if d.LeftCanvas == nil {
		d.LeftCanvas = aux.SnakeLeft
	}
	return nil
}

// Visual describes one media pane.
type Visual struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

func (v Visual) Media() (*canvas.Media, error) {
	kind, ok := canvas.ParseMediaKind(v.Type)
	if !ok {
		return nil, fmt.Errorf("%w: visual type %q", ErrInvalid, v.Type)
	}
	return &canvas.Media{Kind: kind, Source: v.Content}, nil
}

// legacyMedia reads a visual written by older versions. Their type names
// were looser, so anything unrecognized loads as a frame.
func (v Visual) legacyMedia() *canvas.Media {
	if m, err := v.Media(); err == nil {
		return m
	}
	return &canvas.Media{Kind: canvas.MediaFrame, Source: v.Content}
}

func visualOf(m *canvas.Media) *Visual {
	if m == nil {
		return nil
	}
	return &Visual{Type: string(m.Kind), Content: m.Source}
}

// Slot is one surface's entry in Visuals. Present with a nil Visual means the
// surface had no media; not Present means the entry was absent.
type Slot struct {
	Present bool
	Visual  *Visual
}

// Visuals holds the per-surface media panes. Legacy is the single flat
// visual written by older versions, only set when neither slot is present.
type Visuals struct {
	Main   Slot
	Left   Slot
	Legacy *Visual
}

func (v Visuals) MarshalJSON() ([]byte, error) {
	if v.Legacy != nil && !v.Main.Present && !v.Left.Present {
		return json.Marshal(v.Legacy)
	}
	out := map[string]*Visual{}
	if v.Main.Present {
		out["main"] = v.Main.Visual
	}
	if v.Left.Present {
		out["left"] = v.Left.Visual
	}
	return json.Marshal(out)
}

func (v *Visuals) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*v = Visuals{}

	var err error
	if raw, ok := fields["main"]; ok {
		if v.Main, err = decodeSlot(raw); err != nil {
			return fmt.Errorf("visuals.main: %w", err)
		}
	}
	if raw, ok := fields["left"]; ok {
		if v.Left, err = decodeSlot(raw); err != nil {
			return fmt.Errorf("visuals.left: %w", err)
		}
	}
	if v.Main.Present || v.Left.Present {
		return nil
	}

	content, ok := fields["content"]
	if !ok {
		return nil
	}
	legacy := &Visual{}
	if err := json.Unmarshal(content, &legacy.Content); err != nil {
		return fmt.Errorf("visuals.content: %w", err)
	}
	for _, key := range []string{"type", "type_"} {
		if raw, ok := fields[key]; ok {
			if err := json.Unmarshal(raw, &legacy.Type); err != nil {
				return fmt.Errorf("visuals.%s: %w", key, err)
			}
			break
		}
	}
	v.Legacy = legacy
	return nil
}

func decodeSlot(raw json.RawMessage) (Slot, error) {
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return Slot{Present: true}, nil
	}
	var vis Visual
	if err := json.Unmarshal(raw, &vis); err != nil {
		return Slot{}, err
	}
	return Slot{Present: true, Visual: &vis}, nil
}

// Validate checks the parts of a document that decoding relies on.
func (d Document) Validate() error {
	for i, m := range d.Chat {
		if m.ID == "" {
			return fmt.Errorf("%w: chat[%d] has no id", ErrInvalid, i)
		}
		if !m.Role.Valid() {
			return fmt.Errorf("%w: chat[%d] has role %q", ErrInvalid, i, m.Role)
		}
	}
	if d.Visuals == nil {
		return nil
	}
	for name, slot := range map[string]Slot{"main": d.Visuals.Main, "left": d.Visuals.Left} {
		if slot.Visual == nil {
			continue
		}
		if _, err := slot.Visual.Media(); err != nil {
			return fmt.Errorf("visuals.%s: %w", name, err)
		}
	}
	return nil
}
