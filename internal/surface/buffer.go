// Package surface owns the state of one rendering surface and the queue of
// commands that arrive while it is not mounted.
package surface

import (
	"fmt"
	"strings"

	"genesis/internal/canvas"
)

// Buffer is a surface's text body and media pane. They are independent: text
// commands never touch media and media commands never touch text.
type Buffer struct {
	Content string        `json:"content"`
	Media   *canvas.Media `json:"media,omitempty"`
}

func (b Buffer) Clone() Buffer {
	if b.Media != nil {
		m := *b.Media
		b.Media = &m
	}
	return b
}

func (b Buffer) Empty() bool {
	return b.Content == "" && b.Media == nil
}

// Apply returns the buffer after cmd. It is pure so that replayed and live
// commands go through exactly the same code.
func (b Buffer) Apply(cmd canvas.Command) (Buffer, error) {
	b = b.Clone()
	switch cmd.Kind {
	case canvas.KindClear:
		b.Content = ""
		b.Media = nil

	case canvas.KindPreview:
		if cmd.Preview == nil {
			return b, fmt.Errorf("%w: preview without payload", canvas.ErrMalformed)
		}
		m, err := canvas.ClassifyPreview(*cmd.Preview)
		if err != nil {
			return b, err
		}
		b.Media = m

	case canvas.KindAddBlock:
		if cmd.Block == nil {
			return b, fmt.Errorf("%w: add_block without payload", canvas.ErrMalformed)
		}
		blk := *cmd.Block
		place, m := canvas.ClassifyBlock(blk)
		switch place {
		case canvas.PlaceMedia:
			b.Media = m
		case canvas.PlaceImage:
			b.Content = appendBlock(b.Content, fmt.Sprintf("![image](%s)", strings.TrimSpace(blk.Body)))
		case canvas.PlaceCode:
			lang := blk.Lang
			if lang == "" && !strings.EqualFold(blk.Type, "code") {
				lang = blk.Type
			}
			b.Content = appendBlock(b.Content, fence(blk.Body, lang))
		default:
			b.Content = appendBlock(b.Content, blk.Body)
		}

	case canvas.KindRestore:
		if cmd.Restore == nil {
			return b, fmt.Errorf("%w: restore without payload", canvas.ErrMalformed)
		}
		if cmd.Restore.Content != nil {
			b.Content = *cmd.Restore.Content
		}
		if cmd.Restore.SetMedia {
			b.Media = nil
			if cmd.Restore.Media != nil {
				m := *cmd.Restore.Media
				b.Media = &m
			}
		}

	default:
		return b, fmt.Errorf("%w: kind %q", canvas.ErrMalformed, cmd.Kind)
	}
	return b, nil
}

// LastBlock returns the final blank-line separated block of the text body.
func (b Buffer) LastBlock() string {
	text := strings.TrimSpace(b.Content)
	if i := strings.LastIndex(text, "\n\n"); i >= 0 {
		return strings.TrimSpace(text[i+2:])
	}
	return text
}

func appendBlock(content, block string) string {
	if content == "" {
		return block
	}
	return content + "\n\n" + block
}

func fence(body, lang string) string {
	marker := "```"
	for strings.Contains(body, marker) {
		marker += "`"
	}
	return marker + lang + "\n" + strings.TrimRight(body, "\n") + "\n" + marker
}
