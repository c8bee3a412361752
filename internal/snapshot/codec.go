package snapshot

import (
	"time"

	"genesis/internal/canvas"
	"genesis/internal/models"
	"genesis/internal/surface"
)

// State is everything a snapshot can capture.
type State struct {
	Messages []models.Message
	Main     surface.Buffer
	Left     surface.Buffer
}

// Options selects the categories written by Encode.
type Options struct {
	Chat       bool
	MainCanvas bool
	LeftCanvas bool
	Visuals    bool
}

func AllOptions() Options {
	return Options{Chat: true, MainCanvas: true, LeftCanvas: true, Visuals: true}
}

func (o Options) None() bool {
	return !o.Chat && !o.MainCanvas && !o.LeftCanvas && !o.Visuals
}

// Encode captures the requested categories. The rest are left null.
func Encode(state State, opts Options, name string, now time.Time) Document {
	doc := Document{
		Name:      name,
		Timestamp: now.UTC().Format(time.RFC3339),
	}
	if opts.Chat {
		doc.Chat = make([]models.Message, 0, len(state.Messages))
		for _, m := range state.Messages {
			m = m.Clone()
			m.Streaming = false
			doc.Chat = append(doc.Chat, m)
		}
	}
	if opts.MainCanvas {
		s := state.Main.Content
		doc.MainCanvas = &s
	}
	if opts.LeftCanvas {
		s := state.Left.Content
		doc.LeftCanvas = &s
	}
	if opts.Visuals {
		doc.Visuals = &Visuals{
			Main: Slot{Present: true, Visual: visualOf(state.Main.Media)},
			Left: Slot{Present: true, Visual: visualOf(state.Left.Media)},
		}
	}
	return doc
}

// Plan is what loading a document changes. Chat is a full reset of the
// conversation, never a merge; canvas changes are restore commands that go
// through the surfaces' normal command path.
type Plan struct {
	ResetChat bool
	Chat      []models.Message
	Main      []canvas.Command
	Left      []canvas.Command
}

func (p Plan) Empty() bool {
	return !p.ResetChat && len(p.Main) == 0 && len(p.Left) == 0
}

// Decode validates doc and plans its application. leftOpen picks the surface
// for a legacy single visual.
func Decode(doc Document, leftOpen bool) (Plan, error) {
	if err := doc.Validate(); err != nil {
		return Plan{}, err
	}

	var plan Plan
	if doc.Chat != nil {
		plan.ResetChat = true
		plan.Chat = make([]models.Message, len(doc.Chat))
		for i, m := range doc.Chat {
			plan.Chat[i] = m.Clone()
		}
	}

	main := &canvas.Restore{Content: doc.MainCanvas}
	left := &canvas.Restore{Content: doc.LeftCanvas}

	if v := doc.Visuals; v != nil {
		if err := setSlot(main, v.Main); err != nil {
			return Plan{}, err
		}
		if err := setSlot(left, v.Left); err != nil {
			return Plan{}, err
		}
		if v.Legacy != nil && !v.Main.Present && !v.Left.Present {
			dst := main
			if leftOpen {
				dst = left
			}
			dst.Media = v.Legacy.legacyMedia()
			dst.SetMedia = true
		}
	}

	if main.Content != nil || main.SetMedia {
		plan.Main = append(plan.Main, canvas.Command{Kind: canvas.KindRestore, Target: canvas.Main, Restore: main})
	}
	if left.Content != nil || left.SetMedia {
		plan.Left = append(plan.Left, canvas.Command{Kind: canvas.KindRestore, Target: canvas.Left, Restore: left})
	}
	return plan, nil
}

func setSlot(r *canvas.Restore, s Slot) error {
	if !s.Present {
		return nil
	}
	r.SetMedia = true
	if s.Visual == nil {
		return nil
	}
	m, err := s.Visual.Media()
	if err != nil {
		return err
	}
	r.Media = m
	return nil
}

// ChatRuntime is the conversation owner; Reset replaces its history.
type ChatRuntime interface {
	Reset(msgs []models.Message)
}

// CommandSink takes surface commands, applying or queueing them.
type CommandSink interface {
	Handle(cmd canvas.Command)
}

type Targets struct {
	Chat ChatRuntime
	Main CommandSink
	Left CommandSink
}

func (p Plan) Apply(t Targets) {
	if p.ResetChat && t.Chat != nil {
		t.Chat.Reset(p.Chat)
	}
	if t.Main != nil {
		for _, cmd := range p.Main {
			t.Main.Handle(cmd)
		}
	}
	if t.Left != nil {
		for _, cmd := range p.Left {
			t.Left.Handle(cmd)
		}
	}
}
