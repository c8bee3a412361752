package ui

import (
	"context"
	"errors"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"genesis/internal/bus"
	"genesis/internal/models"
)

// uiEvents are the bus events that change what the TUI shows.
var uiEvents = []string{
	models.EventStreamUpdated,
	models.EventMessageFinalized,
	models.EventChatReset,
	models.EventSurfaceChanged,
	models.EventSurfaceReveal,
	models.EventSessionsChanged,
	models.EventSelection,
}

const sessionsWatchDelay = 200 * time.Millisecond

// bridge forwards bus events to the program in emission order. Listeners
// only enqueue: they fire inside Update too, where Program.Send would block.
type bridge struct {
	mu     sync.Mutex
	queue  []bus.Event
	wake   chan struct{}
	unsubs []bus.Unsubscribe
}

func newBridge(b bus.Bus, names ...string) *bridge {
	br := &bridge{wake: make(chan struct{}, 1)}
	for _, name := range names {
		br.unsubs = append(br.unsubs, b.Listen(name, br.push))
	}
	return br
}

func (br *bridge) push(ev bus.Event) {
	br.mu.Lock()
	br.queue = append(br.queue, ev)
	br.mu.Unlock()
	select {
	case br.wake <- struct{}{}:
	default:
	}
}

func (br *bridge) drain() []bus.Event {
	br.mu.Lock()
	defer br.mu.Unlock()
	out := br.queue
	br.queue = nil
	return out
}

// run delivers queued events through send until ctx is done.
func (br *bridge) run(ctx context.Context, send func(tea.Msg)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-br.wake:
			for _, ev := range br.drain() {
				send(busMsg{ev: ev})
			}
		}
	}
}

func (br *bridge) close() {
	for _, unsub := range br.unsubs {
		unsub()
	}
}

// Run starts the TUI and blocks until the user quits or ctx ends.
func Run(ctx context.Context, deps Deps) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	m := NewModel(gctx, deps)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(gctx))

	br := newBridge(deps.Bus, uiEvents...)
	defer br.close()

	g.Go(func() error {
		defer cancel()
		_, err := p.Run()
		if errors.Is(err, tea.ErrProgramKilled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		return br.run(gctx, p.Send)
	})
	if deps.Sessions != nil {
		g.Go(func() error {
			watchSessions(gctx, deps)
			return nil
		})
	}
	return g.Wait()
}

// watchSessions refreshes the sessions list on disk changes. The list is
// optional, so a watcher that cannot start is logged and the chat keeps
// running.
func watchSessions(ctx context.Context, deps Deps) {
	err := deps.Sessions.Watch(ctx, sessionsWatchDelay, func() {
		deps.Bus.Emit(models.EventSessionsChanged, nil)
	})
	if err != nil {
		log := deps.Log
		if log == nil {
			log = zap.NewNop()
		}
		log.Warn("sessions watcher stopped", zap.Error(err))
	}
}
