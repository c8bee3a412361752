package surface

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"genesis/internal/bus"
	"genesis/internal/canvas"
	"genesis/internal/models"
)

const DefaultSettleDelay = 150 * time.Millisecond

// Manager owns one surface. Commands received while unmounted are queued and
// replayed in arrival order once the surface mounts and settles.
type Manager struct {
	id     canvas.Target
	bus    bus.Bus
	log    *zap.Logger
	settle time.Duration

	mu          sync.Mutex
	buf         Buffer
	mounted     bool
	wantVisible bool
	pending     []canvas.Command
	gen         uint64
	timer       *time.Timer

	unsub bus.Unsubscribe
}

type Option func(*Manager)

func WithMounted(mounted bool) Option {
	return func(m *Manager) { m.mounted = mounted }
}

// WithSettleDelay sets how long a freshly mounted surface waits before
// replaying its queue. Zero or less replays synchronously inside Mount.
func WithSettleDelay(d time.Duration) Option {
	return func(m *Manager) { m.settle = d }
}

func WithLogger(log *zap.Logger) Option {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

func NewManager(id canvas.Target, b bus.Bus, opts ...Option) *Manager {
	m := &Manager{
		id:     id,
		bus:    b,
		log:    zap.NewNop(),
		settle: DefaultSettleDelay,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.With(zap.String("surface", string(id)))
	return m
}

func (m *Manager) ID() canvas.Target { return m.id }

func (m *Manager) Attach() {
	m.unsub = bus.On(m.bus, m.log, canvas.CommandEvent(m.id), func(cmd canvas.Command) { m.Handle(cmd) })
}

// Detach stops listening and drops any scheduled replay.
func (m *Manager) Detach() {
	if m.unsub != nil {
		m.unsub()
	}
	m.mu.Lock()
	m.gen++
	m.stopTimerLocked()
	m.mu.Unlock()
}

// Handle applies cmd, or queues it while the surface is unmounted or still
// has a replay outstanding.
func (m *Manager) Handle(cmd canvas.Command) {
	if cmd.Target != m.id {
		m.log.Warn("command for another surface dropped", zap.Stringer("command", cmd))
		return
	}

	m.mu.Lock()
	if !m.mounted || len(m.pending) > 0 {
		m.pending = append(m.pending, cmd)
		reveal := !m.mounted && !m.wantVisible
		if !m.mounted {
			m.wantVisible = true
		}
		queued := len(m.pending)
		m.mu.Unlock()

		m.log.Debug("command queued", zap.Stringer("command", cmd), zap.Int("pending", queued))
		if reveal {
			m.bus.Emit(models.EventSurfaceReveal, models.SurfaceNotice{Surface: string(m.id)})
		}
		return
	}
	ok := m.applyLocked(cmd)
	m.mu.Unlock()

	if ok {
		m.changed()
	}
}

// Mount marks the surface mounted and schedules the replay of its queue.
func (m *Manager) Mount() {
	m.mu.Lock()
	if m.mounted {
		m.mu.Unlock()
		return
	}
	m.mounted = true
	m.gen++
	gen := m.gen
	if len(m.pending) == 0 {
		m.mu.Unlock()
		return
	}
	if m.settle <= 0 {
		m.mu.Unlock()
		m.replay(gen)
		return
	}
	m.stopTimerLocked()
	m.timer = time.AfterFunc(m.settle, func() { m.replay(gen) })
	m.mu.Unlock()
}

// Unmount hides the surface. The buffer is kept; a replay that has not fired
// yet is cancelled and its commands stay queued.
func (m *Manager) Unmount() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.mounted {
		return
	}
	m.mounted = false
	m.wantVisible = false
	m.gen++
	m.stopTimerLocked()
}

func (m *Manager) replay(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || !m.mounted {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	queue := m.pending
	m.pending = nil
	applied := 0
	for _, cmd := range queue {
		if m.applyLocked(cmd) {
			applied++
		}
	}
	m.mu.Unlock()

	m.log.Debug("replayed queued commands", zap.Int("queued", len(queue)), zap.Int("applied", applied))
	for i := 0; i < applied; i++ {
		m.changed()
	}
}

func (m *Manager) applyLocked(cmd canvas.Command) bool {
	next, err := m.buf.Apply(cmd)
	if err != nil {
		m.log.Warn("command dropped", zap.Stringer("command", cmd), zap.Error(err))
		return false
	}
	m.buf = next
	return true
}

func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Manager) changed() {
	m.bus.Emit(models.EventSurfaceChanged, models.SurfaceNotice{Surface: string(m.id)})
}

func (m *Manager) State() Buffer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.buf.Clone()
}

func (m *Manager) Pending() []canvas.Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]canvas.Command(nil), m.pending...)
}

func (m *Manager) Mounted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mounted
}

// WantsVisible reports whether content was routed here while hidden.
func (m *Manager) WantsVisible() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.wantVisible
}

// Select publishes text the user picked on this surface as grounding for the
// next chat turn.
func (m *Manager) Select(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	m.bus.Emit(models.EventSelection, models.SelectionSnippet{
		Text:     text,
		Source:   "canvas",
		CanvasID: string(m.id),
	})
	return true
}
