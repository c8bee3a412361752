package bus

import (
	"sync"

	"go.uber.org/zap"
)

type entry struct {
	id uint64
	h  Handler
}

// registry maps event name to its listeners in registration order.
type registry struct {
	mu     sync.RWMutex
	nextID uint64
	byName map[string][]entry
}

func newRegistry() *registry {
	return &registry{byName: make(map[string][]entry)}
}

func (r *registry) add(name string, h Handler) func() {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.byName[name] = append(r.byName[name], entry{id: id, h: h})
	r.mu.Unlock()

	return func() { r.remove(name, id) }
}

func (r *registry) remove(name string, id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.byName[name]
	for i, e := range list {
		if e.id == id {
			r.byName[name] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(r.byName[name]) == 0 {
		delete(r.byName, name)
	}
}

// handlers returns a snapshot so listeners may (un)subscribe while being called.
func (r *registry) handlers(name string) []Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := r.byName[name]
	out := make([]Handler, len(list))
	for i, e := range list {
		out[i] = e.h
	}
	return out
}

func (r *registry) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, l := range r.byName {
		n += len(l)
	}
	return n
}

func (r *registry) dispatch(ev Event) {
	for _, h := range r.handlers(ev.Name) {
		h(ev)
	}
}

// Local delivers events to in-process listeners synchronously on the
// emitting goroutine.
type Local struct {
	reg *registry
	log *zap.Logger
}

func NewLocal(log *zap.Logger) *Local {
	if log == nil {
		log = zap.NewNop()
	}
	return &Local{reg: newRegistry(), log: log}
}

func (l *Local) Name() string { return "local" }

func (l *Local) Publish(ev Event) error {
	l.reg.dispatch(ev)
	return nil
}

func (l *Local) Subscribe(name string, h Handler) func() {
	return l.reg.add(name, h)
}

// Listeners returns the number of registered listeners.
func (l *Local) Listeners() int {
	return l.reg.count()
}

func (l *Local) Close() error { return nil }
