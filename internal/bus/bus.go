// Package bus gives the rest of the application one emit/listen/once contract
// whether events travel through an out-of-process host channel or stay inside
// the process.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

var (
	ErrClosed    = errors.New("bus: closed")
	ErrMalformed = errors.New("bus: malformed event")
)

// Event is a named payload. Payloads are always JSON so that listeners see the
// same bytes regardless of transport.
type Event struct {
	Name    string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("event %q: empty payload", e.Name)
	}
	return json.Unmarshal(e.Payload, v)
}

type Handler func(Event)

// Unsubscribe removes a listener. Calling it more than once is a no-op.
type Unsubscribe func()

type Bus interface {
	Emit(name string, payload any)
	Listen(name string, h Handler) Unsubscribe
	Once(name string, h Handler) Unsubscribe
}

// Transport is the strategy behind a Bus.
type Transport interface {
	Name() string
	Publish(ev Event) error
	Subscribe(name string, h Handler) func()
	Close() error
}

// Channel is a bidirectional host event channel, e.g. a socket to the desktop
// shell process.
type Channel interface {
	Send(ev Event) error
	Receive(ctx context.Context) (Event, error)
	Close() error
}

// Probe reports the native channel if the host exposes one.
type Probe func(ctx context.Context) (Channel, error)

// EventBus implements Bus over a Transport.
type EventBus struct {
	transport Transport
	log       *zap.Logger
}

// Open selects the transport once: the native channel when the probe yields
// one, the local registry otherwise.
func Open(ctx context.Context, probe Probe, log *zap.Logger) *EventBus {
	if log == nil {
		log = zap.NewNop()
	}
	if probe != nil {
		ch, err := probe(ctx)
		if err == nil && ch != nil {
			log.Info("event bus using native transport")
			return New(NewNative(ch, log), log)
		}
		if err != nil {
			log.Warn("native transport unavailable, using local", zap.Error(err))
		}
	}
	return New(NewLocal(log), log)
}

func New(t Transport, log *zap.Logger) *EventBus {
	if log == nil {
		log = zap.NewNop()
	}
	return &EventBus{transport: t, log: log}
}

// NewLocalBus is shorthand for a bus over the in-process registry.
func NewLocalBus(log *zap.Logger) *EventBus {
	return New(NewLocal(log), log)
}

func (b *EventBus) TransportName() string {
	return b.transport.Name()
}

// Emit is fire-and-forget. Failures are logged, never returned.
func (b *EventBus) Emit(name string, payload any) {
	ev := Event{Name: name}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			b.log.Error("emit: marshal payload", zap.String("event", name), zap.Error(err))
			return
		}
		ev.Payload = data
	}
	if err := b.transport.Publish(ev); err != nil {
		b.log.Warn("emit failed", zap.String("event", name), zap.String("transport", b.transport.Name()), zap.Error(err))
	}
}

func (b *EventBus) Listen(name string, h Handler) Unsubscribe {
	cancel := b.transport.Subscribe(name, b.guard(name, h))
	var once sync.Once
	return func() { once.Do(cancel) }
}

func (b *EventBus) Once(name string, h Handler) Unsubscribe {
	var (
		fired sync.Once
		unsub Unsubscribe
		mu    sync.Mutex
	)
	// Hold mu until unsub is assigned so a concurrent first delivery waits.
	mu.Lock()
	unsub = b.Listen(name, func(ev Event) {
		fired.Do(func() {
			mu.Lock()
			u := unsub
			mu.Unlock()
			u()
			h(ev)
		})
	})
	mu.Unlock()
	return unsub
}

func (b *EventBus) Close() error {
	return b.transport.Close()
}

// guard keeps a panicking listener from taking down the emitter.
func (b *EventBus) guard(name string, h Handler) Handler {
	return func(ev Event) {
		defer func() {
			if r := recover(); r != nil {
				b.log.Error("listener panicked", zap.String("event", name), zap.Any("panic", r))
			}
		}()
		h(ev)
	}
}

// On registers a typed listener. Payloads that fail to decode are logged and
// dropped.
func On[T any](b Bus, log *zap.Logger, name string, fn func(T)) Unsubscribe {
	if log == nil {
		log = zap.NewNop()
	}
	return b.Listen(name, func(ev Event) {
		var v T
		if len(ev.Payload) > 0 {
			if err := json.Unmarshal(ev.Payload, &v); err != nil {
				log.Warn("dropping undecodable event", zap.String("event", name), zap.Error(err))
				return
			}
		}
		fn(v)
	})
}
