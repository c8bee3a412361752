package bus

import (
	"context"
	"errors"
	"io"
	"sync"

	"go.uber.org/zap"
)

// Native publishes over a host Channel. Incoming frames and locally emitted
// events share one dispatcher goroutine, so listeners see them in order but
// never on the emitting goroutine.
type Native struct {
	ch  Channel
	reg *registry
	log *zap.Logger

	mu     sync.Mutex
	queue  []Event
	notify chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

func NewNative(ch Channel, log *zap.Logger) *Native {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	n := &Native{
		ch:     ch,
		reg:    newRegistry(),
		log:    log,
		notify: make(chan struct{}, 1),
		ctx:    ctx,
		cancel: cancel,
	}
	n.wg.Add(2)
	go n.readLoop()
	go n.dispatchLoop()
	return n
}

func (n *Native) Name() string { return "native" }

func (n *Native) Publish(ev Event) error {
	if n.ctx.Err() != nil {
		return ErrClosed
	}
	err := n.ch.Send(ev)
	// Local listeners get the event even when the host rejected it.
	n.enqueue(ev)
	return err
}

func (n *Native) Subscribe(name string, h Handler) func() {
	return n.reg.add(name, h)
}

func (n *Native) Close() error {
	var err error
	n.once.Do(func() {
		n.cancel()
		err = n.ch.Close()
		n.wg.Wait()
	})
	return err
}

func (n *Native) enqueue(ev Event) {
	n.mu.Lock()
	n.queue = append(n.queue, ev)
	n.mu.Unlock()
	select {
	case n.notify <- struct{}{}:
	default:
	}
}

func (n *Native) drain() []Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := n.queue
	n.queue = nil
	return out
}

func (n *Native) readLoop() {
	defer n.wg.Done()
	for {
		ev, err := n.ch.Receive(n.ctx)
		if errors.Is(err, ErrMalformed) {
			n.log.Warn("dropping malformed host frame", zap.Error(err))
			continue
		}
		if err != nil {
			if n.ctx.Err() == nil && !errors.Is(err, io.EOF) {
				n.log.Warn("native channel receive failed", zap.Error(err))
			}
			return
		}
		n.enqueue(ev)
	}
}

func (n *Native) dispatchLoop() {
	defer n.wg.Done()
	for {
		select {
		case <-n.ctx.Done():
			return
		case <-n.notify:
			for _, ev := range n.drain() {
				n.reg.dispatch(ev)
			}
		}
	}
}
