package stream

import (
	"context"
	"time"

	"go.uber.org/zap"

	"genesis/internal/models"
)

const DefaultPersistDelay = 500 * time.Millisecond

// Store is durable per-user message storage.
type Store interface {
	SaveMessages(ctx context.Context, userID string, msgs []models.Message) error
	LoadMessages(ctx context.Context, userID string) ([]models.Message, error)
}

// Persister collapses bursts of changes into one write of the latest list.
type Persister struct {
	store  Store
	userID string
	log    *zap.Logger
	source func() []models.Message
	deb    *Debouncer
}

func NewPersister(store Store, userID string, delay time.Duration, log *zap.Logger) *Persister {
	if log == nil {
		log = zap.NewNop()
	}
	if delay <= 0 {
		delay = DefaultPersistDelay
	}
	p := &Persister{store: store, userID: userID, log: log}
	p.deb = NewDebouncer(delay, p.write)
	return p
}

// bind sets where the message list is read from when the write fires.
func (p *Persister) bind(source func() []models.Message) {
	p.source = source
}

func (p *Persister) Schedule() {
	p.deb.Trigger()
}

func (p *Persister) Flush() {
	p.deb.Flush()
}

func (p *Persister) Stop() {
	p.deb.Stop()
}

func (p *Persister) write() {
	if p.source == nil {
		return
	}
	msgs := p.source()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.store.SaveMessages(ctx, p.userID, msgs); err != nil {
		p.log.Error("persist messages", zap.String("user", p.userID), zap.Int("count", len(msgs)), zap.Error(err))
		return
	}
	p.log.Debug("messages persisted", zap.String("user", p.userID), zap.Int("count", len(msgs)))
}
