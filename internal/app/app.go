// Package app assembles the runtime from a config: transport, stores, the
// chat accumulator, the canvas router, both surfaces and the agent.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"genesis/internal/agent"
	"genesis/internal/bus"
	"genesis/internal/canvas"
	"genesis/internal/config"
	"genesis/internal/db"
	"genesis/internal/ipc"
	"genesis/internal/snapshot"
	"genesis/internal/stream"
	"genesis/internal/surface"
)

type App struct {
	Config    config.Config
	Log       *zap.Logger
	Bus       *bus.EventBus
	DB        *sql.DB
	Messages  *db.MessageStore
	Persister *stream.Persister
	Chat      *stream.Accumulator
	Router    *canvas.Router
	Main      *surface.Manager
	Left      *surface.Manager
	Sessions  *snapshot.Store
	Agent     *agent.Runner
}

// Open builds and attaches every component. The caller owns Close.
func Open(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}

	b := openBus(ctx, cfg.Transport, log)

	conn, err := db.Open(cfg.Storage.DataDir)
	if err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("open message store: %w", err)
	}
	messages := db.NewMessageStore(conn)

	a := &App{
		Config:   cfg,
		Log:      log,
		Bus:      b,
		DB:       conn,
		Messages: messages,
		Sessions: snapshot.NewStore(cfg.SessionsDir(), log),
	}

	a.Persister = stream.NewPersister(messages, cfg.User, cfg.Stream.PersistDelay.Duration, log)
	a.Chat = stream.NewAccumulator(b, stream.WithLogger(log), stream.WithPersister(a.Persister))
	a.Router = canvas.NewRouter(b, log)
	settle := surface.WithSettleDelay(cfg.Surface.SettleDelay.Duration)
	a.Main = surface.NewManager(canvas.Main, b, surface.WithMounted(true), settle, surface.WithLogger(log))
	a.Left = surface.NewManager(canvas.Left, b, surface.WithMounted(false), settle, surface.WithLogger(log))
	a.Agent = agent.NewRunner(
		agent.NewClientStreamer(cfg.Agent.APIKey, cfg.Agent.BaseURL),
		b,
		agent.Options{Model: cfg.Agent.Model, MaxIterations: cfg.Agent.MaxIterations, Logger: log},
	)

	history, err := messages.LoadMessages(ctx, cfg.User)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("restore history: %w", err)
	}
	if len(history) > 0 {
		a.Chat.Reset(history)
		log.Info("history restored", zap.String("user", cfg.User), zap.Int("messages", len(history)))
	}

	a.Chat.Attach()
	a.Router.Attach()
	a.Main.Attach()
	a.Left.Attach()
	return a, nil
}

// openBus never fails. A native host that cannot be reached leaves the app on
// the local registry, with only a warning in the log.
func openBus(ctx context.Context, cfg config.TransportConfig, log *zap.Logger) *bus.EventBus {
	switch cfg.Mode {
	case config.TransportLocal:
		return bus.NewLocalBus(log)
	case config.TransportNative:
		conn, err := ipc.Dial(ctx, "unix", cfg.Socket, cfg.DialTimeout.Duration)
		if err != nil {
			log.Warn("native transport unavailable, using local bus", zap.String("socket", cfg.Socket), zap.Error(err))
			return bus.NewLocalBus(log)
		}
		return bus.New(bus.NewNative(conn, log), log)
	default:
		return bus.Open(ctx, ipc.Probe("unix", cfg.Socket, cfg.DialTimeout.Duration), log)
	}
}

// Close detaches listeners, writes pending history and releases the stores.
func (a *App) Close() error {
	a.Chat.Cancel()
	a.Left.Detach()
	a.Main.Detach()
	a.Router.Detach()
	a.Chat.Detach()
	a.Persister.Flush()
	a.Persister.Stop()

	var errs []error
	if err := a.DB.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close message store: %w", err))
	}
	if err := a.Bus.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close bus: %w", err))
	}
	return errors.Join(errs...)
}
