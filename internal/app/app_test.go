package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"genesis/internal/config"
	"genesis/internal/models"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Transport.Mode = config.TransportLocal
	cfg.Storage.DataDir = t.TempDir()
	cfg.Surface.SettleDelay = config.Duration{}
	cfg.Stream.PersistDelay = config.Duration{Duration: time.Hour}
	return cfg
}

func TestOpenWiresCanvasPipeline(t *testing.T) {
	a, err := Open(context.Background(), testConfig(t), nil)
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, "local", a.Bus.TransportName())
	a.Bus.Emit(models.EventNativeCanvas, map[string]any{"add_block": map[string]any{"content": "# Hello"}})
	assert.Equal(t, "# Hello", a.Main.State().Content)

	a.Bus.Emit(models.EventNativeCanvas, map[string]any{"add_block": map[string]any{"target": "left", "content": "side"}})
	assert.True(t, a.Left.WantsVisible(), "left is hidden until mounted")
	a.Left.Mount()
	assert.Equal(t, "side", a.Left.State().Content)
}

func TestHistorySurvivesRestart(t *testing.T) {
	cfg := testConfig(t)

	a, err := Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	a.Chat.AddUser("hi", "hi")
	require.NoError(t, a.Close())

	b, err := Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer b.Close()
	msgs := b.Chat.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "hi", msgs[0].DisplayContent)
}

func TestNativeModeFallsBackToLocal(t *testing.T) {
	cfg := testConfig(t)
	cfg.Transport.Mode = config.TransportNative
	cfg.Transport.Socket = filepath.Join(cfg.Storage.DataDir, "missing.sock")

	core, logs := observer.New(zap.WarnLevel)
	a, err := Open(context.Background(), cfg, zap.New(core))
	require.NoError(t, err)
	defer a.Close()
	assert.Equal(t, "local", a.Bus.TransportName())
	assert.Equal(t, 1, logs.FilterMessage("native transport unavailable, using local bus").Len())

	a.Bus.Emit(models.EventNativeCanvas, map[string]any{"add_block": map[string]any{"content": "still works"}})
	assert.Equal(t, "still works", a.Main.State().Content)
}

func TestAutoModeFallsBackToLocal(t *testing.T) {
	cfg := testConfig(t)
	cfg.Transport.Mode = config.TransportAuto
	cfg.Transport.Socket = filepath.Join(cfg.Storage.DataDir, "missing.sock")

	a, err := Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer a.Close()
	assert.Equal(t, "local", a.Bus.TransportName())
}
