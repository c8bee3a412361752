// Package config loads genesis settings from a TOML file with environment
// overrides.
//
// Lookup order: built-in defaults, then the file (either the path given on
// the command line or <user config dir>/genesis/config.toml), then GENESIS_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

var ErrInvalid = errors.New("invalid config")

const (
	TransportAuto   = "auto"
	TransportNative = "native"
	TransportLocal  = "local"
)

// Duration is a time.Duration written as a string ("500ms") in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

type Config struct {
	User      string          `toml:"user"`
	Transport TransportConfig `toml:"transport"`
	Agent     AgentConfig     `toml:"agent"`
	Stream    StreamConfig    `toml:"stream"`
	Surface   SurfaceConfig   `toml:"surface"`
	Storage   StorageConfig   `toml:"storage"`
	Log       LogConfig       `toml:"log"`
}

type TransportConfig struct {
	// Mode is auto, native or local. Auto probes the socket and falls back.
	Mode        string   `toml:"mode"`
	Socket      string   `toml:"socket"`
	DialTimeout Duration `toml:"dial_timeout"`
}

type AgentConfig struct {
	BaseURL       string   `toml:"base_url"`
	Model         string   `toml:"model"`
	Models        []string `toml:"models"`
	APIKeyEnv     string   `toml:"api_key_env"`
	MaxIterations int      `toml:"max_iterations"`

	// APIKey is read from the environment variable named by APIKeyEnv.
	APIKey string `toml:"-"`
}

type StreamConfig struct {
	PersistDelay Duration `toml:"persist_delay"`
}

type SurfaceConfig struct {
	SettleDelay Duration `toml:"settle_delay"`
}

type StorageConfig struct {
	DataDir string `toml:"data_dir"`
}

type LogConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

func Default() Config {
	return Config{
		User: "local",
		Transport: TransportConfig{
			Mode:        TransportAuto,
			DialTimeout: Duration{250 * time.Millisecond},
		},
		Agent: AgentConfig{
			BaseURL: "https://openrouter.ai/api/v1",
			Model:   "google/gemini-3-flash-preview",
			Models: []string{
				"google/gemini-3-flash-preview",
				"anthropic/claude-haiku-4.5",
				"openai/gpt-5.1-codex-mini",
			},
			APIKeyEnv:     "OPENROUTER_API_KEY",
			MaxIterations: 8,
		},
		Stream:  StreamConfig{PersistDelay: Duration{500 * time.Millisecond}},
		Surface: SurfaceConfig{SettleDelay: Duration{150 * time.Millisecond}},
		Log:     LogConfig{Level: "info"},
	}
}

// DefaultPath is <user config dir>/genesis/config.toml.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "genesis", "config.toml"), nil
}

// Load reads path (or the default path when empty). A missing default file
// is not an error; a missing explicit file is.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		p, err := DefaultPath()
		if err == nil {
			path = p
		}
	}

	if path != "" {
		_, err := toml.DecodeFile(path, &cfg)
		if err != nil && (explicit || !errors.Is(err, os.ErrNotExist)) {
			return Config{}, fmt.Errorf("load config %s: %w", path, err)
		}
	}

	cfg.applyEnv(os.Getenv)

	if cfg.Storage.DataDir == "" {
		dir, err := defaultDataDir()
		if err != nil {
			return Config{}, fmt.Errorf("resolve data dir: %w", err)
		}
		cfg.Storage.DataDir = dir
	}
	if cfg.Transport.Socket == "" {
		cfg.Transport.Socket = filepath.Join(cfg.Storage.DataDir, "genesis.sock")
	}
	if cfg.Log.File == "" {
		cfg.Log.File = filepath.Join(cfg.Storage.DataDir, "genesis.log")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("GENESIS_USER"); v != "" {
		c.User = v
	}
	if v := getenv("GENESIS_TRANSPORT"); v != "" {
		c.Transport.Mode = strings.ToLower(v)
	}
	if v := getenv("GENESIS_SOCKET"); v != "" {
		c.Transport.Socket = v
	}
	if v := getenv("GENESIS_MODEL"); v != "" {
		c.Agent.Model = v
	}
	if v := getenv("GENESIS_DATA_DIR"); v != "" {
		c.Storage.DataDir = v
	}
	if c.Agent.APIKeyEnv != "" {
		c.Agent.APIKey = strings.TrimSpace(getenv(c.Agent.APIKeyEnv))
	}
}

func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.User) == "" {
		errs = append(errs, errors.New("user is empty"))
	}
	switch c.Transport.Mode {
	case TransportAuto, TransportNative, TransportLocal:
	default:
		errs = append(errs, fmt.Errorf("transport.mode %q", c.Transport.Mode))
	}
	if c.Transport.DialTimeout.Duration <= 0 {
		errs = append(errs, errors.New("transport.dial_timeout must be positive"))
	}
	if c.Agent.Model == "" {
		errs = append(errs, errors.New("agent.model is empty"))
	}
	if c.Agent.MaxIterations < 1 {
		errs = append(errs, errors.New("agent.max_iterations must be at least 1"))
	}
	if c.Stream.PersistDelay.Duration < 0 {
		errs = append(errs, errors.New("stream.persist_delay is negative"))
	}
	if c.Surface.SettleDelay.Duration < 0 {
		errs = append(errs, errors.New("surface.settle_delay is negative"))
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q", c.Log.Level))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// SessionsDir holds saved snapshot documents.
func (c Config) SessionsDir() string {
	return filepath.Join(c.Storage.DataDir, "sessions")
}

// ModelChoices returns the configured model list with the active model first
// if it is missing.
func (c Config) ModelChoices() []string {
	for _, m := range c.Agent.Models {
		if m == c.Agent.Model {
			return append([]string(nil), c.Agent.Models...)
		}
	}
	return append([]string{c.Agent.Model}, c.Agent.Models...)
}

func defaultDataDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		homeDir, herr := os.UserHomeDir()
		if herr != nil {
			return "", err
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "genesis"), nil
}
