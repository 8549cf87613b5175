package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Defaults observed from the web client this daemon replaces.
const (
	DefaultBaseURL        = "http://127.0.0.1:8000/api"
	DefaultTimeout        = 10 * time.Second
	DefaultRetryDelay     = 3 * time.Second
	DefaultPresenceEvery  = 5 * time.Second
	DefaultRelayListen    = "127.0.0.1:3000"
	DefaultRelayPollEvery = 2 * time.Second
	DefaultLogLevel       = "info"
	streamPathForBackend  = "/sse/messages"
)

// Config represents the global ~/.msgr/config.toml.
type Config struct {
	DefaultSession string   `toml:"default_session"`
	Backend        Backend  `toml:"backend"`
	Realtime       Realtime `toml:"realtime"`
	Presence       Presence `toml:"presence"`
	Typing         Typing   `toml:"typing"`
	Relay          Relay    `toml:"relay"`
	Log            Log      `toml:"log"`
}

// Backend locates the remote chat service.
type Backend struct {
	BaseURL   string   `toml:"base_url"`
	StreamURL string   `toml:"stream_url"`
	Timeout   Duration `toml:"timeout"`
}

// Realtime controls the push channel.
type Realtime struct {
	Enabled    bool     `toml:"enabled"`
	RetryDelay Duration `toml:"retry_delay"`
}

// Presence controls friend status polling.
type Presence struct {
	Interval Duration `toml:"interval"`
}

// Typing controls typing indicator handling. A zero Expiry keeps an
// indicator until the stop signal arrives.
type Typing struct {
	Expiry Duration `toml:"expiry"`
}

// Relay configures msgr-relay.
type Relay struct {
	Listen       string   `toml:"listen"`
	BackendURL   string   `toml:"backend_url"`
	PollInterval Duration `toml:"poll_interval"`
}

// Log configures the daemon logger.
type Log struct {
	Level string `toml:"level"`
}

// Duration is a time.Duration written as a string ("3s") in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	return cfg.WithDefaults()
}

// WithDefaults fills unset fields in place and returns the config.
func (c *Config) WithDefaults() *Config {
	if c.Backend.BaseURL == "" {
		c.Backend.BaseURL = DefaultBaseURL
	}
	if c.Backend.StreamURL == "" {
		c.Backend.StreamURL = c.Backend.BaseURL + streamPathForBackend
	}
	if c.Backend.Timeout.Duration <= 0 {
		c.Backend.Timeout.Duration = DefaultTimeout
	}
	if c.Realtime.RetryDelay.Duration <= 0 {
		c.Realtime.RetryDelay.Duration = DefaultRetryDelay
	}
	if c.Presence.Interval.Duration <= 0 {
		c.Presence.Interval.Duration = DefaultPresenceEvery
	}
	if c.Typing.Expiry.Duration < 0 {
		c.Typing.Expiry.Duration = 0
	}
	if c.Relay.Listen == "" {
		c.Relay.Listen = DefaultRelayListen
	}
	if c.Relay.BackendURL == "" {
		c.Relay.BackendURL = c.Backend.BaseURL
	}
	if c.Relay.PollInterval.Duration <= 0 {
		c.Relay.PollInterval.Duration = DefaultRelayPollEvery
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	return c
}

// Load reads config from the given path. Returns nil config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault reads config from path, falling back to defaults when the
// file does not exist. Other errors are returned.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, err
	}
	return cfg.WithDefaults(), nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
