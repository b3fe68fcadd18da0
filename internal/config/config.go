package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Mode selects the secure group channel variant.
type Mode string

const (
	ModeMock Mode = "mock"
	ModeReal Mode = "real"
)

// Config represents the global ~/.dialog/config.toml.
type Config struct {
	DefaultSession string      `toml:"default_session"`
	Relay          RelayConfig `toml:"relay"`
	MLS            MLSConfig   `toml:"mls"`
	Loop           LoopConfig  `toml:"loop"`
}

// RelayConfig configures the relay transport.
type RelayConfig struct {
	URL          string   `toml:"url"`
	FetchTimeout Duration `toml:"fetch_timeout"`
	SendTimeout  Duration `toml:"send_timeout"`
}

// MLSConfig selects and locates the group channel.
type MLSConfig struct {
	Mode Mode `toml:"mode"`
	// SidecarSocket is the unix socket of the dialogmls sidecar, used in real mode.
	SidecarSocket string `toml:"sidecar_socket"`
}

// LoopConfig controls the background tasks feeding the event loop.
type LoopConfig struct {
	TickInterval    Duration `toml:"tick_interval"`
	FetchInterval   Duration `toml:"fetch_interval"`
	InvitePollEvery int      `toml:"invite_poll_every"`
}

// Duration is a time.Duration written as a Go duration string in TOML.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Relay: RelayConfig{
			URL:          "ws://localhost:8080",
			FetchTimeout: Duration{5 * time.Second},
			SendTimeout:  Duration{5 * time.Second},
		},
		MLS: MLSConfig{Mode: ModeMock},
		Loop: LoopConfig{
			TickInterval:    Duration{time.Second},
			FetchInterval:   Duration{5 * time.Second},
			InvitePollEvery: 6,
		},
	}
}

// Load reads config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Resolve loads path on top of the defaults, then applies environment
// overrides. A missing file is not an error.
func Resolve(path string, getenv func(string) string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg.applyEnv(getenv)
	cfg.fillDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if getenv == nil {
		return
	}
	if v := getenv("DIALOG_MODE"); v != "" {
		c.MLS.Mode = Mode(v)
	}
	if v := getenv("DIALOG_RELAY_URL"); v != "" {
		c.Relay.URL = v
	}
}

// fillDefaults restores zero fields a partial file left behind.
func (c *Config) fillDefaults() {
	d := Default()
	if c.Relay.URL == "" {
		c.Relay.URL = d.Relay.URL
	}
	if c.Relay.FetchTimeout.Duration <= 0 {
		c.Relay.FetchTimeout = d.Relay.FetchTimeout
	}
	if c.Relay.SendTimeout.Duration <= 0 {
		c.Relay.SendTimeout = d.Relay.SendTimeout
	}
	if c.MLS.Mode == "" {
		c.MLS.Mode = d.MLS.Mode
	}
	if c.Loop.TickInterval.Duration <= 0 {
		c.Loop.TickInterval = d.Loop.TickInterval
	}
	if c.Loop.FetchInterval.Duration <= 0 {
		c.Loop.FetchInterval = d.Loop.FetchInterval
	}
	if c.Loop.InvitePollEvery <= 0 {
		c.Loop.InvitePollEvery = d.Loop.InvitePollEvery
	}
}

// Validate rejects settings the client cannot start with.
func (c *Config) Validate() error {
	switch c.MLS.Mode {
	case ModeMock:
	case ModeReal:
		if c.MLS.SidecarSocket == "" {
			return errors.New("mls.sidecar_socket is required in real mode")
		}
	default:
		return fmt.Errorf("unknown mls mode %q (want mock or real)", c.MLS.Mode)
	}
	u, err := url.Parse(c.Relay.URL)
	if err != nil {
		return fmt.Errorf("relay url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("relay url %q must use ws or wss", c.Relay.URL)
	}
	return nil
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
