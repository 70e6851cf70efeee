package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// DefaultPath is where the daemon looks for its config file when --config is not given.
const DefaultPath = "wabridge.toml"

// Duration wraps time.Duration so it can be written as "10s" in TOML.
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

// Config represents wabridge.toml plus the environment and flag overlays.
type Config struct {
	Port          int      `toml:"port"`
	DataDir       string   `toml:"data_dir"`
	AuthDir       string   `toml:"auth_dir"`
	MirrorPath    string   `toml:"mirror_path"`
	FlushInterval Duration `toml:"flush_interval"`
	LogLevel      string   `toml:"log_level"`
	LogFile       string   `toml:"log_file"`

	AutoReply    AutoReply    `toml:"auto_reply"`
	KeepAlive    KeepAlive    `toml:"keepalive"`
	Registration Registration `toml:"registration"`
	Reconnect    Reconnect    `toml:"reconnect"`

	// Set from command-line flags only.
	UseStore       bool `toml:"-"`
	UsePairingCode bool `toml:"-"`
	UseMobile      bool `toml:"-"`
}

// AutoReply configures the canned reply sent to inbound messages.
type AutoReply struct {
	Enabled        bool     `toml:"enabled"`
	Text           string   `toml:"text"`
	MaxInFlight    int      `toml:"max_in_flight"`
	SubscribeDelay Duration `toml:"subscribe_delay"`
	ComposeDelay   Duration `toml:"compose_delay"`
}

// KeepAlive configures the outbound health-check pinger. Empty URL disables it.
type KeepAlive struct {
	URL      string   `toml:"url"`
	Interval Duration `toml:"interval"`
}

type Registration struct {
	MaxAttempts int `toml:"max_attempts"`
}

type Reconnect struct {
	Delay Duration `toml:"delay"`
}

// Flags carries the command-line switches that override file configuration.
type Flags struct {
	NoStore        bool
	NoReply        bool
	UsePairingCode bool
	Mobile         bool
}

// ErrPairingWithMobile is returned when both pairing code and mobile registration are requested.
var ErrPairingWithMobile = errors.New("cannot use pairing code with mobile api")

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Port:          9500,
		DataDir:       ".",
		AuthDir:       "baileys_auth_info",
		MirrorPath:    "baileys_store_multi.json",
		FlushInterval: Duration{10 * time.Second},
		LogLevel:      "info",
		LogFile:       filepath.Join("logs", "wabridge.log"),
		AutoReply: AutoReply{
			Enabled:        true,
			Text:           "Hello there!",
			MaxInFlight:    16,
			SubscribeDelay: Duration{500 * time.Millisecond},
			ComposeDelay:   Duration{2 * time.Second},
		},
		KeepAlive: KeepAlive{
			Interval: Duration{19 * time.Second},
		},
		Registration: Registration{MaxAttempts: 5},
		UseStore:     true,
	}
}

// Load reads config from the given path on top of Default. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return cfg, nil
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

// ApplyEnv loads envFile (if present) without overriding the real environment,
// then applies PORT.
func (c *Config) ApplyEnv(envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		c.Port = port
	}
	return nil
}

// ApplyFlags overlays command-line switches.
func (c *Config) ApplyFlags(f Flags) {
	c.UseStore = !f.NoStore
	if f.NoReply {
		c.AutoReply.Enabled = false
	}
	c.UsePairingCode = f.UsePairingCode
	c.UseMobile = f.Mobile
}

// Validate reports configuration that cannot be started.
func (c *Config) Validate() error {
	if c.UsePairingCode && c.UseMobile {
		return ErrPairingWithMobile
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.FlushInterval.Duration <= 0 {
		return fmt.Errorf("flush_interval must be positive, got %s", c.FlushInterval)
	}
	if c.Registration.MaxAttempts <= 0 {
		return fmt.Errorf("registration.max_attempts must be positive, got %d", c.Registration.MaxAttempts)
	}
	if c.AutoReply.MaxInFlight <= 0 {
		return fmt.Errorf("auto_reply.max_in_flight must be positive, got %d", c.AutoReply.MaxInFlight)
	}
	if c.KeepAlive.URL != "" && c.KeepAlive.Interval.Duration <= 0 {
		return fmt.Errorf("keepalive.interval must be positive, got %s", c.KeepAlive.Interval)
	}
	return nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

// AuthDBPath returns the whatsmeow credential database path.
func (c *Config) AuthDBPath() string {
	return filepath.Join(c.resolve(c.AuthDir), "session.db")
}

// MirrorFile returns the mirror snapshot path.
func (c *Config) MirrorFile() string {
	return c.resolve(c.MirrorPath)
}

// LogPath returns the log file path, or empty when file logging is disabled.
func (c *Config) LogPath() string {
	if c.LogFile == "" {
		return ""
	}
	return c.resolve(c.LogFile)
}

// QRImagePath returns where the latest pairing QR code is written as PNG.
func (c *Config) QRImagePath() string {
	return c.resolve("qr.png")
}

func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.DataDir, p)
}
