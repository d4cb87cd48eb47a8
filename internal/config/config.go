// Package config loads famshelf's configuration.
//
// Configuration comes from a single YAML file named by the --config flag or
// the FAMSHELF_CONFIG environment variable. There is no discovery: with
// neither set, Default() is used as is. Command-line flags such as --listen
// and --db override the file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable holding the config file path.
const EnvVar = "FAMSHELF_CONFIG"

// Config is the complete server configuration.
type Config struct {
	// Listen is the HTTP listen address.
	// Default: :8080
	Listen string `yaml:"listen"`

	// Database is the SQLite file path.
	// Default: famshelf.db
	Database string `yaml:"database"`

	// Log configures the process logger.
	Log LogConfig `yaml:"log"`

	// WebSocket configures live connections.
	WebSocket WebSocketConfig `yaml:"websocket"`

	// Groups configures group admission.
	Groups GroupsConfig `yaml:"groups"`
}

// LogConfig configures slog.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is text or json.
	Format string `yaml:"format"`
}

// WebSocketConfig configures the live transport.
type WebSocketConfig struct {
	// WriteTimeout bounds each frame write.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// PingInterval is how often a ping control frame is sent. Zero disables pings.
	PingInterval time.Duration `yaml:"ping_interval"`

	// ReadLimit is the largest accepted client frame in bytes.
	ReadLimit int64 `yaml:"read_limit"`

	// SendBuffer is the number of frames queued per connection before
	// sends start failing.
	SendBuffer int `yaml:"send_buffer"`

	// AllowedOrigins lists Origin header values accepted on upgrade.
	// Empty accepts same-host requests only.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// GroupsConfig configures which group codes may be used.
type GroupsConfig struct {
	// RequireKnown rejects codes that were never issued, tag no item and
	// have no live connection.
	RequireKnown bool `yaml:"require_known"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Listen:   ":8080",
		Database: "famshelf.db",
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		WebSocket: WebSocketConfig{
			WriteTimeout: 10 * time.Second,
			PingInterval: 30 * time.Second,
			ReadLimit:    64 << 10,
			SendBuffer:   64,
		},
		Groups: GroupsConfig{
			RequireKnown: true,
		},
	}
}

// Load reads the file at path, or at $FAMSHELF_CONFIG when path is empty.
// With neither, the defaults are returned.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvVar)
	}
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile reads and validates one config file over the defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result.
// Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Listen) == "" {
		return errors.New("listen must not be empty")
	}
	if strings.TrimSpace(c.Database) == "" {
		return errors.New("database must not be empty")
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return errors.New("websocket.write_timeout must be positive")
	}
	if c.WebSocket.PingInterval < 0 {
		return errors.New("websocket.ping_interval must not be negative")
	}
	if c.WebSocket.ReadLimit <= 0 {
		return errors.New("websocket.read_limit must be positive")
	}
	if c.WebSocket.SendBuffer <= 0 {
		return errors.New("websocket.send_buffer must be positive")
	}
	return nil
}

// SlogLevel converts Log.Level.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
