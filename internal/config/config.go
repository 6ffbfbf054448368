package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	kberrors "github.com/Aman-CERP/kbpulse/internal/errors"
)

// Config represents the complete kbpulse configuration.
type Config struct {
	Version   int             `yaml:"version" json:"version"`
	Content   ContentConfig   `yaml:"content" json:"content"`
	Watch     WatchConfig     `yaml:"watch" json:"watch"`
	Stream    StreamConfig    `yaml:"stream" json:"stream"`
	Search    SearchConfig    `yaml:"search" json:"search"`
	Server    ServerConfig    `yaml:"server" json:"server"`
	Telemetry TelemetryConfig `yaml:"telemetry" json:"telemetry"`
}

// ContentConfig locates the markdown knowledge base.
type ContentConfig struct {
	// Root is the content directory, relative to the project dir unless absolute.
	Root string `yaml:"root" json:"root"`
	// Extension is the article file extension including the dot.
	Extension string `yaml:"extension" json:"extension"`
}

// WatchConfig configures change detection.
type WatchConfig struct {
	Debounce     string   `yaml:"debounce" json:"debounce"`
	PollInterval string   `yaml:"poll_interval" json:"poll_interval"`
	ForcePolling bool     `yaml:"force_polling" json:"force_polling"`
	Ignore       []string `yaml:"ignore" json:"ignore"`
}

// StreamConfig configures the activity stream.
type StreamConfig struct {
	HeartbeatInterval string `yaml:"heartbeat_interval" json:"heartbeat_interval"`
	// BacklogSize is the number of recent records replayed to new connections.
	BacklogSize  int    `yaml:"backlog_size" json:"backlog_size"`
	WriteTimeout string `yaml:"write_timeout" json:"write_timeout"`
	SignalBuffer int    `yaml:"signal_buffer" json:"signal_buffer"`
}

// SearchConfig configures the search dataset cache and query layer.
type SearchConfig struct {
	TTL                string `yaml:"ttl" json:"ttl"`
	ExcerptWords       int    `yaml:"excerpt_words" json:"excerpt_words"`
	InvalidateOnChange bool   `yaml:"invalidate_on_change" json:"invalidate_on_change"`
	QueryCacheSize     int    `yaml:"query_cache_size" json:"query_cache_size"`
	DefaultLimit       int    `yaml:"default_limit" json:"default_limit"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	LogLevel string `yaml:"log_level" json:"log_level"`
}

// TelemetryConfig configures local usage counters.
type TelemetryConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Path is the SQLite database path. Empty means ~/.kbpulse/telemetry.db.
	Path          string `yaml:"path" json:"path"`
	FlushInterval string `yaml:"flush_interval" json:"flush_interval"`
}

// NewConfig returns a configuration with default values.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Content: ContentConfig{
			Root:      "content",
			Extension: ".md",
		},
		Watch: WatchConfig{
			Debounce:     "100ms",
			PollInterval: "5s",
			Ignore:       []string{},
		},
		Stream: StreamConfig{
			HeartbeatInterval: "25s",
			BacklogSize:       10,
			WriteTimeout:      "10s",
			SignalBuffer:      256,
		},
		Search: SearchConfig{
			TTL:                "5m",
			ExcerptWords:       40,
			InvalidateOnChange: true,
			QueryCacheSize:     256,
			DefaultLimit:       20,
		},
		Server: ServerConfig{
			Addr:     "127.0.0.1:3100",
			LogLevel: "info",
		},
		Telemetry: TelemetryConfig{
			Enabled:       true,
			FlushInterval: "1m",
		},
	}
}

// GetUserConfigPath returns the path to the user configuration file.
// It follows the XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/kbpulse/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/kbpulse/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "kbpulse", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "kbpulse", "config.yaml")
	}
	return filepath.Join(home, ".config", "kbpulse", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// Load loads configuration for the project in dir.
// It applies configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User config (~/.config/kbpulse/config.yaml)
//  3. Project config (.kbpulse.yaml in dir)
//  4. Environment variables (KBPULSE_*)
//
// Relative content roots are resolved against dir.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if path := GetUserConfigPath(); fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if !filepath.IsAbs(cfg.Content.Root) {
		cfg.Content.Root = filepath.Join(dir, cfg.Content.Root)
	}

	return cfg, nil
}

// ProjectConfigPath returns the project config file in dir, or "" if none.
// .kbpulse.yaml takes precedence over .kbpulse.yml.
func ProjectConfigPath(dir string) string {
	for _, name := range []string{".kbpulse.yaml", ".kbpulse.yml"} {
		path := filepath.Join(dir, name)
		if fileExists(path) {
			return path
		}
	}
	return ""
}

func (c *Config) loadFromFile(dir string) error {
	path := ProjectConfigPath(dir)
	if path == "" {
		return nil
	}
	return c.loadYAML(path)
}

// loadYAML decodes path on top of the current values. Keys absent from the
// file keep their previous value, so explicit false/zero values still win.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return kberrors.New(kberrors.ErrCodeConfigNotFound, "failed to read config file", err).
			WithDetail("path", path)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && err != io.EOF {
		return kberrors.ConfigError("failed to parse config file", err).
			WithDetail("path", path).
			WithSuggestion("Compare the file against `kbpulse config init` output")
	}
	return nil
}

// applyEnvOverrides applies KBPULSE_* environment variable overrides.
// Unparseable numeric values are ignored.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("KBPULSE_CONTENT_ROOT"); v != "" {
		c.Content.Root = v
	}
	if v := os.Getenv("KBPULSE_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("KBPULSE_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("KBPULSE_HEARTBEAT_INTERVAL"); v != "" {
		c.Stream.HeartbeatInterval = v
	}
	if v := os.Getenv("KBPULSE_BACKLOG_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Stream.BacklogSize = n
		}
	}
	if v := os.Getenv("KBPULSE_SEARCH_TTL"); v != "" {
		c.Search.TTL = v
	}
	if v := os.Getenv("KBPULSE_FORCE_POLLING"); v != "" {
		c.Watch.ForcePolling = parseBool(v)
	}
	if v := os.Getenv("KBPULSE_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = parseBool(v)
	}
}

func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes"
}

// Validate validates the configuration and returns an ERR_102 error if invalid.
func (c *Config) Validate() error {
	if c.Content.Root == "" {
		return invalid("content.root must not be empty")
	}
	if !strings.HasPrefix(c.Content.Extension, ".") {
		return invalid(fmt.Sprintf("content.extension must start with '.', got %q", c.Content.Extension))
	}

	durations := []struct {
		key   string
		value string
	}{
		{"watch.debounce", c.Watch.Debounce},
		{"watch.poll_interval", c.Watch.PollInterval},
		{"stream.heartbeat_interval", c.Stream.HeartbeatInterval},
		{"stream.write_timeout", c.Stream.WriteTimeout},
		{"search.ttl", c.Search.TTL},
		{"telemetry.flush_interval", c.Telemetry.FlushInterval},
	}
	for _, d := range durations {
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return invalid(fmt.Sprintf("%s must be a duration like 25s, got %q", d.key, d.value))
		}
		if parsed < 0 {
			return invalid(fmt.Sprintf("%s must be non-negative, got %s", d.key, d.value))
		}
	}
	if d, _ := time.ParseDuration(c.Stream.HeartbeatInterval); d == 0 {
		return invalid("stream.heartbeat_interval must be positive")
	}
	if d, _ := time.ParseDuration(c.Watch.PollInterval); d == 0 {
		return invalid("watch.poll_interval must be positive")
	}

	if c.Stream.BacklogSize < 1 {
		return invalid(fmt.Sprintf("stream.backlog_size must be at least 1, got %d", c.Stream.BacklogSize))
	}
	if c.Stream.SignalBuffer < 1 {
		return invalid(fmt.Sprintf("stream.signal_buffer must be at least 1, got %d", c.Stream.SignalBuffer))
	}
	if c.Search.ExcerptWords < 1 {
		return invalid(fmt.Sprintf("search.excerpt_words must be at least 1, got %d", c.Search.ExcerptWords))
	}
	if c.Search.QueryCacheSize < 1 {
		return invalid(fmt.Sprintf("search.query_cache_size must be at least 1, got %d", c.Search.QueryCacheSize))
	}
	if c.Search.DefaultLimit < 1 {
		return invalid(fmt.Sprintf("search.default_limit must be at least 1, got %d", c.Search.DefaultLimit))
	}

	if c.Server.Addr == "" {
		return invalid("server.addr must not be empty")
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return invalid(fmt.Sprintf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel))
	}

	return nil
}

func invalid(msg string) error {
	return kberrors.ConfigError("invalid configuration: "+msg, nil)
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
