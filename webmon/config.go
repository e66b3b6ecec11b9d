package webmon

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Capture modes.
const (
	ModeHTTP    = "http"
	ModeBrowser = "browser"
)

// Config holds all changeview configuration.
type Config struct {
	DBPath  string        `yaml:"db_path"`
	HTTP    HTTPConfig    `yaml:"http"`
	Capture CaptureConfig `yaml:"capture"`
	Auth    AuthConfig    `yaml:"auth"`
	Watch   WatchConfig   `yaml:"watch"`
	Debug   DebugConfig   `yaml:"debug"`
}

// HTTPConfig controls the HTTP server.
type HTTPConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	MaxBodyBytes   int64    `yaml:"max_body_bytes"`
}

// CaptureConfig controls how pages are captured.
type CaptureConfig struct {
	// Mode is "http" or "browser".
	Mode      string        `yaml:"mode"`
	Timeout   time.Duration `yaml:"timeout"`
	MaxBytes  int64         `yaml:"max_bytes"`
	UserAgent string        `yaml:"user_agent"`
	// Interval between automatic captures of every page. 0 disables them.
	Interval time.Duration `yaml:"interval"`
	// RemoteURL is the DevTools URL of an external Chrome (browser mode).
	RemoteURL string `yaml:"remote_url"`
}

// AuthConfig lists the users allowed to call write endpoints, as
// username → bcrypt hash. An empty map leaves the API open.
type AuthConfig struct {
	Users map[string]string `yaml:"users"`
}

// WatchConfig controls the known-pages refresher.
type WatchConfig struct {
	Interval time.Duration `yaml:"interval"`
	Debounce time.Duration `yaml:"debounce"`
}

// DebugConfig enables SQL statement tracing. Stats are served at
// /api/debug/sql.
type DebugConfig struct {
	SQLTrace  bool          `yaml:"sql_trace"`
	SlowQuery time.Duration `yaml:"slow_query"`
}

func (c *Config) defaults() {
	if c.DBPath == "" {
		c.DBPath = "changeview.db"
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		c.HTTP.MaxBodyBytes = 1 << 20
	}
	if c.Capture.Mode == "" {
		c.Capture.Mode = ModeHTTP
	}
	if c.Capture.Timeout <= 0 {
		c.Capture.Timeout = 30 * time.Second
	}
	if c.Watch.Interval <= 0 {
		c.Watch.Interval = 2 * time.Second
	}
	if c.Debug.SlowQuery <= 0 {
		c.Debug.SlowQuery = 100 * time.Millisecond
	}
	if c.Watch.Debounce < 0 {
		c.Watch.Debounce = 0
	}
}

func (c *Config) validate() error {
	switch c.Capture.Mode {
	case ModeHTTP, ModeBrowser:
	default:
		return fmt.Errorf("%w: capture.mode %q (want %q or %q)", ErrInvalidInput, c.Capture.Mode, ModeHTTP, ModeBrowser)
	}
	return nil
}

// LoadConfigFile reads a YAML config file.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("webmon: parse %s: %w", path, err)
	}
	return cfg, nil
}
