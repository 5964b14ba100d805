// Package config loads the browserd configuration file.
//
// The file is YAML. Fields left out of the file keep the values from
// DefaultConfig; command-line flags are applied on top by the caller.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/entrhq/browserd/pkg/browser/capture"
	"github.com/entrhq/browserd/pkg/browser/driver"
	"github.com/entrhq/browserd/pkg/browser/session"
	"github.com/entrhq/browserd/pkg/logging"
)

// Config is the complete browserd configuration.
type Config struct {
	Browser   BrowserConfig   `yaml:"browser" json:"browser"`
	Capture   CaptureConfig   `yaml:"capture" json:"capture"`
	Downloads DownloadsConfig `yaml:"downloads" json:"downloads"`
	Server    ServerConfig    `yaml:"server" json:"server"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`

	// Path the configuration was loaded from, empty for defaults
	Path string `yaml:"-" json:"-"`
}

// BrowserConfig defines how sessions launch browsers
type BrowserConfig struct {
	// Kind used when a session does not name one
	Kind     string `yaml:"kind" json:"kind"`
	Headless bool   `yaml:"headless" json:"headless"`

	ViewportWidth  int `yaml:"viewport_width" json:"viewport_width"`
	ViewportHeight int `yaml:"viewport_height" json:"viewport_height"`

	// MaxSessions bounds live sessions; 0 disables the bound
	MaxSessions   int           `yaml:"max_sessions" json:"max_sessions"`
	ActionTimeout time.Duration `yaml:"action_timeout" json:"action_timeout"`

	// CDPEndpoint is the DevTools endpoint used by the cdp kind
	CDPEndpoint string `yaml:"cdp_endpoint" json:"cdp_endpoint"`
	// SkipInstall assumes Playwright and its browsers are installed
	SkipInstall bool `yaml:"skip_install" json:"skip_install"`
}

// CaptureConfig bounds what is recorded from network traffic
type CaptureConfig struct {
	MaxHeaderValueLength int  `yaml:"max_header_value_length" json:"max_header_value_length"`
	MaxBodyLength        int  `yaml:"max_body_length" json:"max_body_length"`
	CaptureBodies        bool `yaml:"capture_bodies" json:"capture_bodies"`
}

// DownloadsConfig defines where downloads go and how long to wait for them
type DownloadsConfig struct {
	Dir     string        `yaml:"dir" json:"dir"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// ServerConfig defines the HTTP transport
type ServerConfig struct {
	Addr           string        `yaml:"addr" json:"addr"`
	AllowedOrigins []string      `yaml:"allowed_origins" json:"allowed_origins"`
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`
}

// LoggingConfig defines the rotating log file
type LoggingConfig struct {
	Dir        string `yaml:"dir" json:"dir"`
	MaxSizeMB  int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" json:"max_age_days"`
	Compress   bool   `yaml:"compress" json:"compress"`
	// Verbose forwards Playwright's own output to the log
	Verbose bool `yaml:"verbose" json:"verbose"`
}

// DefaultConfig returns a configuration suitable for local use
func DefaultConfig() *Config {
	sessions := session.DefaultOptions()
	captureOpts := capture.DefaultOptions()
	logOpts := logging.DefaultOptions()

	return &Config{
		Browser: BrowserConfig{
			Kind:           string(driver.KindChromium),
			Headless:       true,
			ViewportWidth:  sessions.Viewport.Width,
			ViewportHeight: sessions.Viewport.Height,
			MaxSessions:    sessions.MaxSessions,
			ActionTimeout:  sessions.ActionTimeout,
		},
		Capture: CaptureConfig{
			MaxHeaderValueLength: captureOpts.MaxHeaderValueLength,
			MaxBodyLength:        captureOpts.MaxBodyLength,
			CaptureBodies:        captureOpts.CaptureBodies,
		},
		Downloads: DownloadsConfig{
			Dir:     sessions.DownloadDir,
			Timeout: 30 * time.Second,
		},
		Server: ServerConfig{
			Addr:           "127.0.0.1:8931",
			AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
			RequestTimeout: 5 * time.Minute,
		},
		Logging: LoggingConfig{
			Dir:        logOpts.Dir,
			MaxSizeMB:  logOpts.MaxSizeMB,
			MaxBackups: logOpts.MaxBackups,
			MaxAgeDays: logOpts.MaxAgeDays,
			Compress:   logOpts.Compress,
		},
	}
}

// Load reads the YAML file at path over DefaultConfig. An empty path
// returns the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.Path = path
	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if _, err := driver.ParseKind(c.Browser.Kind); err != nil {
		return fmt.Errorf("invalid browser kind: %w", err)
	}
	if c.Browser.ViewportWidth <= 0 || c.Browser.ViewportHeight <= 0 {
		return fmt.Errorf("viewport must be positive, got %dx%d", c.Browser.ViewportWidth, c.Browser.ViewportHeight)
	}
	if c.Browser.MaxSessions < 0 {
		return fmt.Errorf("max_sessions cannot be negative")
	}
	if c.Browser.ActionTimeout < 0 {
		return fmt.Errorf("action_timeout cannot be negative")
	}

	if c.Capture.MaxHeaderValueLength < 0 {
		return fmt.Errorf("max_header_value_length cannot be negative")
	}
	if c.Capture.MaxBodyLength < 0 {
		return fmt.Errorf("max_body_length cannot be negative")
	}

	if c.Downloads.Dir == "" {
		return fmt.Errorf("downloads directory is required")
	}
	if c.Downloads.Timeout < 0 {
		return fmt.Errorf("download timeout cannot be negative")
	}

	if c.Server.Addr == "" {
		return fmt.Errorf("server address is required")
	}
	if c.Server.RequestTimeout < 0 {
		return fmt.Errorf("request_timeout cannot be negative")
	}

	if c.Logging.MaxSizeMB < 0 || c.Logging.MaxBackups < 0 || c.Logging.MaxAgeDays < 0 {
		return fmt.Errorf("log rotation limits cannot be negative")
	}
	return nil
}

// SessionOptions maps the configuration onto the session registry options.
func (c *Config) SessionOptions() session.Options {
	return session.Options{
		Viewport:    driver.Viewport{Width: c.Browser.ViewportWidth, Height: c.Browser.ViewportHeight},
		DownloadDir: expandHome(c.Downloads.Dir),
		Capture: capture.Options{
			MaxHeaderValueLength: c.Capture.MaxHeaderValueLength,
			MaxBodyLength:        c.Capture.MaxBodyLength,
			CaptureBodies:        c.Capture.CaptureBodies,
		},
		MaxSessions:   c.Browser.MaxSessions,
		ActionTimeout: c.Browser.ActionTimeout,
	}
}

// LoggingOptions maps the configuration onto the log file options.
func (c *Config) LoggingOptions() logging.Options {
	return logging.Options{
		Dir:        expandHome(c.Logging.Dir),
		MaxSizeMB:  c.Logging.MaxSizeMB,
		MaxBackups: c.Logging.MaxBackups,
		MaxAgeDays: c.Logging.MaxAgeDays,
		Compress:   c.Logging.Compress,
	}
}

// expandHome replaces a leading ~/ with the user's home directory.
func expandHome(path string) string {
	if len(path) < 2 || path[:2] != "~/" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
