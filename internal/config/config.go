// Package config loads chatdriver's YAML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/neboloop/chatdriver/internal/defaults"
)

// Environment overrides, applied after the config file is read.
const (
	EnvBrowser  = "CHATDRIVER_BROWSER"   // executable path or driver name
	EnvUserData = "CHATDRIVER_USER_DATA" // browser user-data-dir
	EnvVerbose  = "CHATDRIVER_VERBOSE"   // "1" enables debug logging
)

// Config holds the full chatdriver configuration.
type Config struct {
	DataDir       string                  `yaml:"data_dir"`
	Browser       BrowserConfig           `yaml:"browser"`
	Session       SessionConfig           `yaml:"session"`
	Conversations ConversationsConfig     `yaml:"conversations"`
	Site          string                  `yaml:"site"`
	Sites         map[string]SiteOverride `yaml:"sites,omitempty"`
	Log           LogConfig               `yaml:"log"`
}

// BrowserConfig configures the browser daemon and how we attach to it.
type BrowserConfig struct {
	Driver         string   `yaml:"driver"`          // "chromedp" or "playwright"
	ExecutablePath string   `yaml:"executable_path"` // empty = auto-detect
	CDPPort        int      `yaml:"cdp_port"`
	Headless       bool     `yaml:"headless"`
	NoSandbox      bool     `yaml:"no_sandbox"`
	UserDataDir    string   `yaml:"user_data_dir"`
	ExtraArgs      []string `yaml:"extra_args,omitempty"`
}

// SessionConfig holds timeouts and retry settings for the session manager.
type SessionConfig struct {
	ConnectAttempts    int           `yaml:"connect_attempts"`
	ConnectBackoff     time.Duration `yaml:"connect_backoff"`
	ConnectTimeout     time.Duration `yaml:"connect_timeout"`
	ProbeTimeout       time.Duration `yaml:"probe_timeout"`
	LaunchTimeout      time.Duration `yaml:"launch_timeout"`
	LaunchPollInterval time.Duration `yaml:"launch_poll_interval"`
	HealthTimeout      time.Duration `yaml:"health_timeout"`
	ResponseTimeout    time.Duration `yaml:"response_timeout"`
	CloseMode          string        `yaml:"close_mode"` // "soft" or "hard"
	WatchDescriptor    bool          `yaml:"watch_descriptor"`
	KeepaliveInterval  time.Duration `yaml:"keepalive_interval"`
}

// ConversationsConfig configures the conversation store.
type ConversationsConfig struct {
	Dir   string `yaml:"dir"`
	Index bool   `yaml:"index"`
}

// SiteOverride replaces individual fields of a built-in site profile.
type SiteOverride struct {
	StartURL         string `yaml:"start_url,omitempty"`
	InputSelector    string `yaml:"input_selector,omitempty"`
	SendSelector     string `yaml:"send_selector,omitempty"`
	ResponseSelector string `yaml:"response_selector,omitempty"`
	BusySelector     string `yaml:"busy_selector,omitempty"`
	ThreadPath       string `yaml:"thread_path,omitempty"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level   string `yaml:"level"`
	JSON    bool   `yaml:"json"`
	Verbose bool   `yaml:"-"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DataDir: DefaultDataDir(),
		Browser: BrowserConfig{
			Driver:  "chromedp",
			CDPPort: 9222,
		},
		Session: SessionConfig{
			ConnectAttempts:    3,
			ConnectBackoff:     2 * time.Second,
			ConnectTimeout:     15 * time.Second,
			ProbeTimeout:       2 * time.Second,
			LaunchTimeout:      30 * time.Second,
			LaunchPollInterval: time.Second,
			HealthTimeout:      5 * time.Second,
			ResponseTimeout:    2 * time.Minute,
			CloseMode:          "soft",
			WatchDescriptor:    true,
			KeepaliveInterval:  time.Minute,
		},
		Conversations: ConversationsConfig{
			Index: true,
		},
		Site: "chatgpt",
		Log: LogConfig{
			Level: "info",
		},
	}
}

// DefaultDataDir returns the platform-appropriate data directory.
func DefaultDataDir() string {
	dir, err := defaults.DataDir()
	if err != nil {
		return ".chatdriver"
	}
	return dir
}

// Load reads config.yaml from the data directory. A missing file yields defaults.
func Load() (*Config, error) {
	return LoadFile(filepath.Join(DefaultDataDir(), "config.yaml"))
}

// LoadFile reads the given config file over the defaults. A missing file yields defaults.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvBrowser); v != "" {
		switch strings.ToLower(v) {
		case "chromedp", "playwright":
			c.Browser.Driver = strings.ToLower(v)
		default:
			c.Browser.ExecutablePath = v
		}
	}
	if v := os.Getenv(EnvUserData); v != "" {
		c.Browser.UserDataDir = v
	}
	if os.Getenv(EnvVerbose) == "1" {
		c.Log.Verbose = true
	}
}

func (c *Config) normalize() {
	c.DataDir = expandHome(c.DataDir)
	c.Browser.ExecutablePath = expandHome(c.Browser.ExecutablePath)
	c.Browser.UserDataDir = expandHome(c.Browser.UserDataDir)
	c.Conversations.Dir = expandHome(c.Conversations.Dir)

	if c.Browser.UserDataDir == "" {
		c.Browser.UserDataDir = filepath.Join(c.DataDir, "browser", "user-data")
	}
	if c.Conversations.Dir == "" {
		c.Conversations.Dir = filepath.Join(c.DataDir, "conversations")
	}
	if c.Browser.Driver == "" {
		c.Browser.Driver = "chromedp"
	}
	if c.Browser.CDPPort == 0 {
		c.Browser.CDPPort = 9222
	}
	if c.Session.CloseMode == "" {
		c.Session.CloseMode = "soft"
	}
}

// Validate reports settings that cannot work.
func (c *Config) Validate() error {
	switch c.Browser.Driver {
	case "chromedp", "playwright":
	default:
		return fmt.Errorf("unknown browser driver %q (want chromedp or playwright)", c.Browser.Driver)
	}
	switch c.Session.CloseMode {
	case "soft", "hard":
	default:
		return fmt.Errorf("unknown close_mode %q (want soft or hard)", c.Session.CloseMode)
	}
	if c.Session.ConnectAttempts < 1 {
		return fmt.Errorf("connect_attempts must be at least 1")
	}
	if c.Session.ProbeTimeout <= 0 || c.Session.ProbeTimeout > 2*time.Second {
		return fmt.Errorf("probe_timeout must be in (0s, 2s], got %s", c.Session.ProbeTimeout)
	}
	if c.Browser.CDPPort < 1 || c.Browser.CDPPort > 65535 {
		return fmt.Errorf("cdp_port out of range: %d", c.Browser.CDPPort)
	}
	return nil
}

// Endpoint returns the control endpoint of the browser daemon.
func (c *Config) Endpoint() string {
	return fmt.Sprintf("ws://127.0.0.1:%d", c.Browser.CDPPort)
}

// DescriptorPath returns where the session descriptor is persisted.
func (c *Config) DescriptorPath() string {
	return filepath.Join(c.DataDir, defaults.DescriptorFile)
}

// IndexPath returns the sqlite conversation index location.
func (c *Config) IndexPath() string {
	return filepath.Join(c.DataDir, "conversations.db")
}

func expandHome(p string) string {
	if strings.HasPrefix(p, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, p[2:])
	}
	return p
}
