// Package config loads taskdeck settings from ~/.taskdeck/config.toml and the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Defaults.
const (
	DefaultAPIBaseURL     = "http://127.0.0.1:5000"
	DefaultStatusInterval = 5 * time.Second
	DefaultHealthInterval = 5 * time.Second
	DefaultLogTail        = 2 * time.Second
	DefaultRequestTimeout = 10 * time.Second
	DefaultStartSettle    = time.Second
	DefaultRunSettle      = 500 * time.Millisecond
	DefaultLegacyLogLimit = 100
	DefaultListenAddr     = "127.0.0.1:5000"
)

// Environment overrides.
const (
	EnvAPI      = "TASKDECK_API"
	EnvLogLevel = "TASKDECK_LOG_LEVEL"
)

// Config holds all persistent configuration for taskdeck.
type Config struct {
	APIBaseURL      string   `toml:"api_base_url"`
	StatusInterval  Duration `toml:"status_interval"`
	HealthInterval  Duration `toml:"health_interval"`
	LogTailInterval Duration `toml:"log_tail_interval"`
	RequestTimeout  Duration `toml:"request_timeout"`
	StartSettle     Duration `toml:"start_settle"`
	RunSettle       Duration `toml:"run_settle"`
	LegacyLogLimit  int      `toml:"legacy_log_limit"`
	LogLevel        string   `toml:"log_level"`
	LogFile         string   `toml:"log_file,omitempty"`

	Server ServerConfig `toml:"server"`
}

// ServerConfig configures the development backend started by `taskdeck serve`.
type ServerConfig struct {
	Listen string `toml:"listen"`
	DBPath string `toml:"db_path,omitempty"`
	// WorkDir is where allowlisted commands run. Empty means the current directory.
	WorkDir string `toml:"work_dir,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		APIBaseURL:      DefaultAPIBaseURL,
		StatusInterval:  Duration{DefaultStatusInterval},
		HealthInterval:  Duration{DefaultHealthInterval},
		LogTailInterval: Duration{DefaultLogTail},
		RequestTimeout:  Duration{DefaultRequestTimeout},
		StartSettle:     Duration{DefaultStartSettle},
		RunSettle:       Duration{DefaultRunSettle},
		LegacyLogLimit:  DefaultLegacyLogLimit,
		LogLevel:        "info",
		Server:          ServerConfig{Listen: DefaultListenAddr},
	}
}

// Dir returns ~/.taskdeck.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".taskdeck"), nil
}

// Path returns the default config file path.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load reads the config at path, or the default path when empty, and applies
// environment overrides. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		p, err := Path()
		if err != nil {
			return nil, err
		}
		path = p
	}

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config at %s: %w", path, err)
		}
	}

	if v := os.Getenv(EnvAPI); v != "" {
		cfg.APIBaseURL = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate fills zero intervals with defaults and rejects unusable values.
func (c *Config) Validate() error {
	c.APIBaseURL = strings.TrimRight(strings.TrimSpace(c.APIBaseURL), "/")
	if c.APIBaseURL == "" {
		c.APIBaseURL = DefaultAPIBaseURL
	}
	if !strings.HasPrefix(c.APIBaseURL, "http://") && !strings.HasPrefix(c.APIBaseURL, "https://") {
		return fmt.Errorf("api_base_url: must start with http:// or https://, got %q", c.APIBaseURL)
	}

	c.StatusInterval.orDefault(DefaultStatusInterval)
	c.HealthInterval.orDefault(DefaultHealthInterval)
	c.LogTailInterval.orDefault(DefaultLogTail)

	if c.RequestTimeout.Duration < 0 {
		return fmt.Errorf("request_timeout: duration must be >= 0")
	}
	if c.StartSettle.Duration < 0 || c.RunSettle.Duration < 0 {
		return fmt.Errorf("start_settle/run_settle: duration must be >= 0")
	}
	if c.LegacyLogLimit <= 0 {
		c.LegacyLogLimit = DefaultLegacyLogLimit
	}
	if c.Server.Listen == "" {
		c.Server.Listen = DefaultListenAddr
	}
	return nil
}

// Save writes the config to path, or the default path when empty.
func (c *Config) Save(path string) error {
	if path == "" {
		p, err := Path()
		if err != nil {
			return err
		}
		path = p
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}
