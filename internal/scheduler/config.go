// Package scheduler runs task commands for the development backend.
package scheduler

import "time"

// Config defines the runner configuration.
type Config struct {
	// GlobalMax is the maximum number of concurrent scheduler runs across all connectors.
	GlobalMax int `toml:"global_max"`
	// ByConnector defines per-connector concurrency limits.
	ByConnector map[string]int `toml:"by_connector"`
	// LegacyInterval is the pause between two executions of a running legacy task.
	LegacyInterval time.Duration `toml:"-"`
	// LogLines caps the lines kept from one command's output.
	LogLines int `toml:"log_lines"`
}

// DefaultConfig returns the default runner configuration.
func DefaultConfig() *Config {
	return &Config{
		GlobalMax: 10,
		ByConnector: map[string]int{
			"localexec": 5,
		},
		LegacyInterval: 10 * time.Second,
		LogLines:       500,
	}
}

// GetConnectorLimit returns the concurrency limit for a connector.
func (c *Config) GetConnectorLimit(connectorName string) int {
	if limit, ok := c.ByConnector[connectorName]; ok {
		return limit
	}
	return 1
}
