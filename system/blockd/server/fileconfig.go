package server

import (
	"encoding/json"
	"fmt"
	"os"
)

// Backend names accepted in Config.Backend.
const (
	BackendMemory = "memory"
	BackendCRDT   = "crdt"
)

// Config represents the blockd server configuration file structure.
// Designed for extensibility - new fields can be added without breaking
// existing configs.
type Config struct {
	// Addr is the TCP listen address.
	Addr string `json:"addr"`

	// Backend selects the store implementation: "memory" or "crdt".
	Backend string `json:"backend"`

	// DataDir is where the crdt backend persists its update log.
	// Ignored by the memory backend.
	DataDir string `json:"dataDir,omitempty"`

	// WatchBuffer is the per-session outgoing message buffer size.
	// Zero means the default of 100.
	WatchBuffer int `json:"watchBuffer,omitempty"`
}

// LoadConfig loads a configuration file in JSON format.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Addr:        "127.0.0.1:7337",
		Backend:     BackendMemory,
		WatchBuffer: 100,
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendMemory, BackendCRDT:
	case "":
		return fmt.Errorf("backend is required")
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.Backend == BackendCRDT && c.DataDir == "" {
		return fmt.Errorf("crdt backend requires dataDir")
	}
	if c.WatchBuffer < 0 {
		return fmt.Errorf("watchBuffer must not be negative")
	}
	return nil
}
