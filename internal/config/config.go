// Package config loads the dbgrid YAML configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/redbco/dbgrid/internal/bridge"
	"github.com/redbco/dbgrid/pkg/adapter"
	"github.com/redbco/dbgrid/pkg/logger"
)

type Config struct {
	Logging     LoggingConfig              `yaml:"logging"`
	Bridge      BridgeConfig               `yaml:"bridge"`
	Pool        PoolConfig                 `yaml:"pool"`
	Connections []adapter.ConnectionConfig `yaml:"connections"`
}

type LoggingConfig struct {
	Level       string `yaml:"level"`
	ServiceName string `yaml:"service_name"`
}

type BridgeConfig struct {
	Executable     string        `yaml:"executable"`
	Args           []string      `yaml:"args"`
	PipeName       string        `yaml:"pipe_name"`
	HealthInterval time.Duration `yaml:"health_interval"`
	HealthAttempts int           `yaml:"health_attempts"`
	ShutdownGrace  time.Duration `yaml:"shutdown_grace"`
	DialTimeout    time.Duration `yaml:"dial_timeout"`
}

type PoolConfig struct {
	Metrics bool `yaml:"metrics"`
}

// DefaultPath is $HOME/.dbgrid/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".dbgrid", "config.yaml")
	}
	return filepath.Join(home, ".dbgrid", "config.yaml")
}

// Default returns a configuration with every default applied and no connections.
func Default() *Config {
	config := &Config{Pool: PoolConfig{Metrics: true}}
	config.applyDefaults()
	return config
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes, defaults and validates a configuration document.
func Parse(data []byte) (*Config, error) {
	config := Config{Pool: PoolConfig{Metrics: true}}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.ServiceName == "" {
		c.Logging.ServiceName = "dbgrid"
	}
	if c.Bridge.Executable == "" {
		c.Bridge.Executable = bridge.DefaultExecutable
	}
	if c.Bridge.HealthInterval == 0 {
		c.Bridge.HealthInterval = bridge.DefaultHealthInterval
	}
	if c.Bridge.HealthAttempts == 0 {
		c.Bridge.HealthAttempts = bridge.DefaultHealthAttempts
	}
	if c.Bridge.ShutdownGrace == 0 {
		c.Bridge.ShutdownGrace = bridge.DefaultShutdownGrace
	}
	if c.Bridge.DialTimeout == 0 {
		c.Bridge.DialTimeout = bridge.DefaultDialTimeout
	}
	for i := range c.Connections {
		if t, ok := adapter.ParseDatabaseType(string(c.Connections[i].Type)); ok {
			c.Connections[i].Type = t
		}
		c.Connections[i] = c.Connections[i].WithDefaults()
	}
}

// Validate checks the log level, the bridge limits and every connection.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	if c.Bridge.HealthAttempts <= 0 {
		return fmt.Errorf("bridge.health_attempts must be greater than 0")
	}
	if c.Bridge.HealthInterval < 0 || c.Bridge.ShutdownGrace < 0 || c.Bridge.DialTimeout < 0 {
		return fmt.Errorf("bridge durations must not be negative")
	}

	seen := make(map[string]bool, len(c.Connections))
	for i, conn := range c.Connections {
		if err := conn.Validate(); err != nil {
			return fmt.Errorf("connections[%d]: %w", i, err)
		}
		if seen[conn.ID] {
			return fmt.Errorf("connections[%d]: duplicate connection id %q", i, conn.ID)
		}
		seen[conn.ID] = true
	}
	return nil
}

// Lookup returns the connection with the given id.
func (c *Config) Lookup(id string) (adapter.ConnectionConfig, bool) {
	for _, conn := range c.Connections {
		if conn.ID == id {
			return conn, true
		}
	}
	return adapter.ConnectionConfig{}, false
}

// PipePath resolves the bridge socket path. An empty pipe name yields a
// fresh per-process path.
func (b BridgeConfig) PipePath() string {
	if b.PipeName == "" {
		return bridge.DefaultPipePath()
	}
	if filepath.IsAbs(b.PipeName) {
		return b.PipeName
	}
	return filepath.Join(os.TempDir(), b.PipeName)
}

// ManagerOptions converts the bridge section into bridge.Options.
func (b BridgeConfig) ManagerOptions(log *logger.Logger) bridge.Options {
	return bridge.Options{
		Executable:     b.Executable,
		Args:           b.Args,
		PipePath:       b.PipePath(),
		HealthInterval: b.HealthInterval,
		HealthAttempts: b.HealthAttempts,
		ShutdownGrace:  b.ShutdownGrace,
		DialTimeout:    b.DialTimeout,
		Logger:         log,
	}
}
