package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"coverctl/host/session"
)

// Config is the host-side configuration file.
type Config struct {
	Serial SerialConfig `yaml:"serial"`
	Cache  CacheConfig  `yaml:"cache"`
}

// SerialConfig selects and times the serial link.
type SerialConfig struct {
	// Port is the device path to use. Empty enables auto-discovery.
	Port string `yaml:"port"`

	Baud int `yaml:"baud"`

	// Two-tier timeouts: a short one polled repeatedly during discovery,
	// a longer one for steady-state command round-trips.
	ProbeTimeoutMs   int `yaml:"probe_timeout_ms"`
	CommandTimeoutMs int `yaml:"command_timeout_ms"`

	// LingerMs is the wait after disconnect before the port may be reopened.
	LingerMs int `yaml:"linger_ms"`
}

// CacheConfig locates the last-good-port cache.
type CacheConfig struct {
	LastPortFile string `yaml:"last_port_file"`
}

// Load reads a YAML config file and applies defaults. A missing path
// yields the pure defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config load failed: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config parse failed: %w", err)
		}
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// applyDefaults fills in missing configuration values with sensible defaults
func applyDefaults(cfg *Config) {
	if cfg.Serial.Baud == 0 {
		cfg.Serial.Baud = 57600
	}
	if cfg.Serial.ProbeTimeoutMs == 0 {
		cfg.Serial.ProbeTimeoutMs = 2000
	}
	if cfg.Serial.CommandTimeoutMs == 0 {
		cfg.Serial.CommandTimeoutMs = 5000
	}
	if cfg.Serial.LingerMs == 0 {
		cfg.Serial.LingerMs = 1000
	}
}

// Validate rejects values that cannot work before any I/O is attempted.
func Validate(cfg *Config) error {
	if cfg.Serial.Baud < 0 {
		return fmt.Errorf("%w: negative baud %d", session.ErrInvalidConfig, cfg.Serial.Baud)
	}
	for name, v := range map[string]int{
		"probe_timeout_ms":   cfg.Serial.ProbeTimeoutMs,
		"command_timeout_ms": cfg.Serial.CommandTimeoutMs,
		"linger_ms":          cfg.Serial.LingerMs,
	} {
		if v < 0 {
			return fmt.Errorf("%w: negative %s", session.ErrInvalidConfig, name)
		}
	}
	return nil
}

// SessionConfig converts the file values into session parameters.
func (c *Config) SessionConfig() session.Config {
	return session.Config{
		Port:           c.Serial.Port,
		Baud:           c.Serial.Baud,
		ProbeTimeout:   time.Duration(c.Serial.ProbeTimeoutMs) * time.Millisecond,
		CommandTimeout: time.Duration(c.Serial.CommandTimeoutMs) * time.Millisecond,
		Linger:         time.Duration(c.Serial.LingerMs) * time.Millisecond,
		LastPortFile:   c.Cache.LastPortFile,
	}
}
