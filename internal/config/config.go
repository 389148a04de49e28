package config

import (
	"os"
	"time"
)

// Config holds client configuration values.
type Config struct {
	// DefaultServerURL is the WebSocket endpoint used when neither a flag
	// nor a stored preference supplies one.
	DefaultServerURL string `mapstructure:"default_server_url" yaml:"default_server_url"`
	// StatePath is the sqlite file holding durable session identity.
	StatePath string `mapstructure:"state_path" yaml:"state_path"`

	HealthInterval time.Duration `mapstructure:"health_interval" yaml:"health_interval"`
	HealthTimeout  time.Duration `mapstructure:"health_timeout" yaml:"health_timeout"`
	ImpactTTL      time.Duration `mapstructure:"impact_ttl" yaml:"impact_ttl"`

	LogLevel string `mapstructure:"log_level" yaml:"log_level"`

	// Dev enables the diagnostics overlay and its local endpoint.
	Dev      bool   `mapstructure:"dev" yaml:"dev"`
	DiagAddr string `mapstructure:"diag_addr" yaml:"diag_addr"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		DefaultServerURL: "wss://play.cannonclash.io/ws",
		StatePath:        "cannonclash.db",
		HealthInterval:   10 * time.Second,
		HealthTimeout:    3 * time.Second,
		ImpactTTL:        time.Second,
		LogLevel:         "info",
		Dev:              DevHost(),
		DiagAddr:         "127.0.0.1:8099",
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.DefaultServerURL != "" {
		c.DefaultServerURL = other.DefaultServerURL
	}
	if other.StatePath != "" {
		c.StatePath = other.StatePath
	}
	if other.HealthInterval != 0 {
		c.HealthInterval = other.HealthInterval
	}
	if other.HealthTimeout != 0 {
		c.HealthTimeout = other.HealthTimeout
	}
	if other.ImpactTTL != 0 {
		c.ImpactTTL = other.ImpactTTL
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.DiagAddr != "" {
		c.DiagAddr = other.DiagAddr
	}
}

// DevHost reports whether this machine looks like a developer box. It is a
// heuristic default for Config.Dev, not an access-control decision; the flag
// and config file always win.
func DevHost() bool {
	host, err := os.Hostname()
	if err != nil {
		return false
	}
	switch host {
	case "localhost", "127.0.0.1":
		return true
	}
	return os.Getenv("CANNON_DEV") != ""
}
