package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	// Widget bridge settings
	Widget WidgetConfig `koanf:"widget"`

	// Anonymous play gate settings
	Gate GateConfig `koanf:"gate"`

	// Direct stream settings
	Stream StreamConfig `koanf:"stream"`
}

// WidgetConfig holds the embedded-player bridge configuration.
type WidgetConfig struct {
	BridgeURL string `koanf:"bridge_url"` // e.g., "ws://localhost:9473/bridge"
}

// GateConfig holds the anonymous session service configuration.
type GateConfig struct {
	ServiceURL string `koanf:"service_url"` // e.g., "https://api.soniq.fm"
	AuthToken  string `koanf:"auth_token"`  // set when the user is signed in; bypasses play limits
}

// StreamConfig holds the direct audio stream configuration.
type StreamConfig struct {
	TimeoutSeconds int `koanf:"timeout_seconds"` // HTTP fetch timeout (default: 30)
}

func Load() (*Config, error) {
	return loadFromPaths(getConfigPaths())
}

// loadFromPaths merges the config files that exist, last wins.
func loadFromPaths(configPaths []string) (*Config, error) {
	k := koanf.New(".")

	for _, path := range configPaths {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
				return nil, err
			}
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, err
	}

	// Normalize URLs (remove trailing slash)
	cfg.Gate.ServiceURL = strings.TrimSuffix(cfg.Gate.ServiceURL, "/")
	cfg.Widget.BridgeURL = strings.TrimSuffix(cfg.Widget.BridgeURL, "/")

	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Widget.BridgeURL == "" {
		cfg.Widget.BridgeURL = "ws://localhost:9473/bridge"
	}
	if cfg.Stream.TimeoutSeconds <= 0 {
		cfg.Stream.TimeoutSeconds = 30
	}
}

func getConfigPaths() []string {
	paths := []string{}

	// 1. ~/.config/soniq/config.toml
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "soniq", "config.toml"))
	}

	// 2. ./config.toml (pwd, highest priority)
	paths = append(paths, "config.toml")

	return paths
}

// HasGateConfig returns true if the session service is configured.
// Without it anonymous plays are never limited.
func (c *Config) HasGateConfig() bool {
	return c.Gate.ServiceURL != ""
}

// IsAuthenticated returns true if an auth token is configured.
func (c *Config) IsAuthenticated() bool {
	return c.Gate.AuthToken != ""
}
