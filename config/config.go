// Package config loads the gateway's process-wide configuration from a
// YAML file with environment variable overrides, per spec.md §6's
// configuration surface and SPEC_FULL.md §4.14.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the gateway's full configuration surface.
type Config struct {
	PingInterval      time.Duration `yaml:"pingInterval"`
	HeartbeatInterval time.Duration `yaml:"heartbeatInterval"`
	Debug             bool          `yaml:"debug"`

	AllowedRoot    string `yaml:"allowedRoot"`
	PortRangeStart int    `yaml:"portRangeStart"`
	PortRangeSpan  int    `yaml:"portRangeSpan"`

	DefaultAssistantBinary string `yaml:"defaultAssistantBinary"`
	ResumeTokenFlag        string `yaml:"resumeTokenFlag"`
	ImageFlag              string `yaml:"imageFlag"`

	DefaultShell string `yaml:"defaultShell"`

	MaxImageBytes          int64    `yaml:"maxImageBytes"`
	AllowedImageMimeTypes  []string `yaml:"allowedImageMimeTypes"`
	ImageStoreDir          string   `yaml:"imageStoreDir"`

	AllowBareUserIDQueryParam bool `yaml:"allowBareUserIDQueryParam"`

	IdleEvictionInterval time.Duration `yaml:"idleEvictionInterval"`
	PTYIdleTimeout        time.Duration `yaml:"ptyIdleTimeout"`
	PTYDefaultCols         int          `yaml:"ptyDefaultCols"`
	PTYDefaultRows         int          `yaml:"ptyDefaultRows"`
}

// Default returns the configuration described by spec.md's defaults.
func Default() Config {
	return Config{
		PingInterval:      5 * time.Second,
		HeartbeatInterval: 15 * time.Second,

		PortRangeStart: 8765,
		PortRangeSpan:  4,

		DefaultAssistantBinary: "claude",
		ResumeTokenFlag:        "--resume",
		ImageFlag:              "--image",

		DefaultShell: "/bin/bash",

		MaxImageBytes:         10 * 1024 * 1024,
		AllowedImageMimeTypes: []string{"image/png", "image/jpeg", "image/gif", "image/webp"},
		ImageStoreDir:         ".gateway-images",

		IdleEvictionInterval: time.Minute,
		PTYIdleTimeout:       30 * time.Minute,
		PTYDefaultCols:       80,
		PTYDefaultRows:       24,
	}
}

// Load reads a YAML config file (if path is non-empty and exists),
// overlays it on Default(), then applies environment variable
// overrides, matching the precedence the pack's config loaders use.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if cfg.AllowedRoot == "" {
		return cfg, fmt.Errorf("config: allowedRoot must be set")
	}

	// The open question in spec.md §9 around the bare userId query
	// parameter: never allow it unless debug mode is explicitly on.
	if cfg.AllowBareUserIDQueryParam && !cfg.Debug {
		return cfg, fmt.Errorf("config: allowBareUserIDQueryParam requires WS_DEBUG")
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("WS_PING_INTERVAL"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.PingInterval = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("WS_HEARTBEAT_INTERVAL"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.HeartbeatInterval = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("WS_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Debug = b
		}
	}
}
