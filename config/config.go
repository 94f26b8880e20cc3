// Package config centralises runtime configuration for the observatory.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the observatory configuration tree loaded from defaults, an
// optional yaml file, and environment overrides, in that order.
type Config struct {
	Feed      FeedConfig      `yaml:"feed"`
	History   HistoryConfig   `yaml:"history"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// FeedConfig controls data-feed connectivity and scheduling.
type FeedConfig struct {
	WSURL             string        `yaml:"wsUrl"`
	RESTBaseURL       string        `yaml:"restBaseUrl"`
	HeartbeatInterval time.Duration `yaml:"heartbeatInterval"`
	ReconnectDelay    time.Duration `yaml:"reconnectDelay"`
	FallbackInterval  time.Duration `yaml:"fallbackInterval"`
	HandshakeTimeout  time.Duration `yaml:"handshakeTimeout"`
	HTTPTimeout       time.Duration `yaml:"httpTimeout"`
}

// HistoryConfig bounds the rolling chart history.
type HistoryConfig struct {
	Capacity int `yaml:"capacity"`
}

// TelemetryConfig wires metric export. An empty endpoint disables export.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlpEndpoint"`
	ServiceName  string `yaml:"serviceName"`
}

// Default returns the default observatory configuration.
func Default() Config {
	return Config{
		Feed: FeedConfig{
			WSURL:             "ws://localhost:8080/api/evolution/ws",
			RESTBaseURL:       "http://localhost:8080",
			HeartbeatInterval: 30 * time.Second,
			ReconnectDelay:    3 * time.Second,
			FallbackInterval:  5 * time.Second,
			HandshakeTimeout:  10 * time.Second,
			HTTPTimeout:       10 * time.Second,
		},
		History: HistoryConfig{
			Capacity: 50,
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: "",
			ServiceName:  "observatory",
		},
	}
}

// LoadOrDefault loads configuration from the yaml file at path, falling back
// to defaults when the file does not exist. Environment overrides apply in
// both cases. The boolean reports whether a file was read.
func LoadOrDefault(path string) (Config, bool, error) {
	cfg := Default()
	loaded := false
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, false, fmt.Errorf("parse config %s: %w", path, err)
			}
			loaded = true
		case os.IsNotExist(err):
		default:
			return Config{}, false, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	cfg = applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, false, err
	}
	return cfg, loaded, nil
}

// Validate checks the configuration for values the runtime cannot honour.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Feed.WSURL) == "" {
		return fmt.Errorf("config: feed.wsUrl must not be empty")
	}
	if strings.TrimSpace(c.Feed.RESTBaseURL) == "" {
		return fmt.Errorf("config: feed.restBaseUrl must not be empty")
	}
	for name, d := range map[string]time.Duration{
		"feed.heartbeatInterval": c.Feed.HeartbeatInterval,
		"feed.reconnectDelay":    c.Feed.ReconnectDelay,
		"feed.fallbackInterval":  c.Feed.FallbackInterval,
	} {
		if d <= 0 {
			return fmt.Errorf("config: %s must be positive", name)
		}
	}
	if c.History.Capacity <= 0 {
		return fmt.Errorf("config: history.capacity must be positive")
	}
	return nil
}

func applyEnv(cfg Config) Config {
	if v := strings.TrimSpace(os.Getenv("OBSERVATORY_WS_URL")); v != "" {
		cfg.Feed.WSURL = v
	}
	if v := strings.TrimSpace(os.Getenv("OBSERVATORY_REST_BASE_URL")); v != "" {
		cfg.Feed.RESTBaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("OBSERVATORY_HEARTBEAT_INTERVAL")); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Feed.HeartbeatInterval = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("OBSERVATORY_RECONNECT_DELAY")); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Feed.ReconnectDelay = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("OBSERVATORY_FALLBACK_INTERVAL")); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Feed.FallbackInterval = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("OBSERVATORY_HISTORY_CAPACITY")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.History.Capacity = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("OBSERVATORY_OTLP_ENDPOINT")); v != "" {
		cfg.Telemetry.OTLPEndpoint = v
	}
	if v := strings.TrimSpace(os.Getenv("OBSERVATORY_SERVICE_NAME")); v != "" {
		cfg.Telemetry.ServiceName = v
	}
	return cfg
}
