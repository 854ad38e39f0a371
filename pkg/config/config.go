package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Config is the root runtime configuration loaded from config.json.
type Config struct {
	Bus      BusConfig                 `json:"bus"`
	Security SecurityConfig            `json:"security"`
	Modules  ModulesConfig             `json:"modules"`
	Synth    SynthConfig               `json:"synthesis,omitempty"`
	Logging  LoggingConfig             `json:"logging,omitempty"`
	Serve    ServeConfig               `json:"serve,omitempty"`
	Settings map[string]map[string]any `json:"settings,omitempty"`
}

// BusConfig selects and tunes the message bus transport.
type BusConfig struct {
	UseExternalBroker     bool   `json:"use_external_broker"`
	BrokerHost            string `json:"broker_host,omitempty"`
	BrokerPort            int    `json:"broker_port,omitempty"`
	BrokerPassword        string `json:"broker_password,omitempty"`
	QueueSize             int    `json:"queue_size,omitempty"`
	RequestTimeoutSeconds int    `json:"request_timeout_seconds,omitempty"`
}

// SecurityConfig tunes the request validation pipeline.
type SecurityConfig struct {
	Level          string          `json:"level,omitempty"`
	RateLimit      RateLimitConfig `json:"rate_limit,omitempty"`
	MaxTextLength  int             `json:"max_text_length,omitempty"`
	MaxAudioBytes  int64           `json:"max_audio_bytes,omitempty"`
	MaxImageBytes  int64           `json:"max_image_bytes,omitempty"`
	ExtraPatterns  []string        `json:"extra_patterns,omitempty"`
	ExtraKeywords  []string        `json:"extra_keywords,omitempty"`
	ActivityBuffer int             `json:"activity_buffer,omitempty"`
}

// RateLimitConfig is a sliding-window request budget per derived client id.
type RateLimitConfig struct {
	MaxRequests   int `json:"max_requests,omitempty"`
	WindowSeconds int `json:"window_seconds,omitempty"`
}

// ModulesConfig lists the modules loaded at startup and their dependencies.
type ModulesConfig struct {
	Enabled      []string            `json:"enabled"`
	Dependencies map[string][]string `json:"dependencies,omitempty"`
}

// SynthConfig controls response synthesis style.
type SynthConfig struct {
	Style string `json:"style,omitempty"`
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string `json:"format,omitempty"`
	Level     string `json:"level,omitempty"`
	AddSource bool   `json:"add_source,omitempty"`
}

// ServeConfig configures the serve command's status HTTP endpoint.
type ServeConfig struct {
	Host string `json:"host,omitempty"`
	Port int    `json:"port,omitempty"`
}

// envOverrides captures environment settings layered on top of file config.
type envOverrides struct {
	UseExternalBroker *bool  `env:"SYNAPSE_USE_EXTERNAL_BROKER"`
	BrokerHost        string `env:"SYNAPSE_BROKER_HOST"`
	BrokerPort        int    `env:"SYNAPSE_BROKER_PORT"`
	BrokerPassword    string `env:"SYNAPSE_BROKER_PASSWORD"`
	SecurityLevel     string `env:"SYNAPSE_SECURITY_LEVEL"`
}

// Load resolves config.json, unmarshals it, and applies environment overrides.
func Load() (*Config, error) {
	configPath, err := findConfigPath()
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)

	return &cfg, nil
}

// Default returns a runnable configuration without requiring a config file.
func Default() *Config {
	cfg := &Config{
		Modules: ModulesConfig{
			Enabled: []string{"text_understander", "memory_short_term"},
		},
	}
	applyDefaults(cfg)
	return cfg
}

func applyEnvOverrides(cfg *Config) error {
	var overrides envOverrides
	if err := env.Parse(&overrides); err != nil {
		return fmt.Errorf("parse environment overrides: %w", err)
	}

	if overrides.UseExternalBroker != nil {
		cfg.Bus.UseExternalBroker = *overrides.UseExternalBroker
	}
	if host := strings.TrimSpace(overrides.BrokerHost); host != "" {
		cfg.Bus.BrokerHost = host
	}
	if overrides.BrokerPort > 0 {
		cfg.Bus.BrokerPort = overrides.BrokerPort
	}
	if overrides.BrokerPassword != "" {
		cfg.Bus.BrokerPassword = overrides.BrokerPassword
	}
	if level := strings.TrimSpace(overrides.SecurityLevel); level != "" {
		cfg.Security.Level = level
	}

	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Bus.BrokerHost == "" {
		cfg.Bus.BrokerHost = "localhost"
	}
	if cfg.Bus.BrokerPort <= 0 {
		cfg.Bus.BrokerPort = 6379
	}
	if cfg.Bus.QueueSize <= 0 {
		cfg.Bus.QueueSize = 256
	}
	if cfg.Bus.RequestTimeoutSeconds <= 0 {
		cfg.Bus.RequestTimeoutSeconds = 30
	}

	if cfg.Security.Level == "" {
		cfg.Security.Level = "medium"
	}
	if cfg.Security.RateLimit.MaxRequests <= 0 {
		cfg.Security.RateLimit.MaxRequests = 100
	}
	if cfg.Security.RateLimit.WindowSeconds <= 0 {
		cfg.Security.RateLimit.WindowSeconds = 60
	}
	if cfg.Security.MaxTextLength <= 0 {
		cfg.Security.MaxTextLength = 10000
	}
	if cfg.Security.MaxAudioBytes <= 0 {
		cfg.Security.MaxAudioBytes = 50 * 1024 * 1024
	}
	if cfg.Security.MaxImageBytes <= 0 {
		cfg.Security.MaxImageBytes = 100 * 1024 * 1024
	}
	if cfg.Security.ActivityBuffer <= 0 {
		cfg.Security.ActivityBuffer = 1000
	}

	if cfg.Synth.Style == "" {
		cfg.Synth.Style = "neutral"
	}

	if cfg.Serve.Host == "" {
		cfg.Serve.Host = "0.0.0.0"
	}
	if cfg.Serve.Port <= 0 {
		cfg.Serve.Port = 18920
	}
}

// findConfigPath resolves the active config file location.
//
// Precedence is SYNAPSE_CONFIG first, then cwd-local fallback paths.
func findConfigPath() (string, error) {
	if value := strings.TrimSpace(os.Getenv("SYNAPSE_CONFIG")); value != "" {
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return value, nil
		}
		return "", fmt.Errorf("SYNAPSE_CONFIG does not point to a file: %s", value)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current working directory: %w", err)
	}

	candidates := []string{
		filepath.Join(cwd, "config.json"),
		filepath.Join(cwd, "config", "config.json"),
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("config.json not found (checked %s and %s)", candidates[0], candidates[1])
}
