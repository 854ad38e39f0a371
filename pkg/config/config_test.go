package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFromEnvPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{
	  "bus": {"use_external_broker": true, "broker_host": "redis.internal", "broker_port": 6380},
	  "security": {"level": "high", "rate_limit": {"max_requests": 10, "window_seconds": 5}},
	  "modules": {"enabled": ["text_understander"], "dependencies": {"text_understander": []}},
	  "logging": {"format": "json", "level": "debug", "add_source": true}
	}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	t.Setenv("SYNAPSE_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if !cfg.Bus.UseExternalBroker {
		t.Fatal("bus.use_external_broker = false, want true")
	}
	if cfg.Bus.BrokerHost != "redis.internal" {
		t.Fatalf("bus.broker_host = %q, want %q", cfg.Bus.BrokerHost, "redis.internal")
	}
	if cfg.Security.Level != "high" {
		t.Fatalf("security.level = %q, want %q", cfg.Security.Level, "high")
	}
	if cfg.Security.RateLimit.MaxRequests != 10 {
		t.Fatalf("rate_limit.max_requests = %d, want 10", cfg.Security.RateLimit.MaxRequests)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("logging.format = %q, want %q", cfg.Logging.Format, "json")
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"modules": {"enabled": []}}`), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	t.Setenv("SYNAPSE_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if cfg.Bus.RequestTimeoutSeconds != 30 {
		t.Fatalf("bus.request_timeout_seconds = %d, want 30", cfg.Bus.RequestTimeoutSeconds)
	}
	if cfg.Security.RateLimit.MaxRequests != 100 {
		t.Fatalf("rate_limit.max_requests = %d, want 100", cfg.Security.RateLimit.MaxRequests)
	}
	if cfg.Security.RateLimit.WindowSeconds != 60 {
		t.Fatalf("rate_limit.window_seconds = %d, want 60", cfg.Security.RateLimit.WindowSeconds)
	}
	if cfg.Security.MaxTextLength != 10000 {
		t.Fatalf("security.max_text_length = %d, want 10000", cfg.Security.MaxTextLength)
	}
	if cfg.Security.ActivityBuffer != 1000 {
		t.Fatalf("security.activity_buffer = %d, want 1000", cfg.Security.ActivityBuffer)
	}
}

func TestLoadEnvOverridesBroker(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"bus": {"use_external_broker": false}, "modules": {"enabled": []}}`), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	t.Setenv("SYNAPSE_CONFIG", path)
	t.Setenv("SYNAPSE_USE_EXTERNAL_BROKER", "true")
	t.Setenv("SYNAPSE_BROKER_HOST", "10.0.0.5")
	t.Setenv("SYNAPSE_BROKER_PORT", "6400")
	t.Setenv("SYNAPSE_SECURITY_LEVEL", "high")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if !cfg.Bus.UseExternalBroker {
		t.Fatal("expected env override to enable external broker")
	}
	if cfg.Bus.BrokerHost != "10.0.0.5" {
		t.Fatalf("bus.broker_host = %q, want %q", cfg.Bus.BrokerHost, "10.0.0.5")
	}
	if cfg.Bus.BrokerPort != 6400 {
		t.Fatalf("bus.broker_port = %d, want 6400", cfg.Bus.BrokerPort)
	}
	if cfg.Security.Level != "high" {
		t.Fatalf("security.level = %q, want %q", cfg.Security.Level, "high")
	}
}

func TestLoadInvalidEnvPath(t *testing.T) {
	t.Setenv("SYNAPSE_CONFIG", filepath.Join(t.TempDir(), "missing.json"))

	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing config path")
	}
}

func TestDefaultIsRunnable(t *testing.T) {
	cfg := Default()

	if cfg.Bus.UseExternalBroker {
		t.Fatal("default config should use the in-process transport")
	}
	if len(cfg.Modules.Enabled) == 0 {
		t.Fatal("default config should enable baseline modules")
	}
	if cfg.Security.Level != "medium" {
		t.Fatalf("security.level = %q, want %q", cfg.Security.Level, "medium")
	}
}
