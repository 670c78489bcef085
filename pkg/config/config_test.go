package config

import (
	"os"
	"path/filepath"
	"testing"
)

// TestDefaultConfig_Relay verifies the documented relay defaults.
func TestDefaultConfig_Relay(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Relay.ConfigURL == "" {
		t.Error("ConfigURL should have a default value")
	}
	if cfg.Relay.RefreshIntervalSeconds != 60 {
		t.Errorf("expected 60s refresh interval, got %d", cfg.Relay.RefreshIntervalSeconds)
	}
	if cfg.Relay.DispatchTimeoutSeconds != 8 {
		t.Errorf("expected 8s dispatch timeout, got %d", cfg.Relay.DispatchTimeoutSeconds)
	}
	if cfg.Relay.SecretHeader != "x-bridge-secret" {
		t.Errorf("expected x-bridge-secret header name, got %q", cfg.Relay.SecretHeader)
	}
}

// TestDefaultConfig_Channels verifies only the loopback gateway is on by
// default.
func TestDefaultConfig_Channels(t *testing.T) {
	cfg := DefaultConfig()

	if !cfg.Gateway.Enabled {
		t.Error("Gateway should be enabled by default")
	}
	if cfg.Gateway.Host != "127.0.0.1" {
		t.Errorf("Gateway should bind loopback by default, got %q", cfg.Gateway.Host)
	}
	if cfg.Gateway.Port == 0 {
		t.Error("Gateway port should have a default value")
	}
	if cfg.Native.Enabled {
		t.Error("Native host should be disabled by default")
	}
	if cfg.Console.Enabled {
		t.Error("Console should be disabled by default")
	}
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("missing file should not be an error: %v", err)
	}
	if cfg.Relay.RefreshIntervalSeconds != 60 {
		t.Errorf("expected defaults for missing file, got interval %d", cfg.Relay.RefreshIntervalSeconds)
	}
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{"relay":{"config_url":"http://127.0.0.1:9000/cfg","dispatch_timeout_seconds":3},"console":{"enabled":true}}`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Relay.ConfigURL != "http://127.0.0.1:9000/cfg" {
		t.Errorf("file value not applied, got %q", cfg.Relay.ConfigURL)
	}
	if cfg.Relay.DispatchTimeoutSeconds != 3 {
		t.Errorf("file value not applied, got %d", cfg.Relay.DispatchTimeoutSeconds)
	}
	if !cfg.Console.Enabled {
		t.Error("file value not applied for console.enabled")
	}
	// Untouched fields keep their defaults.
	if cfg.Relay.RefreshIntervalSeconds != 60 {
		t.Errorf("expected default interval to survive, got %d", cfg.Relay.RefreshIntervalSeconds)
	}
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"relay":{"config_url":"http://127.0.0.1:9000/cfg"}}`), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("PROMPTRELAY_RELAY_CONFIG_URL", "http://127.0.0.1:9100/cfg")
	t.Setenv("PROMPTRELAY_GATEWAY_PORT", "19000")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Relay.ConfigURL != "http://127.0.0.1:9100/cfg" {
		t.Errorf("env should win over file, got %q", cfg.Relay.ConfigURL)
	}
	if cfg.Gateway.Port != 19000 {
		t.Errorf("env override not applied, got %d", cfg.Gateway.Port)
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory in test environment")
	}

	if got := ExpandHome("~/x/y.log"); got != home+"/x/y.log" {
		t.Errorf("expected home expansion, got %q", got)
	}
	if got := ExpandHome("/abs/path"); got != "/abs/path" {
		t.Errorf("absolute path should pass through, got %q", got)
	}
	if got := ExpandHome(""); got != "" {
		t.Errorf("empty path should pass through, got %q", got)
	}
}
