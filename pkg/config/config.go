package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Relay   RelayConfig   `json:"relay"`
	Gateway GatewayConfig `json:"gateway"`
	Native  NativeConfig  `json:"native"`
	Console ConsoleConfig `json:"console"`
	Logging LoggingConfig `json:"logging"`
}

// RelayConfig controls the bridge config source and the outbound dispatch.
type RelayConfig struct {
	ConfigURL              string `json:"config_url" env:"PROMPTRELAY_RELAY_CONFIG_URL"`
	RefreshIntervalSeconds int    `json:"refresh_interval_seconds" env:"PROMPTRELAY_RELAY_REFRESH_INTERVAL_SECONDS"`
	RefreshSchedule        string `json:"refresh_schedule" env:"PROMPTRELAY_RELAY_REFRESH_SCHEDULE"` // cron expression; overrides the fixed interval when set
	DispatchTimeoutSeconds int    `json:"dispatch_timeout_seconds" env:"PROMPTRELAY_RELAY_DISPATCH_TIMEOUT_SECONDS"`
	SecretHeader           string `json:"secret_header" env:"PROMPTRELAY_RELAY_SECRET_HEADER"`
}

// GatewayConfig controls the WebSocket gateway extension contexts connect to.
type GatewayConfig struct {
	Enabled bool   `json:"enabled" env:"PROMPTRELAY_GATEWAY_ENABLED"`
	Host    string `json:"host" env:"PROMPTRELAY_GATEWAY_HOST"`
	Port    int    `json:"port" env:"PROMPTRELAY_GATEWAY_PORT"`
}

// NativeConfig controls the browser native-messaging host transport.
type NativeConfig struct {
	Enabled bool `json:"enabled" env:"PROMPTRELAY_NATIVE_ENABLED"`
}

// ConsoleConfig controls the interactive console channel.
type ConsoleConfig struct {
	Enabled bool `json:"enabled" env:"PROMPTRELAY_CONSOLE_ENABLED"`
}

type LoggingConfig struct {
	Level       string `json:"level" env:"PROMPTRELAY_LOGGING_LEVEL"`
	FileEnabled bool   `json:"file_enabled" env:"PROMPTRELAY_LOGGING_FILE_ENABLED"`
	FilePath    string `json:"file_path" env:"PROMPTRELAY_LOGGING_FILE_PATH"`
	MaxSizeMB   int    `json:"max_size_mb" env:"PROMPTRELAY_LOGGING_MAX_SIZE_MB"`
}

func DefaultConfig() *Config {
	return &Config{
		Relay: RelayConfig{
			ConfigURL:              "http://127.0.0.1:8315/config",
			RefreshIntervalSeconds: 60,
			RefreshSchedule:        "",
			DispatchTimeoutSeconds: 8,
			SecretHeader:           "x-bridge-secret",
		},
		Gateway: GatewayConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    18890,
		},
		Native: NativeConfig{
			Enabled: false,
		},
		Console: ConsoleConfig{
			Enabled: false,
		},
		Logging: LoggingConfig{
			Level:       "info",
			FileEnabled: true,
			FilePath:    "~/.promptrelay/promptrelay.log",
			MaxSizeMB:   50,
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if err := env.Parse(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

func (c *Config) LogFilePath() string {
	return ExpandHome(c.Logging.FilePath)
}

// ExpandHome replaces a leading ~ with the current user's home directory.
func ExpandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}
