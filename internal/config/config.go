// Package config loads and persists the console's configuration file.
package config

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// DefaultServerURL is the default CAI backend base URL.
// Override at build time with: go build -ldflags "-X github.com/caiframework/cai-console/internal/config.DefaultServerURL=http://host:8000"
var DefaultServerURL = "http://localhost:8000"

// ReconnectConfig tunes the push channel's recovery behavior.
type ReconnectConfig struct {
	// DelaySeconds before a reconnect attempt. Default 3.
	DelaySeconds float64 `yaml:"delay_seconds" mapstructure:"delay_seconds"`
	// Multiplier grows the delay after each failed attempt; 1 keeps
	// it flat.
	Multiplier float64 `yaml:"multiplier" mapstructure:"multiplier"`
	// MaxDelaySeconds caps backoff growth. 0 means no cap.
	MaxDelaySeconds float64 `yaml:"max_delay_seconds" mapstructure:"max_delay_seconds"`
	// MaxAttempts stops retrying after this many failures. 0 retries
	// forever.
	MaxAttempts int `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// Config represents the application configuration.
type Config struct {
	ServerURL    string          `yaml:"server_url" mapstructure:"server_url"`
	DefaultAgent string          `yaml:"default_agent,omitempty" mapstructure:"default_agent"`
	DefaultModel string          `yaml:"default_model,omitempty" mapstructure:"default_model"`
	Reconnect    ReconnectConfig `yaml:"reconnect" mapstructure:"reconnect"`
}

// WebsocketURL derives the ws(s):// base URL from the server URL.
// e.g. "http://localhost:8000" → "ws://localhost:8000"
func (c *Config) WebsocketURL() string {
	u := strings.TrimSuffix(c.ServerURL, "/")
	if strings.HasPrefix(u, "https://") {
		return "wss://" + u[8:]
	}
	if strings.HasPrefix(u, "http://") {
		return "ws://" + u[7:]
	}
	return u
}

func defaultConfig() *Config {
	return &Config{
		ServerURL: DefaultServerURL,
		Reconnect: ReconnectConfig{
			DelaySeconds: 3,
			Multiplier:   1,
		},
	}
}

var (
	configPath string
	configDir  string
)

func init() {
	// When running under sudo, os.UserHomeDir() returns /root.
	// Check SUDO_USER to resolve the real user's home directory.
	var home string
	if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" {
		if u, err := user.Lookup(sudoUser); err == nil {
			home = u.HomeDir
		}
	}
	if home == "" {
		var err error
		home, err = os.UserHomeDir()
		if err != nil {
			panic(fmt.Sprintf("failed to get home directory: %v", err))
		}
	}

	configDir = filepath.Join(home, ".cai")
	configPath = filepath.Join(configDir, "console.yaml")
}

// GetConfigPath returns the path to the config file.
func GetConfigPath() string {
	return configPath
}

// SetConfigDir overrides the config location for this process.
func SetConfigDir(dir string) {
	configDir = dir
	configPath = filepath.Join(dir, "console.yaml")
}

// Load loads the configuration, creating a default file on first run.
func Load() (*Config, error) {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := defaultConfig()
		if err := Save(cfg); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return cfg, nil
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := defaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.Reconnect.DelaySeconds <= 0 {
		cfg.Reconnect.DelaySeconds = 3
	}
	return cfg, nil
}

// Save writes the configuration to file.
func Save(cfg *Config) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
