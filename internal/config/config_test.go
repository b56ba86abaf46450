package config

import (
	"os"
	"path/filepath"
	"testing"
)

func useTempConfig(t *testing.T) {
	t.Helper()
	origDir, origPath := configDir, configPath
	SetConfigDir(t.TempDir())
	t.Cleanup(func() {
		configDir, configPath = origDir, origPath
	})
}

func TestLoadCreatesDefaultConfig(t *testing.T) {
	useTempConfig(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServerURL != DefaultServerURL {
		t.Fatalf("expected default server URL, got %q", cfg.ServerURL)
	}
	if cfg.Reconnect.DelaySeconds != 3 {
		t.Fatalf("expected 3s reconnect delay default, got %v", cfg.Reconnect.DelaySeconds)
	}

	if _, err := os.Stat(GetConfigPath()); err != nil {
		t.Fatalf("default config file not written: %v", err)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	useTempConfig(t)

	cfg := &Config{
		ServerURL:    "http://10.0.0.5:8000",
		DefaultAgent: "redteam_agent",
		DefaultModel: "gpt-4o-mini",
		Reconnect: ReconnectConfig{
			DelaySeconds:    1.5,
			Multiplier:      2,
			MaxDelaySeconds: 30,
			MaxAttempts:     10,
		},
	}
	if err := Save(cfg); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.ServerURL != cfg.ServerURL || loaded.DefaultAgent != cfg.DefaultAgent {
		t.Fatalf("round trip lost fields: %+v", loaded)
	}
	if loaded.Reconnect != cfg.Reconnect {
		t.Fatalf("reconnect tunables lost: %+v", loaded.Reconnect)
	}
}

func TestConfigFilePermissions(t *testing.T) {
	useTempConfig(t)

	if err := Save(defaultConfig()); err != nil {
		t.Fatalf("save: %v", err)
	}
	info, err := os.Stat(GetConfigPath())
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Fatalf("expected 0600 permissions, got %o", perm)
	}
	if filepath.Base(GetConfigPath()) != "console.yaml" {
		t.Fatalf("unexpected config file name %s", GetConfigPath())
	}
}

func TestWebsocketURL(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"http://localhost:8000", "ws://localhost:8000"},
		{"https://cai.example.com", "wss://cai.example.com"},
		{"http://localhost:8000/", "ws://localhost:8000"},
	}
	for _, tc := range cases {
		cfg := &Config{ServerURL: tc.in}
		if got := cfg.WebsocketURL(); got != tc.want {
			t.Errorf("WebsocketURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
