package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Port != 8317 {
		t.Fatalf("Port = %d, want 8317", cfg.Port)
	}
	if cfg.Upstream.BaseURL != "https://api.anthropic.com" {
		t.Fatalf("BaseURL = %q", cfg.Upstream.BaseURL)
	}
	if cfg.Selector.TopN != 3 {
		t.Fatalf("TopN = %d, want 3", cfg.Selector.TopN)
	}
	if cfg.Refresh.SweepDelay != time.Second {
		t.Fatalf("SweepDelay = %v, want 1s", cfg.Refresh.SweepDelay)
	}
	if err := cfg.validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
port: 9000
api-keys:
  - key-one
  - key-two
selector:
  top-n: 5
refresh:
  sweep-buffer: 20m
store:
  driver: file
  path: /tmp/creds
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != 9000 {
		t.Fatalf("Port = %d, want 9000", cfg.Port)
	}
	if cfg.Selector.TopN != 5 {
		t.Fatalf("TopN = %d, want 5", cfg.Selector.TopN)
	}
	if cfg.Refresh.SweepBuffer != 20*time.Minute {
		t.Fatalf("SweepBuffer = %v, want 20m", cfg.Refresh.SweepBuffer)
	}
	if cfg.Store.Driver != "file" {
		t.Fatalf("Driver = %q, want file", cfg.Store.Driver)
	}
	// Untouched sections keep their defaults.
	if cfg.Upstream.ClientID == "" {
		t.Fatal("ClientID default lost on partial override")
	}
}

func TestLoadRejectsBadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("port: -1\n"), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("Load() accepted invalid port")
	}

	if err := os.WriteFile(path, []byte("store:\n  driver: redis\n"), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("Load() accepted unknown store driver")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GATEWAY_API_KEYS", "alpha, beta ,")
	t.Setenv("GATEWAY_ADMIN_KEY", "root-key")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.APIKeys) != 2 || cfg.APIKeys[0] != "alpha" || cfg.APIKeys[1] != "beta" {
		t.Fatalf("APIKeys = %v, want [alpha beta]", cfg.APIKeys)
	}
	if cfg.AdminKey != "root-key" {
		t.Fatalf("AdminKey = %q, want root-key", cfg.AdminKey)
	}
}

func TestHasAPIKey(t *testing.T) {
	cfg := Default()
	if cfg.HasAPIKey("anything") {
		t.Fatal("empty allow-list must reject every key")
	}

	cfg.APIKeys = []string{"good-key"}
	if !cfg.HasAPIKey("good-key") {
		t.Fatal("HasAPIKey(good-key) = false, want true")
	}
	if cfg.HasAPIKey("bad-key") {
		t.Fatal("HasAPIKey(bad-key) = true, want false")
	}
	if cfg.HasAPIKey("") {
		t.Fatal("HasAPIKey(\"\") = true, want false")
	}
}
