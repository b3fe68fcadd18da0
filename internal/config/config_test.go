package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	cfg := Default()
	cfg.DefaultSession = "work"
	cfg.Relay.FetchTimeout = Duration{3 * time.Second}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.DefaultSession != "work" {
		t.Errorf("DefaultSession = %q, want %q", loaded.DefaultSession, "work")
	}
	if loaded.Relay.FetchTimeout.Duration != 3*time.Second {
		t.Errorf("FetchTimeout = %v, want 3s", loaded.Relay.FetchTimeout)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.toml")
	if err == nil {
		t.Error("Load() expected error for missing file")
	}
}

func TestSavePermissions(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	if err := Save(path, &Config{DefaultSession: "main"}); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	perm := info.Mode().Perm()
	if perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}

func TestResolveMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Resolve(filepath.Join(t.TempDir(), "none.toml"), nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if cfg.Relay.URL != "ws://localhost:8080" {
		t.Errorf("Relay.URL = %q", cfg.Relay.URL)
	}
	if cfg.MLS.Mode != ModeMock {
		t.Errorf("MLS.Mode = %q, want mock", cfg.MLS.Mode)
	}
	if cfg.Loop.InvitePollEvery != 6 {
		t.Errorf("InvitePollEvery = %d, want 6", cfg.Loop.InvitePollEvery)
	}
}

func TestResolvePartialFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := "[loop]\nfetch_interval = \"2s\"\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	env := map[string]string{"DIALOG_RELAY_URL": "wss://relay.example"}
	cfg, err := Resolve(path, func(k string) string { return env[k] })
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if cfg.Loop.FetchInterval.Duration != 2*time.Second {
		t.Errorf("FetchInterval = %v, want 2s", cfg.Loop.FetchInterval)
	}
	if cfg.Loop.TickInterval.Duration != time.Second {
		t.Errorf("TickInterval = %v, want default 1s", cfg.Loop.TickInterval)
	}
	if cfg.Relay.URL != "wss://relay.example" {
		t.Errorf("Relay.URL = %q, want env override", cfg.Relay.URL)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.MLS.Mode = "quantum"
	if err := cfg.Validate(); err == nil {
		t.Error("unknown mode accepted")
	}

	cfg = Default()
	cfg.MLS.Mode = ModeReal
	if err := cfg.Validate(); err == nil {
		t.Error("real mode without sidecar socket accepted")
	}

	cfg = Default()
	cfg.Relay.URL = "http://localhost:8080"
	if err := cfg.Validate(); err == nil {
		t.Error("http relay url accepted")
	}
}
