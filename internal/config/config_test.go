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

	cfg := &Config{DefaultSession: "work"}
	cfg.Realtime.Enabled = true
	cfg.Realtime.RetryDelay = Duration{1500 * time.Millisecond}
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
	if !loaded.Realtime.Enabled {
		t.Error("Realtime.Enabled = false, want true")
	}
	if loaded.Realtime.RetryDelay.Duration != 1500*time.Millisecond {
		t.Errorf("RetryDelay = %v, want 1.5s", loaded.Realtime.RetryDelay.Duration)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.toml")
	if err == nil {
		t.Error("Load() expected error for missing file")
	}
}

func TestLoadOrDefaultMissing(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("LoadOrDefault() error = %v", err)
	}
	if cfg.Backend.BaseURL != DefaultBaseURL {
		t.Errorf("BaseURL = %q, want %q", cfg.Backend.BaseURL, DefaultBaseURL)
	}
	if cfg.Realtime.RetryDelay.Duration != 3*time.Second {
		t.Errorf("RetryDelay = %v, want 3s", cfg.Realtime.RetryDelay.Duration)
	}
	if cfg.Presence.Interval.Duration != 5*time.Second {
		t.Errorf("Presence.Interval = %v, want 5s", cfg.Presence.Interval.Duration)
	}
	if cfg.Relay.PollInterval.Duration != 2*time.Second {
		t.Errorf("Relay.PollInterval = %v, want 2s", cfg.Relay.PollInterval.Duration)
	}
	if cfg.Typing.Expiry.Duration != 0 {
		t.Errorf("Typing.Expiry = %v, want 0 (disabled)", cfg.Typing.Expiry.Duration)
	}
}

func TestDurationsFromTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `
[backend]
base_url = "http://chat.example/api"
timeout = "2s"

[typing]
expiry = "8s"
`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadOrDefault(path)
	if err != nil {
		t.Fatalf("LoadOrDefault() error = %v", err)
	}
	if cfg.Backend.Timeout.Duration != 2*time.Second {
		t.Errorf("Timeout = %v, want 2s", cfg.Backend.Timeout.Duration)
	}
	if cfg.Typing.Expiry.Duration != 8*time.Second {
		t.Errorf("Typing.Expiry = %v, want 8s", cfg.Typing.Expiry.Duration)
	}
	if cfg.Backend.StreamURL != "http://chat.example/api/sse/messages" {
		t.Errorf("StreamURL = %q, want derived from base_url", cfg.Backend.StreamURL)
	}
	if cfg.Relay.BackendURL != "http://chat.example/api" {
		t.Errorf("Relay.BackendURL = %q, want base_url", cfg.Relay.BackendURL)
	}
}

func TestBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[realtime]\nretry_delay = \"soon\"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load() expected error for unparseable duration")
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
