package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", "/nonexistent/client.yaml")
	cfg := Load()

	if cfg.ServerURL != "http://localhost:8080" {
		t.Errorf("server url = %q", cfg.ServerURL)
	}
	if cfg.ReconnectDelay != 5*time.Second {
		t.Errorf("reconnect delay = %v, want fixed 5s", cfg.ReconnectDelay)
	}
	if cfg.HistoryPageSize != 50 {
		t.Errorf("history page size = %d", cfg.HistoryPageSize)
	}
	if cfg.MatchRefresh != time.Minute {
		t.Errorf("match refresh = %v", cfg.MatchRefresh)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "client.yaml")
	data := []byte("server_url: https://chat.example.com\nreconnect_delay: 3\nhistory_page_size: 25\nmatch_refresh: 30\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_PATH", path)

	cfg := Load()
	if cfg.ServerURL != "https://chat.example.com" {
		t.Errorf("server url = %q", cfg.ServerURL)
	}
	if cfg.ReconnectDelay != 3*time.Second {
		t.Errorf("reconnect delay = %v", cfg.ReconnectDelay)
	}
	if cfg.HistoryPageSize != 25 {
		t.Errorf("history page size = %d", cfg.HistoryPageSize)
	}
	if cfg.MatchRefresh != 30*time.Second {
		t.Errorf("match refresh = %v", cfg.MatchRefresh)
	}
}

func TestEnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "client.yaml")
	if err := os.WriteFile(path, []byte("server_url: https://yaml.example.com\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("SERVER_URL", "https://env.example.com")
	t.Setenv("RECONNECT_DELAY", "7")

	cfg := Load()
	if cfg.ServerURL != "https://env.example.com" {
		t.Errorf("server url = %q, env must win", cfg.ServerURL)
	}
	if cfg.ReconnectDelay != 7*time.Second {
		t.Errorf("reconnect delay = %v", cfg.ReconnectDelay)
	}
}

func TestMatchRefreshClampedToOneMinute(t *testing.T) {
	t.Setenv("CONFIG_PATH", "/nonexistent/client.yaml")
	t.Setenv("MATCH_REFRESH", "600")

	cfg := Load()
	if cfg.MatchRefresh != time.Minute {
		t.Errorf("match refresh = %v, want clamped to 1m", cfg.MatchRefresh)
	}
}

func TestDerivedURLs(t *testing.T) {
	cfg := &Config{ServerURL: "https://chat.example.com/"}
	if got := cfg.APIBase(); got != "https://chat.example.com/api" {
		t.Errorf("api base = %q", got)
	}
	if got := cfg.WSURL(); got != "wss://chat.example.com/chat" {
		t.Errorf("ws url = %q", got)
	}

	cfg.ServerURL = "http://localhost:8080"
	if got := cfg.WSURL(); got != "ws://localhost:8080/chat" {
		t.Errorf("ws url = %q", got)
	}
}
