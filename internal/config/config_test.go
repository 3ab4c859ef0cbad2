package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("Could not get home dir: %v", err)
	}

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "tilde expands to home", input: "~/downloads", expected: filepath.Join(home, "downloads")},
		{name: "absolute path unchanged", input: "/var/cache/jukebox", expected: "/var/cache/jukebox"},
		{name: "relative path unchanged", input: "cache/media", expected: "cache/media"},
		{name: "empty string unchanged", input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := expandPath(tt.input); got != tt.expected {
				t.Errorf("expandPath(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg := &Config{}

	player := cfg.GetPlayerConfig()
	if player.TransitionDelayMs != 1500 {
		t.Errorf("TransitionDelayMs = %d, want 1500", player.TransitionDelayMs)
	}

	prefetch := cfg.GetPrefetchConfig()
	if prefetch.Lookahead != 3 {
		t.Errorf("Lookahead = %d, want 3", prefetch.Lookahead)
	}

	backend := cfg.GetBackendConfig()
	if backend.Preferred != "auto" {
		t.Errorf("Preferred = %q, want auto", backend.Preferred)
	}
	if backend.MpvPath != "mpv" || backend.FfplayPath != "ffplay" {
		t.Errorf("binaries = %q/%q, want mpv/ffplay", backend.MpvPath, backend.FfplayPath)
	}

	resolver := cfg.GetResolverConfig()
	if resolver.Binary != "yt-dlp" {
		t.Errorf("resolver binary = %q, want yt-dlp", resolver.Binary)
	}
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
vip_requesters = ["alice", "bob"]

[player]
transition_delay_ms = 500

[backend]
preferred = "ffplay"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if !cfg.IsVIP("alice") || !cfg.IsVIP("bob") {
		t.Error("expected alice and bob to be VIPs")
	}
	if cfg.IsVIP("carol") {
		t.Error("carol should not be a VIP")
	}
	if cfg.GetPlayerConfig().TransitionDelayMs != 500 {
		t.Errorf("TransitionDelayMs = %d, want 500", cfg.GetPlayerConfig().TransitionDelayMs)
	}
	if cfg.GetBackendConfig().Preferred != "ffplay" {
		t.Errorf("Preferred = %q, want ffplay", cfg.GetBackendConfig().Preferred)
	}
}
