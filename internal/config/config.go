package config

import (
	"os"
	"path/filepath"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	// Requester IDs whose additions jump the non-priority partition.
	VIPRequesters []string `koanf:"vip_requesters"`

	Backend  BackendConfig  `koanf:"backend"`
	Player   PlayerConfig   `koanf:"player"`
	Prefetch PrefetchConfig `koanf:"prefetch"`
	Resolver ResolverConfig `koanf:"resolver"`
	Logs     LogsConfig     `koanf:"logs"`
}

// BackendConfig selects and locates the external audio player.
type BackendConfig struct {
	Preferred  string `koanf:"preferred"` // "auto", "mpv", or "ffplay"
	MpvPath    string `koanf:"mpv_path"`
	FfplayPath string `koanf:"ffplay_path"`
	SocketDir  string `koanf:"socket_dir"` // mpv IPC sockets (default: os temp dir)
}

// PlayerConfig holds orchestrator tuning.
type PlayerConfig struct {
	TransitionDelayMs int `koanf:"transition_delay_ms"` // pause between songs (default: 1500)
}

// PrefetchConfig holds background resolution tuning.
type PrefetchConfig struct {
	Lookahead int `koanf:"lookahead"` // queued url items resolved ahead (default: 3)
}

// ResolverConfig locates the download tool.
type ResolverConfig struct {
	Binary      string `koanf:"binary"`       // default: "yt-dlp"
	DownloadDir string `koanf:"download_dir"` // default: XDG cache dir
}

// LogsConfig controls log output.
type LogsConfig struct {
	Level string `koanf:"level"` // logrus level name (default: "info")
	File  string `koanf:"file"`  // empty means stderr
	JSON  bool   `koanf:"json"`
}

func Load(extraPath string) (*Config, error) {
	k := koanf.New(".")

	// Try config files in order of priority (last wins)
	configPaths := getConfigPaths()
	if extraPath != "" {
		configPaths = append(configPaths, extraPath)
	}

	for _, path := range configPaths {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
				return nil, err
			}
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, err
	}

	cfg.Backend.SocketDir = expandPath(cfg.Backend.SocketDir)
	cfg.Resolver.DownloadDir = expandPath(cfg.Resolver.DownloadDir)
	cfg.Logs.File = expandPath(cfg.Logs.File)

	return cfg, nil
}

func getConfigPaths() []string {
	paths := []string{}

	// 1. ~/.config/jukebox/config.toml
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "jukebox", "config.toml"))
	}

	// 2. ./config.toml (pwd, highest priority)
	paths = append(paths, "config.toml")

	return paths
}

func expandPath(path string) string {
	if path != "" && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

// IsVIP reports whether the requester gets priority placement.
func (c *Config) IsVIP(requesterID string) bool {
	for _, id := range c.VIPRequesters {
		if id == requesterID {
			return true
		}
	}
	return false
}

// GetPlayerConfig returns the player configuration with defaults applied.
func (c *Config) GetPlayerConfig() PlayerConfig {
	cfg := c.Player
	if cfg.TransitionDelayMs <= 0 {
		cfg.TransitionDelayMs = 1500
	}
	return cfg
}

// GetPrefetchConfig returns the prefetch configuration with defaults applied.
func (c *Config) GetPrefetchConfig() PrefetchConfig {
	cfg := c.Prefetch
	if cfg.Lookahead <= 0 {
		cfg.Lookahead = 3
	}
	return cfg
}

// GetBackendConfig returns the backend configuration with defaults applied.
func (c *Config) GetBackendConfig() BackendConfig {
	cfg := c.Backend
	if cfg.Preferred == "" {
		cfg.Preferred = "auto"
	}
	if cfg.MpvPath == "" {
		cfg.MpvPath = "mpv"
	}
	if cfg.FfplayPath == "" {
		cfg.FfplayPath = "ffplay"
	}
	if cfg.SocketDir == "" {
		cfg.SocketDir = os.TempDir()
	}
	return cfg
}

// GetResolverConfig returns the resolver configuration with defaults applied.
func (c *Config) GetResolverConfig() ResolverConfig {
	cfg := c.Resolver
	if cfg.Binary == "" {
		cfg.Binary = "yt-dlp"
	}
	return cfg
}
