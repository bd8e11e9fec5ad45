// Package config loads livepad's YAML configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the file configuration. Flags override it.
type Config struct {
	Model     string          `yaml:"model"`
	Dir       string          `yaml:"dir"`
	StatePath string          `yaml:"state_path"`
	LogPath   string          `yaml:"log_path"`
	Animation AnimationConfig `yaml:"animation"`
	Preview   PreviewConfig   `yaml:"preview"`
	Chrome    ChromeConfig    `yaml:"chrome"`
	Nvim      NvimConfig      `yaml:"nvim"`
}

// AnimationConfig holds the applier pacing.
type AnimationConfig struct {
	Disabled       bool   `yaml:"disabled"`
	SelectPause    string `yaml:"select_pause"`
	DeletePause    string `yaml:"delete_pause"`
	KeystrokeDelay string `yaml:"keystroke_delay"`
	SettleDelay    string `yaml:"settle_delay"`
}

// PreviewConfig holds debounce periods.
type PreviewConfig struct {
	RebuildDelay string `yaml:"rebuild_delay"`
	PersistDelay string `yaml:"persist_delay"`
}

// ChromeConfig selects the sandbox browser.
type ChromeConfig struct {
	Bin        string `yaml:"bin"`
	ControlURL string `yaml:"control_url"`
	Headful    bool   `yaml:"headful"`
}

// NvimConfig selects the editor instance.
type NvimConfig struct {
	ListenAddress string `yaml:"listen_address"`
}

// DefaultDir returns ~/.config/livepad, or a relative fallback.
func DefaultDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "livepad")
	}
	return ".livepad"
}

// DefaultPath is the config file read when none is given.
func DefaultPath() string {
	return filepath.Join(DefaultDir(), "config.yaml")
}

// StateDir is where the store and log live by default.
func StateDir() string {
	if dir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(dir, ".local", "state", "livepad")
	}
	return ".livepad"
}

// Default returns the built-in configuration.
func Default() *Config {
	state := StateDir()
	return &Config{
		Dir:       ".",
		StatePath: filepath.Join(state, "livepad.sqlite"),
		LogPath:   filepath.Join(state, "livepad.log"),
	}
}

// Load reads path over the defaults. A missing file is not an error unless
// it was asked for explicitly.
func Load(path string, explicit bool) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) && !explicit {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks that every duration parses.
func (c *Config) Validate() error {
	for name, v := range map[string]string{
		"animation.select_pause":    c.Animation.SelectPause,
		"animation.delete_pause":    c.Animation.DeletePause,
		"animation.keystroke_delay": c.Animation.KeystrokeDelay,
		"animation.settle_delay":    c.Animation.SettleDelay,
		"preview.rebuild_delay":     c.Preview.RebuildDelay,
		"preview.persist_delay":     c.Preview.PersistDelay,
	} {
		if v == "" {
			continue
		}
		if d, err := time.ParseDuration(v); err != nil || d < 0 {
			return fmt.Errorf("%s: invalid duration %q", name, v)
		}
	}
	return nil
}

// Duration parses s, returning fallback when s is empty or invalid.
func Duration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}
