// Package config loads the agent configuration from an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/eliteGoblin/focusd/ficha/internal/infra"
	"github.com/eliteGoblin/focusd/ficha/internal/usecase"
)

// Config is the agent configuration. Zero values are replaced by defaults.
type Config struct {
	DataDir           string        `yaml:"data_dir"`
	LogFile           string        `yaml:"log_file"`
	ScanInterval      time.Duration `yaml:"scan_interval"`
	IdleCheckInterval time.Duration `yaml:"idle_check_interval"`
	ThreatGrace       time.Duration `yaml:"threat_grace"`
	WatchDebounce     time.Duration `yaml:"watch_debounce"`
	Stealth           StealthConfig `yaml:"stealth"`
}

// StealthConfig names the process in each stealth state.
type StealthConfig struct {
	DecoyName    string `yaml:"decoy_name"` // "random" picks a system daemon name
	OriginalName string `yaml:"original_name"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads path and applies defaults and environment overrides.
// A missing file at path is not an error when optional is true.
func Load(path string, optional bool) (*Config, error) {
	b, err := os.ReadFile(expandHome(path))
	if err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			cfg := Default()
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromBytes parses data without environment overrides (for testing).
func LoadFromBytes(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(&cfg)
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DefaultPath is the config file looked up when --config is not given.
func DefaultPath() string {
	return filepath.Join(infra.DetectExecMode().DataDir, "config.yaml")
}

func applyDefaults(cfg *Config) {
	mode := infra.DetectExecMode()
	if cfg.DataDir == "" {
		cfg.DataDir = mode.DataDir
	}
	cfg.DataDir = expandHome(cfg.DataDir)
	if cfg.LogFile == "" {
		cfg.LogFile = filepath.Join(cfg.DataDir, filepath.Base(mode.LogFile))
	}
	cfg.LogFile = expandHome(cfg.LogFile)

	if cfg.ScanInterval == 0 {
		cfg.ScanInterval = usecase.DefaultScanInterval
	}
	if cfg.IdleCheckInterval == 0 {
		cfg.IdleCheckInterval = usecase.DefaultIdleCheckInterval
	}
	if cfg.ThreatGrace == 0 {
		cfg.ThreatGrace = usecase.DefaultThreatGrace
	}
	if cfg.WatchDebounce == 0 {
		cfg.WatchDebounce = infra.DefaultWatchDebounce
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FICHA_DATA_DIR"); v != "" {
		cfg.DataDir = expandHome(v)
		cfg.LogFile = filepath.Join(cfg.DataDir, filepath.Base(cfg.LogFile))
	}
	if v := os.Getenv("FICHA_LOG_FILE"); v != "" {
		cfg.LogFile = expandHome(v)
	}
}

func validateConfig(cfg *Config) error {
	for name, d := range map[string]time.Duration{
		"scan_interval":       cfg.ScanInterval,
		"idle_check_interval": cfg.IdleCheckInterval,
		"threat_grace":        cfg.ThreatGrace,
		"watch_debounce":      cfg.WatchDebounce,
	} {
		if d < 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if cfg.ScanInterval < 10*time.Millisecond {
		return fmt.Errorf("scan_interval %s is too short", cfg.ScanInterval)
	}
	return nil
}

// expandHome expands a leading ~ to the invoking user's home directory.
func expandHome(path string) string {
	if path == "~" {
		return infra.GetRealUserHome()
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(infra.GetRealUserHome(), path[2:])
	}
	return path
}
