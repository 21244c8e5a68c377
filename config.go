package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config is the optional config file, ~/.config/zoomzt2/config.yaml.
// Anything set there is a default that flags and environment override.
type Config struct {
	Port      string        `yaml:"port"`
	Serial    string        `yaml:"serial"`
	Baud      int           `yaml:"baud"`
	Timeout   time.Duration `yaml:"timeout"`
	LogLevel  string        `yaml:"log_level"`
	LogFormat string        `yaml:"log_format"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "zoomzt2", "config.yaml")
}

// LoadConfig reads path. A missing file gives a zero Config.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("%w: %w", ErrResource, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// applyConfig copies config values into the global options whose flag was
// given neither on the command line nor through the environment.
func applyConfig(c *cli.Command, cfg Config) {
	if cfg.Port != "" && !c.IsSet("port") {
		portPattern = cfg.Port
	}
	if cfg.Serial != "" && !c.IsSet("serial") {
		serialDevice = cfg.Serial
	}
	if cfg.Baud != 0 && !c.IsSet("baud") {
		baud = cfg.Baud
	}
	if cfg.Timeout != 0 && !c.IsSet("timeout") {
		timeout = cfg.Timeout
	}
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}
