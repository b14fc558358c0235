// Package config loads tnpilot's server configuration from an optional YAML
// file with environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "10s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

type Config struct {
	Listen          string   `yaml:"listen"`
	DataDir         string   `yaml:"data_dir"`
	LogLevel        string   `yaml:"log_level"`
	ConnectTimeout  Duration `yaml:"connect_timeout"`
	PollInterval    Duration `yaml:"poll_interval"`
	RefreshInterval Duration `yaml:"refresh_interval"`
	IdleTimeout     Duration `yaml:"idle_timeout"`
	ScreenRows      int      `yaml:"screen_rows"`
	ScreenCols      int      `yaml:"screen_cols"`
}

func Default() Config {
	return Config{
		Listen:          ":8000",
		DataDir:         defaultDataDir(),
		LogLevel:        "info",
		ConnectTimeout:  Duration(10 * time.Second),
		PollInterval:    Duration(250 * time.Millisecond),
		RefreshInterval: Duration(time.Second),
		IdleTimeout:     Duration(30 * time.Minute),
		ScreenRows:      24,
		ScreenCols:      80,
	}
}

// Load reads the config file at path (missing file is fine when path is
// empty) and applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	if v := os.Getenv("TNPILOT_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("TNPILOT_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("TNPILOT_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	return cfg, nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tnpilot"
	}
	return filepath.Join(home, ".tnpilot")
}
