// Package config loads project configuration from gantry.yaml. All
// settings have working defaults; a missing file is a valid, fully
// defaulted configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the configuration file looked up in the project root.
const FileName = "gantry.yaml"

// Duration is a time.Duration that unmarshals from yaml strings like
// "5s" or "250ms".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the setting as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Workers configures the worker pool.
type Workers struct {
	// Count is the pool size.
	Count int `yaml:"count"`

	// ReadyTimeout bounds worker startup.
	ReadyTimeout Duration `yaml:"ready_timeout"`

	// ExecuteTimeout bounds one invocation round trip.
	ExecuteTimeout Duration `yaml:"execute_timeout"`
}

// Trace configures invocation trace persistence.
type Trace struct {
	Enabled bool `yaml:"enabled"`

	// Path of the sqlite database, relative to the project root.
	Path string `yaml:"path"`
}

// Log configures the host logger.
type Log struct {
	// Level is a logrus level name: debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is "text" or "json".
	Format string `yaml:"format"`
}

// Config is the full gantry.yaml shape.
type Config struct {
	Workers Workers `yaml:"workers"`
	Trace   Trace   `yaml:"trace"`
	Log     Log     `yaml:"log"`
}

// Default returns the configuration used when no gantry.yaml exists.
func Default() *Config {
	return &Config{
		Workers: Workers{
			Count:          1,
			ReadyTimeout:   Duration(5 * time.Second),
			ExecuteTimeout: Duration(30 * time.Second),
		},
		Trace: Trace{
			Enabled: true,
			Path:    filepath.Join(".gantry", "trace.db"),
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the configuration from the project root. A missing file
// yields the defaults; any present file must parse cleanly, with
// unknown keys rejected so typos surface instead of silently
// defaulting.
func Load(projectRoot string) (*Config, error) {
	path := filepath.Join(projectRoot, FileName)
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	cfg := Default()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Workers.Count < 1 {
		return fmt.Errorf("workers.count must be at least 1, got %d", c.Workers.Count)
	}
	if c.Workers.ReadyTimeout <= 0 {
		return fmt.Errorf("workers.ready_timeout must be positive")
	}
	if c.Workers.ExecuteTimeout <= 0 {
		return fmt.Errorf("workers.execute_timeout must be positive")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}
