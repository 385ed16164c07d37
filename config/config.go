// Package config holds the settings of a gcopy run. Values come from an
// optional YAML file and are then overridden by command line flags.
package config

import (
	"os"
	"runtime"

	"github.com/bmatcuk/doublestar/v4"
	"gitlab.com/tozd/go/errors"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.Base("invalid configuration")

// Config is the full set of options for one copy run.
type Config struct {
	Source      string `yaml:"source"`
	Destination string `yaml:"destination"`
	Threads     int    `yaml:"threads"`
	Pattern     string `yaml:"pattern"`
	BufferSize  int    `yaml:"buffer_size"`

	// StateDir enables the bbolt job ledger when non-empty.
	StateDir string `yaml:"state_dir"`

	// NoMetadata disables preserving permissions and modification times.
	NoMetadata bool `yaml:"no_metadata"`

	TUI      bool   `yaml:"tui"`
	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`
}

// Default returns the configuration used when nothing is specified.
func Default() Config {
	return Config{
		Threads:    runtime.NumCPU(),
		Pattern:    "*",
		BufferSize: 1 * 1024 * 1024,
		LogLevel:   "info",
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks that the configuration can drive a run.
func (c Config) Validate() error {
	switch {
	case c.Source == "":
		return errors.Errorf("%w: source is required", ErrInvalid)
	case c.Destination == "":
		return errors.Errorf("%w: destination is required", ErrInvalid)
	case c.Source == c.Destination:
		return errors.Errorf("%w: source and destination are the same", ErrInvalid)
	case c.Threads < 1:
		return errors.Errorf("%w: threads must be positive, got %d", ErrInvalid, c.Threads)
	case c.BufferSize < 0:
		return errors.Errorf("%w: buffer_size must not be negative", ErrInvalid)
	case c.Pattern != "" && !doublestar.ValidatePattern(c.Pattern):
		return errors.Errorf("%w: bad pattern %q", ErrInvalid, c.Pattern)
	}
	return nil
}
