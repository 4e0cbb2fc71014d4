// Package config handles heap.toml runtime configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// FileName is the name of the configuration file searched for by FindAndLoad.
const FileName = "heap.toml"

// Config represents a heap.toml configuration.
type Config struct {
	Heap      HeapConfig      `toml:"heap"`
	Collector CollectorConfig `toml:"collector"`
	Log       LogConfig       `toml:"log"`
	Telemetry TelemetryConfig `toml:"telemetry"`

	// Dir is the directory containing the heap.toml file (set at load time).
	Dir string `toml:"-"`
}

// HeapConfig sizes the object table.
type HeapConfig struct {
	InitialCapacity int `toml:"initial-capacity"`
}

// CollectorConfig configures periodic collection. An empty or zero interval
// disables it.
type CollectorConfig struct {
	Interval string `toml:"interval"`

	interval time.Duration
}

// LogConfig configures commonlog.
type LogConfig struct {
	Verbosity int    `toml:"verbosity"`
	Path      string `toml:"path"`
}

// TelemetryConfig names the optional telemetry sinks.
type TelemetryConfig struct {
	Database string `toml:"database"`
	EventLog string `toml:"event-log"`
}

// Default returns the configuration used when no heap.toml exists.
func Default() *Config {
	return &Config{
		Heap: HeapConfig{InitialCapacity: 64},
		Log:  LogConfig{Verbosity: 1},
	}
}

// Load parses a heap.toml file from the given directory.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	c := Default()
	if err := toml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	c.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	if c.Heap.InitialCapacity < 0 {
		return nil, fmt.Errorf("%s: initial-capacity must not be negative", path)
	}
	if c.Collector.Interval != "" {
		d, err := time.ParseDuration(c.Collector.Interval)
		if err != nil {
			return nil, fmt.Errorf("%s: collector interval: %w", path, err)
		}
		if d < 0 {
			return nil, fmt.Errorf("%s: collector interval must not be negative", path)
		}
		c.Collector.interval = d
	}

	return c, nil
}

// FindAndLoad walks up from startDir to find a heap.toml file, then loads
// and returns it. Returns Default() if none is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return Default(), nil
		}
		dir = parent
	}
}

// CollectInterval returns the periodic collection interval; zero means
// periodic collection is disabled.
func (c *Config) CollectInterval() time.Duration {
	return c.Collector.interval
}

// Resolve returns p relative to the configuration directory. Absolute and
// empty paths are returned unchanged.
func (c *Config) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || c.Dir == "" {
		return p
	}
	return filepath.Join(c.Dir, p)
}
