// Package config provides layered configuration for the pxsort CLI.
//
// Values come from built-in defaults, a pxsort.yaml file, PXSORT_
// environment variables, an optional named preset and finally any
// explicitly set command-line flags, in increasing order of precedence.
package config

import (
	"time"

	"github.com/leapstack-labs/pxsort/internal/pixel"
	"github.com/leapstack-labs/pxsort/internal/sorter"
)

// Config holds all CLI configuration options.
type Config struct {
	Verbose      bool                  `koanf:"verbose" yaml:"verbose"`
	OutputFormat string                `koanf:"output" yaml:"output"`
	StatePath    string                `koanf:"state_path" yaml:"state_path"`
	NoHistory    bool                  `koanf:"no_history" yaml:"no_history"`
	Preset       string                `koanf:"preset" yaml:"preset,omitempty"`
	Sort         SortConfig            `koanf:"sort" yaml:"sort"`
	Animate      AnimateConfig         `koanf:"animate" yaml:"animate"`
	Serve        ServeConfig           `koanf:"serve" yaml:"serve"`
	Watch        WatchConfig           `koanf:"watch" yaml:"watch"`
	Presets      map[string]SortConfig `koanf:"presets" yaml:"presets,omitempty"`
}

// SortConfig holds the sort settings. It is also the shape of a preset.
type SortConfig struct {
	Key           pixel.Key          `koanf:"key" yaml:"key,omitempty"`
	Coefficients  pixel.Coefficients `koanf:"coefficients" yaml:"coefficients,omitempty"`
	Direction     sorter.Direction   `koanf:"direction" yaml:"direction,omitempty"`
	Interval      int                `koanf:"interval" yaml:"interval,omitempty"`
	Progressive   int                `koanf:"progressive" yaml:"progressive,omitempty"`
	Discretize    int                `koanf:"discretize" yaml:"discretize,omitempty"`
	Reverse       bool               `koanf:"reverse" yaml:"reverse,omitempty"`
	Shuffle       bool               `koanf:"shuffle" yaml:"shuffle,omitempty"`
	Splice        float64            `koanf:"splice" yaml:"splice,omitempty"`
	Threshold     string             `koanf:"threshold" yaml:"threshold,omitempty"`
	EdgeThreshold float64            `koanf:"edge_threshold" yaml:"edge_threshold,omitempty"`
	Channel       pixel.Channel      `koanf:"channel" yaml:"channel,omitempty"`
	Seed          int64              `koanf:"seed" yaml:"seed,omitempty"`
	Workers       int                `koanf:"workers" yaml:"workers,omitempty"`
	Mask          string             `koanf:"mask" yaml:"mask,omitempty"`
	KeyScript     string             `koanf:"key_script" yaml:"key_script,omitempty"`
	Quality       int                `koanf:"quality" yaml:"quality,omitempty"`
}

// AnimateConfig enables GIF output when Frames > 0.
type AnimateConfig struct {
	Frames int `koanf:"frames" yaml:"frames"`
	Delay  int `koanf:"delay" yaml:"delay"`
}

// ServeConfig configures the HTTP service.
type ServeConfig struct {
	Host string `koanf:"host" yaml:"host"`
	Port int    `koanf:"port" yaml:"port"`
}

// WatchConfig configures the directory watcher.
type WatchConfig struct {
	Debounce time.Duration `koanf:"debounce" yaml:"debounce"`
}

// Default configuration values.
const (
	DefaultOutput    = "auto" // Auto-detect: TTY=text, non-TTY=markdown
	DefaultStateFile = "history.db"
	DefaultHost      = "127.0.0.1"
	DefaultPort      = 8765
	DefaultDebounce  = 200 * time.Millisecond
	DefaultDelay     = 8
)
