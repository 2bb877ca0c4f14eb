package config

import (
	"fmt"

	"github.com/leapstack-labs/pxsort/internal/animate"
	"github.com/leapstack-labs/pxsort/internal/sorter"
)

var validOutputs = map[string]bool{"auto": true, "text": true, "markdown": true, "json": true}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if !validOutputs[c.OutputFormat] {
		return fmt.Errorf("invalid output format %q (valid: auto, text, markdown, json)", c.OutputFormat)
	}
	if c.Serve.Port < 0 || c.Serve.Port > 65535 {
		return fmt.Errorf("serve.port must be within 0..65535, got %d", c.Serve.Port)
	}
	if c.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must not be negative, got %s", c.Watch.Debounce)
	}
	if p := c.AnimateParams(); p != nil {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	if c.Sort.Quality < 0 || c.Sort.Quality > 100 {
		return fmt.Errorf("quality must be within 1..100, got %d", c.Sort.Quality)
	}
	_, err := c.Sort.Options()
	return err
}

// Options converts the sort settings into sorter options.
func (s SortConfig) Options() (sorter.Options, error) {
	opts := sorter.DefaultOptions()
	if s.Key != "" {
		opts.Key = s.Key
	}
	if !s.Coefficients.IsZero() {
		opts.Coefficients = s.Coefficients
	}
	if s.Direction != "" {
		opts.Direction = s.Direction
	}
	if s.Discretize > 0 {
		opts.Discretize = s.Discretize
	}
	opts.Interval = s.Interval
	opts.Progressive = s.Progressive
	opts.Reverse = s.Reverse
	opts.Shuffle = s.Shuffle
	opts.Splice = s.Splice
	opts.EdgeThreshold = s.EdgeThreshold
	opts.Channel = s.Channel
	opts.Seed = s.Seed
	opts.Workers = s.Workers

	if s.Threshold != "" {
		r, err := sorter.ParseRange(s.Threshold)
		if err != nil {
			return opts, fmt.Errorf("%w: threshold: %w", sorter.ErrInvalidOptions, err)
		}
		opts.Threshold = r
	}

	// A key script replaces the named key, so the name is not checked.
	if s.KeyScript != "" {
		return opts, nil
	}
	return opts, opts.Validate()
}

// AnimateParams returns the animation settings, or nil when animation is
// disabled.
func (c *Config) AnimateParams() *animate.Params {
	if c.Animate.Frames <= 0 {
		return nil
	}
	delay := c.Animate.Delay
	if delay == 0 {
		delay = DefaultDelay
	}
	return &animate.Params{Frames: c.Animate.Frames, Delay: delay}
}
