package sorter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/leapstack-labs/pxsort/internal/mask"
	"github.com/leapstack-labs/pxsort/internal/pixel"
)

// ErrInvalidOptions is wrapped by every Options validation error.
var ErrInvalidOptions = errors.New("invalid sort options")

// Direction selects whether rows or columns are sorted.
type Direction string

// Walk directions.
const (
	Horizontal Direction = "horizontal"
	Vertical   Direction = "vertical"
)

// ParseDirection accepts "horizontal"/"h"/"rows" and "vertical"/"v"/"columns".
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "horizontal", "h", "rows", "":
		return Horizontal, nil
	case "vertical", "v", "columns", "cols":
		return Vertical, nil
	}
	return "", fmt.Errorf("unknown direction %q (valid: horizontal, vertical)", s)
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Direction) UnmarshalText(text []byte) error {
	parsed, err := ParseDirection(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Range is an inclusive key range.
type Range struct {
	Lo uint8 `json:"lo"`
	Hi uint8 `json:"hi"`
}

// ParseRange parses "lo,hi".
func ParseRange(s string) (*Range, error) {
	var lo, hi int
	if _, err := fmt.Sscanf(strings.ReplaceAll(s, " ", ""), "%d,%d", &lo, &hi); err != nil {
		return nil, fmt.Errorf("range must be \"lo,hi\", got %q", s)
	}
	if lo < 0 || hi > 255 || lo > hi {
		return nil, fmt.Errorf("range %q must satisfy 0 <= lo <= hi <= 255", s)
	}
	return &Range{Lo: uint8(lo), Hi: uint8(hi)}, nil
}

// Options control a sort pass.
type Options struct {
	Key          pixel.Key          `json:"key"`
	Coefficients pixel.Coefficients `json:"coefficients"`
	// KeyFunc overrides Key when set.
	KeyFunc pixel.KeyFunc `json:"-"`

	Direction   Direction `json:"direction"`
	Interval    int       `json:"interval"`
	Progressive int       `json:"progressive,omitempty"`
	Discretize  int       `json:"discretize,omitempty"`
	Reverse     bool      `json:"reverse,omitempty"`
	Shuffle     bool      `json:"shuffle,omitempty"`
	Splice      float64   `json:"splice,omitempty"`

	Threshold     *Range        `json:"threshold,omitempty"`
	EdgeThreshold float64       `json:"edge_threshold,omitempty"`
	Mask          *mask.Mask    `json:"-"`
	Channel       pixel.Channel `json:"channel,omitempty"`

	// Seed makes a pass reproducible. Zero picks a random seed.
	Seed    int64 `json:"seed"`
	Workers int   `json:"-"`
}

// DefaultOptions sorts whole rows by luma.
func DefaultOptions() Options {
	return Options{
		Key:          pixel.KeyLuma,
		Coefficients: pixel.DefaultCoefficients(),
		Direction:    Horizontal,
		Discretize:   1,
	}
}

// Validate checks option ranges.
func (o Options) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidOptions, fmt.Sprintf(format, args...))
	}

	if o.KeyFunc == nil {
		if _, err := pixel.ParseKey(string(o.Key)); err != nil {
			return invalid("%v", err)
		}
	}
	if !o.Coefficients.IsZero() {
		if err := o.Coefficients.Validate(); err != nil {
			return invalid("%v", err)
		}
	}
	if o.Direction != Horizontal && o.Direction != Vertical {
		return invalid("unknown direction %q", o.Direction)
	}
	if o.Interval < 0 {
		return invalid("interval must be >= 0, got %d", o.Interval)
	}
	if o.Progressive < 0 {
		return invalid("progressive must be >= 0, got %d", o.Progressive)
	}
	if o.Discretize < 0 {
		return invalid("discretize must be >= 0, got %d", o.Discretize)
	}
	if o.Splice < 0 || o.Splice > 1 {
		return invalid("splice must be within [0, 1], got %g", o.Splice)
	}
	if o.Threshold != nil && o.Threshold.Lo > o.Threshold.Hi {
		return invalid("threshold lower bound %d exceeds upper bound %d", o.Threshold.Lo, o.Threshold.Hi)
	}
	if o.EdgeThreshold < 0 {
		return invalid("edge threshold must be >= 0, got %g", o.EdgeThreshold)
	}
	if o.Channel != "" {
		if _, err := pixel.ParseChannel(string(o.Channel)); err != nil {
			return invalid("%v", err)
		}
	}
	if o.Workers < 0 {
		return invalid("workers must be >= 0, got %d", o.Workers)
	}
	return nil
}

func (o Options) keyFunc() pixel.KeyFunc {
	if o.KeyFunc != nil {
		return o.KeyFunc
	}
	coef := o.Coefficients
	if coef.IsZero() {
		coef = pixel.DefaultCoefficients()
	}
	return o.Key.Func(coef)
}
