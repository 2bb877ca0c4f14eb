package pixel

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"strconv"
	"strings"
)

// Coefficients are the per-channel weights used by the luma key.
type Coefficients struct {
	R float64 `koanf:"r" json:"r" yaml:"r"`
	G float64 `koanf:"g" json:"g" yaml:"g"`
	B float64 `koanf:"b" json:"b" yaml:"b"`
}

// DefaultCoefficients are the Rec. 709 luma weights.
func DefaultCoefficients() Coefficients {
	return Coefficients{R: 0.2126, G: 0.7152, B: 0.0722}
}

// ParseCoefficients parses "r,g,b".
func ParseCoefficients(s string) (Coefficients, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return Coefficients{}, fmt.Errorf("coefficients must be three comma-separated numbers, got %q", s)
	}

	var vals [3]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Coefficients{}, fmt.Errorf("invalid coefficient %q: %w", p, err)
		}
		vals[i] = v
	}

	c := Coefficients{R: vals[0], G: vals[1], B: vals[2]}
	if err := c.Validate(); err != nil {
		return Coefficients{}, err
	}
	return c, nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Coefficients) UnmarshalText(text []byte) error {
	parsed, err := ParseCoefficients(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Validate rejects negative weights and an all-zero set.
func (c Coefficients) Validate() error {
	if c.R < 0 || c.G < 0 || c.B < 0 {
		return errors.New("coefficients must not be negative")
	}
	if c.R == 0 && c.G == 0 && c.B == 0 {
		return errors.New("at least one coefficient must be non-zero")
	}
	return nil
}

// IsZero reports whether no coefficient is set.
func (c Coefficients) IsZero() bool {
	return c.R == 0 && c.G == 0 && c.B == 0
}

// String formats the coefficients as "r,g,b".
func (c Coefficients) String() string {
	return fmt.Sprintf("%g,%g,%g", c.R, c.G, c.B)
}

// Luma computes the weighted channel sum, rounded and clamped to 255.
func (c Coefficients) Luma(px color.RGBA) uint8 {
	v := math.Round(c.R*float64(px.R) + c.G*float64(px.G) + c.B*float64(px.B))
	if v >= 255 {
		return 255
	}
	if v <= 0 {
		return 0
	}
	return uint8(v)
}
