// Package pixel provides the scalar keys pixels are ordered by.
//
// Every key maps an RGBA colour to a value in 0..255 so keys from different
// extractors can be bucketed and compared the same way.
package pixel

import (
	"fmt"
	"image/color"
	"strings"
)

// KeyFunc extracts a sort key from a pixel.
type KeyFunc func(c color.RGBA) uint8

// Key names a built-in key extractor.
type Key string

// Built-in keys.
const (
	KeyIntensity  Key = "intensity"
	KeyBrightness Key = "brightness"
	KeyLuma       Key = "luma"
	KeyChroma     Key = "chroma"
	KeyHue        Key = "hue"
	KeySaturation Key = "saturation"
	KeyRed        Key = "red"
	KeyGreen      Key = "green"
	KeyBlue       Key = "blue"
)

// KeyInfo describes a built-in key.
type KeyInfo struct {
	Key         Key    `json:"key"`
	Description string `json:"description"`
}

var keyInfos = []KeyInfo{
	{KeyIntensity, "Average of the red, green and blue channels"},
	{KeyBrightness, "Midpoint of the largest and smallest channel"},
	{KeyLuma, "Weighted sum of channels (see --coefficients)"},
	{KeyChroma, "Difference between the largest and smallest channel"},
	{KeyHue, "HSV hue angle scaled to 0-255"},
	{KeySaturation, "HSV saturation scaled to 0-255"},
	{KeyRed, "Red channel"},
	{KeyGreen, "Green channel"},
	{KeyBlue, "Blue channel"},
}

// Keys returns all built-in keys in display order.
func Keys() []KeyInfo {
	out := make([]KeyInfo, len(keyInfos))
	copy(out, keyInfos)
	return out
}

// KeyNames returns the names of all built-in keys.
func KeyNames() []string {
	names := make([]string, len(keyInfos))
	for i, info := range keyInfos {
		names[i] = string(info.Key)
	}
	return names
}

// ParseKey parses a key name, ignoring case and surrounding whitespace.
func ParseKey(s string) (Key, error) {
	k := Key(strings.ToLower(strings.TrimSpace(s)))
	for _, info := range keyInfos {
		if info.Key == k {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown sort key %q (valid: %s)", s, strings.Join(KeyNames(), ", "))
}

// String implements fmt.Stringer.
func (k Key) String() string { return string(k) }

// MarshalText implements encoding.TextMarshaler.
func (k Key) MarshalText() ([]byte, error) { return []byte(k), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Key) UnmarshalText(text []byte) error {
	parsed, err := ParseKey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Func returns the extractor for k. Coefficients only affect luma.
func (k Key) Func(coef Coefficients) KeyFunc {
	switch k {
	case KeyIntensity:
		return Intensity
	case KeyBrightness:
		return Brightness
	case KeyLuma:
		return coef.Luma
	case KeyChroma:
		return Chroma
	case KeyHue:
		return Hue
	case KeySaturation:
		return Saturation
	case KeyRed:
		return func(c color.RGBA) uint8 { return c.R }
	case KeyGreen:
		return func(c color.RGBA) uint8 { return c.G }
	case KeyBlue:
		return func(c color.RGBA) uint8 { return c.B }
	default:
		return coef.Luma
	}
}

// Intensity is the mean of the three colour channels.
func Intensity(c color.RGBA) uint8 {
	return uint8((uint16(c.R) + uint16(c.G) + uint16(c.B)) / 3)
}

// Brightness is the midpoint between the brightest and darkest channel.
func Brightness(c color.RGBA) uint8 {
	lo, hi := minMax(c)
	return uint8((uint16(lo) + uint16(hi)) / 2)
}

// Chroma is the spread between the brightest and darkest channel.
func Chroma(c color.RGBA) uint8 {
	lo, hi := minMax(c)
	return hi - lo
}

// Hue is the HSV hue angle mapped from 0..360 onto 0..255.
// Grey pixels have no hue and map to 0.
func Hue(c color.RGBA) uint8 {
	lo, hi := minMax(c)
	if lo == hi {
		return 0
	}

	r, g, b := float64(c.R), float64(c.G), float64(c.B)
	diff := float64(hi - lo)

	var h float64
	switch hi {
	case c.R:
		h = (g - b) / diff
	case c.G:
		h = 2 + (b-r)/diff
	default:
		h = 4 + (r-g)/diff
	}

	h *= 60
	if h < 0 {
		h += 360
	}
	return uint8(h * 255 / 360)
}

// Saturation is the HSV saturation mapped onto 0..255.
func Saturation(c color.RGBA) uint8 {
	lo, hi := minMax(c)
	if hi == 0 {
		return 0
	}
	return uint8(uint16(hi-lo) * 255 / uint16(hi))
}

func minMax(c color.RGBA) (lo, hi uint8) {
	lo, hi = c.R, c.R
	for _, v := range [2]uint8{c.G, c.B} {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}
