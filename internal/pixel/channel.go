package pixel

import (
	"fmt"
	"image/color"
	"strings"
)

// Channel selects a single colour channel.
type Channel string

// Colour channels.
const (
	ChannelRed   Channel = "red"
	ChannelGreen Channel = "green"
	ChannelBlue  Channel = "blue"
)

// ParseChannel accepts full names or their first letter.
func ParseChannel(s string) (Channel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "red", "r":
		return ChannelRed, nil
	case "green", "g":
		return ChannelGreen, nil
	case "blue", "b":
		return ChannelBlue, nil
	}
	return "", fmt.Errorf("unknown channel %q (valid: red, green, blue)", s)
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (ch *Channel) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*ch = ""
		return nil
	}
	parsed, err := ParseChannel(string(text))
	if err != nil {
		return err
	}
	*ch = parsed
	return nil
}

// Get returns the channel value of c.
func (ch Channel) Get(c color.RGBA) uint8 {
	switch ch {
	case ChannelGreen:
		return c.G
	case ChannelBlue:
		return c.B
	default:
		return c.R
	}
}

// Set returns c with the channel replaced by v.
func (ch Channel) Set(c color.RGBA, v uint8) color.RGBA {
	switch ch {
	case ChannelGreen:
		c.G = v
	case ChannelBlue:
		c.B = v
	default:
		c.R = v
	}
	return c
}
