// Package animate renders a sort pass as an animated GIF that sweeps the
// sort across each line.
package animate

import (
	"context"
	"fmt"
	"image"
	"image/color/palette"
	"image/draw"
	"image/gif"
	"io"

	"github.com/leapstack-labs/pxsort/internal/sorter"
)

// Frame limits.
const (
	MinFrames = 2
	MaxFrames = 120
)

// Params configure an animation.
type Params struct {
	Frames int `koanf:"frames" json:"frames"`
	// Delay between frames in hundredths of a second.
	Delay int `koanf:"delay" json:"delay"`
}

// Validate checks frame count and delay.
func (p Params) Validate() error {
	if p.Frames < MinFrames || p.Frames > MaxFrames {
		return fmt.Errorf("animation frames must be within %d..%d, got %d", MinFrames, MaxFrames, p.Frames)
	}
	if p.Delay < 0 {
		return fmt.Errorf("animation delay must be >= 0, got %d", p.Delay)
	}
	return nil
}

// Animate sorts copies of img with a growing splice and collects them as
// GIF frames. img itself is left untouched. onFrame, if set, is called after
// each frame.
func Animate(ctx context.Context, img *image.RGBA, opts sorter.Options, p Params, onFrame func(frame, total int)) (*gif.GIF, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	delay := p.Delay
	if delay == 0 {
		delay = 8
	}

	// A fixed seed keeps span layout identical from frame to frame.
	if opts.Seed == 0 {
		opts.Seed = 1
	}

	out := &gif.GIF{LoopCount: 0}
	bounds := img.Bounds()

	for i := 1; i <= p.Frames; i++ {
		frame := image.NewRGBA(bounds)
		copy(frame.Pix, img.Pix)

		fo := opts
		fo.Splice = float64(i) / float64(p.Frames)
		if _, err := sorter.Sort(ctx, frame, fo, nil); err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}

		pal := image.NewPaletted(bounds, palette.Plan9)
		draw.FloydSteinberg.Draw(pal, bounds, frame, bounds.Min)

		out.Image = append(out.Image, pal)
		out.Delay = append(out.Delay, delay)
		if onFrame != nil {
			onFrame(i, p.Frames)
		}
	}
	return out, nil
}

// Encode writes the animation to w.
func Encode(w io.Writer, g *gif.GIF) error {
	return gif.EncodeAll(w, g)
}
