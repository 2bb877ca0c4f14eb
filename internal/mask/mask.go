// Package mask builds per-pixel eligibility masks for sorting.
//
// A pixel whose mask bit is false is never moved and splits the span it
// would otherwise belong to.
package mask

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/leapstack-labs/pxsort/internal/pixel"
)

// Mask is a width*height grid of booleans.
type Mask struct {
	Width  int
	Height int
	bits   []bool
}

// New returns an all-false mask.
func New(w, h int) *Mask {
	return &Mask{Width: w, Height: h, bits: make([]bool, w*h)}
}

// Full returns an all-true mask.
func Full(w, h int) *Mask {
	m := New(w, h)
	for i := range m.bits {
		m.bits[i] = true
	}
	return m
}

// At reports the bit at (x, y). Out-of-range coordinates are false.
func (m *Mask) At(x, y int) bool {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return false
	}
	return m.bits[y*m.Width+x]
}

// Set sets the bit at (x, y).
func (m *Mask) Set(x, y int, v bool) {
	m.bits[y*m.Width+x] = v
}

// Count returns the number of true bits.
func (m *Mask) Count() int {
	n := 0
	for _, b := range m.bits {
		if b {
			n++
		}
	}
	return n
}

// And intersects m with other in place. A nil other is a no-op.
func (m *Mask) And(other *Mask) error {
	if other == nil {
		return nil
	}
	if other.Width != m.Width || other.Height != m.Height {
		return fmt.Errorf("mask size %dx%d does not match %dx%d", other.Width, other.Height, m.Width, m.Height)
	}
	for i, b := range other.bits {
		m.bits[i] = m.bits[i] && b
	}
	return nil
}

// Threshold marks pixels whose key lies within [lo, hi].
func Threshold(img *image.RGBA, key pixel.KeyFunc, lo, hi uint8) *Mask {
	b := img.Bounds()
	m := New(b.Dx(), b.Dy())
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			k := key(img.RGBAAt(b.Min.X+x, b.Min.Y+y))
			m.Set(x, y, k >= lo && k <= hi)
		}
	}
	return m
}

// FromImage converts a mask image into a Mask. Pixels at or above mid-grey
// are eligible. The mask must have the target's dimensions.
func FromImage(src image.Image, w, h int) (*Mask, error) {
	b := src.Bounds()
	if b.Dx() != w || b.Dy() != h {
		return nil, fmt.Errorf("mask image is %dx%d, expected %dx%d", b.Dx(), b.Dy(), w, h)
	}

	m := New(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			g := color.GrayModel.Convert(src.At(b.Min.X+x, b.Min.Y+y)).(color.Gray)
			m.Set(x, y, g.Y >= 128)
		}
	}
	return m, nil
}

// Edges runs a Sobel operator over the luma of img and marks pixels whose
// gradient magnitude is below threshold. Edge pixels are false.
func Edges(img *image.RGBA, threshold float64) *Mask {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	luma := pixel.DefaultCoefficients()

	lum := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			lum[y*w+x] = float64(luma.Luma(img.RGBAAt(b.Min.X+x, b.Min.Y+y)))
		}
	}

	at := func(x, y int) float64 {
		x = clamp(x, 0, w-1)
		y = clamp(y, 0, h-1)
		return lum[y*w+x]
	}

	m := New(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			gx := -at(x-1, y-1) - 2*at(x-1, y) - at(x-1, y+1) +
				at(x+1, y-1) + 2*at(x+1, y) + at(x+1, y+1)
			gy := -at(x-1, y-1) - 2*at(x, y-1) - at(x+1, y-1) +
				at(x-1, y+1) + 2*at(x, y+1) + at(x+1, y+1)
			m.Set(x, y, math.Hypot(gx, gy) < threshold)
		}
	}
	return m
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
