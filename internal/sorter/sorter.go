// Package sorter implements pixel sorting.
//
// Each line of the image (a row or a column, depending on Direction) is cut
// into spans of eligible pixels, and the pixels of every span are reordered
// by a key. Lines are independent and are sorted concurrently.
package sorter

import (
	"cmp"
	"context"
	"fmt"
	"image"
	"image/color"
	"math"
	"math/rand/v2"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/pxsort/internal/mask"
	"github.com/leapstack-labs/pxsort/internal/pixel"
)

// Progress is called after every completed line. Calls are serialised.
type Progress func(done, total int)

// Stats summarises a sort pass.
type Stats struct {
	Lines  int   `json:"lines"`
	Spans  int64 `json:"spans"`
	Pixels int64 `json:"pixels"`
	Seed   int64 `json:"seed"`
}

// Sort sorts img in place.
func Sort(ctx context.Context, img *image.RGBA, opts Options, progress Progress) (Stats, error) {
	if err := opts.Validate(); err != nil {
		return Stats{}, err
	}
	if opts.Discretize == 0 {
		opts.Discretize = 1
	}
	if opts.Seed == 0 {
		opts.Seed = time.Now().UnixNano()
	}

	keyFn := opts.keyFunc()

	eligible, err := eligibility(img, opts, keyFn)
	if err != nil {
		return Stats{}, err
	}

	b := img.Bounds()
	outer, inner := b.Dy(), b.Dx()
	if opts.Direction == Vertical {
		outer, inner = inner, outer
	}

	workers := opts.Workers
	if workers == 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	stats := Stats{Lines: outer, Seed: opts.Seed}
	var (
		spans, pixels atomic.Int64
		done          int
		progressMu    sync.Mutex
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for line := 0; line < outer; line++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			l := &lineSorter{
				img:      img,
				eligible: eligible,
				opts:     &opts,
				keyFn:    keyFn,
				line:     line,
				outer:    outer,
				inner:    inner,
				rng:      rand.New(rand.NewPCG(uint64(opts.Seed), uint64(line))),
			}
			s, p := l.run()
			spans.Add(s)
			pixels.Add(p)

			if progress != nil {
				progressMu.Lock()
				done++
				progress(done, outer)
				progressMu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Stats{}, err
	}
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}

	stats.Spans = spans.Load()
	stats.Pixels = pixels.Load()
	return stats, nil
}

// eligibility intersects the external mask, the key threshold and the edge
// mask into a single mask.
func eligibility(img *image.RGBA, opts Options, keyFn pixel.KeyFunc) (*mask.Mask, error) {
	b := img.Bounds()
	m := mask.Full(b.Dx(), b.Dy())

	if err := m.And(opts.Mask); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}
	if opts.Threshold != nil {
		_ = m.And(mask.Threshold(img, keyFn, opts.Threshold.Lo, opts.Threshold.Hi))
	}
	if opts.EdgeThreshold > 0 {
		_ = m.And(mask.Edges(img, opts.EdgeThreshold))
	}
	return m, nil
}

type lineSorter struct {
	img      *image.RGBA
	eligible *mask.Mask
	opts     *Options
	keyFn    pixel.KeyFunc
	line     int
	outer    int
	inner    int
	rng      *rand.Rand
}

func (l *lineSorter) point(i int) (x, y int) {
	if l.opts.Direction == Vertical {
		return l.line, i
	}
	return i, l.line
}

// spanLength picks the maximum span length for this line.
func (l *lineSorter) spanLength() int {
	interval := l.opts.Interval
	if interval == 0 {
		return l.inner
	}
	n := l.rng.IntN(interval) + 1
	if l.opts.Progressive > 0 && l.outer > 0 {
		n += l.opts.Progressive * l.line / l.outer
	}
	return min(n, interval)
}

func (l *lineSorter) run() (spans, pixels int64) {
	b := l.img.Bounds()

	buf := make([]color.RGBA, l.inner)
	ok := make([]bool, l.inner)
	for i := range buf {
		x, y := l.point(i)
		buf[i] = l.img.RGBAAt(b.Min.X+x, b.Min.Y+y)
		ok[i] = l.eligible.At(x, y)
	}

	limit := l.inner
	if s := l.opts.Splice; s > 0 && s < 1 {
		limit = int(math.Ceil(s * float64(l.inner)))
	}
	maxLen := l.spanLength()

	for i := 0; i < limit; {
		if !ok[i] {
			i++
			continue
		}
		j := i
		for j < limit && ok[j] && j-i < maxLen {
			j++
		}
		if j-i > 1 {
			l.sortSpan(buf[i:j])
			spans++
			pixels += int64(j - i)
		}
		i = j
	}

	for i, c := range buf[:limit] {
		x, y := l.point(i)
		l.img.SetRGBA(b.Min.X+x, b.Min.Y+y, c)
	}
	return spans, pixels
}

type keyed struct {
	key int
	c   color.RGBA
}

func (l *lineSorter) sortSpan(span []color.RGBA) {
	if l.opts.Shuffle {
		l.rng.Shuffle(len(span), func(i, j int) { span[i], span[j] = span[j], span[i] })
	}

	if ch := l.opts.Channel; ch != "" {
		vals := make([]uint8, len(span))
		for i, c := range span {
			vals[i] = ch.Get(c)
		}
		slices.Sort(vals)
		if l.opts.Reverse {
			slices.Reverse(vals)
		}
		for i := range span {
			span[i] = ch.Set(span[i], vals[i])
		}
		return
	}

	items := make([]keyed, len(span))
	for i, c := range span {
		items[i] = keyed{key: int(l.keyFn(c)) / l.opts.Discretize, c: c}
	}

	if l.opts.Reverse {
		slices.SortStableFunc(items, func(a, b keyed) int { return cmp.Compare(b.key, a.key) })
	} else {
		slices.SortStableFunc(items, func(a, b keyed) int { return cmp.Compare(a.key, b.key) })
	}

	for i, it := range items {
		span[i] = it.c
	}
}
