package commands

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/leapstack-labs/pxsort/internal/cli/output"
	"github.com/leapstack-labs/pxsort/internal/engine"
	"github.com/leapstack-labs/pxsort/internal/pixel"
)

// NewSortCommand creates the sort command.
func NewSortCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sort <input> <output>",
		Short: "Pixel-sort an image",
		Long: `Sort the pixels of each row (or column) of an image by a key such as
luma, hue or saturation, and write the result.

The output format follows the output file extension (.png, .jpg, .gif,
.bmp, .tiff). With --animate the output must be a .gif.`,
		Example: `  # Sort rows by luma
  pxsort sort images/leaves.jpg output/leaves-edited.jpg

  # Vertical hue sort in 16 bands, only bright pixels
  pxsort sort -k hue -d vertical --discretize 16 --threshold 100,255 in.png out.png

  # Use a preset from pxsort.yaml
  pxsort sort --preset streaks in.png out.png

  # 24 frame GIF sweeping the splice point
  pxsort sort --animate 24 in.png out.gif`,
		Args: cobra.ExactArgs(2),
		RunE: RunSort,
	}
	AddSortFlags(cmd.Flags())
	return cmd
}

// AddSortFlags registers the sort flags on fs. Only flags the user sets
// override configuration.
func AddSortFlags(fs *pflag.FlagSet) {
	fs.StringP("key", "k", "", "Sort key ("+strings.Join(pixel.KeyNames(), "|")+")")
	fs.StringP("direction", "d", "", "Line direction (horizontal|vertical)")
	fs.IntP("interval", "i", 0, "Maximum span length (0 sorts whole runs)")
	fs.Int("progressive", 0, "Grow the span length by this much from first to last line")
	fs.Int("discretize", 0, "Bucket width for keys (1 disables)")
	fs.BoolP("reverse", "r", false, "Sort in descending order")
	fs.Bool("shuffle", false, "Shuffle each span before sorting it")
	fs.Float64("splice", 0, "Fraction of each line to sort, counted from its start (0..1, 0 sorts all)")
	fs.String("threshold", "", "Only sort pixels whose key is within lo,hi")
	fs.Float64("edge-threshold", 0, "Break spans at edges stronger than this (0 disables)")
	fs.String("channel", "", "Sort a single channel (r|g|b)")
	fs.String("coefficients", "", "Luma coefficients r,g,b")
	fs.Int64("seed", 0, "Random seed (0 picks one)")
	fs.Int("workers", 0, "Parallel workers (0 uses all CPUs)")
	fs.String("mask", "", "Mask image; white pixels are sortable")
	fs.String("key-script", "", "Starlark file defining key(r, g, b)")
	fs.Int("animate", 0, "Render an animated GIF with this many frames")
	fs.Int("frame-delay", 0, "GIF frame delay in 1/100 s")
	fs.Int("quality", 0, "JPEG quality (1..100)")
	fs.String("preset", "", "Named preset of sort settings")
}

// RunSort sorts args[0] into args[1].
func RunSort(cmd *cobra.Command, args []string) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	r := cmdCtx.Renderer
	desc := "sorting"
	if cmdCtx.Cfg.AnimateParams() != nil {
		desc = "animating"
	}
	progress := newProgress(r, desc)

	res, err := cmdCtx.Engine.Process(cmd.Context(), engine.Job{Input: args[0], Output: args[1]}, progress.update)
	progress.finish()
	if err != nil {
		return err
	}

	return renderResult(r, res)
}

// progress lazily creates the bar on the first update, once the total is
// known.
type progress struct {
	mu   sync.Mutex
	r    *output.Renderer
	desc string
	bar  *progressbar.ProgressBar
}

func newProgress(r *output.Renderer, desc string) *progress {
	return &progress{r: r, desc: desc}
}

func (p *progress) update(done, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar == nil {
		p.bar = p.r.NewProgress(total, p.desc)
	}
	_ = p.bar.Set(done)
}

func (p *progress) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}

func renderResult(r *output.Renderer, res *engine.Result) error {
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(res)
	}

	r.Success(fmt.Sprintf("Sorted %s into %s", res.Input, res.Output))
	r.KeyValue("Size", fmt.Sprintf("%dx%d", res.Width, res.Height))
	if res.Frames > 0 {
		r.KeyValue("Frames", fmt.Sprintf("%d", res.Frames))
	} else {
		r.KeyValue("Pixels sorted", fmt.Sprintf("%d in %d spans", res.Stats.Pixels, res.Stats.Spans))
	}
	r.KeyValue("Seed", fmt.Sprintf("%d", res.Stats.Seed))
	r.KeyValue("Duration", res.Duration.Round(time.Millisecond).String())
	if res.RunID != "" {
		r.KeyValue("Run", res.RunID)
	}
	return nil
}
