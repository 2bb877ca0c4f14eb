package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/leapstack-labs/pxsort/internal/animate"
	"github.com/leapstack-labs/pxsort/internal/imageio"
	"github.com/leapstack-labs/pxsort/internal/mask"
	"github.com/leapstack-labs/pxsort/internal/sorter"
	"github.com/leapstack-labs/pxsort/internal/state"
)

// Job is one input/output pair.
type Job struct {
	Input  string
	Output string
}

// Result describes a finished job.
type Result struct {
	RunID    string        `json:"run_id,omitempty"`
	Input    string        `json:"input"`
	Output   string        `json:"output"`
	Width    int           `json:"width"`
	Height   int           `json:"height"`
	Frames   int           `json:"frames,omitempty"`
	Stats    sorter.Stats  `json:"stats"`
	Duration time.Duration `json:"duration"`
}

// recordedOptions is what gets stored with each run.
type recordedOptions struct {
	sorter.Options
	Mask      string          `json:"mask,omitempty"`
	KeyScript string          `json:"key_script,omitempty"`
	Animate   *animate.Params `json:"animate,omitempty"`
}

// Process runs a job. progress, if set, receives completed lines (or frames
// when animating).
func (e *Engine) Process(ctx context.Context, job Job, progress sorter.Progress) (*Result, error) {
	start := time.Now()
	logger := e.logger.With(slog.String("input", job.Input), slog.String("output", job.Output))

	if e.cfg.Animate != nil && !strings.EqualFold(filepath.Ext(job.Output), ".gif") {
		return nil, fmt.Errorf("animated output must be a .gif file, got %q", job.Output)
	}

	var res *Result
	runID, err := e.track(ctx, job.Input, job.Output, e.cfg.Sort, func() (sorter.Stats, error) {
		var err error
		res, err = e.process(ctx, job, progress, logger)
		if err != nil {
			return sorter.Stats{}, err
		}
		return res.Stats, nil
	})
	if err != nil {
		logger.Debug("job failed", "error", err)
		return nil, err
	}

	res.RunID = runID
	res.Duration = time.Since(start)
	logger.Debug("job completed",
		slog.Int64("pixels", res.Stats.Pixels),
		slog.Duration("duration", res.Duration))
	return res, nil
}

// track runs fn, recording it in the history store when one is configured.
func (e *Engine) track(ctx context.Context, input, output string, opts sorter.Options, fn func() (sorter.Stats, error)) (string, error) {
	if e.store == nil {
		_, err := fn()
		return "", err
	}

	run, err := e.store.CreateRun(ctx, state.NewRun{
		Input:   input,
		Output:  output,
		Options: e.describeOptions(opts),
	})
	if err != nil {
		return "", err
	}

	stats, err := fn()
	completion := state.Completion{
		Status:       state.RunStatusCompleted,
		PixelsSorted: stats.Pixels,
		Seed:         stats.Seed,
	}
	if err != nil {
		completion = state.Completion{Status: state.RunStatusFailed, Error: err.Error()}
	}

	// The job's context may already be cancelled; still record the outcome.
	if cerr := e.store.CompleteRun(context.WithoutCancel(ctx), run.ID, completion); cerr != nil {
		e.logger.Warn("failed to record run", "run_id", run.ID, "error", cerr)
	}
	return run.ID, err
}

func (e *Engine) process(ctx context.Context, job Job, progress sorter.Progress, logger *slog.Logger) (*Result, error) {
	img, format, err := imageio.Load(job.Input)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	logger.Debug("loaded image", "format", format, "width", b.Dx(), "height", b.Dy())

	opts, err := e.jobOptions(b.Dx(), b.Dy())
	if err != nil {
		return nil, err
	}
	opts, scriptErr := e.bindScript(opts)

	res := &Result{Input: job.Input, Output: job.Output, Width: b.Dx(), Height: b.Dy()}

	if e.cfg.Animate != nil {
		g, err := animate.Animate(ctx, img, opts, *e.cfg.Animate, progress)
		if err != nil {
			return nil, err
		}
		if err := scriptErr(); err != nil {
			return nil, err
		}
		if err := imageio.WriteFile(job.Output, func(w io.Writer) error {
			return animate.Encode(w, g)
		}); err != nil {
			return nil, err
		}
		res.Frames = len(g.Image)
		// Frames share one seed; zero becomes 1 inside Animate.
		lines := b.Dy()
		if opts.Direction == sorter.Vertical {
			lines = b.Dx()
		}
		res.Stats = sorter.Stats{Lines: lines, Seed: max(opts.Seed, 1)}
		return res, nil
	}

	stats, err := sorter.Sort(ctx, img, opts, progress)
	if err != nil {
		return nil, err
	}
	if err := scriptErr(); err != nil {
		return nil, err
	}
	if err := imageio.Save(job.Output, img, imageio.SaveOptions{JPEGQuality: e.cfg.JPEGQuality}); err != nil {
		return nil, err
	}

	res.Stats = stats
	return res, nil
}

// ProcessImage sorts an in-memory image with opts and records it under
// name. The engine's key script, if any, replaces opts.KeyFunc.
func (e *Engine) ProcessImage(ctx context.Context, name string, img *image.RGBA, opts sorter.Options) (sorter.Stats, error) {
	opts, scriptErr := e.bindScript(opts)
	var stats sorter.Stats
	_, err := e.track(ctx, name, "-", opts, func() (sorter.Stats, error) {
		var err error
		stats, err = sorter.Sort(ctx, img, opts, nil)
		if err != nil {
			return sorter.Stats{}, err
		}
		return stats, scriptErr()
	})
	if err != nil {
		return sorter.Stats{}, err
	}
	return stats, nil
}

func (e *Engine) jobOptions(w, h int) (sorter.Options, error) {
	opts := e.Options()
	if e.cfg.MaskPath == "" {
		return opts, nil
	}

	maskImg, _, err := imageio.Load(e.cfg.MaskPath)
	if err != nil {
		return opts, fmt.Errorf("failed to load mask: %w", err)
	}
	m, err := mask.FromImage(maskImg, w, h)
	if err != nil {
		return opts, err
	}
	opts.Mask = m
	return opts, nil
}

func (e *Engine) describeOptions(opts sorter.Options) string {
	data, err := json.Marshal(recordedOptions{
		Options:   opts,
		Mask:      e.cfg.MaskPath,
		KeyScript: e.cfg.KeyScript,
		Animate:   e.cfg.Animate,
	})
	if err != nil {
		return "{}"
	}
	return string(data)
}

// IsUserError reports whether err stems from bad input rather than an
// internal failure.
func IsUserError(err error) bool {
	return errors.Is(err, sorter.ErrInvalidOptions) ||
		errors.Is(err, imageio.ErrUnsupportedFormat) ||
		errors.Is(err, imageio.ErrTooLarge)
}
