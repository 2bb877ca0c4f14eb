// Package watch sorts images as they appear in a directory.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/leapstack-labs/pxsort/internal/engine"
	"github.com/leapstack-labs/pxsort/internal/imageio"
	"github.com/leapstack-labs/pxsort/internal/sorter"
)

// EditedSuffix is appended to the base name of every output file.
const EditedSuffix = "-edited"

// DefaultDebounce is the quiet period after the last write to a file
// before it is processed.
const DefaultDebounce = 200 * time.Millisecond

// Processor runs sort jobs. *engine.Engine implements it.
type Processor interface {
	Process(ctx context.Context, job engine.Job, progress sorter.Progress) (*engine.Result, error)
}

// Config holds configuration for a Watcher.
type Config struct {
	InputDir  string
	OutputDir string
	Debounce  time.Duration
	Processor Processor
	// OutputExt replaces the extension of every output, e.g. ".gif" when
	// the processor animates. Empty asks the processor, if it can say.
	OutputExt string
	// OnResult, if set, is called after every job with its outcome.
	OnResult func(job engine.Job, res *engine.Result, err error)
	Logger   *slog.Logger
}

// Watcher processes new and changed images in InputDir.
type Watcher struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
	closed  bool
	jobs    sync.WaitGroup
}

// New validates cfg and creates the output directory.
func New(cfg Config) (*Watcher, error) {
	if cfg.Processor == nil {
		return nil, errors.New("watch: processor is required")
	}
	info, err := os.Stat(cfg.InputDir)
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch: %s is not a directory", cfg.InputDir)
	}
	if err := os.MkdirAll(cfg.OutputDir, 0750); err != nil {
		return nil, fmt.Errorf("watch: failed to create output directory: %w", err)
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if p, ok := cfg.Processor.(interface{ OutputExt() string }); ok && cfg.OutputExt == "" {
		cfg.OutputExt = p.OutputExt()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Watcher{
		cfg:     cfg,
		logger:  logger,
		pending: make(map[string]*time.Timer),
	}, nil
}

// OutputPath returns where the sorted version of input is written:
// <outDir>/<name>-edited<ext>. Inputs that cannot be re-encoded in their own
// format are written as PNG.
func OutputPath(outDir, input string) string {
	ext := filepath.Ext(input)
	name := strings.TrimSuffix(filepath.Base(input), ext)
	if _, err := imageio.FormatFromPath(input); err != nil {
		ext = ".png"
	}
	return filepath.Join(outDir, name+EditedSuffix+ext)
}

// Run watches until ctx is cancelled. Job errors are logged, never
// returned.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(w.cfg.InputDir); err != nil {
		return fmt.Errorf("watch: failed to watch %s: %w", w.cfg.InputDir, err)
	}
	w.logger.Info("watching for images", "dir", w.cfg.InputDir, "out", w.cfg.OutputDir)

	defer w.drain()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if !w.accepts(event.Name) {
				continue
			}
			w.schedule(ctx, event.Name)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

// accepts filters out unsupported files and our own outputs.
func (w *Watcher) accepts(path string) bool {
	if !imageio.IsSupported(path) {
		return false
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if strings.HasSuffix(name, EditedSuffix) {
		return false
	}
	if abs, err := filepath.Abs(filepath.Dir(path)); err == nil {
		if out, err := filepath.Abs(w.cfg.OutputDir); err == nil && abs == out {
			return false
		}
	}
	return true
}

// schedule (re)starts the debounce timer for path.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(w.cfg.Debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		if w.closed {
			w.mu.Unlock()
			return
		}
		w.jobs.Add(1)
		w.mu.Unlock()
		defer w.jobs.Done()

		if ctx.Err() != nil {
			return
		}
		w.process(ctx, path)
	})
}

func (w *Watcher) process(ctx context.Context, path string) {
	out := OutputPath(w.cfg.OutputDir, path)
	if ext := w.cfg.OutputExt; ext != "" {
		out = strings.TrimSuffix(out, filepath.Ext(out)) + ext
	}
	job := engine.Job{Input: path, Output: out}
	w.logger.Debug("file changed, sorting", "file", path)

	res, err := w.cfg.Processor.Process(ctx, job, nil)
	if err != nil {
		w.logger.Error("failed to sort image", "file", path, "error", err)
	} else {
		w.logger.Info("sorted image", "file", path, "output", job.Output, "duration", res.Duration)
	}
	if w.cfg.OnResult != nil {
		w.cfg.OnResult(job, res, err)
	}
}

// drain stops pending timers and waits for running jobs.
func (w *Watcher) drain() {
	w.mu.Lock()
	w.closed = true
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()
	w.jobs.Wait()
}
