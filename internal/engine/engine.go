// Package engine runs sort jobs end to end: it loads the input image,
// resolves masks and key scripts, sorts or animates, writes the result and
// records the run in the history store.
package engine

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/pxsort/internal/animate"
	"github.com/leapstack-labs/pxsort/internal/keyscript"
	"github.com/leapstack-labs/pxsort/internal/sorter"
	"github.com/leapstack-labs/pxsort/internal/state"
)

// Engine processes sort jobs.
type Engine struct {
	cfg       Config
	logger    *slog.Logger
	store     state.Store
	ownsStore bool
	script    *keyscript.Script
}

// Config holds engine configuration.
type Config struct {
	// Sort holds the default sort options for every job.
	Sort sorter.Options
	// JPEGQuality is used for .jpg outputs (0 means the codec default).
	JPEGQuality int
	// Animate, when set, renders an animated GIF instead of a still.
	Animate *animate.Params
	// MaskPath is an optional mask image; white pixels are sortable.
	MaskPath string
	// KeyScript is an optional Starlark file defining key(r, g, b).
	KeyScript string
	// StatePath is the SQLite run history (empty disables history).
	StatePath string
	// Store overrides StatePath with an existing store.
	Store state.Store
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
}

// New creates an engine, opening the history store and loading the key
// script if configured.
func New(cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if cfg.Animate != nil {
		if err := cfg.Animate.Validate(); err != nil {
			return nil, err
		}
	}

	e := &Engine{cfg: cfg, logger: logger, store: cfg.Store}

	if cfg.KeyScript != "" {
		script, err := keyscript.Load(cfg.KeyScript)
		if err != nil {
			return nil, err
		}
		e.script = script
		logger.Debug("loaded key script", "path", cfg.KeyScript)
	}

	if err := e.Options().Validate(); err != nil {
		return nil, err
	}

	if e.store == nil && cfg.StatePath != "" {
		if dir := filepath.Dir(cfg.StatePath); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return nil, fmt.Errorf("failed to create state directory: %w", err)
			}
		}
		store := state.NewSQLiteStore(logger)
		if err := store.Open(cfg.StatePath); err != nil {
			return nil, fmt.Errorf("failed to open state store: %w", err)
		}
		e.store = store
		e.ownsStore = true
	}

	return e, nil
}

// Close releases the history store if the engine opened it.
func (e *Engine) Close() error {
	if e.ownsStore && e.store != nil {
		return e.store.Close()
	}
	return nil
}

// Store returns the history store, or nil when history is disabled.
func (e *Engine) Store() state.Store { return e.store }

// OutputExt is the extension outputs must carry: ".gif" when animating,
// otherwise empty (any supported format).
func (e *Engine) OutputExt() string {
	if e.cfg.Animate != nil {
		return ".gif"
	}
	return ""
}

// Options returns the default sort options with the key script applied.
// Process and ProcessImage rebind the script per job, so errors from one
// job never leak into another.
func (e *Engine) Options() sorter.Options {
	opts, _ := e.bindScript(e.cfg.Sort)
	return opts
}

// bindScript points opts at a fresh Keyer of the key script. check reports
// evaluation errors seen by that Keyer only.
func (e *Engine) bindScript(opts sorter.Options) (_ sorter.Options, check func() error) {
	if e.script == nil {
		return opts, func() error { return nil }
	}
	k := e.script.NewKeyer()
	opts.KeyFunc = k.KeyFunc()
	return opts, func() error {
		if err := k.Err(); err != nil {
			return fmt.Errorf("key script failed: %w", err)
		}
		return nil
	}
}
