package commands

import (
	"log/slog"

	"github.com/leapstack-labs/pxsort/internal/cli/config"
	"github.com/leapstack-labs/pxsort/internal/cli/output"
	"github.com/leapstack-labs/pxsort/internal/engine"
	"github.com/spf13/cobra"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Engine   *engine.Engine
	Renderer *output.Renderer
}

// NewCommandContext creates a CommandContext with engine and renderer.
// Returns the context and a cleanup function that must be called (typically via defer).
func NewCommandContext(cmd *cobra.Command) (*CommandContext, func(), error) {
	cmdCtx, err := NewCommandContextWithoutEngine(cmd)
	if err != nil {
		return nil, nil, err
	}

	eng, err := createEngine(cmdCtx.Cfg, cmdCtx.Logger)
	if err != nil {
		return nil, nil, err
	}
	cmdCtx.Engine = eng

	cleanup := func() {
		if err := eng.Close(); err != nil {
			cmdCtx.Logger.Warn("failed to close engine", "error", err)
		}
	}
	return cmdCtx, cleanup, nil
}

// NewCommandContextWithoutEngine creates a CommandContext without an engine.
// Useful for commands that don't touch images or history.
func NewCommandContextWithoutEngine(cmd *cobra.Command) (*CommandContext, error) {
	cfg, err := getConfig()
	if err != nil {
		return nil, err
	}
	logger := config.GetLogger(cmd.Context())
	mode := output.Mode(cfg.OutputFormat)
	r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Renderer: r,
	}, nil
}

// getConfig returns the configuration loaded by the root command, loading
// defaults when a command runs on its own.
func getConfig() (*config.Config, error) {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg, nil
	}
	return config.LoadConfig("", nil)
}

// engineConfig maps CLI configuration onto the engine.
func engineConfig(cfg *config.Config, logger *slog.Logger) (engine.Config, error) {
	opts, err := cfg.Sort.Options()
	if err != nil {
		return engine.Config{}, err
	}

	ec := engine.Config{
		Sort:        opts,
		JPEGQuality: cfg.Sort.Quality,
		Animate:     cfg.AnimateParams(),
		MaskPath:    cfg.Sort.Mask,
		KeyScript:   cfg.Sort.KeyScript,
		Logger:      logger,
	}
	if !cfg.NoHistory {
		ec.StatePath = cfg.StatePath
	}
	return ec, nil
}

func createEngine(cfg *config.Config, logger *slog.Logger) (*engine.Engine, error) {
	ec, err := engineConfig(cfg, logger)
	if err != nil {
		return nil, err
	}
	return engine.New(ec)
}
