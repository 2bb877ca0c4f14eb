package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/pxsort/internal/cli/config"
	"github.com/leapstack-labs/pxsort/internal/cli/output"
)

// NewConfigCommand creates the config command.
func NewConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Print the configuration after merging defaults, pxsort.yaml, PXSORT_
environment variables, the selected preset and flags.`,
		Example: `  pxsort config
  PXSORT_SORT__KEY=hue pxsort config --preset streaks`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, err := NewCommandContextWithoutEngine(cmd)
			if err != nil {
				return err
			}
			return renderConfig(cmdCtx.Renderer, cmdCtx.Cfg, config.GetConfigFileUsed())
		},
	}
}

func renderConfig(r *output.Renderer, cfg *config.Config, file string) error {
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(cfg)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if file != "" {
		r.Printf("# from %s\n", file)
	}
	r.Printf("%s", data)
	return nil
}
