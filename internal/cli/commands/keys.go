package commands

import (
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/pxsort/internal/cli/output"
	"github.com/leapstack-labs/pxsort/internal/pixel"
)

// NewKeysCommand creates the keys command.
func NewKeysCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "List the built-in sort keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, err := NewCommandContextWithoutEngine(cmd)
			if err != nil {
				return err
			}
			return renderKeys(cmdCtx.Renderer)
		},
	}
}

func renderKeys(r *output.Renderer) error {
	keys := pixel.Keys()
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(keys)
	}

	rows := make([][]string, len(keys))
	for i, k := range keys {
		rows[i] = []string{k.Key.String(), k.Description}
	}
	r.Table([]string{"Key", "Description"}, rows)
	return nil
}
