package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/pxsort/internal/cli/output"
	"github.com/leapstack-labs/pxsort/internal/state"
)

// NewHistoryCommand creates the history command.
func NewHistoryCommand() *cobra.Command {
	var limit, prune int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded runs",
		Long: `Show the most recent runs recorded in the history database, newest
first. History is kept in the user cache directory unless --state or
state_path says otherwise.`,
		Example: `  pxsort history --limit 5
  pxsort history -o json

  # Keep only the 100 newest runs
  pxsort history --prune 100`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			store := cmdCtx.Engine.Store()
			if store == nil {
				cmdCtx.Renderer.Warning("history is disabled")
				return nil
			}
			if cmd.Flags().Changed("prune") {
				removed, err := store.PruneRuns(cmd.Context(), prune)
				if err != nil {
					return fmt.Errorf("failed to prune runs: %w", err)
				}
				cmdCtx.Renderer.Success(fmt.Sprintf("Removed %d run(s)", removed))
				return nil
			}

			runs, err := store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}
			return renderHistory(cmdCtx.Renderer, runs)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to show")
	cmd.Flags().IntVar(&prune, "prune", 0, "Delete all but the newest N runs")
	return cmd
}

func renderHistory(r *output.Renderer, runs []*state.Run) error {
	if r.EffectiveMode() == output.ModeJSON {
		if runs == nil {
			runs = []*state.Run{}
		}
		return r.JSON(runs)
	}

	if len(runs) == 0 {
		r.Muted("No runs recorded yet")
		return nil
	}

	rows := make([][]string, len(runs))
	for i, run := range runs {
		rows[i] = []string{
			shortID(run.ID),
			run.StartedAt.Local().Format(time.DateTime),
			string(run.Status),
			run.Input,
			run.Output,
			strconv.FormatInt(run.PixelsSorted, 10),
			(time.Duration(run.DurationMS) * time.Millisecond).String(),
		}
	}
	r.Table([]string{"Run", "Started", "Status", "Input", "Output", "Pixels", "Duration"}, rows)
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
