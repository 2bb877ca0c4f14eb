package commands

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/pxsort/internal/cli/output"
	"github.com/leapstack-labs/pxsort/internal/engine"
	"github.com/leapstack-labs/pxsort/internal/watch"
)

// NewWatchCommand creates the watch command.
func NewWatchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <in-dir> [out-dir]",
		Short: "Sort images as they appear in a directory",
		Long: `Watch a directory and sort every image written to it into
<out-dir>/<name>-edited<ext>. Rapid successive writes to a file are
debounced. Files that fail to process are reported and skipped.

out-dir defaults to <in-dir>/edited. Stop with Ctrl-C.`,
		Example: `  pxsort watch ~/Pictures/inbox ~/Pictures/sorted --preset melt`,
		Args:    cobra.RangeArgs(1, 2),
		RunE:    runWatch,
	}
	cmd.Flags().Duration("debounce", 0, "Wait this long after the last write before processing")
	AddSortFlags(cmd.Flags())
	return cmd
}

func runWatch(cmd *cobra.Command, args []string) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	inDir := args[0]
	outDir := watchDefaultOutDir(inDir)
	if len(args) == 2 {
		outDir = args[1]
	}

	w, err := watch.New(watch.Config{
		InputDir:  inDir,
		OutputDir: outDir,
		Debounce:  cmdCtx.Cfg.Watch.Debounce,
		Processor: cmdCtx.Engine,
		OnResult:  newResultPrinter(cmdCtx.Renderer).print,
		Logger:    cmdCtx.Logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmdCtx.Renderer.Success(fmt.Sprintf("Watching %s, writing to %s", inDir, outDir))
	return w.Run(ctx)
}

func watchDefaultOutDir(inDir string) string {
	return filepath.Join(inDir, "edited")
}

// resultPrinter reports watcher results. Results arrive from timer
// goroutines, so printing is serialized.
type resultPrinter struct {
	mu sync.Mutex
	r  *output.Renderer
}

func newResultPrinter(r *output.Renderer) *resultPrinter {
	return &resultPrinter{r: r}
}

func (p *resultPrinter) print(job engine.Job, res *engine.Result, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	name := filepath.Base(job.Input)
	if err != nil {
		p.r.StatusLine(name, "error", err.Error())
		return
	}
	if p.r.EffectiveMode() == output.ModeJSON {
		_ = p.r.JSON(res)
		return
	}
	p.r.StatusLine(name, "success", fmt.Sprintf("-> %s (%s)", res.Output, res.Duration.Round(time.Millisecond)))
}
