package commands

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/pxsort/internal/server"
	"github.com/leapstack-labs/pxsort/internal/watch"
)

// ServeOptions holds options for the serve command.
type ServeOptions struct {
	WatchDir string
	OutDir   string
}

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	opts := &ServeOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve pixel sorting over HTTP",
		Long: `Start an HTTP service that sorts uploaded images.

Endpoints:
  GET  /healthz        liveness check
  GET  /keys           sort keys as JSON
  POST /sort           sort the request body (raw image or multipart "image")
  GET  /runs           recent runs as JSON
  GET  /runs/updates   recent runs pushed over server-sent events

Query parameters on /sort override the configured sort settings.
With --watch-dir the server also processes images dropped into that
directory.`,
		Example: `  pxsort serve --port 8765
  curl --data-binary @leaves.jpg 'http://127.0.0.1:8765/sort?key=hue&format=jpg' > out.jpg`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().String("host", "", "Address to listen on")
	cmd.Flags().Int("port", 0, "Port to listen on")
	cmd.Flags().StringVar(&opts.WatchDir, "watch-dir", "", "Also watch this directory for new images")
	cmd.Flags().StringVar(&opts.OutDir, "out-dir", "", "Output directory for watched images (default: <watch-dir>/edited)")
	AddSortFlags(cmd.Flags())
	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	cfg := cmdCtx.Cfg
	serverCfg := server.Config{
		Engine: cmdCtx.Engine,
		Host:   cfg.Serve.Host,
		Port:   cfg.Serve.Port,
		Logger: cmdCtx.Logger,
	}
	if opts.WatchDir != "" {
		outDir := opts.OutDir
		if outDir == "" {
			outDir = watchDefaultOutDir(opts.WatchDir)
		}
		serverCfg.Watch = &watch.Config{
			InputDir:  opts.WatchDir,
			OutputDir: outDir,
			Debounce:  cfg.Watch.Debounce,
			OnResult:  newResultPrinter(cmdCtx.Renderer).print,
		}
	}

	srv, err := server.New(serverCfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := net.JoinHostPort(cfg.Serve.Host, strconv.Itoa(cfg.Serve.Port))
	cmdCtx.Renderer.Success(fmt.Sprintf("Serving on http://%s", addr))
	if opts.WatchDir != "" {
		cmdCtx.Renderer.Muted(fmt.Sprintf("Watching %s", opts.WatchDir))
	}

	return srv.Serve(ctx)
}
