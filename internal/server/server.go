// Package server exposes pixel sorting over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/pxsort/internal/engine"
	"github.com/leapstack-labs/pxsort/internal/watch"
)

// MaxBodyBytes caps uploaded images.
const MaxBodyBytes = 32 << 20

// DefaultMaxPixels caps the decoded size of an upload: 8192x8192.
const DefaultMaxPixels = 1 << 26

// ShutdownTimeout bounds graceful shutdown.
const ShutdownTimeout = 5 * time.Second

// DefaultMaxConnections caps concurrent connections. Further clients wait
// in the accept queue.
const DefaultMaxConnections = 64

// Server is the HTTP sorting service.
type Server struct {
	engine    *engine.Engine
	host      string
	port      int
	logger    *slog.Logger
	feed      *runFeed
	watcher   *watch.Watcher
	maxConns  int
	maxPixels int64
}

// Config holds configuration for the server.
type Config struct {
	Engine *engine.Engine
	Host   string
	Port   int
	Logger *slog.Logger
	// MaxConnections caps concurrent connections (0 uses DefaultMaxConnections).
	MaxConnections int
	// MaxPixels caps width*height of uploads (0 uses DefaultMaxPixels).
	MaxPixels int64
	// Watch, when set, also runs a directory watcher whose results are
	// pushed to /runs/updates subscribers.
	Watch *watch.Config
}

// New creates a new server instance.
func New(cfg Config) (*Server, error) {
	if cfg.Engine == nil {
		return nil, errors.New("server: engine is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	s := &Server{
		engine:    cfg.Engine,
		host:      cfg.Host,
		port:      cfg.Port,
		logger:    logger,
		feed:      newRunFeed(),
		maxConns:  cfg.MaxConnections,
		maxPixels: cfg.MaxPixels,
	}
	if s.maxConns <= 0 {
		s.maxConns = DefaultMaxConnections
	}
	if s.maxPixels <= 0 {
		s.maxPixels = DefaultMaxPixels
	}

	if cfg.Watch != nil {
		wc := *cfg.Watch
		wc.Processor = cfg.Engine
		if wc.Logger == nil {
			wc.Logger = logger
		}
		onResult := wc.OnResult
		wc.OnResult = func(job engine.Job, res *engine.Result, err error) {
			if onResult != nil {
				onResult(job, res, err)
			}
			s.feed.runChanged()
		}
		w, err := watch.New(wc)
		if err != nil {
			return nil, err
		}
		s.watcher = w
	}

	return s, nil
}

// Handler returns the router with all routes and middleware.
func (s *Server) Handler() http.Handler {
	r := chi.NewMux()
	r.Use(
		middleware.RequestID,
		middleware.RequestLogger(&middleware.DefaultLogFormatter{
			Logger:  slog.NewLogLogger(s.logger.Handler(), slog.LevelDebug),
			NoColor: true,
		}),
		middleware.Recoverer,
	)

	r.Get("/healthz", s.handleHealth)
	r.Get("/keys", s.handleKeys)
	r.Post("/sort", s.handleSort)
	r.Route("/runs", func(r chi.Router) {
		r.With(middleware.Compress(5, "application/json")).Get("/", s.handleRuns)
		r.Get("/updates", s.handleRunUpdates)
	})

	return r
}

// Serve starts the server and blocks until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	addr := net.JoinHostPort(s.host, strconv.Itoa(s.port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener serves on ln until the context is cancelled.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	s.logger.Info("starting server", "addr", "http://"+ln.Addr().String())
	ln = netutil.LimitListener(ln, s.maxConns)

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.watcher != nil {
		eg.Go(func() error {
			return s.watcher.Run(egctx)
		})
	}

	eg.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()

		s.logger.Debug("shutting down server...")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}
