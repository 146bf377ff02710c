package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/searchktools/static-server/config"
	"github.com/searchktools/static-server/core"
	"github.com/searchktools/static-server/core/observability"
	"github.com/searchktools/static-server/core/pools"
)

// App wires configuration, logging and the serving engine together.
type App struct {
	cfg    *config.Config
	engine *core.Engine
	stats  *observability.Stats
	logger *slog.Logger
}

// New creates an application instance logging to stderr.
func New(cfg *config.Config) *App {
	return NewWithLogger(cfg, NewLogger(cfg, os.Stderr))
}

// NewWithLogger creates an application instance with a caller-supplied logger.
func NewWithLogger(cfg *config.Config, logger *slog.Logger) *App {
	stats := observability.NewStats()
	engine := core.NewEngine(core.Options{
		DocumentRoot:    cfg.DocumentRoot,
		DefaultDocument: cfg.DefaultDocument,
		ReadBufferSize:  cfg.ReadBufferSize,
		IdleTimeout:     cfg.IdleTimeout,
		MaxConnections:  cfg.MaxConnections,
		MaxWorkers:      cfg.MaxWorkers,
		Logger:          logger,
		Stats:           stats,
	})

	return &App{
		cfg:    cfg,
		engine: engine,
		stats:  stats,
		logger: logger,
	}
}

// NewLogger builds the process logger from the configured level and format.
func NewLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}

	var h slog.Handler
	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h).With("env", cfg.Env)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Engine returns the underlying engine.
func (a *App) Engine() *core.Engine {
	return a.engine
}

// Run serves until SIGINT or SIGTERM, then shuts down gracefully.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return a.RunContext(ctx)
}

// RunContext binds the configured address and serves until ctx is done.
// A bind failure is returned immediately.
func (a *App) RunContext(ctx context.Context) error {
	addr := a.cfg.Addr()
	ln, err := a.engine.Listen(addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return a.serve(ctx, ln)
}

func (a *App) serve(ctx context.Context, ln net.Listener) error {
	if a.cfg.GCPercent > 0 || a.cfg.MemoryLimit > 0 {
		prev := pools.ApplyGCConfig(pools.GCConfig{GOGC: a.cfg.GCPercent, MemoryLimit: a.cfg.MemoryLimit})
		a.logger.Info("runtime tuned",
			"gc_percent", a.cfg.GCPercent, "memory_limit", a.cfg.MemoryLimit,
			"prev_gc_percent", prev.GOGC, "prev_memory_limit", prev.MemoryLimit)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.engine.Serve(ln)
	}()

	reportCtx, stopReport := context.WithCancel(context.Background())
	defer stopReport()
	go observability.Report(reportCtx, a.cfg.StatsInterval, a.logger, a.stats, a.engine.Monitor())

	a.logger.Info("static server started",
		"addr", ln.Addr().String(),
		"root", a.cfg.DocumentRoot,
		"index", a.cfg.DefaultDocument,
	)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutting down", "timeout", a.cfg.ShutdownTimeout)

	shutdownCtx := context.Background()
	if a.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		shutdownCtx, cancel = context.WithTimeout(shutdownCtx, a.cfg.ShutdownTimeout)
		defer cancel()
	}

	shutdownErr := a.engine.Shutdown(shutdownCtx)
	serveErr := <-errCh

	stopReport()
	a.logger.Info("server stopped", a.stats.Snapshot().LogAttrs()...)
	for _, s := range a.engine.Monitor().Snapshot() {
		a.logger.Info("latency", slog.Any(s.Outcome, s))
	}
	a.logger.Debug("buffer pools", "stats", a.engine.GetPoolStats())
	gc := pools.GetGCStats()
	a.logger.Debug("gc", "num_gc", gc.NumGC, "pause_total", gc.PauseTotal, "heap_alloc", gc.HeapAlloc)

	if shutdownErr != nil {
		return shutdownErr
	}
	if errors.Is(serveErr, core.ErrServerClosed) {
		return nil
	}
	return serveErr
}
