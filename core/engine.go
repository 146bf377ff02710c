package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/searchktools/static-server/core/observability"
	"github.com/searchktools/static-server/core/pools"
	"github.com/searchktools/static-server/core/static"
)

// Options configures an Engine. Zero values take the package defaults.
type Options struct {
	DocumentRoot    string
	DefaultDocument string
	ReadBufferSize  int

	// IdleTimeout bounds each wait for a request and each response write;
	// 0 waits forever.
	IdleTimeout time.Duration
	// MaxConnections caps concurrently accepted sockets; 0 is unbounded.
	MaxConnections int
	// MaxWorkers caps registry growth; 0 is unbounded.
	MaxWorkers int

	Logger  *slog.Logger
	Stats   *observability.Stats
	Monitor *observability.LatencyMonitor
}

// Engine owns the listening socket, the accept loop and the registry of
// connection workers.
type Engine struct {
	opts     Options
	indexURI []byte
	files    *static.FileServer
	registry *WorkerRegistry
	bytePool *pools.BytePool
	stats    *observability.Stats
	monitor  *observability.LatencyMonitor
	logger   *slog.Logger

	mu         sync.Mutex
	listener   net.Listener
	acceptDone chan struct{}
	closed     atomic.Bool
}

// NewEngine creates a new engine instance
func NewEngine(opts Options) *Engine {
	if opts.DocumentRoot == "" {
		opts.DocumentRoot = DefaultDocumentRoot
	}
	if opts.DefaultDocument == "" {
		opts.DefaultDocument = DefaultDocument
	}
	if opts.ReadBufferSize <= 0 {
		opts.ReadBufferSize = DefaultReadBufferSize
	}
	if opts.ReadBufferSize < MinReadBufferSize {
		opts.ReadBufferSize = MinReadBufferSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Stats == nil {
		opts.Stats = observability.NewStats()
	}
	if opts.Monitor == nil {
		opts.Monitor = observability.NewLatencyMonitor()
	}

	return &Engine{
		opts:     opts,
		indexURI: []byte("/" + opts.DefaultDocument),
		files:    static.NewFileServer(opts.DocumentRoot, opts.Logger, opts.Stats),
		registry: NewWorkerRegistry(RegistryInitialCap, opts.MaxWorkers),
		bytePool: pools.NewBytePoolWithSizes([]int{opts.ReadBufferSize}),
		stats:    opts.Stats,
		monitor:  opts.Monitor,
		logger:   opts.Logger.With("component", "engine"),
	}
}

// Stats returns the engine's counters.
func (e *Engine) Stats() *observability.Stats { return e.stats }

// Monitor returns the per-outcome request latencies.
func (e *Engine) Monitor() *observability.LatencyMonitor { return e.monitor }

// Listen binds an IPv4 TCP listener on addr with SO_REUSEADDR set. When
// MaxConnections is positive the listener admits at most that many
// connections at once.
func (e *Engine) Listen(addr string) (net.Listener, error) {
	lc := net.ListenConfig{Control: reuseAddrControl}
	ln, err := lc.Listen(context.Background(), "tcp4", addr)
	if err != nil {
		return nil, err
	}
	if e.opts.MaxConnections > 0 {
		ln = newLimitListener(ln, e.opts.MaxConnections)
	}
	return ln, nil
}

// ListenAndServe binds addr and runs the accept loop until Shutdown.
func (e *Engine) ListenAndServe(addr string) error {
	ln, err := e.Listen(addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return e.Serve(ln)
}

// Serve accepts connections on ln and hands each one to a new worker.
// Accept failures are logged and retried with backoff; only Shutdown ends
// the loop, in which case ErrServerClosed is returned.
func (e *Engine) Serve(ln net.Listener) error {
	e.mu.Lock()
	if e.closed.Load() {
		e.mu.Unlock()
		ln.Close()
		return ErrServerClosed
	}
	if e.listener != nil {
		e.mu.Unlock()
		return errors.New("engine already serving")
	}
	e.listener = ln
	e.acceptDone = make(chan struct{})
	done := e.acceptDone
	e.mu.Unlock()
	defer close(done)

	e.logger.Info("accepting connections",
		"addr", ln.Addr().String(),
		"root", e.files.Root(),
		"read_buffer", e.opts.ReadBufferSize,
	)

	var retryDelay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if e.closed.Load() {
				return ErrServerClosed
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}

			if retryDelay == 0 {
				retryDelay = initialAcceptRetryWait
			} else {
				retryDelay *= 2
			}
			if retryDelay > maxAcceptRetryDelay {
				retryDelay = maxAcceptRetryDelay
			}
			e.logger.Warn("accept failed", "error", err, "retry_in", retryDelay)
			time.Sleep(retryDelay)
			continue
		}
		retryDelay = 0

		e.registry.Reap()
		e.stats.ConnOpened()

		w, err := e.registry.Spawn(func() { e.serveConn(conn) })
		if err != nil {
			e.logger.Error("dropping connection", "remote", conn.RemoteAddr().String(), "error", err)
			e.stats.ConnRejected()
			e.stats.ConnClosed()
			conn.Close()
			continue
		}
		e.logger.Debug("connection accepted", "remote", conn.RemoteAddr().String(), "worker", w.ID())
	}
}

// Shutdown stops accepting, then waits for every in-flight worker. Open
// connections are not interrupted, so a peer that never disconnects keeps
// Shutdown waiting until ctx ends. Shutdown must not be called
// concurrently with itself.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.closed.Store(true)
	ln := e.listener
	done := e.acceptDone
	e.mu.Unlock()

	if ln != nil {
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			e.logger.Warn("closing listener", "error", err)
		}
	}
	if done == nil {
		return nil
	}

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	pending := e.registry.Len()
	e.logger.Info("draining workers", "pending", pending)
	if err := e.registry.JoinAll(ctx); err != nil {
		return fmt.Errorf("join workers: %w", err)
	}
	e.logger.Info("workers joined",
		"joined", e.registry.Joined(),
		"registry_cap", e.registry.Cap(),
		"registry_grows", e.registry.Grows(),
	)
	return nil
}
