package core

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/searchktools/static-server/core/http"
	"github.com/searchktools/static-server/core/observability"
	"github.com/searchktools/static-server/core/static"
)

var rootURI = []byte("/")

// Connection states
const (
	StateAwaitRequest = iota
	StateParseLine
	StateRoute
	StateRespond
	StateClose
)

var stateNames = [...]string{
	StateAwaitRequest: "await_request",
	StateParseLine:    "parse_line",
	StateRoute:        "route",
	StateRespond:      "respond",
	StateClose:        "close",
}

// connection is owned by exactly one worker for its whole life.
type connection struct {
	conn    net.Conn
	readBuf []byte
	state   int
	logger  *slog.Logger
}

// serveConn runs the read → parse → route → respond loop until the peer
// closes or an error ends the connection. The socket is closed exactly
// once on the way out.
func (e *Engine) serveConn(nc net.Conn) {
	c := &connection{
		conn:    nc,
		readBuf: e.bytePool.Get(e.opts.ReadBufferSize),
		state:   StateAwaitRequest,
		logger:  e.logger.With("remote", nc.RemoteAddr().String()),
	}
	defer e.closeConnection(c)

	for {
		err := e.handleNext(c)
		if err == nil {
			continue
		}
		last := c.state
		c.state = StateClose
		e.logConnErr(c.logger.With("state", stateNames[last]), err)
		return
	}
}

// handleNext serves one request. io.EOF means the peer closed cleanly.
func (e *Engine) handleNext(c *connection) error {
	c.state = StateAwaitRequest
	if e.opts.IdleTimeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(e.opts.IdleTimeout)); err != nil {
			return fmt.Errorf("set read deadline: %w", err)
		}
	}

	n, err := c.conn.Read(c.readBuf)
	if n == 0 {
		if err == nil || errors.Is(err, io.EOF) {
			return io.EOF
		}
		return fmt.Errorf("read: %w", err)
	}
	readErr := err

	e.stats.Request()
	start := time.Now()
	err = e.handleRequest(c, c.readBuf[:n])
	e.monitor.Since(outcomeOf(err), start)
	if err != nil {
		return err
	}
	if readErr != nil {
		if errors.Is(readErr, io.EOF) {
			return io.EOF
		}
		return fmt.Errorf("read: %w", readErr)
	}
	return nil
}

// handleRequest routes the first line of data. The line's views point into
// the read buffer and are dead once the next read starts.
func (e *Engine) handleRequest(c *connection, data []byte) error {
	c.state = StateParseLine
	lines := http.SplitLines(data)
	if len(lines) == 0 {
		return ErrEmptyRequest
	}

	c.state = StateRoute
	rl, err := http.ParseRequestLine(lines[0])
	if err != nil {
		e.stats.BadRequest()
		return fmt.Errorf("parse request line %q: %w", lines[0], err)
	}

	uri := rl.URI
	if bytes.Equal(uri, rootURI) {
		uri = e.indexURI
	}
	c.logger.Debug("request", "method", string(rl.Method), "uri", string(rl.URI), "version", string(rl.Version))

	c.state = StateRespond
	if e.opts.IdleTimeout > 0 {
		// A peer that stops reading must not pin the worker mid-transfer.
		if err := c.conn.SetWriteDeadline(time.Now().Add(e.opts.IdleTimeout)); err != nil {
			return fmt.Errorf("set write deadline: %w", err)
		}
	}
	return e.files.Serve(c.conn, uri)
}

func outcomeOf(err error) string {
	var terr *static.TransferError
	switch {
	case err == nil:
		return observability.OutcomeServed
	case errors.As(err, &terr):
		return observability.OutcomeTransferError
	case errors.Is(err, static.ErrNotFound):
		return observability.OutcomeNotFound
	case errors.Is(err, http.ErrBadRequest), errors.Is(err, http.ErrInternal), errors.Is(err, ErrEmptyRequest):
		return observability.OutcomeBadRequest
	default:
		return observability.OutcomeError
	}
}

func (e *Engine) closeConnection(c *connection) {
	if err := c.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		c.logger.Debug("close", "error", err)
	}
	e.bytePool.Put(c.readBuf)
	c.readBuf = nil
	e.stats.ConnClosed()
}

func (e *Engine) logConnErr(logger *slog.Logger, err error) {
	var terr *static.TransferError
	switch {
	case errors.As(err, &terr):
		logger.Warn("file transfer aborted", "path", terr.Path, "sent", terr.Sent, "error", terr.Err)
	case errors.Is(err, io.EOF):
		logger.Debug("peer closed")
	case errors.Is(err, static.ErrNotFound):
		logger.Debug("closing after 404", "error", err)
	case errors.Is(err, http.ErrBadRequest), errors.Is(err, http.ErrInternal), errors.Is(err, ErrEmptyRequest):
		logger.Info("closing on malformed request", "status", http.StatusOf(err), "error", err)
	case errors.Is(err, os.ErrDeadlineExceeded):
		logger.Debug("idle timeout")
	default:
		logger.Warn("connection error", "error", err)
	}
}
