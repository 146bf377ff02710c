package core

import (
	"net"
	"syscall"

	"golang.org/x/net/netutil"
)

// limitListener admits at most n connections at once through
// netutil.LimitListener, but hands out connections that still expose the
// socket's RawConn so sendfile can reach the descriptor. Accept must not be
// called concurrently; the engine's accept loop is its only caller.
type limitListener struct {
	net.Listener
	inner *recordingListener
}

// recordingListener remembers the connection its last Accept returned.
type recordingListener struct {
	net.Listener
	last net.Conn
}

func (l *recordingListener) Accept() (net.Conn, error) {
	c, err := l.Listener.Accept()
	l.last = c
	return c, err
}

func newLimitListener(ln net.Listener, n int) net.Listener {
	inner := &recordingListener{Listener: ln}
	return &limitListener{
		Listener: netutil.LimitListener(inner, n),
		inner:    inner,
	}
}

func (l *limitListener) Accept() (net.Conn, error) {
	c, err := l.Listener.Accept()
	raw := l.inner.last
	l.inner.last = nil
	if err != nil {
		return nil, err
	}
	if sc, ok := raw.(syscall.Conn); ok {
		return &admittedConn{Conn: c, raw: sc}, nil
	}
	return c, nil
}

// admittedConn is a connection counted against the limit. Close goes
// through the limiter so the slot is released exactly once.
type admittedConn struct {
	net.Conn
	raw syscall.Conn
}

func (c *admittedConn) SyscallConn() (syscall.RawConn, error) {
	return c.raw.SyscallConn()
}
