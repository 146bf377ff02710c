package tests

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/searchktools/static-server/core"
)

const (
	stressClients  = 64
	stressRequests = 25
	stressFiles    = 16
)

func startEngine(t *testing.T, root string) (*core.Engine, string) {
	t.Helper()
	e := core.NewEngine(core.Options{
		DocumentRoot: root,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	ln, err := e.Listen("127.0.0.1:0")
	require.NoError(t, err)

	served := make(chan error, 1)
	go func() { served <- e.Serve(ln) }()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		assert.NoError(t, e.Shutdown(ctx))
		assert.ErrorIs(t, <-served, core.ErrServerClosed)
	})
	return e, ln.Addr().String()
}

func readBody(r *bufio.Reader) (int, []byte, error) {
	status := 0
	length := -1
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return 0, nil, err
		}
		if line == "\r\n" {
			break
		}
		if strings.HasPrefix(line, "HTTP/1.1 ") && len(line) >= 12 {
			status, _ = strconv.Atoi(line[9:12])
		}
		if v, ok := strings.CutPrefix(line, "Content-Length: "); ok {
			length, _ = strconv.Atoi(strings.TrimSpace(v))
		}
	}
	if length < 0 {
		return status, nil, fmt.Errorf("missing Content-Length")
	}
	body := make([]byte, length)
	_, err := io.ReadFull(r, body)
	return status, body, err
}

// TestStressKeepAlive drives many keep-alive clients through the engine and
// checks every body byte for byte.
func TestStressKeepAlive(t *testing.T) {
	if testing.Short() {
		t.Skip("stress test skipped in short mode")
	}

	root := t.TempDir()
	want := make([][]byte, stressFiles)
	for i := range want {
		want[i] = bytes.Repeat([]byte{byte('a' + i)}, 1024*(i+1)+i)
		require.NoError(t, os.WriteFile(filepath.Join(root, fmt.Sprintf("f%d.bin", i)), want[i], 0o644))
	}

	e, addr := startEngine(t, root)

	var wg sync.WaitGroup
	errs := make(chan error, stressClients)
	for c := 0; c < stressClients; c++ {
		wg.Add(1)
		go func(c int) {
			defer wg.Done()
			conn, err := net.DialTimeout("tcp4", addr, 5*time.Second)
			if err != nil {
				errs <- err
				return
			}
			defer conn.Close()
			conn.SetDeadline(time.Now().Add(30 * time.Second))
			r := bufio.NewReader(conn)

			for i := 0; i < stressRequests; i++ {
				idx := (c + i) % stressFiles
				if _, err := fmt.Fprintf(conn, "GET /f%d.bin HTTP/1.1\r\n\r\n", idx); err != nil {
					errs <- err
					return
				}
				status, body, err := readBody(r)
				if err != nil {
					errs <- fmt.Errorf("client %d request %d: %w", c, i, err)
					return
				}
				if status != 200 || !bytes.Equal(body, want[idx]) {
					errs <- fmt.Errorf("client %d request %d: status %d, %d bytes", c, i, status, len(body))
					return
				}
			}
		}(c)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}

	require.Eventually(t, func() bool {
		return e.Stats().Snapshot().Active == 0
	}, 5*time.Second, 10*time.Millisecond)

	snap := e.Stats().Snapshot()
	assert.Equal(t, uint64(stressClients), snap.Accepted)
	assert.Equal(t, uint64(stressClients*stressRequests), snap.Served)
	assert.Zero(t, snap.TransferErrors)
}
