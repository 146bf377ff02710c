// Package static serves files from a document root over a raw connection.
package static

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/searchktools/static-server/core/http"
	"github.com/searchktools/static-server/core/observability"
	"github.com/searchktools/static-server/core/sendfile"
)

// NotFoundBody is sent with every 404.
const NotFoundBody = `<p>Error 404: Not Found</p><p><a href="/main.html">Back to home</a></p>`

var ErrNotFound = errors.New("file not found")

// TransferError reports a body copy that failed after the 200 header went
// out. Sent is the number of body bytes that reached the peer.
type TransferError struct {
	Path string
	Sent uint64
	Err  error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer %s: %d bytes sent: %v", e.Path, e.Sent, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// FileServer resolves request URIs under its document root and writes
// framed responses.
type FileServer struct {
	root   string
	logger *slog.Logger
	stats  *observability.Stats
}

// NewFileServer creates a file server rooted at root. logger and stats
// may be nil.
func NewFileServer(root string, logger *slog.Logger, stats *observability.Stats) *FileServer {
	if logger == nil {
		logger = slog.Default()
	}
	if stats == nil {
		stats = observability.NewStats()
	}
	return &FileServer{
		root:   filepath.Clean(root),
		logger: logger.With("component", "static"),
		stats:  stats,
	}
}

// Root returns the cleaned document root.
func (s *FileServer) Root() string { return s.root }

// Resolve maps uri to a path under root. ok is false for URIs containing
// NUL bytes or ".." segments, and for anything whose cleaned form lands
// outside root.
func Resolve(root string, uri []byte) (string, bool) {
	if bytes.IndexByte(uri, 0) != -1 {
		return "", false
	}

	u := string(uri)
	for _, seg := range strings.Split(strings.ReplaceAll(u, `\`, "/"), "/") {
		if seg == ".." {
			return "", false
		}
	}

	root = filepath.Clean(root)
	full := filepath.Join(root, filepath.FromSlash(path.Clean("/"+u)))

	rel, err := filepath.Rel(root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return full, true
}

// Serve writes the response for uri to w: a 404 with NotFoundBody when the
// file is missing or rejected, otherwise a 200 header followed by exactly
// the probed number of body bytes.
func (s *FileServer) Serve(w io.Writer, uri []byte) error {
	full, ok := Resolve(s.root, uri)
	if !ok {
		s.logger.Warn("rejected path outside document root", "uri", string(uri))
		return s.notFound(w, string(uri))
	}
	return s.ServeFile(w, full)
}

// ServeFile serves an already resolved path. Lookups go through an
// os.Root at the document root, so symlinks that leave it are not followed.
func (s *FileServer) ServeFile(w io.Writer, full string) error {
	name, err := filepath.Rel(s.root, full)
	if err != nil || !filepath.IsLocal(name) {
		return s.notFound(w, full)
	}

	root, err := os.OpenRoot(s.root)
	if err != nil {
		s.logger.Warn("open document root", "root", s.root, "error", err)
		return s.notFound(w, full)
	}
	defer root.Close()

	meta := Probe(root, name)
	if !meta.Exists {
		return s.notFound(w, full)
	}

	// Open before framing the 200 so a stat/open race still yields a
	// single well-formed 404.
	f, err := root.Open(name)
	if err != nil {
		s.logger.Debug("open after probe failed", "path", full, "error", err)
		return s.notFound(w, full)
	}
	defer f.Close()

	if err := http.WriteHeader(w, http.StatusOK, meta.Size); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	sent, err := sendfile.Transfer(w, f, meta.Size)
	if err != nil {
		s.stats.TransferFailed(sent)
		if sent == 0 {
			// Nothing of the body is on the wire yet.
			if herr := http.WriteHeader(w, http.StatusInternalServerError, 0); herr != nil {
				s.logger.Debug("500 frame after failed transfer not sent", "path", full, "error", herr)
			}
		}
		return &TransferError{Path: full, Sent: sent, Err: err}
	}

	s.stats.Served(sent)
	return nil
}

func (s *FileServer) notFound(w io.Writer, target string) error {
	s.stats.NotFound()

	var buf [http.HeaderBufferSize + len(NotFoundBody)]byte
	n, err := http.FrameHeader(buf[:http.HeaderBufferSize], http.StatusNotFound, uint64(len(NotFoundBody)))
	if err != nil {
		return err
	}
	n += copy(buf[n:], NotFoundBody)
	if err := http.WriteFull(w, buf[:n]); err != nil {
		return fmt.Errorf("write 404: %w", err)
	}
	return fmt.Errorf("%s: %w", target, ErrNotFound)
}
