// Package sendfile moves file bytes onto a connection, using the kernel's
// file-to-socket copy where the platform and the destination allow it and
// a pooled buffered loop otherwise.
package sendfile

import (
	"io"
	"os"

	"github.com/searchktools/static-server/core/pools"
)

// maxChunk bounds a single sendfile call; Linux caps it near 2GB anyway.
const maxChunk = 4 << 20

// Transfer writes exactly size bytes of f, starting at offset 0, to dst.
// It returns the number of body bytes that reached dst, even on error, so
// callers can tell whether the response stream has started.
//
// The loop is bounded by size, not by the file's live length: a file that
// shrinks yields io.ErrUnexpectedEOF and growth past size is not sent.
func Transfer(dst io.Writer, f *os.File, size uint64) (uint64, error) {
	if size == 0 {
		return 0, nil
	}

	sent, handled, err := zeroCopy(dst, f, size)
	if handled {
		return sent, err
	}
	return copyFrom(dst, f, sent, size)
}

// copyFrom is the buffered path: read into a pooled buffer, write it out,
// retry partial writes from where they stopped.
func copyFrom(dst io.Writer, f *os.File, offset, size uint64) (uint64, error) {
	buf := pools.GetBytes(pools.CopyBufferSize)
	defer pools.PutBytes(buf)

	sent := offset
	for sent < size {
		chunk := buf
		if remaining := size - sent; remaining < uint64(len(chunk)) {
			chunk = chunk[:remaining]
		}

		n, rerr := f.ReadAt(chunk, int64(sent))
		if n > 0 {
			w, werr := writeCounted(dst, chunk[:n])
			sent += uint64(w)
			if werr != nil {
				return sent, werr
			}
		}
		if rerr != nil {
			if rerr == io.EOF {
				if sent < size {
					return sent, io.ErrUnexpectedEOF
				}
				break
			}
			return sent, rerr
		}
	}

	return sent, nil
}

func writeCounted(w io.Writer, p []byte) (int, error) {
	written := 0
	for written < len(p) {
		n, err := w.Write(p[written:])
		written += n
		if err != nil {
			return written, err
		}
		if n == 0 {
			return written, io.ErrShortWrite
		}
	}
	return written, nil
}
