//go:build linux

package sendfile

import (
	"io"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// zeroCopy drives sendfile(2) through the connection's RawConn so the
// runtime poller parks the goroutine on EAGAIN instead of spinning.
// handled is false when dst is not a socket or the kernel refuses the
// copy before any byte moved; the caller then falls back to copyFrom
// starting at the returned offset.
func zeroCopy(dst io.Writer, f *os.File, size uint64) (sent uint64, handled bool, err error) {
	sc, ok := dst.(syscall.Conn)
	if !ok {
		return 0, false, nil
	}
	rc, err := sc.SyscallConn()
	if err != nil {
		return 0, false, nil
	}

	fc, err := f.SyscallConn()
	if err != nil {
		return 0, false, nil
	}

	var offset int64
	ctlErr := fc.Control(func(infd uintptr) {
		for uint64(offset) < size {
			remaining := size - uint64(offset)
			chunk := maxChunk
			if remaining < uint64(chunk) {
				chunk = int(remaining)
			}

			var n int
			var serr error
			rerr := rc.Write(func(outfd uintptr) bool {
				n, serr = unix.Sendfile(int(outfd), int(infd), &offset, chunk)
				if serr == unix.EAGAIN {
					return false
				}
				if serr == unix.EINTR {
					serr = nil
				}
				return true
			})
			if rerr == nil {
				rerr = serr
			}

			if rerr != nil {
				if offset == 0 && (rerr == unix.ENOSYS || rerr == unix.EINVAL || rerr == unix.EOPNOTSUPP) {
					return
				}
				err = os.NewSyscallError("sendfile", rerr)
				handled = true
				return
			}

			handled = true
			if n == 0 && uint64(offset) < size {
				err = io.ErrUnexpectedEOF
				return
			}
		}
	})

	if ctlErr != nil && !handled {
		return 0, false, nil
	}
	return uint64(offset), handled, err
}
