package http

import (
	"errors"
	"io"
	"strconv"
)

// Status codes the server emits.
const (
	StatusOK                  = 200
	StatusBadRequest          = 400
	StatusNotFound            = 404
	StatusInternalServerError = 500
)

// HeaderBufferSize fits the longest status line in the table plus a
// 20-digit Content-Length.
const HeaderBufferSize = 128

var (
	ErrBadRequest     = errors.New("malformed request line")
	ErrInternal       = errors.New("empty request line")
	ErrHeaderTooLarge = errors.New("response header exceeds buffer")
)

const (
	protoPrefix         = "HTTP/1.1 "
	contentLengthPrefix = "Content-Length: "
)

// StatusText returns the reason phrase for code, or "Unknown".
func StatusText(code int) string {
	switch code {
	case StatusOK:
		return "OK"
	case StatusBadRequest:
		return "Bad Request"
	case StatusNotFound:
		return "Not Found"
	case StatusInternalServerError:
		return "Internal Server Error"
	default:
		return "Unknown"
	}
}

// HeaderLen returns the exact number of bytes FrameHeader writes.
func HeaderLen(status int, bodyLength uint64) int {
	statusLen := digits(uint64(status))
	if status < 0 {
		statusLen = 1 + digits(uint64(-status))
	}
	return len(protoPrefix) + statusLen + 1 + len(StatusText(status)) + 2 +
		len(contentLengthPrefix) + digits(bodyLength) + 4
}

// FrameHeader writes the status line, the Content-Length header and the
// blank line into dst. It never truncates: if dst is too small nothing
// is written and ErrHeaderTooLarge is returned.
func FrameHeader(dst []byte, status int, bodyLength uint64) (int, error) {
	n := HeaderLen(status, bodyLength)
	if n > len(dst) {
		return 0, ErrHeaderTooLarge
	}
	return len(AppendHeader(dst[:0], status, bodyLength)), nil
}

// AppendHeader appends the header block to b.
func AppendHeader(b []byte, status int, bodyLength uint64) []byte {
	b = append(b, protoPrefix...)
	b = strconv.AppendInt(b, int64(status), 10)
	b = append(b, ' ')
	b = append(b, StatusText(status)...)
	b = append(b, "\r\n"...)
	b = append(b, contentLengthPrefix...)
	b = strconv.AppendUint(b, bodyLength, 10)
	b = append(b, "\r\n\r\n"...)
	return b
}

// WriteHeader frames the header in a fixed stack buffer and writes it to w,
// retrying short writes.
func WriteHeader(w io.Writer, status int, bodyLength uint64) error {
	var buf [HeaderBufferSize]byte
	n, err := FrameHeader(buf[:], status, bodyLength)
	if err != nil {
		return err
	}
	return WriteFull(w, buf[:n])
}

// WriteFull writes all of p, looping over partial writes.
func WriteFull(w io.Writer, p []byte) error {
	written := 0
	for written < len(p) {
		n, err := w.Write(p[written:])
		written += n
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
	}
	return nil
}

func digits(v uint64) int {
	n := 1
	for v >= 10 {
		v /= 10
		n++
	}
	return n
}
