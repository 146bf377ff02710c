package http

import (
	"bytes"
	"errors"
)

var (
	space = []byte(" ")
	crlf  = []byte("\r\n")
)

// RequestLine holds views into the read buffer it was parsed from.
// The views are only valid until that buffer is next overwritten.
type RequestLine struct {
	Method  []byte
	URI     []byte
	Version []byte
}

// Split splits buf on sep and returns subslice views of buf.
// Consecutive separators produce zero-length tokens, but a trailing
// zero-length remainder is dropped, so "a b " yields two tokens.
func Split(buf, sep []byte) [][]byte {
	if len(buf) == 0 {
		return nil
	}
	if len(sep) == 0 {
		return [][]byte{buf}
	}

	tokens := make([][]byte, 0, 8)
	for {
		i := bytes.Index(buf, sep)
		if i == -1 {
			break
		}
		tokens = append(tokens, buf[:i:i])
		buf = buf[i+len(sep):]
	}
	if len(buf) > 0 {
		tokens = append(tokens, buf)
	}
	return tokens
}

// SplitLines splits a raw request buffer on CRLF.
func SplitLines(buf []byte) [][]byte {
	return Split(buf, crlf)
}

// ParseRequestLine parses "<METHOD> <URI> <VERSION>" without validating
// the method vocabulary or the version format.
func ParseRequestLine(line []byte) (RequestLine, error) {
	if len(line) == 0 {
		return RequestLine{}, ErrInternal
	}

	tokens := Split(line, space)
	if len(tokens) != 3 {
		return RequestLine{}, ErrBadRequest
	}

	return RequestLine{
		Method:  tokens[0],
		URI:     tokens[1],
		Version: tokens[2],
	}, nil
}

// StatusOf maps a parse error to the status it stands for.
func StatusOf(err error) int {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, ErrBadRequest):
		return StatusBadRequest
	default:
		return StatusInternalServerError
	}
}
