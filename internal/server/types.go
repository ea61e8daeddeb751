// Package server defines shared helpers for message text handling and
// error classification reused by the handler and the accept loop.
package server

import (
	"errors"
	"io"
	"net"
	"os"
	"strings"
	"syscall"
)

// exitCommand closes a connection when it is received verbatim.
const exitCommand = "exit"

// trimLineTerminator cuts text at the first newline and drops a trailing
// carriage return.
func trimLineTerminator(text string) string {
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	return strings.TrimSuffix(text, "\r")
}

// isExitCommand compares the raw, untrimmed receive buffer against the exit
// literal. "exit\n" is therefore an ordinary message.
func isExitCommand(raw []byte) bool {
	return string(raw) == exitCommand
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) ||
		errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}

// isTimeout reports whether err came from an expired deadline.
func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
