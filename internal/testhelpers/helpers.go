// Package testhelpers provides common utilities for testing the relay.
//
// The helpers only depend on the network and WebSocket client APIs so every
// package, including the server package itself, can use them without import
// cycles.
package testhelpers

import (
	"bytes"
	"errors"
	"io"
	"log"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultTimeout bounds every blocking helper.
const DefaultTimeout = 2 * time.Second

// TestOrigin is the Origin header sent by ConnectWebSocket.
const TestOrigin = "http://localhost:8080"

// Listen opens a loopback TCP listener on an ephemeral port.
func Listen(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	return ln
}

// Dial connects to addr and closes the connection when the test ends.
func Dial(t *testing.T, addr string) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, DefaultTimeout)
	if err != nil {
		t.Fatalf("Failed to connect to %s: %v", addr, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// Read performs one read with a deadline and returns the received text.
func Read(t *testing.T, conn net.Conn) string {
	t.Helper()
	buf := make([]byte, 2048)
	if err := conn.SetReadDeadline(time.Now().Add(DefaultTimeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	n, err := conn.Read(buf)
	if err != nil && n == 0 {
		t.Fatalf("Failed to read: %v", err)
	}
	return string(buf[:n])
}

// Send writes text to conn.
func Send(t *testing.T, conn net.Conn, text string) {
	t.Helper()
	if err := conn.SetWriteDeadline(time.Now().Add(DefaultTimeout)); err != nil {
		t.Fatalf("Failed to set write deadline: %v", err)
	}
	if _, err := io.WriteString(conn, text); err != nil {
		t.Fatalf("Failed to write %q: %v", text, err)
	}
}

// AssertClosed checks that the peer closes conn without sending any data.
// A net.Pipe end refuses deadlines once either side is closed, which already
// proves the close.
func AssertClosed(t *testing.T, conn net.Conn) {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(DefaultTimeout)); err != nil {
		if errors.Is(err, io.ErrClosedPipe) {
			return
		}
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	data, err := io.ReadAll(conn)
	if len(data) > 0 {
		t.Errorf("Expected no data before close, got %q", data)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		t.Error("Connection was not closed by the server")
	}
}

// AssertNoData checks that nothing arrives on conn within wait.
func AssertNoData(t *testing.T, conn net.Conn, wait time.Duration) {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(wait)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	buf := make([]byte, 256)
	n, err := conn.Read(buf)
	if n > 0 {
		t.Errorf("Expected no data, got %q", buf[:n])
		return
	}
	var netErr net.Error
	if !errors.As(err, &netErr) || !netErr.Timeout() {
		t.Errorf("Expected read timeout, got %v", err)
	}
}

// WaitFor polls cond until it holds or DefaultTimeout passes.
func WaitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(DefaultTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

// ConnectWebSocket dials a WebSocket URL with the test origin header.
func ConnectWebSocket(url string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: DefaultTimeout,
	}

	headers := http.Header{}
	headers.Set("Origin", TestOrigin)

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// ReceiveText reads one WebSocket message with a deadline.
func ReceiveText(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(DefaultTimeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read WebSocket message: %v", err)
	}
	return string(data)
}

// LogBuffer is a concurrency-safe io.Writer for capturing log output.
type LogBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

// Write appends p to the buffer.
func (b *LogBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// String returns everything written so far.
func (b *LogBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// NewLogger returns a logger writing into a fresh LogBuffer.
func NewLogger() (*log.Logger, *LogBuffer) {
	buf := &LogBuffer{}
	return log.New(buf, "", 0), buf
}
