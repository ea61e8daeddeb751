package wsbridge

import (
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Tyrowin/relaychat/internal/testhelpers"
	"github.com/gorilla/websocket"
)

// startListener serves a Listener over HTTP and returns it with the ws URL.
func startListener(t *testing.T, readLimit int64) (*Listener, string) {
	t.Helper()
	ts := httptest.NewUnstartedServer(nil)
	listener := NewListener(ts.Listener.Addr(), NewOriginPolicy([]string{testhelpers.TestOrigin}), readLimit)
	ts.Config.Handler = listener
	ts.Start()
	t.Cleanup(func() {
		_ = listener.Close()
		ts.Close()
	})
	return listener, "ws" + strings.TrimPrefix(ts.URL, "http")
}

// acceptPair dials the listener and returns both ends of the session.
func acceptPair(t *testing.T, listener *Listener, url string) (net.Conn, *websocket.Conn) {
	t.Helper()
	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := listener.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	peer, err := testhelpers.ConnectWebSocket(url)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	t.Cleanup(func() { _ = peer.Close() })

	select {
	case conn := <-accepted:
		t.Cleanup(func() { _ = conn.Close() })
		return conn, peer
	case <-time.After(testhelpers.DefaultTimeout):
		t.Fatal("Accept did not return the upgraded connection")
		return nil, nil
	}
}

func TestListenerAcceptsUpgrades(t *testing.T) {
	listener, url := startListener(t, 0)
	conn, peer := acceptPair(t, listener, url)

	if conn.RemoteAddr() == nil || conn.LocalAddr() == nil {
		t.Error("Expected both addresses to be set")
	}

	testhelpers.Send(t, conn, "Welcome, Client 10!\n")
	if got := testhelpers.ReceiveText(t, peer); got != "Welcome, Client 10!\n" {
		t.Errorf("Peer received %q", got)
	}

	if err := peer.WriteMessage(websocket.TextMessage, []byte("hello")); err != nil {
		t.Fatalf("Failed to write: %v", err)
	}
	if got := testhelpers.Read(t, conn); got != "hello" {
		t.Errorf("Conn read %q, want %q", got, "hello")
	}
}

// TestConnReadSpansMessage reads one message through a buffer smaller than
// the message and then reads the next message separately.
func TestConnReadSpansMessage(t *testing.T) {
	listener, url := startListener(t, 0)
	conn, peer := acceptPair(t, listener, url)

	for _, msg := range []string{"hello", "world"} {
		if err := peer.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
			t.Fatalf("Failed to write: %v", err)
		}
	}

	_ = conn.SetReadDeadline(time.Now().Add(testhelpers.DefaultTimeout))
	buf := make([]byte, 3)
	var got []string
	for _, want := range []string{"hel", "lo", "wor", "ld"} {
		n, err := conn.Read(buf)
		if err != nil {
			t.Fatalf("Read returned error: %v", err)
		}
		got = append(got, string(buf[:n]))
		if string(buf[:n]) != want {
			t.Errorf("Read %q, want %q (so far %q)", buf[:n], want, got)
		}
	}
}

func TestConnPeerCloseIsEOF(t *testing.T) {
	listener, url := startListener(t, 0)
	conn, peer := acceptPair(t, listener, url)

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
	if err := peer.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil {
		t.Fatalf("Failed to send close frame: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(testhelpers.DefaultTimeout))
	if _, err := conn.Read(make([]byte, 16)); !errors.Is(err, io.EOF) {
		t.Errorf("Expected io.EOF after a normal close, got %v", err)
	}
}

func TestConnReadLimit(t *testing.T) {
	listener, url := startListener(t, 8)
	conn, peer := acceptPair(t, listener, url)

	if err := peer.WriteMessage(websocket.TextMessage, []byte(strings.Repeat("x", 64))); err != nil {
		t.Fatalf("Failed to write: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(testhelpers.DefaultTimeout))
	var err error
	for err == nil {
		_, err = conn.Read(make([]byte, 4))
	}
	if !errors.Is(err, websocket.ErrReadLimit) {
		t.Errorf("Expected websocket.ErrReadLimit, got %v", err)
	}
}

func TestConnCloseIsIdempotent(t *testing.T) {
	listener, url := startListener(t, 0)
	conn, peer := acceptPair(t, listener, url)

	first := conn.Close()
	second := conn.Close()
	if first != second {
		t.Errorf("Close returned %v then %v", first, second)
	}

	_ = peer.SetReadDeadline(time.Now().Add(testhelpers.DefaultTimeout))
	_, _, err := peer.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("Expected a normal close frame, got %v", err)
	}
}

func TestListenerClose(t *testing.T) {
	listener := NewListener(nil, NewOriginPolicy([]string{"*"}), 0)

	if err := listener.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	if err := listener.Close(); err != nil {
		t.Errorf("Second Close returned error: %v", err)
	}

	_, err := listener.Accept()
	if !errors.Is(err, ErrListenerClosed) || !errors.Is(err, net.ErrClosed) {
		t.Errorf("Expected ErrListenerClosed wrapping net.ErrClosed, got %v", err)
	}

	rr := httptest.NewRecorder()
	listener.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ws", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status %d after Close, got %d", http.StatusServiceUnavailable, rr.Code)
	}
}

func TestTranslateReadError(t *testing.T) {
	other := errors.New("boom")
	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "Nil", err: nil, want: nil},
		{name: "Normal closure", err: &websocket.CloseError{Code: websocket.CloseNormalClosure}, want: io.EOF},
		{name: "Going away", err: &websocket.CloseError{Code: websocket.CloseGoingAway}, want: io.EOF},
		{name: "No status", err: &websocket.CloseError{Code: websocket.CloseNoStatusReceived}, want: io.EOF},
		{name: "Abnormal closure", err: &websocket.CloseError{Code: websocket.CloseAbnormalClosure}, want: nil},
		{name: "Other error", err: other, want: other},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := translateReadError(tt.err)
			switch {
			case tt.want == nil && tt.err == nil:
				if got != nil {
					t.Errorf("Expected nil, got %v", got)
				}
			case tt.want == nil:
				if got != tt.err {
					t.Errorf("Expected the error unchanged, got %v", got)
				}
			case !errors.Is(got, tt.want):
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestListenerCarriesDisplayName(t *testing.T) {
	listener, url := startListener(t, 0)

	named, _ := acceptPair(t, listener, url+"?name=bob")
	if got := named.(*Conn).DisplayName(); got != "bob" {
		t.Errorf("DisplayName() = %q, want %q", got, "bob")
	}

	anonymous, _ := acceptPair(t, listener, url)
	if got := anonymous.(*Conn).DisplayName(); got != "" {
		t.Errorf("DisplayName() = %q, want empty", got)
	}
}
