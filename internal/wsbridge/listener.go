// Package wsbridge exposes WebSocket upgrades as a net.Listener.
package wsbridge

import (
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// ErrListenerClosed is returned by Accept after Close. It wraps net.ErrClosed.
var ErrListenerClosed = fmt.Errorf("wsbridge: listener closed: %w", net.ErrClosed)

// Listener hands upgraded WebSocket connections to Accept. It is also the
// http.Handler that performs the upgrade.
type Listener struct {
	addr      net.Addr
	readLimit int64
	upgrader  websocket.Upgrader
	conns     chan net.Conn
	done      chan struct{}
	closeOnce sync.Once
}

var (
	_ net.Listener = (*Listener)(nil)
	_ http.Handler = (*Listener)(nil)
)

// NewListener creates a listener reporting addr as its address. Upgrades are
// checked against policy; readLimit bounds one inbound message in bytes.
func NewListener(addr net.Addr, policy *OriginPolicy, readLimit int64) *Listener {
	return &Listener{
		addr:      addr,
		readLimit: readLimit,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     policy.checkOrigin,
		},
		conns: make(chan net.Conn),
		done:  make(chan struct{}),
	}
}

// Accept waits for the next upgraded connection.
func (l *Listener) Accept() (net.Conn, error) {
	select {
	case conn := <-l.conns:
		return conn, nil
	case <-l.done:
		return nil, ErrListenerClosed
	}
}

// Close stops Accept. Upgrades still waiting to be accepted are closed.
func (l *Listener) Close() error {
	l.closeOnce.Do(func() { close(l.done) })
	return nil
}

// Addr returns the address of the HTTP server carrying the bridge.
func (l *Listener) Addr() net.Addr {
	return l.addr
}

// ServeHTTP validates the request, upgrades it and blocks until the
// connection is accepted or the listener closes. An optional "name" query
// parameter becomes the connection's DisplayName.
func (l *Listener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	select {
	case <-l.done:
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	default:
	}

	ws, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	conn := NewConn(ws, l.readLimit)
	conn.name = r.URL.Query().Get("name")
	select {
	case l.conns <- conn:
	case <-l.done:
		_ = conn.Close()
	}
}
