// Package server keeps per-connection client records: network identity,
// the owned connection, numeric identity and display name.
package server

import (
	"fmt"
	"net"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"
)

// MaxNameLength bounds a client's display name in bytes.
const MaxNameLength = 32

// Named is implemented by connections that arrive with a display name chosen
// by the peer, such as WebSocket bridge sessions opened with ?name=.
type Named interface {
	DisplayName() string
}

// Client represents one live connection admitted by the server.
// Exactly one handler goroutine reads from and writes to conn.
type Client struct {
	id          int
	addr        net.Addr
	conn        net.Conn
	rateLimiter *rateLimiter

	mu   sync.RWMutex
	name string

	closeOnce sync.Once
	closeErr  error
}

// NewClient creates a Client for an accepted connection. Identity is normally
// assigned by Registry.Admit; callers building records by hand must pick an
// identity unique among live clients.
func NewClient(id int, conn net.Conn, rateLimit RateLimitConfig) *Client {
	c := &Client{
		id:   id,
		conn: conn,
		name: fmt.Sprintf("Client %d", id),
	}
	if rateLimit.Burst > 0 {
		c.rateLimiter = newRateLimiter(rateLimit.Burst, rateLimit.RefillInterval)
	}
	if conn != nil {
		c.addr = conn.RemoteAddr()
	}
	return c
}

// ID returns the client's identity.
func (c *Client) ID() int {
	return c.id
}

// Addr returns the peer address, or nil for detached records.
func (c *Client) Addr() net.Addr {
	return c.addr
}

// Conn returns the connection owned by this client.
func (c *Client) Conn() net.Conn {
	return c.conn
}

// Name returns the display name.
func (c *Client) Name() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.name
}

// SetName replaces the display name, truncated to MaxNameLength bytes
// without splitting a rune. Control characters are dropped so a name cannot
// break the greeting line. It reports false and keeps the current name when
// nothing printable is left.
func (c *Client) SetName(name string) bool {
	name = truncateName(strings.TrimSpace(strings.Map(dropControl, name)))
	if name == "" {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.name = name
	return true
}

func dropControl(r rune) rune {
	if unicode.IsControl(r) {
		return -1
	}
	return r
}

// addrString formats the peer address for log lines.
func (c *Client) addrString() string {
	if c.addr == nil {
		return "unknown"
	}
	return c.addr.String()
}

// allow reports whether another inbound message fits the client's rate limit.
func (c *Client) allow() bool {
	return c.rateLimiter == nil || c.rateLimiter.allow()
}

// Close closes the underlying connection once. Later calls return the first result.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		if c.conn == nil {
			return
		}
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

func truncateName(name string) string {
	if len(name) <= MaxNameLength {
		return name
	}
	cut := MaxNameLength
	for cut > 0 && !utf8.RuneStart(name[cut]) {
		cut--
	}
	return name[:cut]
}
