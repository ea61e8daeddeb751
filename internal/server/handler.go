// Package server runs one handler per admitted connection: greet the client,
// relay operator replies for every message, and clean up on exit.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

type handlerState int

const (
	stateGreeting handlerState = iota
	stateServing
	stateClosing
)

// handler owns one admitted client from greeting to cleanup.
type handler struct {
	srv    *Server
	client *Client
	buf    []byte
	state  handlerState
}

func newHandler(srv *Server, client *Client) *handler {
	return &handler{
		srv:    srv,
		client: client,
		buf:    make([]byte, srv.config.BufferSize),
		state:  stateGreeting,
	}
}

// run drives the state machine. Cancelling ctx closes the connection, which
// unblocks a pending read.
func (h *handler) run(ctx context.Context) {
	stop := context.AfterFunc(ctx, func() { _ = h.client.Close() })
	defer stop()
	defer h.cleanup()

	for h.state != stateClosing {
		switch h.state {
		case stateGreeting:
			h.state = h.greet()
		case stateServing:
			h.state = h.serve(ctx)
		}
	}
}

func (h *handler) greet() handlerState {
	welcome := fmt.Sprintf("Welcome, %s!\n", h.client.Name())
	if err := h.write(welcome); err != nil {
		h.srv.logf("Error sending welcome to client %d (%s): %v", h.client.id, h.client.addrString(), err)
		return stateClosing
	}
	return stateServing
}

// serve performs one receive and, when needed, one reply.
func (h *handler) serve(ctx context.Context) handlerState {
	n, err := h.read()
	if n > 0 {
		raw := h.buf[:n]
		if isExitCommand(raw) {
			h.srv.logf("Client %d (%s) requested exit", h.client.id, h.client.addrString())
			return stateClosing
		}
		if !h.respond(ctx, trimLineTerminator(string(raw))) {
			return stateClosing
		}
	}
	if err != nil {
		h.handleReadError(ctx, err)
		return stateClosing
	}
	return stateServing
}

// respond asks the operator for a reply to message and sends it. It returns
// false when the connection should close.
func (h *handler) respond(ctx context.Context, message string) bool {
	if message == "" {
		return true
	}

	h.srv.logf("Client %d (%s): %s", h.client.id, h.client.addrString(), message)

	// over the limit: close rather than leave a message unanswered
	if !h.client.allow() {
		h.srv.logf("Rate limit exceeded for client %d (%s), closing", h.client.id, h.client.addrString())
		return false
	}

	reply, err := h.srv.operator.Reply(ctx, h.client, message)
	if err != nil {
		h.srv.logf("No reply for client %d (%s): %v", h.client.id, h.client.addrString(), err)
		return false
	}

	if err := h.write(trimLineTerminator(reply)); err != nil {
		h.srv.logf("Error writing reply to client %d (%s): %v", h.client.id, h.client.addrString(), err)
		return false
	}
	return true
}

// handleReadError logs the reason the read loop is stopping.
func (h *handler) handleReadError(ctx context.Context, err error) {
	switch {
	case ctx.Err() != nil:
		h.srv.logf("Closing client %d (%s): server shutting down", h.client.id, h.client.addrString())
	case errors.Is(err, io.EOF):
		// peer closed; cleanup logs the disconnect
	case isTimeout(err):
		h.srv.logf("Client %d (%s) idle for %s, closing", h.client.id, h.client.addrString(), h.srv.config.IdleTimeout)
	case isExpectedCloseError(err):
		h.srv.logf("Client %d (%s) connection closed: %v", h.client.id, h.client.addrString(), err)
	default:
		h.srv.logf("Read error from client %d (%s): %v", h.client.id, h.client.addrString(), err)
	}
}

func (h *handler) read() (int, error) {
	if idle := h.srv.config.IdleTimeout; idle > 0 {
		if err := h.client.conn.SetReadDeadline(time.Now().Add(idle)); err != nil {
			return 0, err
		}
	}
	return h.client.conn.Read(h.buf)
}

func (h *handler) write(text string) error {
	if text == "" {
		return nil
	}
	if err := h.client.conn.SetWriteDeadline(time.Now().Add(h.srv.config.WriteTimeout)); err != nil {
		return err
	}
	_, err := io.WriteString(h.client.conn, text)
	return err
}

// cleanup closes the connection and releases the registry slot. Every step
// tolerates being repeated.
func (h *handler) cleanup() {
	h.state = stateClosing
	if err := h.client.Close(); err != nil && !isExpectedCloseError(err) {
		h.srv.logf("Error closing connection for client %d (%s): %v", h.client.id, h.client.addrString(), err)
	}
	if h.srv.registry.Remove(h.client.id) {
		h.srv.logf("Client %d (%s) disconnected. Total clients: %d", h.client.id, h.client.addrString(), h.srv.registry.Count())
	}
}
