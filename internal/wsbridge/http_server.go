// Package wsbridge constructs and starts the HTTP service carrying the bridge
// with helpers that apply production timeouts.
package wsbridge

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"time"
)

// CreateServer creates an HTTP server for addr and handler. Read and write
// timeouts cover only the upgrade request; upgraded connections manage their
// own deadlines.
func CreateServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// StartServer serves HTTP on ln until the server is shut down. A clean
// shutdown returns nil.
func StartServer(server *http.Server, ln net.Listener) error {
	log.Printf("WebSocket bridge listening on %s", ln.Addr())
	if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ShutdownServer gracefully shuts down the HTTP server without interrupting
// upgraded connections, which belong to the relay.
func ShutdownServer(server *http.Server, timeout time.Duration) error {
	log.Println("Shutting down WebSocket bridge...")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("WebSocket bridge shutdown error: %v", err)
		return err
	}

	log.Println("WebSocket bridge shutdown completed")
	return nil
}
