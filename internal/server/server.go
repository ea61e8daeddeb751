// Package server implements the accept loop of the relay: it binds the
// listening endpoint, admits connections against the registry's capacity and
// supervises one handler goroutine per admitted client.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"
)

// ErrServerClosed is returned by Serve and ListenAndServe after Shutdown.
var ErrServerClosed = errors.New("server: closed")

const maxAcceptDelay = time.Second

// Server accepts connections on any number of listeners. All listeners
// share one registry and therefore one capacity.
type Server struct {
	config   Config
	registry *Registry
	operator Operator
	logger   *log.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	closing   bool
	listeners map[net.Listener]struct{}
	serveWG   sync.WaitGroup
	handlerWG sync.WaitGroup
}

// NewServer creates a server with its own registry. A nil cfg uses defaults,
// a nil operator echoes messages back and a nil logger uses log.Default().
func NewServer(cfg *Config, operator Operator, logger *log.Logger) *Server {
	if cfg == nil {
		cfg = NewConfig()
	}
	sanitized := sanitizeConfig(*cfg)
	if operator == nil {
		operator = EchoOperator{}
	}
	if logger == nil {
		logger = log.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		config:    sanitized,
		registry:  NewRegistry(sanitized.MaxClients, sanitized.FirstIdentity, sanitized.RateLimit),
		operator:  operator,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		listeners: make(map[net.Listener]struct{}),
	}
}

// Registry returns the registry of live clients.
func (s *Server) Registry() *Registry {
	return s.registry
}

// Config returns the sanitized configuration in use.
func (s *Server) Config() Config {
	return s.config
}

// Addrs returns the addresses of the listeners currently being served.
func (s *Server) Addrs() []net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	addrs := make([]net.Addr, 0, len(s.listeners))
	for ln := range s.listeners {
		addrs = append(addrs, ln.Addr())
	}
	return addrs
}

// Listen binds a TCP listener on addr with address and port reuse enabled.
func (s *Server) Listen(ctx context.Context, addr string) (net.Listener, error) {
	lc := net.ListenConfig{Control: reuseControl}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	return ln, nil
}

// ListenAndServe listens on the configured port on all interfaces and serves
// until Shutdown is called.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := s.Listen(ctx, net.JoinHostPort("", s.config.Port))
	if err != nil {
		return err
	}
	s.logf("Server is listening on port %s...", s.config.Port)
	return s.Serve(ln)
}

// Serve runs the accept loop on ln. It always closes ln before returning.
func (s *Server) Serve(ln net.Listener) error {
	if !s.trackListener(ln) {
		_ = ln.Close()
		return ErrServerClosed
	}
	defer s.untrackListener(ln)

	var acceptDelay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosing() {
				return ErrServerClosed
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("accept on %s: %w", ln.Addr(), err)
			}

			if acceptDelay == 0 {
				acceptDelay = 5 * time.Millisecond
			} else if acceptDelay *= 2; acceptDelay > maxAcceptDelay {
				acceptDelay = maxAcceptDelay
			}
			s.logf("Accept error: %v; retrying in %v", err, acceptDelay)
			if !s.pause(acceptDelay) {
				return ErrServerClosed
			}
			continue
		}
		acceptDelay = 0

		s.admit(conn)

		if delay := s.config.AdmissionDelay; delay > 0 && !s.pause(delay) {
			return ErrServerClosed
		}
	}
}

// admit reserves a registry slot for conn and starts its handler, or closes
// conn without writing anything when the registry is full.
func (s *Server) admit(conn net.Conn) {
	client, err := s.registry.Admit(conn)
	if err != nil {
		s.logf("Max clients reached. Rejected: %s", conn.RemoteAddr())
		if err := conn.Close(); err != nil && !isExpectedCloseError(err) {
			s.logf("Error closing rejected connection from %s: %v", conn.RemoteAddr(), err)
		}
		return
	}

	if named, ok := conn.(Named); ok && client.SetName(named.DisplayName()) {
		s.logf("Client %d connected from %s as %q", client.id, client.addrString(), client.Name())
	} else {
		s.logf("Client %d connected from %s", client.id, client.addrString())
	}

	s.handlerWG.Add(1)
	go func() {
		defer s.handlerWG.Done()
		newHandler(s, client).run(s.ctx)
	}()
}

// Shutdown stops accepting, cancels pending operator prompts and waits up to
// timeout for handlers to finish. Connections still open after that are
// closed and context.DeadlineExceeded is returned.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return nil
	}
	s.closing = true
	for ln := range s.listeners {
		if err := ln.Close(); err != nil && !isExpectedCloseError(err) {
			s.logf("Error closing listener %s: %v", ln.Addr(), err)
		}
	}
	s.mu.Unlock()

	s.logf("Initiating server shutdown...")
	s.cancel()
	s.serveWG.Wait()

	done := make(chan struct{})
	go func() {
		s.handlerWG.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logf("Server shutdown completed successfully")
		return nil
	case <-time.After(timeout):
	}

	closed := s.registry.CloseAll()
	s.logf("Shutdown timeout reached, closed %d client connections", closed)

	select {
	case <-done:
	case <-time.After(timeout):
		s.logf("Some client handlers are still running")
	}
	return context.DeadlineExceeded
}

func (s *Server) trackListener(ln net.Listener) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.listeners[ln] = struct{}{}
	s.serveWG.Add(1)
	return true
}

func (s *Server) untrackListener(ln net.Listener) {
	s.mu.Lock()
	delete(s.listeners, ln)
	s.mu.Unlock()
	_ = ln.Close()
	s.serveWG.Done()
}

func (s *Server) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

// pause sleeps for d and reports false if the server shut down meanwhile.
func (s *Server) pause(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-s.ctx.Done():
		return false
	}
}

func (s *Server) logf(format string, args ...any) {
	s.logger.Printf(format, args...)
}
