package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Tyrowin/relaychat/internal/server"
	"github.com/Tyrowin/relaychat/internal/wsbridge"
)

func main() {
	if len(os.Args) != 2 {
		usage()
	}
	port, ok := server.ParsePort(os.Args[1])
	if !ok {
		usage()
	}

	fmt.Println("Starting relaychat server...")

	config := server.NewConfigFromEnv()
	config.Port = port

	logger := log.New(os.Stdout, "", log.LstdFlags)
	srv := server.NewServer(config, newOperator(config.Operator), logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := srv.Listen(ctx, net.JoinHostPort("", config.Port))
	if err != nil {
		log.Fatal(err)
	}
	logger.Printf("Server is listening on port %s...", config.Port)

	errs := make(chan error, 3)
	go func() {
		errs <- srv.Serve(ln)
	}()

	var httpServer *http.Server
	if config.WebSocketAddr != "" {
		httpServer = startBridge(srv, config, errs)
	}

	select {
	case <-ctx.Done():
		logger.Println("Got stop signal")
	case err := <-errs:
		if !errors.Is(err, server.ErrServerClosed) {
			logger.Printf("Server error: %v", err)
		}
	}

	shutdown(srv, httpServer, config.ShutdownTimeout)
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s <port>\n", filepath.Base(os.Args[0]))
	os.Exit(1)
}

func newOperator(kind string) server.Operator {
	if kind == "echo" {
		return server.EchoOperator{}
	}
	return server.NewConsoleOperator(os.Stdin, os.Stdout)
}

// startBridge serves the WebSocket bridge on its own HTTP listener. Bridge
// clients share the TCP server's registry and capacity.
func startBridge(srv *server.Server, config *server.Config, errs chan<- error) *http.Server {
	httpLn, err := net.Listen("tcp", config.WebSocketAddr)
	if err != nil {
		log.Fatalf("listen on %s: %v", config.WebSocketAddr, err)
	}

	bridge := wsbridge.NewListener(httpLn.Addr(), wsbridge.NewOriginPolicy(config.AllowedOrigins), int64(config.BufferSize))
	httpServer := wsbridge.CreateServer(config.WebSocketAddr, wsbridge.SetupRoutes(bridge, srv.Registry()))

	go func() {
		if err := wsbridge.StartServer(httpServer, httpLn); err != nil {
			errs <- err
		}
	}()
	go func() {
		errs <- srv.Serve(bridge)
	}()
	return httpServer
}

func shutdown(srv *server.Server, httpServer *http.Server, timeout time.Duration) {
	if err := srv.Shutdown(timeout); err != nil {
		log.Printf("Server shutdown: %v", err)
	}
	if httpServer != nil {
		_ = wsbridge.ShutdownServer(httpServer, timeout)
	}
	log.Println("Server stopped")
}
