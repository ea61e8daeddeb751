package integration

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/Tyrowin/relaychat/internal/server"
	"github.com/Tyrowin/relaychat/internal/testhelpers"
)

// TestGracefulShutdownWithClients verifies that idle sessions are closed by
// the shutdown itself, without needing the forced path.
func TestGracefulShutdownWithClients(t *testing.T) {
	r := startRelay(t, fixedReply("unused"), nil)

	numClients := 3
	conns := make([]net.Conn, numClients)
	for i := range conns {
		conns[i], _ = r.connect(t)
	}
	r.waitForCount(t, numClients)

	if err := r.srv.Shutdown(2 * time.Second); err != nil {
		t.Fatalf("Shutdown returned error: %v", err)
	}

	verifyClientsDisconnected(t, conns)
	if got := r.srv.Registry().Count(); got != 0 {
		t.Errorf("Expected no live clients after shutdown, got %d", got)
	}
	verifyServeReturned(t, r)
}

// verifyClientsDisconnected checks that every connection was closed without
// any further data.
func verifyClientsDisconnected(t *testing.T, conns []net.Conn) {
	t.Helper()
	for _, conn := range conns {
		testhelpers.AssertClosed(t, conn)
	}
}

func verifyServeReturned(t *testing.T, r *relay) {
	t.Helper()
	select {
	case err := <-r.served:
		if !errors.Is(err, server.ErrServerClosed) {
			t.Errorf("Expected ErrServerClosed from Serve, got %v", err)
		}
	case <-time.After(testhelpers.DefaultTimeout):
		t.Fatal("Serve did not return after Shutdown")
	}
}

// TestShutdownTimeout blocks a handler inside an operator that ignores
// cancellation and checks that Shutdown gives up with DeadlineExceeded.
func TestShutdownTimeout(t *testing.T) {
	release := make(chan struct{})
	stuck := server.OperatorFunc(func(_ context.Context, _ *server.Client, _ string) (string, error) {
		<-release
		return "too late", nil
	})
	r := startRelay(t, stuck, nil)
	defer close(release)

	conn, _ := r.connect(t)
	testhelpers.Send(t, conn, "hello\n")
	r.waitForLog(t, "): hello")

	err := r.srv.Shutdown(100 * time.Millisecond)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected context.DeadlineExceeded, got %v", err)
	}
	r.waitForLog(t, "Shutdown timeout reached")

	testhelpers.AssertClosed(t, conn)
	verifyServeReturned(t, r)
}

// TestShutdownAbandonsOperatorPrompt keeps a console prompt waiting and
// checks that shutdown cancels it instead of waiting for the operator.
func TestShutdownAbandonsOperatorPrompt(t *testing.T) {
	in, typing := io.Pipe()
	defer typing.Close()
	out := &testhelpers.LogBuffer{}

	r := startRelay(t, server.NewConsoleOperator(in, out), nil)

	conn, _ := r.connect(t)
	testhelpers.Send(t, conn, "anyone there?\n")
	testhelpers.WaitFor(t, "operator prompt", func() bool {
		return strings.Contains(out.String(), "Enter custom response for Client 10: ")
	})

	if err := r.srv.Shutdown(2 * time.Second); err != nil {
		t.Errorf("Shutdown returned error: %v", err)
	}
	testhelpers.AssertClosed(t, conn)
	r.waitForLog(t, "No reply for client 10")
}

func TestConcurrentShutdown(t *testing.T) {
	r := startRelay(t, fixedReply("unused"), nil)
	r.connect(t)
	r.waitForCount(t, 1)

	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		go func() {
			errs <- r.srv.Shutdown(time.Second)
		}()
	}
	for i := 0; i < 3; i++ {
		if err := <-errs; err != nil {
			t.Errorf("Shutdown call %d returned error: %v", i, err)
		}
	}
}

func TestNoClientsShutdown(t *testing.T) {
	r := startRelay(t, fixedReply("unused"), nil)

	if err := r.srv.Shutdown(time.Second); err != nil {
		t.Errorf("Shutdown returned error: %v", err)
	}
	verifyServeReturned(t, r)
}

// TestServeAfterShutdown checks that a closed server refuses new listeners
// and closes them.
func TestServeAfterShutdown(t *testing.T) {
	logger, _ := testhelpers.NewLogger()
	srv := server.NewServer(nil, nil, logger)
	if err := srv.Shutdown(time.Second); err != nil {
		t.Fatalf("Shutdown returned error: %v", err)
	}

	ln := testhelpers.Listen(t)
	if err := srv.Serve(ln); !errors.Is(err, server.ErrServerClosed) {
		t.Errorf("Expected ErrServerClosed, got %v", err)
	}
	if _, err := ln.Accept(); !errors.Is(err, net.ErrClosed) {
		t.Errorf("Expected the listener to be closed, got %v", err)
	}
}
