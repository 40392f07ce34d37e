package shell

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shi-yan/kerr/internal/mux"
	"github.com/shi-yan/kerr/internal/testutil"
	"github.com/shi-yan/kerr/internal/transport"
	"github.com/shi-yan/kerr/internal/wire"
)

func dialedPair(t *testing.T) (*transport.Connection, *transport.Connection, func()) {
	t.Helper()
	return testutil.DialedPair(t)
}

func TestShellSessionEchoesCommandOutput(t *testing.T) {
	serverConn, clientConn, cleanup := dialedPair(t)
	defer cleanup()

	serverMux := mux.New(serverConn, map[wire.SessionKind]mux.Handler{
		wire.SessionShell: &Server{Shell: []string{"/bin/sh"}},
	}, nil, nil)
	clientMux := mux.New(clientConn, nil, nil, nil)

	go serverMux.Serve(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sess, err := clientMux.Open(ctx, wire.SessionShell)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	stdin := strings.NewReader("echo hi\n")
	var stdout bytes.Buffer

	runCtx, runCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer runCancel()

	client := &Client{Session: sess, Stdin: stdin, Stdout: &stdout}

	done := make(chan error, 1)
	go func() { done <- client.Run(runCtx) }()

	deadline := time.After(3 * time.Second)
	for !strings.Contains(stdout.String(), "hi") {
		select {
		case <-deadline:
			t.Fatalf("never saw echoed output, got %q", stdout.String())
		case <-time.After(20 * time.Millisecond):
		}
	}

	runCancel()
	<-done
}

func TestShellSessionEndsWhenChildExitsWithoutDisconnect(t *testing.T) {
	serverConn, clientConn, cleanup := dialedPair(t)
	defer cleanup()

	serverMux := mux.New(serverConn, map[wire.SessionKind]mux.Handler{
		wire.SessionShell: &Server{Shell: []string{"/bin/sh", "-c", "echo hi; exit 0"}},
	}, nil, nil)
	clientMux := mux.New(clientConn, nil, nil, nil)

	go serverMux.Serve(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	sess, err := clientMux.Open(ctx, wire.SessionShell)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	var output bytes.Buffer
	recvErrCh := make(chan error, 1)
	go func() {
		for {
			p, err := sess.Recv()
			if err != nil {
				recvErrCh <- err
				return
			}
			if out, ok := p.(wire.Output); ok {
				output.Write(out.Bytes)
			}
		}
	}()

	// The child exits on its own here; the client never sends Disconnect.
	select {
	case <-recvErrCh:
	case <-time.After(3 * time.Second):
		t.Fatal("session never ended after the child exited on its own")
	}

	if !strings.Contains(output.String(), "hi") {
		t.Fatalf("never saw command output, got %q", output.String())
	}
}

func TestShellSessionResizeIsIdempotent(t *testing.T) {
	serverConn, clientConn, cleanup := dialedPair(t)
	defer cleanup()

	serverMux := mux.New(serverConn, map[wire.SessionKind]mux.Handler{
		wire.SessionShell: &Server{Shell: []string{"/bin/cat"}},
	}, nil, nil)
	clientMux := mux.New(clientConn, nil, nil, nil)

	go serverMux.Serve(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	sess, err := clientMux.Open(ctx, wire.SessionShell)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer clientMux.CloseSession(sess.ID)

	if err := sess.Send(wire.Resize{Cols: 80, Rows: 24}); err != nil {
		t.Fatalf("Resize 1: %v", err)
	}
	if err := sess.Send(wire.Resize{Cols: 80, Rows: 24}); err != nil {
		t.Fatalf("Resize 2: %v", err)
	}

	// Confirm the session is still responsive after both resizes.
	if err := sess.Send(wire.Input{Bytes: []byte("ping\n")}); err != nil {
		t.Fatalf("Send Input: %v", err)
	}

	p, err := sess.Recv()
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	out, ok := p.(wire.Output)
	if !ok || !strings.Contains(string(out.Bytes), "ping") {
		t.Fatalf("got %#v, want echoed ping", p)
	}
}
