package mux

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/shi-yan/kerr/internal/transport"
	"github.com/shi-yan/kerr/internal/wire"
)

// echoHandler mirrors every Input it receives back as an Output, until the
// stream ends.
func echoHandler(ctx context.Context, s *Session) error {
	for {
		p, err := s.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		in, ok := p.(wire.Input)
		if !ok {
			continue
		}
		if err := s.Send(wire.Output{Bytes: in.Bytes}); err != nil {
			return err
		}
	}
}

func dialedPair(t *testing.T) (*transport.Connection, *transport.Connection, func()) {
	t.Helper()

	server, err := transport.Start(transport.Config{ListenAddr: "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("Start server: %v", err)
	}
	client, err := transport.Start(transport.Config{ListenAddr: "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("Start client: %v", err)
	}

	tok, err := server.Token()
	if err != nil {
		t.Fatalf("Token: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	serverConnCh := make(chan *transport.Connection, 1)
	serverErrCh := make(chan error, 1)
	go func() {
		conn, err := server.Accept(ctx)
		if err != nil {
			serverErrCh <- err
			return
		}
		serverConnCh <- conn
	}()

	clientConn, err := client.Dial(ctx, tok)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	var serverConn *transport.Connection
	select {
	case err := <-serverErrCh:
		t.Fatalf("Accept: %v", err)
	case serverConn = <-serverConnCh:
	case <-ctx.Done():
		t.Fatal("timed out waiting for server accept")
	}

	cleanup := func() {
		clientConn.Close()
		serverConn.Close()
		server.Close()
		client.Close()
	}
	return serverConn, clientConn, cleanup
}

func TestMuxHandshakeAndEcho(t *testing.T) {
	serverConn, clientConn, cleanup := dialedPair(t)
	defer cleanup()

	serverMux := New(serverConn, map[wire.SessionKind]Handler{
		wire.SessionShell: HandlerFunc(echoHandler),
	}, nil, nil)
	clientMux := New(clientConn, nil, nil, nil)

	go serverMux.Serve(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	sess, err := clientMux.Open(ctx, wire.SessionShell)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer clientMux.CloseSession(sess.ID)

	if err := sess.Send(wire.Input{Bytes: []byte("hello")}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	p, err := sess.Recv()
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	out, ok := p.(wire.Output)
	if !ok {
		t.Fatalf("got %T, want wire.Output", p)
	}
	if string(out.Bytes) != "hello" {
		t.Errorf("Output.Bytes = %q, want %q", out.Bytes, "hello")
	}
}

func TestMuxRejectsUnsupportedKind(t *testing.T) {
	serverConn, clientConn, cleanup := dialedPair(t)
	defer cleanup()

	serverMux := New(serverConn, map[wire.SessionKind]Handler{}, nil, nil)
	clientMux := New(clientConn, nil, nil, nil)

	go serverMux.Serve(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	sess, err := clientMux.Open(ctx, wire.SessionPing)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer clientMux.CloseSession(sess.ID)

	p, err := sess.Recv()
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	errMsg, ok := p.(wire.ErrorMessage)
	if !ok {
		t.Fatalf("got %T, want wire.ErrorMessage", p)
	}
	if errMsg.Message == "" {
		t.Error("expected a non-empty error message")
	}
}

func TestMuxSessionIsolation(t *testing.T) {
	serverConn, clientConn, cleanup := dialedPair(t)
	defer cleanup()

	serverMux := New(serverConn, map[wire.SessionKind]Handler{
		wire.SessionShell: HandlerFunc(echoHandler),
		wire.SessionPing:  HandlerFunc(echoHandler),
	}, nil, nil)
	clientMux := New(clientConn, nil, nil, nil)

	go serverMux.Serve(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	sessA, err := clientMux.Open(ctx, wire.SessionShell)
	if err != nil {
		t.Fatalf("Open A: %v", err)
	}
	sessB, err := clientMux.Open(ctx, wire.SessionPing)
	if err != nil {
		t.Fatalf("Open B: %v", err)
	}
	defer clientMux.CloseSession(sessB.ID)

	// Kill session A by closing its stream.
	if err := clientMux.CloseSession(sessA.ID); err != nil {
		t.Fatalf("CloseSession A: %v", err)
	}

	// Session B keeps working.
	if err := sessB.Send(wire.Input{Bytes: []byte("still alive")}); err != nil {
		t.Fatalf("Send B: %v", err)
	}
	p, err := sessB.Recv()
	if err != nil {
		t.Fatalf("Recv B: %v", err)
	}
	out, ok := p.(wire.Output)
	if !ok || string(out.Bytes) != "still alive" {
		t.Fatalf("session B got corrupted by session A's close: %#v", p)
	}
}
