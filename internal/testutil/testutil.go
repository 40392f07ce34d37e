// Package testutil provides an in-process QUIC loopback pair for session
// and mux tests, so each package's tests share one dialing harness
// instead of reimplementing it.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/shi-yan/kerr/internal/mux"
	"github.com/shi-yan/kerr/internal/transport"
	"github.com/shi-yan/kerr/internal/wire"
)

// DialedPair starts two local endpoints and connects them over QUIC,
// returning the server-accepted and client-dialed sides of the same
// connection plus a cleanup function that tears everything down.
func DialedPair(t *testing.T) (*transport.Connection, *transport.Connection, func()) {
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
	go func() {
		conn, err := server.Accept(ctx)
		if err == nil {
			serverConnCh <- conn
		}
	}()

	clientConn, err := client.Dial(ctx, tok)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	var serverConn *transport.Connection
	select {
	case serverConn = <-serverConnCh:
	case <-ctx.Done():
		t.Fatal("timed out waiting for server accept")
	}

	return serverConn, clientConn, func() {
		clientConn.Close()
		serverConn.Close()
		server.Close()
		client.Close()
	}
}

// SetUpSession dials a fresh connection pair, serves handlers on the
// server side, and opens a client-side session of kind, returning it
// plus a cleanup function that tears the whole pair down.
func SetUpSession(t *testing.T, kind wire.SessionKind, handler mux.Handler) (*mux.Session, func()) {
	t.Helper()
	serverConn, clientConn, cleanup := DialedPair(t)

	serverMux := mux.New(serverConn, map[wire.SessionKind]mux.Handler{
		kind: handler,
	}, nil, nil)
	clientMux := mux.New(clientConn, nil, nil, nil)
	go serverMux.Serve(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sess, err := clientMux.Open(ctx, kind)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return sess, cleanup
}
