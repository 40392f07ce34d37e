package main

import (
	"context"
	"fmt"

	"github.com/shi-yan/kerr/internal/mux"
	"github.com/shi-yan/kerr/internal/transport"
	"github.com/shi-yan/kerr/internal/wire"
)

// dialerMux wraps an outbound connection in a Mux with no registered
// handlers, since a dialing client only ever opens sessions, it never
// accepts inbound session requests from the peer it dialed.
func dialerMux(conn *transport.Connection) *mux.Mux {
	return mux.New(conn, nil, nil, nil)
}

// dialAndOpen starts a local endpoint (with an ephemeral identity unless
// dataDir is set), dials tok, and opens
// one session of kind, returning everything the caller needs to close
// down cleanly afterward.
func dialAndOpen(ctx context.Context, dataDir, tok string, kind wire.SessionKind) (*transport.Endpoint, *transport.Connection, *mux.Session, error) {
	ep, err := transport.Start(transport.Config{ListenAddr: "0.0.0.0:0", DataDir: dataDir})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to start local endpoint: %w", err)
	}

	conn, err := ep.Dial(ctx, tok)
	if err != nil {
		ep.Close()
		return nil, nil, nil, connectErr(fmt.Errorf("failed to connect: %w", err))
	}

	sess, err := dialerMux(conn).Open(ctx, kind)
	if err != nil {
		conn.Close()
		ep.Close()
		return nil, nil, nil, connectErr(fmt.Errorf("failed to open session: %w", err))
	}

	return ep, conn, sess, nil
}
