package transport

import (
	"context"
	"net"

	"github.com/quic-go/quic-go"

	"github.com/shi-yan/kerr/internal/identity"
	"github.com/shi-yan/kerr/internal/kerrors"
)

// Connection is one authenticated QUIC connection to a peer, owned for
// its lifetime by the multiplexer.
type Connection struct {
	conn     quic.Connection
	peerID   identity.NodeID
	isDialer bool
}

// PeerID is the remote endpoint's authenticated NodeID.
func (c *Connection) PeerID() identity.NodeID { return c.peerID }

// IsDialer reports whether this side initiated the connection.
func (c *Connection) IsDialer() bool { return c.isDialer }

// LocalAddr returns the connection's local address.
func (c *Connection) LocalAddr() net.Addr { return c.conn.LocalAddr() }

// RemoteAddr returns the connection's remote address.
func (c *Connection) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// OpenStream opens a new outgoing bidirectional stream, used by the
// client side of the multiplexer to start a session.
func (c *Connection) OpenStream(ctx context.Context) (*Stream, error) {
	s, err := c.conn.OpenStreamSync(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, kerrors.New(kerrors.KindCancelled, err)
		}
		return nil, kerrors.New(kerrors.KindIoError, err)
	}
	return &Stream{stream: s}, nil
}

// AcceptStream waits for the next incoming bidirectional stream, used by
// the server side of the multiplexer.
func (c *Connection) AcceptStream(ctx context.Context) (*Stream, error) {
	s, err := c.conn.AcceptStream(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, kerrors.New(kerrors.KindCancelled, err)
		}
		return nil, kerrors.New(kerrors.KindPeerClosed, err)
	}
	return &Stream{stream: s}, nil
}

// Close terminates the connection and every stream on it.
func (c *Connection) Close() error {
	return c.conn.CloseWithError(0, "connection closed")
}
