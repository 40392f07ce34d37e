package tcprelay

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/shi-yan/kerr/internal/mux"
	"github.com/shi-yan/kerr/internal/wire"
)

// Client drives the client side of a relay session: one Run dispatch
// loop multiplexes replies across however many local forwards are
// active on this session.
type Client struct {
	Session *mux.Session

	nextStreamID atomic.Uint64

	mu      sync.Mutex
	streams map[uint64]net.Conn
	pending map[uint64]chan wire.TcpOpened

	counters Counters
}

// NewClient wraps an already-Open'd TcpRelay session.
func NewClient(session *mux.Session) *Client {
	return &Client{
		Session: session,
		streams: make(map[uint64]net.Conn),
		pending: make(map[uint64]chan wire.TcpOpened),
	}
}

// Stats returns the client side's current (bytes_up, bytes_down,
// active_streams) counters.
func (c *Client) Stats() Stats { return c.counters.Snapshot() }

// Run dispatches incoming TcpData/TcpOpened/TcpClose envelopes until the
// session ends. It must be running concurrently with any Forward calls.
func (c *Client) Run(ctx context.Context) error {
	for {
		p, err := c.Session.Recv()
		if err != nil {
			c.closeAll()
			return nil
		}

		switch v := p.(type) {
		case wire.TcpOpened:
			c.mu.Lock()
			ch := c.pending[v.StreamID]
			delete(c.pending, v.StreamID)
			c.mu.Unlock()
			if ch != nil {
				ch <- v
			}
		case wire.TcpData:
			c.mu.Lock()
			conn := c.streams[v.StreamID]
			c.mu.Unlock()
			if conn != nil {
				_, _ = conn.Write(v.Bytes)
			}
			c.counters.addDown(len(v.Bytes))
			if m := c.Session.Metrics(); m != nil {
				m.RecordBytesReceived(wire.SessionTcpRelay.String(), len(v.Bytes))
			}
		case wire.TcpClose:
			c.mu.Lock()
			conn := c.streams[v.StreamID]
			delete(c.streams, v.StreamID)
			c.mu.Unlock()
			if conn != nil {
				_ = conn.Close()
			}
		}
	}
}

func (c *Client) closeAll() {
	c.mu.Lock()
	for id, conn := range c.streams {
		conn.Close()
		delete(c.streams, id)
	}
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.mu.Unlock()
}

// Forward accepts local TCP connections on localAddr for the lifetime of
// ctx, tunneling each to remotePort on the peer.
func (c *Client) Forward(ctx context.Context, localAddr string, remotePort uint16) error {
	ln, err := net.Listen("tcp", localAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", localAddr, err)
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		go c.openStream(ctx, conn, remotePort)
	}
}

func (c *Client) openStream(ctx context.Context, conn net.Conn, remotePort uint16) {
	streamID := c.nextStreamID.Add(1)
	ch := make(chan wire.TcpOpened, 1)

	c.mu.Lock()
	c.pending[streamID] = ch
	c.mu.Unlock()

	if err := c.Session.Send(wire.TcpOpen{StreamID: streamID, RemotePort: remotePort}); err != nil {
		conn.Close()
		return
	}

	select {
	case opened, ok := <-ch:
		if !ok || !opened.Ok {
			conn.Close()
			return
		}
	case <-ctx.Done():
		conn.Close()
		return
	}

	c.mu.Lock()
	c.streams[streamID] = conn
	c.mu.Unlock()
	c.counters.streamOpened()
	if m := c.Session.Metrics(); m != nil {
		m.RecordRelayStreamOpen()
	}
	defer func() {
		c.mu.Lock()
		delete(c.streams, streamID)
		c.mu.Unlock()
		conn.Close()
		c.counters.streamClosed()
		if m := c.Session.Metrics(); m != nil {
			m.RecordRelayStreamClose()
		}
	}()

	pumpConnToSession(c.Session, streamID, conn, &c.counters, true)
}
