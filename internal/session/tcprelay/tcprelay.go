// Package tcprelay implements the TCP relay session: the client accepts
// local TCP connections per configured forward and tunnels their bytes
// to a server-side dial of 127.0.0.1:remote_port, multiplexed by
// stream_id over one session.
package tcprelay

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/shi-yan/kerr/internal/mux"
	"github.com/shi-yan/kerr/internal/wire"
)

// StreamBufferSize bounds the per-stream read buffer; a full buffer
// stalls the pump's next Send, providing backpressure rather than an
// unbounded queue.
const StreamBufferSize = 256 * 1024

// DefaultDialTimeout bounds how long the server waits to dial the
// forwarded port before reporting TcpOpened{ok=false}.
const DefaultDialTimeout = 5 * time.Second

// Server implements the server side: on TcpOpen it dials
// 127.0.0.1:remote_port and, on success, pumps bytes symmetrically.
type Server struct {
	DialTimeout time.Duration

	counters Counters
}

func (srv *Server) dialTimeout() time.Duration {
	if srv.DialTimeout > 0 {
		return srv.DialTimeout
	}
	return DefaultDialTimeout
}

// Stats returns the server side's current (bytes_up, bytes_down,
// active_streams) counters.
func (srv *Server) Stats() Stats { return srv.counters.Snapshot() }

func (srv *Server) Serve(ctx context.Context, s *mux.Session) error {
	var mu sync.Mutex
	streams := make(map[uint64]net.Conn)
	var wg sync.WaitGroup

	cleanup := func() {
		mu.Lock()
		for id, conn := range streams {
			conn.Close()
			delete(streams, id)
		}
		mu.Unlock()
		wg.Wait()
	}
	defer cleanup()

	for {
		p, err := s.Recv()
		if err != nil {
			return nil
		}

		switch v := p.(type) {
		case wire.TcpOpen:
			wg.Add(1)
			go func() {
				defer wg.Done()
				srv.openAndPump(ctx, s, v, &mu, streams)
			}()
		case wire.TcpData:
			mu.Lock()
			conn := streams[v.StreamID]
			mu.Unlock()
			if conn != nil {
				_, _ = conn.Write(v.Bytes)
			}
			srv.counters.addUp(len(v.Bytes))
			if m := s.Metrics(); m != nil {
				m.RecordBytesReceived(wire.SessionTcpRelay.String(), len(v.Bytes))
			}
		case wire.TcpClose:
			mu.Lock()
			conn := streams[v.StreamID]
			delete(streams, v.StreamID)
			mu.Unlock()
			if conn != nil {
				_ = conn.Close()
			}
		default:
			s.Logger.Warn("tcp relay session received unexpected payload", "type", fmt.Sprintf("%T", p))
		}
	}
}

func (srv *Server) openAndPump(ctx context.Context, s *mux.Session, open wire.TcpOpen, mu *sync.Mutex, streams map[uint64]net.Conn) {
	dialCtx, cancel := context.WithTimeout(ctx, srv.dialTimeout())
	defer cancel()

	conn, err := (&net.Dialer{}).DialContext(dialCtx, "tcp", fmt.Sprintf("127.0.0.1:%d", open.RemotePort))
	if err != nil {
		_ = s.Send(wire.TcpOpened{StreamID: open.StreamID, Ok: false, Reason: err.Error()})
		return
	}
	defer conn.Close()

	mu.Lock()
	streams[open.StreamID] = conn
	mu.Unlock()
	srv.counters.streamOpened()
	if m := s.Metrics(); m != nil {
		m.RecordRelayStreamOpen()
	}
	defer func() {
		mu.Lock()
		delete(streams, open.StreamID)
		mu.Unlock()
		srv.counters.streamClosed()
		if m := s.Metrics(); m != nil {
			m.RecordRelayStreamClose()
		}
	}()

	if err := s.Send(wire.TcpOpened{StreamID: open.StreamID, Ok: true}); err != nil {
		return
	}

	pumpConnToSession(s, open.StreamID, conn, &srv.counters, false)
}

// pumpConnToSession reads from conn and forwards TcpData until EOF, then
// sends TcpClose; shared by both roles since the byte-pump is symmetric
// once a stream is open. up reports the direction relative to the
// tunnel's local endpoint: true when conn is the client's locally
// accepted connection (bytes flowing into the tunnel, bytes_up), false
// when conn is the server's dialed connection (bytes flowing back out,
// bytes_down).
func pumpConnToSession(s *mux.Session, streamID uint64, conn net.Conn, c *Counters, up bool) {
	buf := make([]byte, StreamBufferSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			if sendErr := s.Send(wire.TcpData{StreamID: streamID, Bytes: append([]byte(nil), buf[:n]...)}); sendErr != nil {
				return
			}
			if up {
				c.addUp(n)
			} else {
				c.addDown(n)
			}
			if m := s.Metrics(); m != nil {
				m.RecordBytesSent(wire.SessionTcpRelay.String(), n)
			}
		}
		if err != nil {
			_ = s.Send(wire.TcpClose{StreamID: streamID})
			return
		}
	}
}
