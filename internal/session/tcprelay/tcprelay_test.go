package tcprelay

import (
	"bytes"
	"context"
	"net"
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

func echoTCPServer(t *testing.T) (port uint16, cleanup func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				buf := make([]byte, 4096)
				for {
					n, err := conn.Read(buf)
					if n > 0 {
						conn.Write(buf[:n])
					}
					if err != nil {
						return
					}
				}
			}()
		}
	}()
	return uint16(ln.Addr().(*net.TCPAddr).Port), func() { ln.Close() }
}

func TestRelayRoundTripsBytesThroughForward(t *testing.T) {
	echoPort, echoCleanup := echoTCPServer(t)
	defer echoCleanup()

	serverConn, clientConn, cleanup := dialedPair(t)
	defer cleanup()

	srv := &Server{}
	serverMux := mux.New(serverConn, map[wire.SessionKind]mux.Handler{
		wire.SessionTcpRelay: srv,
	}, nil, nil)
	clientMux := mux.New(clientConn, nil, nil, nil)
	go serverMux.Serve(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sess, err := clientMux.Open(ctx, wire.SessionTcpRelay)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	client := NewClient(sess)
	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	go client.Run(runCtx)

	localLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	localAddr := localLn.Addr().String()
	localLn.Close()

	go client.Forward(runCtx, localAddr, echoPort)
	time.Sleep(100 * time.Millisecond)

	conn, err := net.Dial("tcp", localAddr)
	if err != nil {
		t.Fatalf("Dial local forward: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("hello relay")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	buf := make([]byte, 64)
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(buf[:n], []byte("hello relay")) {
		t.Fatalf("got %q, want %q", buf[:n], "hello relay")
	}

	deadline := time.After(3 * time.Second)
	for {
		clientStats, srvStats := client.Stats(), srv.Stats()
		if clientStats.BytesUp > 0 && clientStats.BytesDown > 0 &&
			srvStats.BytesUp > 0 && srvStats.BytesDown > 0 && srvStats.ActiveStreams == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("counters never settled, client=%+v server=%+v", clientStats, srvStats)
		case <-time.After(10 * time.Millisecond):
		}
	}

	conn.Close()

	deadline = time.After(3 * time.Second)
	for srv.Stats().ActiveStreams != 0 || client.Stats().ActiveStreams != 0 {
		select {
		case <-deadline:
			t.Fatalf("active_streams never returned to 0, server=%+v client=%+v", srv.Stats(), client.Stats())
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestRelayReportsDialFailure(t *testing.T) {
	serverConn, clientConn, cleanup := dialedPair(t)
	defer cleanup()

	serverMux := mux.New(serverConn, map[wire.SessionKind]mux.Handler{
		wire.SessionTcpRelay: &Server{DialTimeout: 500 * time.Millisecond},
	}, nil, nil)
	clientMux := mux.New(clientConn, nil, nil, nil)
	go serverMux.Serve(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sess, err := clientMux.Open(ctx, wire.SessionTcpRelay)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	// Port 1 should have nothing listening in the test sandbox.
	if err := sess.Send(wire.TcpOpen{StreamID: 1, RemotePort: 1}); err != nil {
		t.Fatalf("Send TcpOpen: %v", err)
	}
	p, err := sess.Recv()
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	opened, ok := p.(wire.TcpOpened)
	if !ok {
		t.Fatalf("expected TcpOpened, got %#v", p)
	}
	if opened.Ok {
		t.Fatal("expected dial failure to report ok=false")
	}
}
