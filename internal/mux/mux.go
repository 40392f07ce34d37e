// Package mux is the per-connection multiplexer: it demultiplexes QUIC
// streams into sessions keyed by session_id and dispatches each to the
// handler registered for its kind.
package mux

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shi-yan/kerr/internal/kerrors"
	"github.com/shi-yan/kerr/internal/logging"
	"github.com/shi-yan/kerr/internal/metrics"
	"github.com/shi-yan/kerr/internal/transport"
	"github.com/shi-yan/kerr/internal/wire"
)

// HandshakeTimeout bounds how long the server side waits for the first
// Hello envelope on a freshly accepted stream.
const HandshakeTimeout = 10 * time.Second

// Handler implements one session kind's protocol over a Session.
// Serve blocks until the session ends (stream closed, peer disconnect, or
// fatal error) and returns the error that ended it, or nil for a clean
// end. Serve must release every OS resource it acquired before returning.
type Handler interface {
	Serve(ctx context.Context, s *Session) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, s *Session) error

func (f HandlerFunc) Serve(ctx context.Context, s *Session) error { return f(ctx, s) }

// Session is one logical conversation multiplexed on a single QUIC
// stream. Handlers read and write envelopes through it; they never see
// the raw stream or the mux's session map.
type Session struct {
	ID     string
	Kind   wire.SessionKind
	Peer   *transport.Connection
	Logger *slog.Logger

	stream *transport.Stream
	reader *wire.Reader
	writer *wire.Writer
	// writeMu serializes writes; the wire.Writer itself is not
	// goroutine-safe and a session's two halves (e.g. shell's PTY->stream
	// and stream->PTY tasks) may both want to write (Output vs Error).
	writeMu sync.Mutex

	metrics *metrics.Metrics
}

// Recv blocks for the next envelope's payload addressed to this session.
func (s *Session) Recv() (wire.Payload, error) {
	env, err := s.reader.Read()
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RecordFrameReceived()
	}
	return env.Payload, nil
}

// Send writes one payload to this session's stream.
func (s *Session) Send(p wire.Payload) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.writer.Write(wire.Envelope{SessionID: s.ID, Payload: p}); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.RecordFrameSent()
	}
	return nil
}

// SendError writes an Error{message} envelope; it is the canonical way a
// handler reports a session-local recoverable failure to the peer.
func (s *Session) SendError(msg string) error {
	return s.Send(wire.ErrorMessage{Message: msg})
}

// Close releases the underlying stream. Handlers call this on their own
// terminal paths; the mux also calls it once Serve returns, so it must be
// idempotent.
func (s *Session) Close() error { return s.stream.Close() }

// Metrics returns the Mux's metrics instance, or nil if none was
// configured; handlers use it to record domain-specific counters (bytes
// transferred, relay streams opened) beyond the generic frame counts
// Recv/Send already record.
func (s *Session) Metrics() *metrics.Metrics { return s.metrics }

// Mux owns one authenticated Connection and every Session multiplexed
// over it. Its only shared mutable state is the session map below,
// guarded by a single mutex held only for O(1) insert/remove/lookup, per
// the concurrency model every other part of this package follows.
type Mux struct {
	conn     *transport.Connection
	logger   *slog.Logger
	metrics  *metrics.Metrics
	handlers map[wire.SessionKind]Handler

	mu       sync.Mutex
	sessions map[string]*Session

	nextID atomic.Uint64
}

// New creates a Mux over an already-authenticated connection. handlers
// maps each session kind this endpoint supports to its implementation;
// kinds with no entry are answered with an Error envelope ("unsupported
// session kind") and their stream is closed.
func New(conn *transport.Connection, handlers map[wire.SessionKind]Handler, logger *slog.Logger, m *metrics.Metrics) *Mux {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Mux{
		conn:     conn,
		logger:   logger,
		metrics:  m,
		handlers: handlers,
		sessions: make(map[string]*Session),
	}
}

// Serve runs the server side of the multiplexer: it loops accepting new
// bidirectional streams until the connection fails or ctx is cancelled,
// dispatching each to the handler named by its first Hello envelope.
func (m *Mux) Serve(ctx context.Context) error {
	for {
		stream, err := m.conn.AcceptStream(ctx)
		if err != nil {
			m.teardown()
			if kerrors.Is(err, kerrors.KindCancelled) {
				return nil
			}
			return err
		}
		go m.handleStream(ctx, stream)
	}
}

func (m *Mux) handleStream(ctx context.Context, stream *transport.Stream) {
	reader := wire.NewReader(stream)
	reader.SetIdleTimeout(HandshakeTimeout)

	env, err := reader.Read()
	if err != nil {
		m.logger.Debug("bad handshake: read failed", logging.KeyError, err)
		_ = wire.NewWriter(stream).Write(wire.Envelope{Payload: wire.ErrorMessage{Message: "bad handshake"}})
		_ = stream.Close()
		return
	}

	hello, ok := env.Payload.(wire.Hello)
	if !ok {
		m.logger.Debug("bad handshake: first envelope was not Hello")
		_ = wire.NewWriter(stream).Write(wire.Envelope{Payload: wire.ErrorMessage{Message: "bad handshake"}})
		_ = stream.Close()
		return
	}

	handler, ok := m.handlers[hello.Kind]
	if !ok {
		m.logger.Debug("bad handshake: unsupported session kind", "kind", hello.Kind)
		_ = wire.NewWriter(stream).Write(wire.Envelope{Payload: wire.ErrorMessage{Message: "unsupported session kind"}})
		_ = stream.Close()
		return
	}

	sessionID := env.SessionID
	if sessionID == "" {
		sessionID = m.allocateSessionID()
	}

	reader.SetIdleTimeout(wire.IdleReadTimeout)
	sess := &Session{
		ID:      sessionID,
		Kind:    hello.Kind,
		Peer:    m.conn,
		Logger:  m.logger.With(logging.KeySession, sessionID, logging.KeySessionKind, hello.Kind.String()),
		stream:  stream,
		reader:  reader,
		writer:  wire.NewWriter(stream),
		metrics: m.metrics,
	}

	m.register(sess)
	defer m.unregister(sessionID)

	if m.metrics != nil {
		m.metrics.RecordSessionOpen(hello.Kind.String())
		defer m.metrics.RecordSessionClose(hello.Kind.String())
	}

	err = handler.Serve(ctx, sess)
	if err != nil && !kerrors.Is(err, kerrors.KindCancelled) {
		sess.Logger.Debug("session ended with error", logging.KeyError, err)
		_ = sess.SendError(kerrors.Message(err))
		if m.metrics != nil {
			m.metrics.RecordSessionError(hello.Kind.String(), kerrors.Of(err).String())
		}
	}
	_ = sess.Close()
}

// Open starts a new session of the given kind from the client side: it
// opens a fresh bidirectional stream, writes the Hello handshake, and
// returns a Session ready for the caller's protocol loop.
func (m *Mux) Open(ctx context.Context, kind wire.SessionKind) (*Session, error) {
	stream, err := m.conn.OpenStream(ctx)
	if err != nil {
		return nil, err
	}

	sessionID := m.allocateSessionID()
	writer := wire.NewWriter(stream)
	if err := writer.Write(wire.Envelope{SessionID: sessionID, Payload: wire.Hello{Kind: kind}}); err != nil {
		_ = stream.Close()
		return nil, kerrors.New(kerrors.KindIoError, err)
	}

	reader := wire.NewReader(stream)
	sess := &Session{
		ID:      sessionID,
		Kind:    kind,
		Peer:    m.conn,
		Logger:  m.logger.With(logging.KeySession, sessionID, logging.KeySessionKind, kind.String()),
		stream:  stream,
		reader:  reader,
		writer:  writer,
		metrics: m.metrics,
	}

	m.register(sess)
	if m.metrics != nil {
		m.metrics.RecordSessionOpen(kind.String())
	}
	return sess, nil
}

// CloseSession removes and closes a previously Open'd session; callers on
// the client side use this instead of relying on handleStream's deferred
// cleanup, which only runs on the server side.
func (m *Mux) CloseSession(sessionID string) error {
	m.mu.Lock()
	sess, ok := m.sessions[sessionID]
	m.mu.Unlock()
	m.unregister(sessionID)
	if !ok {
		return nil
	}
	return sess.Close()
}

// Close tears down the underlying connection and every session on it.
func (m *Mux) Close() error {
	m.teardown()
	return m.conn.Close()
}

func (m *Mux) register(s *Session) {
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
}

func (m *Mux) unregister(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

func (m *Mux) teardown() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		_ = s.Close()
	}
}

func (m *Mux) allocateSessionID() string {
	n := m.nextID.Add(1)
	return fmt.Sprintf("s%d", n)
}
