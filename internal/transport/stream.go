package transport

import (
	"time"

	"github.com/quic-go/quic-go"
)

// Stream is a single bidirectional QUIC stream carrying one session's
// envelopes. It implements io.Reader/io.Writer directly so a wire.Reader
// or wire.Writer can wrap it without adaptation.
type Stream struct {
	stream quic.Stream
}

// StreamID returns the QUIC-assigned stream identifier.
func (s *Stream) StreamID() uint64 { return uint64(s.stream.StreamID()) }

func (s *Stream) Read(p []byte) (int, error)  { return s.stream.Read(p) }
func (s *Stream) Write(p []byte) (int, error) { return s.stream.Write(p) }

// CloseWrite sends a half-close (FIN) on the write side only.
func (s *Stream) CloseWrite() error { return s.stream.Close() }

// Close closes both directions of the stream, discarding unread data.
func (s *Stream) Close() error {
	s.stream.CancelRead(0)
	return s.stream.Close()
}

func (s *Stream) SetDeadline(t time.Time) error      { return s.stream.SetDeadline(t) }
func (s *Stream) SetReadDeadline(t time.Time) error  { return s.stream.SetReadDeadline(t) }
func (s *Stream) SetWriteDeadline(t time.Time) error { return s.stream.SetWriteDeadline(t) }
