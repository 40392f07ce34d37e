// Package shell implements the interactive shell session: a child process
// attached to a pseudo-terminal, with its byte stream carried over a
// multiplexed session instead of a real tty.
package shell

import (
	"context"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shi-yan/kerr/internal/kerrors"
	"github.com/shi-yan/kerr/internal/mux"
	"github.com/shi-yan/kerr/internal/ptyadapter"
	"github.com/shi-yan/kerr/internal/wire"
)

// DefaultOutputBuffer bounds the PTY->stream read buffer; overflow applies
// backpressure to the PTY reader rather than dropping bytes, since each
// Read call blocks until the stream-side Send drains it.
const DefaultOutputBuffer = 64 * 1024

// GracefulShutdownWait is how long Disconnect waits for the child to exit
// on its own before the server sends SIGHUP.
const GracefulShutdownWait = 2 * time.Second

// Server is the mux.Handler for Hello{Shell} on the accepting side.
type Server struct {
	// Shell is the argv of the child to spawn, e.g. {"/bin/bash", "-l"}.
	// Defaults to the SHELL environment variable, falling back to /bin/sh.
	Shell []string
	// OutputBuffer overrides DefaultOutputBuffer.
	OutputBuffer int
}

func (srv *Server) shellArgv() []string {
	if len(srv.Shell) > 0 {
		return srv.Shell
	}
	if sh := os.Getenv("SHELL"); sh != "" {
		return []string{sh}
	}
	return []string{"/bin/sh"}
}

// Serve implements mux.Handler.
func (srv *Server) Serve(ctx context.Context, s *mux.Session) error {
	pty, err := ptyadapter.Spawn(ptyadapter.Size{Cols: 80, Rows: 24}, srv.shellArgv(), os.Environ(), "")
	if err != nil {
		return kerrors.New(kerrors.KindPtyError, err)
	}
	defer pty.Close()

	bufSize := srv.OutputBuffer
	if bufSize <= 0 {
		bufSize = DefaultOutputBuffer
	}

	g, gctx := errgroup.WithContext(ctx)

	// PTY -> stream.
	g.Go(func() error {
		buf := make([]byte, bufSize)
		for {
			n, err := pty.Read(buf)
			if n > 0 {
				if sendErr := s.Send(wire.Output{Bytes: append([]byte(nil), buf[:n]...)}); sendErr != nil {
					return sendErr
				}
			}
			if err != nil {
				// Child exited or the PTY closed on its own (e.g. the user
				// typed "exit"). Close the stream so the blocked
				// stream -> PTY Recv unblocks with an error and Serve can
				// return instead of hanging until the connection dies.
				_ = s.Close()
				return nil
			}
			if gctx.Err() != nil {
				return nil
			}
		}
	})

	// stream -> PTY.
	g.Go(func() error {
		for {
			p, err := s.Recv()
			if err != nil {
				return nil
			}
			switch m := p.(type) {
			case wire.Input:
				if _, err := pty.Write(m.Bytes); err != nil {
					return kerrors.New(kerrors.KindPtyError, err)
				}
			case wire.Resize:
				if err := pty.Resize(ptyadapter.Size{Cols: m.Cols, Rows: m.Rows}); err != nil {
					return kerrors.New(kerrors.KindPtyError, err)
				}
			case wire.Disconnect:
				s.Logger.Debug("shell disconnect requested, waiting for graceful exit")
				// End the stream right away so the client is not held
				// for the graceful-exit wait below.
				_ = s.Close()
				done := make(chan struct{})
				go func() { pty.Wait(); close(done) }()
				select {
				case <-done:
				case <-time.After(GracefulShutdownWait):
					_ = pty.Signal()
				}
				return nil
			default:
				s.Logger.Warn("shell session received unexpected payload", "type", m)
			}
		}
	})

	_ = g.Wait()
	return nil
}

// New constructs a Server with default settings.
func New() *Server { return &Server{} }
