package shell

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/shi-yan/kerr/internal/mux"
	"github.com/shi-yan/kerr/internal/wire"
)

// Size is a terminal size in character cells, mirroring ptyadapter.Size so
// callers on the client side never need to import the PTY adapter.
type Size struct {
	Cols uint16
	Rows uint16
}

// Client drives the connecting side of an interactive shell session: it
// pumps bytes between a local terminal and the session stream, and emits
// Resize envelopes when told the local terminal size changed.
type Client struct {
	Session *mux.Session

	// Stdin is read for bytes to forward as Input. Stdout receives
	// Output.Bytes as they arrive.
	Stdin  io.Reader
	Stdout io.Writer

	// Resizes, if non-nil, is read for local terminal size changes; each
	// value is forwarded as a Resize envelope.
	Resizes <-chan Size
}

// Run blocks until the remote side ends the session, or until ctx is
// cancelled, in which case it sends Disconnect and waits up to
// GracefulShutdownWait for the stream to end before force-closing it.
func (c *Client) Run(ctx context.Context) error {
	ended := make(chan struct{})
	var once sync.Once
	closeEnded := func() { once.Do(func() { close(ended) }) }

	// Local input -> Input envelopes. Left running even after the session
	// ends; it exits on its own once Stdin returns EOF (the local
	// terminal/pipe closing), which on a live CLI process happens at
	// process exit.
	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := c.Stdin.Read(buf)
			if n > 0 {
				if sendErr := c.Session.Send(wire.Input{Bytes: append([]byte(nil), buf[:n]...)}); sendErr != nil {
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	if c.Resizes != nil {
		go func() {
			for {
				select {
				case sz, ok := <-c.Resizes:
					if !ok {
						return
					}
					if err := c.Session.Send(wire.Resize{Cols: sz.Cols, Rows: sz.Rows}); err != nil {
						return
					}
				case <-ended:
					return
				}
			}
		}()
	}

	// Output envelopes -> local output. This is the loop that detects the
	// session ending, since it is the side reading from the stream.
	go func() {
		defer closeEnded()
		for {
			p, err := c.Session.Recv()
			if err != nil {
				return
			}
			out, ok := p.(wire.Output)
			if !ok {
				continue
			}
			if _, err := c.Stdout.Write(out.Bytes); err != nil {
				return
			}
		}
	}()

	select {
	case <-ended:
		return nil
	case <-ctx.Done():
		_ = c.Session.Send(wire.Disconnect{})
		select {
		case <-ended:
		case <-time.After(GracefulShutdownWait):
			_ = c.Session.Close()
		}
		return nil
	}
}
