// Package ping implements the latency/throughput probe session:
// PingRequest carries a payload size and an echo flag; the server
// replies with that many bytes, either zero-filled or the request's own
// payload echoed back.
package ping

import (
	"context"
	"fmt"

	"github.com/shi-yan/kerr/internal/mux"
	"github.com/shi-yan/kerr/internal/wire"
)

// SizeLadder is the set of payload sizes exercised by the ping
// scenario's throughput sweep.
var SizeLadder = []uint32{0, 1024, 4096, 16384, 65536, 262144, 1048576}

// Server answers PingRequest with PingReply.
type Server struct{}

func (srv *Server) Serve(ctx context.Context, s *mux.Session) error {
	for {
		p, err := s.Recv()
		if err != nil {
			return nil
		}

		req, ok := p.(wire.PingRequest)
		if !ok {
			_ = s.SendError(fmt.Sprintf("unexpected payload %T", p))
			continue
		}

		var payload []byte
		if req.EchoBytes {
			payload = req.Payload
			if uint32(len(payload)) < req.PayloadSize {
				padded := make([]byte, req.PayloadSize)
				copy(padded, payload)
				payload = padded
			} else {
				payload = payload[:req.PayloadSize]
			}
		} else {
			payload = make([]byte, req.PayloadSize)
		}

		if err := s.Send(wire.PingReply{ID: req.ID, Bytes: payload}); err != nil {
			return err
		}
	}
}
