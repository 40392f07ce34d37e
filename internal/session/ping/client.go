package ping

import (
	"fmt"
	"time"

	"github.com/shi-yan/kerr/internal/mux"
	"github.com/shi-yan/kerr/internal/wire"
)

// Client drives the ping session's request/reply protocol.
type Client struct {
	Session *mux.Session
	nextID  uint64
}

// Ping sends one PingRequest of size with the given echo flag and
// returns the reply payload plus the observed round-trip latency.
func (c *Client) Ping(size uint32, echo bool) ([]byte, time.Duration, error) {
	c.nextID++
	id := c.nextID

	var payload []byte
	if echo {
		payload = make([]byte, size)
		for i := range payload {
			payload[i] = byte(i)
		}
	}

	start := time.Now()
	if err := c.Session.Send(wire.PingRequest{ID: id, PayloadSize: size, EchoBytes: echo, Payload: payload}); err != nil {
		return nil, 0, err
	}

	p, err := c.Session.Recv()
	if err != nil {
		return nil, 0, err
	}
	rtt := time.Since(start)

	reply, ok := p.(wire.PingReply)
	if !ok {
		return nil, 0, fmt.Errorf("expected PingReply, got %T", p)
	}
	if reply.ID != id {
		return nil, 0, fmt.Errorf("ping reply id mismatch: got %d, want %d", reply.ID, id)
	}
	return reply.Bytes, rtt, nil
}

// SweepSizeLadder runs one ping per entry in SizeLadder and returns the
// observed round-trip latencies, in order.
func (c *Client) SweepSizeLadder(echo bool) ([]time.Duration, error) {
	rtts := make([]time.Duration, 0, len(SizeLadder))
	for _, size := range SizeLadder {
		_, rtt, err := c.Ping(size, echo)
		if err != nil {
			return nil, err
		}
		rtts = append(rtts, rtt)
	}
	return rtts, nil
}
