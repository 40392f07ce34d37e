package tcprelay

import "sync/atomic"

// Counters tracks one side's relay traffic: bytes_up (local -> remote),
// bytes_down (remote -> local), and active_streams, each updated
// atomically so Stats can be read without synchronizing with the pump
// goroutines.
type Counters struct {
	bytesUp       atomic.Uint64
	bytesDown     atomic.Uint64
	activeStreams atomic.Int64
}

// Stats is a point-in-time snapshot of a Counters.
type Stats struct {
	BytesUp       uint64
	BytesDown     uint64
	ActiveStreams int64
}

func (c *Counters) streamOpened() { c.activeStreams.Add(1) }
func (c *Counters) streamClosed() { c.activeStreams.Add(-1) }
func (c *Counters) addUp(n int)   { c.bytesUp.Add(uint64(n)) }
func (c *Counters) addDown(n int) { c.bytesDown.Add(uint64(n)) }

// Snapshot returns the current counter values, the read-only observer
// interface spec'd for the surrounding UI.
func (c *Counters) Snapshot() Stats {
	return Stats{
		BytesUp:       c.bytesUp.Load(),
		BytesDown:     c.bytesDown.Load(),
		ActiveStreams: c.activeStreams.Load(),
	}
}
