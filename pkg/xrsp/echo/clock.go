// Package echo implements the XRSP peer-to-peer ping/pong clock sync
// protocol described in spec §4.4.
package echo

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"
)

// Message is the wire shape shared by PING and PONG.
type Message struct {
	Org    int64 // originate timestamp, ns
	Recv   int64 // receive timestamp, ns
	Xmt    int64 // transmit timestamp, ns
	Offset int64 // peer-advertised offset, ns
}

// Encode packs a Message into its fixed 32-byte wire layout.
func (m Message) Encode() []byte {
	out := make([]byte, 32)
	binary.LittleEndian.PutUint64(out[0:8], uint64(m.Org))
	binary.LittleEndian.PutUint64(out[8:16], uint64(m.Recv))
	binary.LittleEndian.PutUint64(out[16:24], uint64(m.Xmt))
	binary.LittleEndian.PutUint64(out[24:32], uint64(m.Offset))
	return out
}

// ParseMessage decodes a PING or PONG payload.
func ParseMessage(data []byte) (Message, error) {
	if len(data) < 32 {
		return Message{}, fmt.Errorf("echo: short message, %d bytes", len(data))
	}
	return Message{
		Org:    int64(binary.LittleEndian.Uint64(data[0:8])),
		Recv:   int64(binary.LittleEndian.Uint64(data[8:16])),
		Xmt:    int64(binary.LittleEndian.Uint64(data[16:24])),
		Offset: int64(binary.LittleEndian.Uint64(data[24:32])),
	}, nil
}

// NowFunc abstracts the clock source so tests can supply a fake sequence
// of readings.
type NowFunc func() int64

// Clock tracks the running estimate of the peer-to-local clock offset and
// drives the PING/PONG exchange. It is single-owner per §5: the reader
// goroutine calls OnPing/OnPong, the writer goroutine calls Offset/
// ShouldPing/BuildPing; every method takes the Clock's mutex.
type Clock struct {
	mu  sync.Mutex
	now NowFunc

	pingInterval time.Duration
	lastPingNs   int64
	havePinged   bool

	ourLastPingXmt int64

	nsOffset           int64
	nsOffsetFromTarget int64
	established        bool
}

// New creates a Clock that issues a PING at least every interval.
func New(now NowFunc, pingInterval time.Duration) *Clock {
	return &Clock{now: now, pingInterval: pingInterval}
}

// Established reports whether at least one PONG has updated ns_offset.
// Per §4.4 the clock offset must be established before the first video
// frame is emitted.
func (c *Clock) Established() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.established
}

// Offset returns the current ns_offset estimate.
func (c *Clock) Offset() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nsOffset
}

// ToTarget converts a local timestamp into the peer's target clock.
func (c *Clock) ToTarget(t int64) int64 {
	return t + c.Offset()
}

// FromTarget converts a peer target-clock timestamp into the local clock.
func (c *Clock) FromTarget(t int64) int64 {
	return t - c.Offset()
}

// ShouldPing reports whether at least pingInterval has elapsed since the
// last PING was sent (always true before the first PING).
func (c *Clock) ShouldPing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.havePinged {
		return true
	}
	return c.now()-c.lastPingNs >= c.pingInterval.Nanoseconds()
}

// BuildPing produces the outgoing PING message and records its xmt time so
// a later matching PONG can be correlated.
func (c *Clock) BuildPing() Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.lastPingNs = now
	c.havePinged = true
	c.ourLastPingXmt = now

	return Message{
		Org:    0,
		Recv:   0,
		Xmt:    now,
		Offset: c.nsOffset,
	}
}

// OnPing builds the PONG reply to an inbound PING, per §4.4: org echoes
// the peer's xmt, recv/xmt are our local clock at receipt/reply time.
func (c *Clock) OnPing(ping Message) Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	recv := c.now()
	return Message{
		Org:    ping.Xmt,
		Recv:   recv,
		Xmt:    c.now(),
		Offset: c.nsOffset,
	}
}

// OnPong updates ns_offset from an inbound PONG that echoes our own last
// PING's xmt as its org field. A PONG whose org does not match our last
// PING is stale and ignored.
func (c *Clock) OnPong(pong Message) (accepted bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if pong.Org != c.ourLastPingXmt {
		return false
	}

	tRecv := c.now()
	newOffset := ((pong.Recv - pong.Org) + (pong.Xmt - tRecv)) / 2

	if !c.established {
		c.nsOffset = newOffset
	} else {
		c.nsOffset = (c.nsOffset + newOffset) / 2
	}
	c.nsOffsetFromTarget = pong.Offset
	c.established = true
	return true
}

// OffsetFromTarget returns the peer-advertised secondary bias. Per the
// spec's open question in §9, this is treated as an advisory value only
// and never folded into ns_offset automatically.
func (c *Clock) OffsetFromTarget() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nsOffsetFromTarget
}
