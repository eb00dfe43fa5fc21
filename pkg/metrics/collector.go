package metrics

import (
	"sync"
)

// Collector collects running counters for the XRSP session: pairing
// lifecycle transitions, transport byte/packet throughput, clock sync
// quality, and video pipeline health. One Collector is shared by the
// reader, writer, and dispatcher.
type Collector struct {
	mu sync.RWMutex

	// Transport metrics
	packetsReceived uint64
	packetsSent     uint64
	bytesReceived   uint64
	bytesSent       uint64
	usbResets       uint64

	// Pairing metrics
	pairingAttempts uint64
	pairingSuccess  uint64
	pairingResets   uint64
	paired          bool

	// Clock metrics
	clockOffsetNs   int64
	clockEstablished bool
	echoRoundTrips  uint64

	// Video pipeline metrics
	framesSent     uint64
	framesDropped  uint64
	keyframesSent  uint64
	pipelineStalls uint64
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{}
}

// PacketReceived records one reassembled inbound frame.
func (c *Collector) PacketReceived() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.packetsReceived++
}

// PacketSent records one outbound frame.
func (c *Collector) PacketSent() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.packetsSent++
}

// BytesReceived records received bytes.
func (c *Collector) BytesReceived(n uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bytesReceived += n
}

// BytesSent records sent bytes.
func (c *Collector) BytesSent(n uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bytesSent += n
}

// USBReset records a transport reopen (NO_DEVICE/TIMEOUT recovery, §4.1).
func (c *Collector) USBReset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.usbResets++
}

// PairingAttempted records an INVITE starting a new pairing round.
func (c *Collector) PairingAttempted() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pairingAttempts++
}

// PairingSucceeded records the FSM reaching PAIRED.
func (c *Collector) PairingSucceeded() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pairingSuccess++
	c.paired = true
}

// PairingReset records the FSM regressing to WAIT_FIRST (stall, BYE, or
// transport reset).
func (c *Collector) PairingReset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pairingResets++
	c.paired = false
}

// ClockUpdated records a fresh offset estimate from a completed PONG
// round (§4.4).
func (c *Collector) ClockUpdated(offsetNs int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clockOffsetNs = offsetNs
	c.clockEstablished = true
	c.echoRoundTrips++
}

// FrameSent records one drained video frame successfully transmitted.
func (c *Collector) FrameSent(keyframe bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.framesSent++
	if keyframe {
		c.keyframesSent++
	}
}

// FrameDropped records a frame dropped before the clock was established,
// or before the first keyframe (§4.8's keyframe-first rule).
func (c *Collector) FrameDropped() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.framesDropped++
}

// PipelineStalled records the stall watchdog firing (§5).
func (c *Collector) PipelineStalled() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pipelineStalls++
}

// Reset clears the paired/clock-established flags, leaving cumulative
// counters untouched. Useful for tests and for the engine's own reset
// paths where those flags no longer reflect reality.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paired = false
	c.clockEstablished = false
}

// Getters

func (c *Collector) GetPacketsReceived() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.packetsReceived
}

func (c *Collector) GetPacketsSent() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.packetsSent
}

func (c *Collector) GetBytesReceived() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bytesReceived
}

func (c *Collector) GetBytesSent() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bytesSent
}

func (c *Collector) GetUSBResets() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.usbResets
}

func (c *Collector) GetPairingAttempts() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pairingAttempts
}

func (c *Collector) GetPairingSuccess() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pairingSuccess
}

func (c *Collector) GetPairingResets() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pairingResets
}

func (c *Collector) IsPaired() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.paired
}

func (c *Collector) GetClockOffsetNs() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.clockOffsetNs
}

func (c *Collector) IsClockEstablished() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.clockEstablished
}

func (c *Collector) GetEchoRoundTrips() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.echoRoundTrips
}

func (c *Collector) GetFramesSent() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.framesSent
}

func (c *Collector) GetFramesDropped() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.framesDropped
}

func (c *Collector) GetKeyframesSent() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.keyframesSent
}

func (c *Collector) GetPipelineStalls() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pipelineStalls
}
