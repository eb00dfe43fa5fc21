// Package testhelpers provides shared test fixtures for integration-level
// tests that exercise more than one package at a time.
package testhelpers

import (
	"sync"
	"time"

	"github.com/xrsp-project/xrsp-host/pkg/usbtransport"
)

// MockUSBTransport is an in-memory stand-in for pkg/usbtransport.Transport:
// Send records every outbound frame, and Recv serves bytes pushed in by the
// test via Feed. It also tracks Reset/Invalidate calls so a watchdog
// recovery test can assert the transport was actually cycled.
type MockUSBTransport struct {
	mu sync.Mutex

	sent     [][]byte
	inbound  chan []byte
	valid    bool
	slow     bool
	resets   int
	failOpen bool
}

// NewMockUSBTransport creates a transport with an empty send log and no
// queued inbound data.
func NewMockUSBTransport() *MockUSBTransport {
	return &MockUSBTransport{
		valid:   true,
		inbound: make(chan []byte, 256),
	}
}

// Send records a copy of buf as if it had been written to the OUT bulk
// endpoint.
func (t *MockUSBTransport) Send(buf []byte) error {
	if !t.Valid() {
		return usbtransport.ErrClosed
	}
	cp := make([]byte, len(buf))
	copy(cp, buf)

	t.mu.Lock()
	t.sent = append(t.sent, cp)
	t.mu.Unlock()
	return nil
}

// Recv waits up to deadline for a frame queued by Feed, mirroring the real
// transport's TIMEOUT-vs-error distinction.
func (t *MockUSBTransport) Recv(buf []byte, deadline time.Duration) (int, error) {
	if !t.Valid() {
		return 0, usbtransport.ErrClosed
	}
	select {
	case data := <-t.inbound:
		return copy(buf, data), nil
	case <-time.After(deadline):
		return 0, usbtransport.ErrTimeout
	}
}

// Feed queues a frame to be returned by a subsequent Recv, simulating a
// device-to-host bulk transfer arriving.
func (t *MockUSBTransport) Feed(data []byte) {
	cp := make([]byte, len(data))
	copy(cp, data)
	t.inbound <- cp
}

// Valid reports whether the mock transport considers itself usable.
func (t *MockUSBTransport) Valid() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.valid
}

// Invalidate marks the transport unusable, as the real transport does
// after a failed Send/Recv.
func (t *MockUSBTransport) Invalidate() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.valid = false
}

// SetFailOpen makes the next Reset fail once, for exercising the
// retry-with-backoff path.
func (t *MockUSBTransport) SetFailOpen(fail bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failOpen = fail
}

// Reset simulates the close-reset-reopen cycle: it counts the attempt and
// marks the transport valid again, unless SetFailOpen(true) was called for
// this attempt.
func (t *MockUSBTransport) Reset() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resets++
	if t.failOpen {
		t.failOpen = false
		return usbtransport.ErrNoDevice
	}
	t.valid = true
	return nil
}

// ResetCount returns how many times Reset has been invoked.
func (t *MockUSBTransport) ResetCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.resets
}

// SetSlowLink controls what IsSlowLink reports, simulating a USB2 link.
func (t *MockUSBTransport) SetSlowLink(slow bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.slow = slow
}

// IsSlowLink reports the negotiated link speed set via SetSlowLink.
func (t *MockUSBTransport) IsSlowLink() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.slow
}

// SentFrames returns a copy of every frame recorded by Send, in order.
func (t *MockUSBTransport) SentFrames() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]byte, len(t.sent))
	copy(out, t.sent)
	return out
}
