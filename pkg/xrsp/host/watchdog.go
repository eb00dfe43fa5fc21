package host

import (
	"sync"
	"time"
)

// StallWatchdog implements the §5 cancellation policy: if no inbound bytes
// arrive for a given duration, in any pairing state, the onStall callback
// runs on the timer's own goroutine; the host's callback reopens the
// device (transport invalid) or sends BYE (transport valid). It is adapted
// from a generic named-timer manager into a single always-on timer since
// the host has exactly one session to guard.
type StallWatchdog struct {
	mu      sync.Mutex
	timeout time.Duration
	timer   *time.Timer
	onStall func()
}

// NewStallWatchdog creates a watchdog that calls onStall if Feed is not
// called again within timeout.
func NewStallWatchdog(timeout time.Duration, onStall func()) *StallWatchdog {
	return &StallWatchdog{timeout: timeout, onStall: onStall}
}

// Arm starts (or restarts) the watchdog countdown.
func (w *StallWatchdog) Arm() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.timeout, w.onStall)
}

// Feed resets the countdown; call it on every inbound USB read.
func (w *StallWatchdog) Feed() {
	w.Arm()
}

// Disarm stops the watchdog without firing it.
func (w *StallWatchdog) Disarm() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}
