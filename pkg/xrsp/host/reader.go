package host

import (
	"context"
	"errors"

	"github.com/xrsp-project/xrsp-host/pkg/logger"
	"github.com/xrsp-project/xrsp-host/pkg/usbtransport"
)

// runReader blocks on USB IN with a short timeout, feeds completed topic
// frames to the dispatcher, and drives the transport-level recovery
// policy from §7. It returns when ctx is cancelled.
func (h *Host) runReader(ctx context.Context, d *Dispatcher) {
	buf := make([]byte, 1024)
	h.watchdog.Arm()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := h.transport.Recv(buf, h.readTimeout)
		switch {
		case errors.Is(err, usbtransport.ErrTimeout):
			continue
		case err != nil:
			h.log.Warn("usb read error, resetting transport", logger.Error(err))
			if rerr := h.transport.Reset(); rerr != nil {
				h.log.Error("usb reset failed", logger.Error(rerr))
			}
			h.fsm.Reset()
			h.pipeline.Reset()
			h.session.incPairingResets()
			if h.hooks.OnDisconnect != nil {
				h.hooks.OnDisconnect("usb_reset")
			}
			continue
		}

		if n == 0 {
			continue
		}
		h.watchdog.Feed()
		h.session.addBytesRx(n)
		h.framer.FeedInbound(buf[:n], d.Dispatch)
	}
}
