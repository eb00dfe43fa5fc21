// Package usbtransport implements the XRSP host protocol's USB transport:
// bulk-endpoint I/O, device open/reset/reclaim, and link-speed detection,
// per spec §4.1.
package usbtransport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/gousb"

	"github.com/xrsp-project/xrsp-host/pkg/logger"
)

// ErrNoDevice is returned when the headset cannot be found on the bus.
var ErrNoDevice = errors.New("usbtransport: no device")

// ErrTimeout is returned when a read deadline elapses with no data.
var ErrTimeout = errors.New("usbtransport: timeout")

// ErrClosed is returned by operations on a transport that has been closed.
var ErrClosed = errors.New("usbtransport: closed")

// Transport is a single-device USB bulk transport. It is safe for one
// reader and one writer goroutine to use concurrently. Send takes no lock
// of its own; wire.Framer.SendToTopic holds the framer's send lock for a
// whole logical message so fragmented sends never interleave.
type Transport struct {
	log *logger.Logger

	vid, pid  gousb.ID
	ifaceNum  int
	resetTries int
	resetDelay time.Duration

	ctx    *gousb.Context
	dev    *gousb.Device
	cfg    *gousb.Config
	intf   *gousb.Interface
	epOut  *gousb.OutEndpoint
	epIn   *gousb.InEndpoint

	// SlowLink is true when the negotiated link speed is high-speed or
	// below (spec §4.1: consumers halve render resolution and cap refresh
	// rate when this is set).
	SlowLink bool

	valid bool
}

// Config identifies the headset and the transport's reconnect policy.
type Config struct {
	VendorID     int
	ProductID    int
	Interface    int
	ResetRetries int
	ResetDelay   time.Duration
}

// New creates a transport bound to a vendor/product/interface triple but
// does not open the device yet.
func New(log *logger.Logger, cfg Config) *Transport {
	return &Transport{
		log:        log.WithComponent("usb"),
		vid:        gousb.ID(cfg.VendorID),
		pid:        gousb.ID(cfg.ProductID),
		ifaceNum:   cfg.Interface,
		resetTries: cfg.ResetRetries,
		resetDelay: cfg.ResetDelay,
	}
}

// Open claims the interface and selects the first OUT bulk endpoint and the
// first IN bulk endpoint, per spec §4.1.
func (t *Transport) Open() error {
	ctx := gousb.NewContext()

	dev, err := ctx.OpenDeviceWithVIDPID(t.vid, t.pid)
	if err != nil {
		ctx.Close()
		return fmt.Errorf("%w: %w", ErrNoDevice, err)
	}
	if dev == nil {
		ctx.Close()
		return fmt.Errorf("%w: vid=0x%04x pid=0x%04x not found", ErrNoDevice, t.vid, t.pid)
	}

	if err := dev.SetAutoDetach(true); err != nil {
		t.log.Warn("failed to enable auto kernel-driver detach", logger.Error(err))
	}

	cfgNum, _ := dev.ActiveConfigNum()
	if cfgNum == 0 {
		cfgNum = 1
	}
	cfg, err := dev.Config(cfgNum)
	if err != nil {
		dev.Close()
		ctx.Close()
		return fmt.Errorf("usbtransport: set config: %w", err)
	}

	intf, err := cfg.Interface(t.ifaceNum, 0)
	if err != nil {
		cfg.Close()
		dev.Close()
		ctx.Close()
		return fmt.Errorf("usbtransport: claim interface: %w", err)
	}

	epOutAddr, epInAddr, err := firstBulkEndpoints(intf)
	if err != nil {
		intf.Close()
		cfg.Close()
		dev.Close()
		ctx.Close()
		return fmt.Errorf("usbtransport: %w", err)
	}

	epOut, err := intf.OutEndpoint(epOutAddr)
	if err != nil {
		intf.Close()
		cfg.Close()
		dev.Close()
		ctx.Close()
		return fmt.Errorf("usbtransport: open out endpoint: %w", err)
	}

	epIn, err := intf.InEndpoint(epInAddr)
	if err != nil {
		intf.Close()
		cfg.Close()
		dev.Close()
		ctx.Close()
		return fmt.Errorf("usbtransport: open in endpoint: %w", err)
	}

	t.ctx = ctx
	t.dev = dev
	t.cfg = cfg
	t.intf = intf
	t.epOut = epOut
	t.epIn = epIn
	t.SlowLink = isSlowLink(dev.Desc.Speed)
	t.valid = true

	t.log.Info("usb device opened",
		logger.String("vid", fmt.Sprintf("0x%04x", t.vid)),
		logger.String("pid", fmt.Sprintf("0x%04x", t.pid)),
		logger.Bool("slow_link", t.SlowLink))

	return nil
}

// firstBulkEndpoints selects the first OUT bulk endpoint and the first IN
// bulk endpoint on the claimed interface's active alt setting.
func firstBulkEndpoints(intf *gousb.Interface) (out, in gousb.EndpointAddress, err error) {
	var haveOut, haveIn bool
	for addr, ep := range intf.Setting.Endpoints {
		if ep.TransferType != gousb.TransferTypeBulk {
			continue
		}
		if ep.Direction == gousb.EndpointDirectionOut && !haveOut {
			out = addr
			haveOut = true
		}
		if ep.Direction == gousb.EndpointDirectionIn && !haveIn {
			in = addr
			haveIn = true
		}
	}
	if !haveOut || !haveIn {
		return 0, 0, fmt.Errorf("no bulk IN/OUT endpoint pair on interface")
	}
	return out, in, nil
}

// isSlowLink reports whether the negotiated speed is high-speed or below.
func isSlowLink(speed gousb.Speed) bool {
	return speed <= gousb.SpeedHigh
}

// Send writes a buffer to the OUT bulk endpoint.
func (t *Transport) Send(buf []byte) error {
	if !t.valid {
		return ErrClosed
	}
	_, err := t.epOut.Write(buf)
	if err != nil {
		t.valid = false
		return fmt.Errorf("usbtransport: write: %w", err)
	}
	return nil
}

// Recv reads up to len(buf) bytes from the IN bulk endpoint, waiting no
// longer than deadline. It returns ErrTimeout (not an error the caller
// needs to log) when the deadline elapses with no data, matching spec
// §4.1's "repeated TIMEOUT" distinction from NO_DEVICE.
func (t *Transport) Recv(buf []byte, deadline time.Duration) (int, error) {
	if !t.valid {
		return 0, ErrClosed
	}
	ctx, cancel := context.WithTimeout(context.Background(), deadline)
	defer cancel()

	n, err := t.epIn.ReadContext(ctx, buf)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return n, ErrTimeout
		}
		t.valid = false
		return n, fmt.Errorf("usbtransport: read: %w", err)
	}
	return n, nil
}

// IsSlowLink reports whether the negotiated link speed is high-speed or
// below, per spec §4.1.
func (t *Transport) IsSlowLink() bool {
	return t.SlowLink
}

// Valid reports whether the transport believes the device is still present.
// A NO_DEVICE or repeated TIMEOUT result (tracked by the caller) should
// invalidate the transport so the reconnect policy in Reset takes over.
func (t *Transport) Valid() bool {
	return t.valid
}

// Invalidate marks the transport invalid, forcing callers to Reset before
// reusing it.
func (t *Transport) Invalidate() {
	t.valid = false
}

// Close releases the interface, device, and context, in that order.
func (t *Transport) Close() {
	if t.intf != nil {
		t.intf.Close()
	}
	if t.cfg != nil {
		t.cfg.Close()
	}
	if t.dev != nil {
		t.dev.Close()
	}
	if t.ctx != nil {
		t.ctx.Close()
	}
	t.intf, t.cfg, t.dev, t.ctx = nil, nil, nil, nil
	t.valid = false
}

// Reset issues a device-level reset on the open handle, closes it, then retries open
// up to ResetRetries times at ResetDelay intervals, per spec §4.1.
func (t *Transport) Reset() error {
	if t.dev != nil {
		_ = t.dev.Reset()
	}
	t.Close()

	var lastErr error
	for i := 0; i < t.resetTries; i++ {
		if err := t.Open(); err == nil {
			return nil
		} else {
			lastErr = err
		}
		time.Sleep(t.resetDelay)
	}
	return fmt.Errorf("usbtransport: reset failed after %d attempts: %w", t.resetTries, lastErr)
}
