package usbtransport

import (
	"testing"

	"github.com/google/gousb"

	"github.com/xrsp-project/xrsp-host/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "error"})
}

func TestIsSlowLink(t *testing.T) {
	cases := []struct {
		speed gousb.Speed
		want  bool
	}{
		{gousb.SpeedLow, true},
		{gousb.SpeedFull, true},
		{gousb.SpeedHigh, true},
		{gousb.SpeedSuper, false},
	}

	for _, c := range cases {
		if got := isSlowLink(c.speed); got != c.want {
			t.Errorf("isSlowLink(%v) = %v, want %v", c.speed, got, c.want)
		}
	}
}

func TestNew_CarriesConfig(t *testing.T) {
	tr := New(testLogger(), Config{
		VendorID:     0x2833,
		ProductID:    0x0186,
		Interface:    0,
		ResetRetries: 10,
		ResetDelay:   500,
	})

	if tr.vid != gousb.ID(0x2833) {
		t.Errorf("expected vid 0x2833, got 0x%04x", tr.vid)
	}
	if tr.pid != gousb.ID(0x0186) {
		t.Errorf("expected pid 0x0186, got 0x%04x", tr.pid)
	}
	if tr.resetTries != 10 {
		t.Errorf("expected resetTries 10, got %d", tr.resetTries)
	}
	if tr.Valid() {
		t.Error("expected a freshly constructed transport to be invalid until Open succeeds")
	}
}

func TestSend_OnUnopenedTransport_ReturnsErrClosed(t *testing.T) {
	tr := New(testLogger(), Config{VendorID: 1, ProductID: 1, ResetRetries: 1})
	if err := tr.Send([]byte{1, 2, 3}); err != ErrClosed {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}
