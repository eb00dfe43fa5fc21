package echo

import (
	"testing"
	"time"
)

// sequenceClock returns successive values from a fixed list, repeating the
// last value once exhausted.
func sequenceClock(values ...int64) NowFunc {
	i := 0
	return func() int64 {
		v := values[i]
		if i < len(values)-1 {
			i++
		}
		return v
	}
}

func TestClock_ConvergesToZeroOffset(t *testing.T) {
	clk := New(sequenceClock(1000, 1040), 16*time.Millisecond)

	ping := clk.BuildPing()
	if ping.Xmt != 1000 {
		t.Fatalf("expected PING xmt=1000, got %d", ping.Xmt)
	}

	pong := Message{Org: 1000, Recv: 1010, Xmt: 1030}
	if !clk.OnPong(pong) {
		t.Fatal("expected PONG to be accepted (org matches our last PING xmt)")
	}

	if got := clk.Offset(); got != 0 {
		t.Errorf("expected ns_offset 0, got %d", got)
	}
	if !clk.Established() {
		t.Error("expected clock to be established after first accepted PONG")
	}
}

func TestClock_RejectsStalePong(t *testing.T) {
	clk := New(sequenceClock(1000, 2000), 16*time.Millisecond)
	clk.BuildPing()

	stale := Message{Org: 999, Recv: 1010, Xmt: 1030}
	if clk.OnPong(stale) {
		t.Fatal("expected stale PONG (mismatched org) to be rejected")
	}
	if clk.Established() {
		t.Fatal("a rejected PONG must not establish the clock")
	}
}

func TestClock_OnPing_EchoesOrgFromPeerXmt(t *testing.T) {
	clk := New(sequenceClock(500, 510), 16*time.Millisecond)

	ping := Message{Org: 0, Recv: 0, Xmt: 100, Offset: 7}
	pong := clk.OnPing(ping)

	if pong.Org != 100 {
		t.Errorf("expected PONG org to echo peer xmt 100, got %d", pong.Org)
	}
}

func TestClock_ShouldPing_TrueBeforeFirstPing(t *testing.T) {
	clk := New(sequenceClock(0), 16*time.Millisecond)
	if !clk.ShouldPing() {
		t.Fatal("expected ShouldPing true before any PING has been sent")
	}
}

func TestClock_ShouldPing_FalseBeforeIntervalElapses(t *testing.T) {
	clk := New(sequenceClock(1000, 1005), 16*time.Millisecond)
	clk.BuildPing()
	if clk.ShouldPing() {
		t.Fatal("expected ShouldPing false when interval has not elapsed")
	}
}

func TestMessage_EncodeParse_RoundTrip(t *testing.T) {
	m := Message{Org: 100, Recv: 200, Xmt: 300, Offset: -50}
	got, err := ParseMessage(m.Encode())
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if got != m {
		t.Errorf("round trip mismatch: got %+v want %+v", got, m)
	}
}

func TestParseMessage_ShortPayloadErrors(t *testing.T) {
	if _, err := ParseMessage(make([]byte, 10)); err == nil {
		t.Fatal("expected an error for a short payload")
	}
}

func TestClock_ToTargetFromTarget_RoundTrip(t *testing.T) {
	clk := New(sequenceClock(1000, 1040), 16*time.Millisecond)
	clk.BuildPing()
	clk.OnPong(Message{Org: 1000, Recv: 1500, Xmt: 1600})

	local := int64(5_000_000)
	target := clk.ToTarget(local)
	if back := clk.FromTarget(target); back != local {
		t.Errorf("ToTarget/FromTarget round trip failed: got %d want %d", back, local)
	}
}
