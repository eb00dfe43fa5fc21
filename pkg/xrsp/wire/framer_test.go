package wire

import (
	"sync"
	"testing"

	"github.com/xrsp-project/xrsp-host/pkg/logger"
)

type fakeTransport struct {
	mu  sync.Mutex
	out [][]byte
}

func (f *fakeTransport) Send(buf []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(buf))
	copy(cp, buf)
	f.out = append(f.out, cp)
	return nil
}

func (f *fakeTransport) flat() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []byte
	for _, b := range f.out {
		all = append(all, b...)
	}
	return all
}

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "error"})
}

func TestFramer_RoundTrip(t *testing.T) {
	tr := &fakeTransport{}
	fr := New(testLogger(), tr)

	payload := []byte("hello xrsp")
	if err := fr.SendToTopic(7, payload); err != nil {
		t.Fatalf("SendToTopic: %v", err)
	}

	var got []byte
	inbound := New(testLogger(), nil)
	for _, chunk := range tr.out {
		inbound.FeedInbound(chunk, func(f Frame) {
			if f.Topic == 7 {
				got = append(got, f.UnpaddedPayload()...)
			}
		})
	}

	if string(got) != string(payload) {
		t.Fatalf("round trip mismatch: got %q want %q", got, payload)
	}
}

func TestFramer_AlignmentPadding(t *testing.T) {
	tr := &fakeTransport{}
	fr := New(testLogger(), tr)

	// 10 bytes needs 2 pad bytes to reach 12 (multiple of 4).
	if err := fr.SendToTopic(1, []byte("0123456789")); err != nil {
		t.Fatalf("SendToTopic: %v", err)
	}

	dataFrame := tr.out[0]
	hdr, err := ParseHeader(dataFrame)
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	if !hdr.HasAlignmentPadding {
		t.Fatal("expected alignment padding to be set")
	}
	payload := dataFrame[HeaderSize:]
	padLen := payload[len(payload)-1]
	if padLen != 2 {
		t.Errorf("expected pad length 2, got %d", padLen)
	}
	if len(payload)-int(padLen) != 10 {
		t.Errorf("expected unpadded length 10, got %d", len(payload)-int(padLen))
	}
}

func TestFramer_FrameSlicing_ThreeChunks(t *testing.T) {
	tr := &fakeTransport{}
	fr := New(testLogger(), tr)

	payload := make([]byte, 0x80000)
	if err := fr.SendToTopic(11, payload); err != nil {
		t.Fatalf("SendToTopic: %v", err)
	}

	var dataFrameLens []int
	for _, raw := range tr.out {
		hdr, err := ParseHeader(raw)
		if err != nil {
			t.Fatalf("ParseHeader: %v", err)
		}
		if hdr.Topic == 11 {
			dataFrameLens = append(dataFrameLens, len(raw)-HeaderSize)
		}
	}

	want := []int{0x3FFF8, 0x3FFF8, 0x0010}
	if len(dataFrameLens) != len(want) {
		t.Fatalf("expected %d data frames, got %d: %v", len(want), len(dataFrameLens), dataFrameLens)
	}
	for i, w := range want {
		if dataFrameLens[i] != w {
			t.Errorf("frame %d: expected %d bytes, got %d", i, w, dataFrameLens[i])
		}
	}
}

func TestFramer_FillerPadsToBoundary(t *testing.T) {
	tr := &fakeTransport{}
	fr := New(testLogger(), tr)

	if err := fr.SendToTopic(3, make([]byte, 8)); err != nil {
		t.Fatalf("SendToTopic: %v", err)
	}

	total := 0
	for _, raw := range tr.out {
		total += len(raw)
	}
	if total%1024 != 0 {
		t.Errorf("expected total output aligned to 1024 bytes, got %d", total)
	}
	if len(tr.out) != 2 {
		t.Fatalf("expected a data frame plus one filler frame, got %d frames", len(tr.out))
	}

	fillerHdr, err := ParseHeader(tr.out[1])
	if err != nil {
		t.Fatalf("ParseHeader filler: %v", err)
	}
	if fillerHdr.Topic != TopicFiller {
		t.Errorf("expected filler topic 0, got %d", fillerHdr.Topic)
	}
}

func TestFramer_DiscardsShortRemainder(t *testing.T) {
	fr := New(testLogger(), nil)

	called := false
	fr.FeedInbound([]byte{1, 2, 3}, func(Frame) { called = true })

	if called {
		t.Fatal("short remainder must not be dispatched as a frame")
	}
}
