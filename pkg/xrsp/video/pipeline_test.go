package video

import (
	"sync"
	"testing"
	"time"
)

type fakeHmd struct{}

func (fakeHmd) GetPose(targetNs int64) Pose { return Pose{} }
func (fakeHmd) DeviceType() int             { return 0 }
func (fakeHmd) FPS() int                    { return 90 }
func (fakeHmd) EncodeWidth() int            { return 1600 }
func (fakeHmd) EncodeHeight() int           { return 1600 }
func (fakeHmd) RectifyMeshID() uint32       { return 1 }

type fakeClock struct{}

func (fakeClock) ToTarget(n int64) int64 { return n }

func counterNow() NowFunc {
	var n int64
	return func() int64 {
		n++
		return n
	}
}

func TestPipeline_KeyframeFirst_DropsFrameWithoutCSD(t *testing.T) {
	p := NewPipeline(3, 1, fakeHmd{}, fakeClock{}, counterNow())

	p.StartEncode(0, 0, 100)
	p.SendIDR(0, 0, []byte{1, 2, 3}) // no CSD
	p.FlushStream(0, 0, 100)

	if _, ok := p.DrainReady(); ok {
		t.Fatal("expected a CSD-less frame to be dropped before the first keyframe")
	}

	p.StartEncode(0, 0, 200)
	p.SendCSD(0, 0, []byte{9, 9})
	p.SendIDR(0, 0, []byte{1, 2, 3})
	p.FlushStream(0, 0, 200)

	msgs, ok := p.DrainReady()
	if !ok {
		t.Fatal("expected the keyframe to be emitted")
	}
	if !msgs[0].Header.CSDPresent {
		t.Error("expected CSDPresent true on the emitted keyframe")
	}
}

func TestPipeline_FIFO_OldestReadyIndexFirst(t *testing.T) {
	p := NewPipeline(3, 1, fakeHmd{}, fakeClock{}, counterNow())

	// Complete index 1 before index 0, but index 0 started earlier.
	p.StartEncode(0, 0, 100)
	p.SendCSD(0, 0, []byte{1})
	p.SendIDR(0, 0, []byte{1})
	p.FlushStream(0, 0, 100)

	p.StartEncode(1, 0, 200)
	p.SendCSD(1, 0, []byte{1})
	p.SendIDR(1, 0, []byte{1})
	p.FlushStream(1, 0, 200)

	first, ok := p.DrainReady()
	if !ok {
		t.Fatal("expected a ready frame")
	}
	if first[0].Header.PoseTimestamp != 100 {
		t.Errorf("expected index 0 (stream_started_ns=100) drained first, got pose_timestamp=%d", first[0].Header.PoseTimestamp)
	}

	second, ok := p.DrainReady()
	if !ok {
		t.Fatal("expected a second ready frame")
	}
	if second[0].Header.PoseTimestamp != 200 {
		t.Errorf("expected index 1 drained second, got pose_timestamp=%d", second[0].Header.PoseTimestamp)
	}
}

func TestPipeline_Backpressure_StartEncodeBlocksUntilDrain(t *testing.T) {
	p := NewPipeline(3, 1, fakeHmd{}, fakeClock{}, counterNow())

	for i := 0; i < 3; i++ {
		p.StartEncode(i, 0, int64(100*(i+1)))
		p.SendCSD(i, 0, []byte{1})
		p.FlushStream(i, 0, int64(100*(i+1)))
	}

	unblocked := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.StartEncode(0, 0, 400) // slot(0,0) still needs_flush; must block
		close(unblocked)
	}()

	select {
	case <-unblocked:
		t.Fatal("expected StartEncode to block while the slot is undrained")
	case <-time.After(50 * time.Millisecond):
	}

	if _, ok := p.DrainReady(); !ok {
		t.Fatal("expected a ready frame to drain")
	}

	select {
	case <-unblocked:
	case <-time.After(time.Second):
		t.Fatal("expected StartEncode to unblock after the writer drained the slot")
	}
	wg.Wait()
}

func TestPipeline_Reset_ClearsAllSlotsAndReleasesBlockedEncoder(t *testing.T) {
	p := NewPipeline(3, 1, fakeHmd{}, fakeClock{}, counterNow())

	p.StartEncode(0, 0, 100)
	p.SendCSD(0, 0, []byte{1})
	p.FlushStream(0, 0, 100) // needs_flush now true, undrained

	unblocked := make(chan struct{})
	go func() {
		p.StartEncode(0, 0, 200) // must block until Reset clears needs_flush
		close(unblocked)
	}()

	select {
	case <-unblocked:
		t.Fatal("expected StartEncode to block on the undrained slot")
	case <-time.After(50 * time.Millisecond):
	}

	p.Reset()

	select {
	case <-unblocked:
	case <-time.After(time.Second):
		t.Fatal("expected Reset to release the blocked encoder")
	}

	if _, ok := p.DrainReady(); ok {
		t.Fatal("expected no ready frame after Reset")
	}
}

func TestPipeline_NoReadyIndex_ReturnsFalse(t *testing.T) {
	p := NewPipeline(3, 2, fakeHmd{}, fakeClock{}, counterNow())

	p.StartEncode(0, 0, 100)
	p.SendCSD(0, 0, []byte{1})
	p.FlushStream(0, 0, 100)
	// Slice 1 of index 0 never flushed: index 0 is not ready.

	if _, ok := p.DrainReady(); ok {
		t.Fatal("expected no ready index while one slice is still pending")
	}
}
