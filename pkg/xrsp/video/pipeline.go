// Package video implements the triple-buffered, multi-slice video pipeline
// of spec §4.8: the encoder contract (start_encode/send_csd/send_idr/
// flush_stream), the writer's oldest-ready-frame selection, and the
// schema-encoded slice header with its derived target-clock timestamps.
package video

import (
	"sync"
)

// Pose is a single HMD pose sample: orientation quaternion plus position.
type Pose struct {
	Quat [4]float64
	Pos  [3]float64
}

// HmdSource is the collaborator interface the host queries for pose and
// display configuration (§6, §9 — replaces the source's raw callback
// pointers with an explicit interface).
type HmdSource interface {
	GetPose(targetNs int64) Pose
	DeviceType() int
	FPS() int
	EncodeWidth() int
	EncodeHeight() int
	RectifyMeshID() uint32
}

// Clock supplies the target-clock conversion the slice header timestamps
// need; pkg/xrsp/echo.Clock satisfies it.
type Clock interface {
	ToTarget(localNs int64) int64
}

// NowFunc abstracts wall-clock reads for testability.
type NowFunc func() int64

// slot is one (slice, index) cell of the D×S buffer array (§4.8).
type slot struct {
	mu   sync.Mutex
	cond *sync.Cond

	needsFlush bool
	csd        []byte
	idr        []byte

	// Only meaningful for slice 0 of each index: the row's captured pose.
	pose          Pose
	capturedPoseNs int64

	streamStartedNs  int64
	encodeStartedNs  int64
	encodeDoneNs     int64
}

func newSlot() *slot {
	s := &slot{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Pipeline is the D×S slot array plus the writer-side frame counter and
// keyframe gate.
type Pipeline struct {
	depth      int // D, swapchain depth (fixed at 3)
	sliceCount int // S, 1..4

	slots []*slot // indexed by slot(slice, index) = slice*depth + index

	hmd   HmdSource
	clock Clock
	now   NowFunc

	mu             sync.Mutex
	frameCounter   uint32
	sentFirstFrame bool
}

// NewPipeline creates a pipeline with the given swapchain depth and slice
// count, per §3.
func NewPipeline(depth, sliceCount int, hmd HmdSource, clock Clock, now NowFunc) *Pipeline {
	p := &Pipeline{
		depth:      depth,
		sliceCount: sliceCount,
		hmd:        hmd,
		clock:      clock,
		now:        now,
	}
	p.slots = make([]*slot, depth*sliceCount)
	for i := range p.slots {
		p.slots[i] = newSlot()
	}
	return p
}

// slotIndex implements slot(slice, index) = slice*D + index.
func (p *Pipeline) slotIndex(slice, index int) int {
	return slice*p.depth + index
}

// StartEncode begins encoding (index, slice) at target_ns. It blocks until
// the slot has been drained by the writer (needs_flush == false), then
// captures the row's pose from slice 0.
func (p *Pipeline) StartEncode(index, slice int, targetNs int64) {
	s := p.slots[p.slotIndex(slice, index)]

	s.mu.Lock()
	for s.needsFlush {
		s.cond.Wait()
	}
	now := p.now()
	s.encodeStartedNs = now
	s.streamStartedNs = targetNs
	if slice == 0 {
		s.pose = p.hmd.GetPose(targetNs)
		s.capturedPoseNs = targetNs
	}
	s.mu.Unlock()
}

// SendCSD appends codec-specific data for (index, slice). Per the encoder
// contract, all SendCSD calls for a frame precede its SendIDR calls.
func (p *Pipeline) SendCSD(index, slice int, data []byte) {
	s := p.slots[p.slotIndex(slice, index)]
	s.mu.Lock()
	s.csd = append(s.csd, data...)
	s.mu.Unlock()
}

// SendIDR appends raw keyframe/inter-frame NAL bytes for (index, slice).
func (p *Pipeline) SendIDR(index, slice int, data []byte) {
	s := p.slots[p.slotIndex(slice, index)]
	s.mu.Lock()
	s.idr = append(s.idr, data...)
	s.mu.Unlock()
}

// FlushStream marks (index, slice) ready for the writer and records the
// encode completion time used for the slice header's prediction delta.
func (p *Pipeline) FlushStream(index, slice int, targetNs int64) {
	s := p.slots[p.slotIndex(slice, index)]
	s.mu.Lock()
	s.needsFlush = true
	s.encodeDoneNs = p.now()
	s.mu.Unlock()
}

// readyIndices returns the set of D-indices where every slice's slot has
// needs_flush == true.
func (p *Pipeline) readyIndices() []int {
	var ready []int
	for index := 0; index < p.depth; index++ {
		allReady := true
		for slice := 0; slice < p.sliceCount; slice++ {
			s := p.slots[p.slotIndex(slice, index)]
			s.mu.Lock()
			nf := s.needsFlush
			s.mu.Unlock()
			if !nf {
				allReady = false
				break
			}
		}
		if allReady {
			ready = append(ready, index)
		}
	}
	return ready
}

// oldestReadyIndex picks the ready index with the smallest stream_started_ns.
func (p *Pipeline) oldestReadyIndex() (int, bool) {
	ready := p.readyIndices()
	if len(ready) == 0 {
		return 0, false
	}

	best := ready[0]
	bestStarted := p.slots[p.slotIndex(0, best)].streamStartedNs
	for _, idx := range ready[1:] {
		started := p.slots[p.slotIndex(0, idx)].streamStartedNs
		if started < bestStarted {
			best = idx
			bestStarted = started
		}
	}
	return best, true
}

// SliceMessage is one emitted slice: its schema-encoded header plus its
// raw CSD and IDR bytes, ready to be sent on SLICE_0+slice.
type SliceMessage struct {
	Slice  int
	Header SliceHeader
	CSD    []byte
	IDR    []byte
}

// DrainReady selects the oldest fully-ready index (if any), builds its
// slice messages, and clears the index's slots. It enforces the
// keyframe-first rule: a ready frame without CSD on slice 0 is dropped
// (not emitted) until the first real keyframe has gone out.
func (p *Pipeline) DrainReady() ([]SliceMessage, bool) {
	index, ok := p.oldestReadyIndex()
	if !ok {
		return nil, false
	}

	p.mu.Lock()
	slot0CSDPresent := len(p.slots[p.slotIndex(0, index)].csd) > 0
	if !p.sentFirstFrame && !slot0CSDPresent {
		p.mu.Unlock()
		p.clearIndex(index)
		return nil, false
	}
	if slot0CSDPresent {
		p.sentFirstFrame = true
	}
	p.frameCounter++
	frameIdx := p.frameCounter
	p.mu.Unlock()

	txStartedNs := p.now()
	messages := make([]SliceMessage, 0, p.sliceCount)

	slot0 := p.slots[p.slotIndex(0, index)]
	slot0.mu.Lock()
	pose := slot0.pose
	capturedPoseNs := slot0.capturedPoseNs
	encodeStartedNs0 := slot0.encodeStartedNs
	encodeDoneNs0 := slot0.encodeDoneNs
	slot0.mu.Unlock()

	predictionDelta := encodeDoneNs0 - encodeStartedNs0

	fps := p.hmd.FPS()
	encodeH := p.hmd.EncodeHeight()
	rectifyMeshID := p.hmd.RectifyMeshID()

	for slice := 0; slice < p.sliceCount; slice++ {
		s := p.slots[p.slotIndex(slice, index)]
		s.mu.Lock()
		csd := s.csd
		idr := s.idr
		s.mu.Unlock()

		header := SliceHeader{
			FrameIdx:      frameIdx,
			RectifyMeshID: rectifyMeshID,
			Pose:          pose,
			PoseTimestamp: p.clock.ToTarget(capturedPoseNs),
			SliceNum:      uint8(slice),
			CSDPresent:    len(csd) > 0,
			LastSlice:     slice == p.sliceCount-1,
			BlitYPos:      (encodeH / p.sliceCount) * slice,
			CropBlocks:    encodeH / 16 / p.sliceCount,
			PredictionDelta: predictionDelta,
		}
		header.computeTimestamps(p.clock, fps, encodeStartedNs0, txStartedNs, predictionDelta)

		messages = append(messages, SliceMessage{Slice: slice, Header: header, CSD: csd, IDR: idr})
	}

	p.clearIndex(index)
	return messages, true
}

// Reset drains every slot in the pipeline, clearing needs_flush and
// buffers and waking any blocked encoder. Used on a transport-level reset
// (§7: NO_DEVICE drains the whole slot pipeline).
func (p *Pipeline) Reset() {
	for index := 0; index < p.depth; index++ {
		p.clearIndex(index)
	}
	p.mu.Lock()
	p.sentFirstFrame = false
	p.mu.Unlock()
}

// clearIndex drains every slice's slot for index under its own lock and
// wakes any encoder blocked in StartEncode on that slot.
func (p *Pipeline) clearIndex(index int) {
	for slice := 0; slice < p.sliceCount; slice++ {
		s := p.slots[p.slotIndex(slice, index)]
		s.mu.Lock()
		s.csd = nil
		s.idr = nil
		s.needsFlush = false
		s.cond.Broadcast()
		s.mu.Unlock()
	}
}
