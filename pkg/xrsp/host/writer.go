package host

import (
	"context"
	"encoding/binary"
	"math"
	"time"

	"github.com/xrsp-project/xrsp-host/pkg/logger"
	"github.com/xrsp-project/xrsp-host/pkg/xrsp/video"
)

// writerTick is the wake cadence of the writer thread (§5: "wakes every
// 1 ms").
const writerTick = time.Millisecond

// runWriter wakes every writerTick, drains the oldest ready video frame
// (if any) and emits its slices, and services the periodic ping. It
// returns when ctx is cancelled.
func (h *Host) runWriter(ctx context.Context) {
	ticker := time.NewTicker(writerTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		h.drainOneFrame()

		if h.clock.ShouldPing() {
			h.sendPing()
		}
	}
}

// drainOneFrame emits at most one ready frame's slices. Clock offset must
// be established before the first frame is emitted (§4.4); frames drained
// before that are simply dropped, matching §7's "drop the offending
// frame" pipeline recovery policy.
func (h *Host) drainOneFrame() {
	msgs, ok := h.pipeline.DrainReady()
	if !ok {
		return
	}
	if !h.clock.Established() {
		h.session.incFramesDropped()
		return
	}

	for _, m := range msgs {
		h.sendSlice(m)
	}
	h.session.incFramesTx()
}

func (h *Host) sendSlice(m video.SliceMessage) {
	header := encodeSliceHeader(m.Header)
	payload := make([]byte, 0, len(header)+len(m.CSD)+len(m.IDR))
	payload = append(payload, header...)
	payload = append(payload, m.CSD...)
	payload = append(payload, m.IDR...)

	if err := h.framer.SendToTopic(SliceTopic(m.Slice), payload); err != nil {
		h.log.Warn("slice send failed", logger.Int("slice", m.Slice), logger.Error(err))
		return
	}
	h.session.addBytesTx(len(payload))

	if h.hooks.OnSlice != nil {
		h.hooks.OnSlice(m.Header.FrameIdx, len(payload), m.Header.CSDPresent, m.Header.LastSlice)
	}
}

// encodeSliceHeader packs a video.SliceHeader into its fixed wire layout:
// frame/mesh ids, the row's pose (quat + position), the pose timestamp and
// the four derived target-clock timestamps, the prediction delta, slice
// number, and flags.
func encodeSliceHeader(s video.SliceHeader) []byte {
	const size = 4 + 4 + 4*8 + 3*8 + 8 + 8 + 8 + 8 + 8 + 8 + 1 + 1
	out := make([]byte, size)
	off := 0

	putU32 := func(v uint32) {
		binary.LittleEndian.PutUint32(out[off:off+4], v)
		off += 4
	}
	putF64 := func(v float64) {
		binary.LittleEndian.PutUint64(out[off:off+8], math.Float64bits(v))
		off += 8
	}
	putI64 := func(v int64) {
		binary.LittleEndian.PutUint64(out[off:off+8], uint64(v))
		off += 8
	}

	putU32(s.FrameIdx)
	putU32(s.RectifyMeshID)
	for _, q := range s.Pose.Quat {
		putF64(q)
	}
	for _, p := range s.Pose.Pos {
		putF64(p)
	}
	putI64(s.PoseTimestamp)
	putI64(s.Timestamp09)
	putI64(s.Timestamp0D)
	putI64(s.Timestamp0C)
	putI64(s.Timestamp0B)
	putI64(s.PredictionDelta)
	out[off] = s.SliceNum
	out[off+1] = s.Flags()

	return out
}

// run wires the dispatcher to this host's actions and starts the reader
// and writer goroutines, blocking until ctx is cancelled.
func (h *Host) Run(ctx context.Context) {
	d := NewDispatcher(h.log, h.fsm, h.ripcReg, h.performAction, h.onPoseSegments, h.handleEcho)

	go h.runWriter(ctx)
	h.runReader(ctx, d)
}

func (h *Host) onPoseSegments(segments [][]byte) {
	h.log.Debug("pose segments received", logger.Int("count", len(segments)))
}
