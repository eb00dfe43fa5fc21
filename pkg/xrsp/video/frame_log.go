package video

import (
	"sync"
	"time"

	"github.com/xrsp-project/xrsp-host/pkg/logger"
)

// FrameRecord is one completed frame's transmission summary, kept for the
// status dashboard and diagnostics. Unlike a transmission ledger backed by
// a database, this is purely in-memory: spec §6 states persisted state is
// none, so nothing here survives a process restart.
type FrameRecord struct {
	FrameIdx   uint32
	Slices     int
	Bytes      int
	Keyframe   bool
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration is FinishedAt - StartedAt, the time spent transmitting this
// frame's slices.
func (r FrameRecord) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// inFlightFrame tracks a frame whose slices are still arriving at the
// writer, keyed by frame index the same way TransmissionLogger keys
// in-progress transmissions by stream ID.
type inFlightFrame struct {
	frameIdx  uint32
	keyframe  bool
	bytes     int
	slices    int
	startedAt time.Time
	lastSeen  time.Time
}

// FrameLog is a bounded, in-memory ring buffer of recently transmitted
// frames, plus the set of frames still being assembled. It follows the
// same "track in-flight by key, finalize into a ring on completion"
// structure as a transmission logger, adapted from a database-backed
// recorder to a fixed-capacity in-memory one.
type FrameLog struct {
	mu        sync.RWMutex
	log       *logger.Logger
	capacity  int
	inFlight  map[uint32]*inFlightFrame
	completed []FrameRecord
	next      int
	full      bool

	framesLogged uint64
	bytesLogged  uint64
}

// NewFrameLog creates a log retaining at most capacity completed frame
// records.
func NewFrameLog(capacity int, log *logger.Logger) *FrameLog {
	if capacity <= 0 {
		capacity = 256
	}
	return &FrameLog{
		log:       log.WithComponent("frame_log"),
		capacity:  capacity,
		inFlight:  make(map[uint32]*inFlightFrame),
		completed: make([]FrameRecord, capacity),
	}
}

// RecordSlice logs one slice's transmission, tracking the owning frame and
// finalizing it into the ring buffer once last is true.
func (fl *FrameLog) RecordSlice(frameIdx uint32, sliceBytes int, keyframe, last bool) {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	now := time.Now()
	f, ok := fl.inFlight[frameIdx]
	if !ok {
		f = &inFlightFrame{frameIdx: frameIdx, startedAt: now}
		fl.inFlight[frameIdx] = f
	}
	f.bytes += sliceBytes
	f.slices++
	f.lastSeen = now
	if keyframe {
		f.keyframe = true
	}

	if !last {
		return
	}

	rec := FrameRecord{
		FrameIdx:   f.frameIdx,
		Slices:     f.slices,
		Bytes:      f.bytes,
		Keyframe:   f.keyframe,
		StartedAt:  f.startedAt,
		FinishedAt: f.lastSeen,
	}
	fl.completed[fl.next] = rec
	fl.next = (fl.next + 1) % fl.capacity
	if fl.next == 0 {
		fl.full = true
	}
	fl.framesLogged++
	fl.bytesLogged += uint64(f.bytes)
	delete(fl.inFlight, frameIdx)

	fl.log.Debug("frame transmitted",
		logger.Int("frame_idx", int(rec.FrameIdx)),
		logger.Int("slices", rec.Slices),
		logger.Int("bytes", rec.Bytes),
		logger.Bool("keyframe", rec.Keyframe))
}

// Recent returns the completed frame records in chronological order,
// oldest first, up to the ring buffer's capacity.
func (fl *FrameLog) Recent() []FrameRecord {
	fl.mu.RLock()
	defer fl.mu.RUnlock()

	if !fl.full {
		out := make([]FrameRecord, fl.next)
		copy(out, fl.completed[:fl.next])
		return out
	}

	out := make([]FrameRecord, fl.capacity)
	copy(out, fl.completed[fl.next:])
	copy(out[fl.capacity-fl.next:], fl.completed[:fl.next])
	return out
}

// Totals returns the lifetime frame and byte counts, including frames
// that have since rolled off the ring buffer.
func (fl *FrameLog) Totals() (frames uint64, bytes uint64) {
	fl.mu.RLock()
	defer fl.mu.RUnlock()
	return fl.framesLogged, fl.bytesLogged
}

// InFlightCount returns the number of frames with slices seen but not yet
// finalized; a persistently nonzero count across writer ticks indicates a
// stuck slice stream.
func (fl *FrameLog) InFlightCount() int {
	fl.mu.RLock()
	defer fl.mu.RUnlock()
	return len(fl.inFlight)
}
