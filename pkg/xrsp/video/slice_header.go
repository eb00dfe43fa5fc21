package video

// SliceHeader is the schema-encoded message the writer sends ahead of a
// slice's raw CSD/IDR bytes (§4.8).
type SliceHeader struct {
	FrameIdx      uint32
	RectifyMeshID uint32
	Pose          Pose
	PoseTimestamp int64

	SliceNum   uint8
	CSDPresent bool // bit0
	LastSlice  bool // bit1

	BlitYPos   int
	CropBlocks int

	// PredictionDelta is encode_done_ns - encode_started_ns for slot(0, index).
	PredictionDelta int64

	// Derived target-clock deadline plan (§4.8).
	Timestamp09 int64 // transmission start
	Timestamp0D int64 // GPU-end estimate
	Timestamp0C int64 // deadline
	Timestamp0B int64 // deadline+
}

// Flags packs CSDPresent/LastSlice into the two-bit field the wire format
// carries.
func (h SliceHeader) Flags() uint8 {
	var f uint8
	if h.CSDPresent {
		f |= 0x01
	}
	if h.LastSlice {
		f |= 0x02
	}
	return f
}

// computeTimestamps fills in the four derived target-clock timestamps
// from §4.8's formulas.
func (h *SliceHeader) computeTimestamps(clock Clock, fps int, encodeStartedNs0, txStartedNs, predictionDelta int64) {
	base := clock.ToTarget(encodeStartedNs0)
	durationA := int64(1_000_000_000) / int64(fps)
	durationC := predictionDelta
	durationB := durationA + durationC

	h.Timestamp09 = clock.ToTarget(txStartedNs) - predictionDelta
	h.Timestamp0D = base + durationA
	h.Timestamp0C = base + durationA + durationB
	h.Timestamp0B = base + durationA + durationB + durationC
}
