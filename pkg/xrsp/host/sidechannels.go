package host

import (
	"encoding/binary"
	"math"

	"github.com/xrsp-project/xrsp-host/pkg/xrsp/schema"
)

// HapticInput identifies which controller a haptic pulse targets.
type HapticInput uint8

const (
	HapticLeft HapticInput = iota
	HapticRight
	HapticGamepad
)

// HapticKind distinguishes a single-amplitude pulse from a buffered
// waveform, per §4.9.
type HapticKind uint8

const (
	HapticSimple HapticKind = iota
	HapticBuffered
)

// maxHapticDataBytes is the most waveform bytes a buffered haptic message
// carries (§4.9).
const maxHapticDataBytes = 25

// Haptic is the schema-encoded message carried on TOPIC_HAPTIC.
type Haptic struct {
	Timestamp     int64
	Input         HapticInput
	Kind          HapticKind
	Amplitude     float32
	PoseTimestamp int64
	Data          []byte // buffered waveform, <= maxHapticDataBytes
}

// Encode packs a Haptic message. Simple haptics carry only Amplitude;
// buffered haptics carry Data truncated to maxHapticDataBytes.
func (h Haptic) Encode() []byte {
	data := h.Data
	if h.Kind == HapticSimple {
		data = nil
	} else if len(data) > maxHapticDataBytes {
		data = data[:maxHapticDataBytes]
	}

	out := make([]byte, 8+1+1+4+8+1+len(data))
	binary.LittleEndian.PutUint64(out[0:8], uint64(h.Timestamp))
	out[8] = byte(h.Input)
	out[9] = byte(h.Kind)
	binary.LittleEndian.PutUint32(out[10:14], math.Float32bits(h.Amplitude))
	binary.LittleEndian.PutUint64(out[14:22], uint64(h.PoseTimestamp))
	out[22] = byte(len(data))
	copy(out[23:], data)
	return out
}

// controlCodec encodes/decodes ControlMessage via its schema tags rather
// than a hand-rolled field-by-field packer, since its layout is a plain
// fixed-width struct with no variable-length or conditional fields.
var controlCodec schema.ReflectCodec

// ControlMessage is the shared {u16 a, u16 b, u32 c, f32 d, f32 e} shape of
// AUDIO_CONTROL and INPUT_CONTROL messages (§4.9); the field semantics are
// external (audio route selection; hands/body/eye-track enable flags) and
// not otherwise constrained by the protocol.
type ControlMessage struct {
	A uint16  `schema:"u16"`
	B uint16  `schema:"u16"`
	C uint32  `schema:"u32"`
	D float32 `schema:"f32"`
	E float32 `schema:"f32"`
}

// Encode packs a ControlMessage into its fixed 16-byte wire layout.
func (m ControlMessage) Encode() []byte {
	out, err := controlCodec.Encode(m)
	if err != nil {
		// Only reachable if ControlMessage's tags are malformed, which a
		// passing test suite rules out; fall back to a zeroed message
		// rather than panicking on a live session.
		return make([]byte, 16)
	}
	return out
}

// InputControlHands is the INPUT_CONTROL message enabling hand tracking,
// sent once on PAIRING_ACK completion (§4.5).
func InputControlHands() ControlMessage {
	return ControlMessage{A: 1, B: 0, C: 0, D: 0, E: 0}
}

// InputControlBody is the INPUT_CONTROL message enabling body tracking.
func InputControlBody() ControlMessage {
	return ControlMessage{A: 0, B: 1, C: 0, D: 0, E: 0}
}
