// Package handshake implements the XRSP pairing state machine (spec §4.5):
// the INVITE/OK/CODEGEN/PAIRING round sequence driven over
// TOPIC_HOSTINFO_ADV that brings a freshly enumerated headset from
// WAIT_FIRST to PAIRED.
package handshake

import "encoding/binary"

// InboundKind identifies the TOPIC_HOSTINFO_ADV message types the reader
// can observe.
type InboundKind uint8

const (
	Invite InboundKind = iota
	Ack
	CodegenAck
	PairingAck
	Echo
	Bye
)

// DeviceType is the device identifier carried in an INVITE's schema
// payload; it drives the default target FPS (§4.5).
type DeviceType uint8

const (
	DeviceUnknown DeviceType = iota
	DeviceQuest2
	DeviceQuestPro
	DeviceQuest3
)

// String renders the device type for logging and the status dashboard.
func (dt DeviceType) String() string {
	switch dt {
	case DeviceQuest2:
		return "quest2"
	case DeviceQuestPro:
		return "quest_pro"
	case DeviceQuest3:
		return "quest3"
	default:
		return "unknown"
	}
}

// DeviceInfo is the subset of an INVITE payload the handshake cares about.
type DeviceInfo struct {
	DeviceType DeviceType
}

// ParseInvite decodes an INVITE payload's device type byte. Unknown or
// short payloads default to DeviceUnknown, matching the "Schema on an
// inbound invite: skip FOV/resolution update; continue" recovery policy
// in §7 (we degrade gracefully rather than erroring).
func ParseInvite(payload []byte) DeviceInfo {
	if len(payload) < 1 {
		return DeviceInfo{DeviceType: DeviceUnknown}
	}
	dt := DeviceType(payload[0])
	if dt > DeviceQuest3 {
		dt = DeviceUnknown
	}
	return DeviceInfo{DeviceType: dt}
}

// DefaultFPS returns the device-type default target FPS, honoring the
// slow-link rule for Quest 2 (120, or 90 on a slow link), per §4.5.
func DefaultFPS(dt DeviceType, slowLink bool) int {
	switch dt {
	case DeviceQuest2:
		if slowLink {
			return 90
		}
		return 120
	case DeviceQuestPro:
		return 90
	case DeviceQuest3:
		return 90
	default:
		return 72
	}
}

// Codec identifies the negotiated video codec for OK(second).
type Codec uint8

const (
	CodecH264 Codec = 0
	CodecHEVC Codec = 1
)

// OKSecondPayload holds the fields of the second OK message (§4.5): the
// payload's exact byte-for-byte layout beyond these fields is not fully
// specified by a real device capture (§9 open question), so this encodes
// only the fields the spec names and emits no bytes beyond them.
type OKSecondPayload struct {
	SessionType uint8 // always 3
	ErrorCode   uint8
	SliceCount  uint8 // low 4 bits
	Codec       Codec
	FPS         uint8
}

// Encode produces the byte-exact-as-specified portion of the OK(second)
// payload: session type, error code, slice count (low nibble) packed with
// codec (next bit), and target FPS.
func (p OKSecondPayload) Encode() []byte {
	out := make([]byte, 4)
	out[0] = p.SessionType
	out[1] = p.ErrorCode
	out[2] = (p.SliceCount & 0x0F) | (uint8(p.Codec) << 4)
	out[3] = p.FPS
	return out
}

// CodegenPayload is the CODEGEN(round) message: a monotonically
// increasing round counter the peer echoes back in CODEGEN_ACK.
type CodegenPayload struct {
	Round uint32
}

func (p CodegenPayload) Encode() []byte {
	out := make([]byte, 4)
	binary.LittleEndian.PutUint32(out, p.Round)
	return out
}

// PairingPayload is the PAIRING(round) message, structurally identical to
// CODEGEN's round counter.
type PairingPayload struct {
	Round uint32
}

func (p PairingPayload) Encode() []byte {
	out := make([]byte, 4)
	binary.LittleEndian.PutUint32(out, p.Round)
	return out
}

// OKFirstPayload is the first OK reply to INVITE; unlike OK(second), it
// carries no negotiated session parameters, only an acceptance code.
type OKFirstPayload struct {
	ErrorCode uint8
}

func (p OKFirstPayload) Encode() []byte {
	return []byte{p.ErrorCode}
}
