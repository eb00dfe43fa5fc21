// Package wire implements the XRSP topic framer: the length-delimited,
// 4-byte-aligned frame format multiplexed over the USB bulk stream.
package wire

import (
	"encoding/binary"
	"fmt"
)

// HeaderSize is the fixed 8-byte topic frame header.
const HeaderSize = 8

// TopicFiller is the reserved topic for padding frames.
const TopicFiller = 0

// FillerByte fills unused alignment padding bytes.
const FillerByte = 0xDE

// MaxChunkBytes is the largest payload submitted as a single topic frame;
// send_to_topic fragments larger payloads into chunks of this size.
const MaxChunkBytes = 0x3FFF8

// Frame is one parsed or about-to-be-emitted topic frame.
type Frame struct {
	HasAlignmentPadding bool
	PacketVersionIsInternal bool
	Version      uint8
	Topic        uint8
	NumWords     uint16 // total frame size / 4, header included
	SequenceNum  uint16
	Payload      []byte // includes the trailing alignment-pad byte when HasAlignmentPadding is set
}

// ParseHeader decodes the 8-byte header at the start of data.
func ParseHeader(data []byte) (Frame, error) {
	if len(data) < HeaderSize {
		return Frame{}, fmt.Errorf("wire: short header: %d bytes", len(data))
	}

	flags := data[0]
	f := Frame{
		HasAlignmentPadding:     flags&0x01 != 0,
		PacketVersionIsInternal: flags&0x02 != 0,
		Version:                 (flags >> 2) & 0x01,
		Topic:                   data[1],
		NumWords:                binary.LittleEndian.Uint16(data[4:6]),
		SequenceNum:             binary.LittleEndian.Uint16(data[6:8]),
	}
	return f, nil
}

// EncodeHeader writes f's header fields (not payload) into an 8-byte slice.
func EncodeHeader(f Frame) []byte {
	out := make([]byte, HeaderSize)
	var flags uint8
	if f.HasAlignmentPadding {
		flags |= 0x01
	}
	if f.PacketVersionIsInternal {
		flags |= 0x02
	}
	flags |= (f.Version & 0x01) << 2
	out[0] = flags
	out[1] = f.Topic
	binary.LittleEndian.PutUint16(out[4:6], f.NumWords)
	binary.LittleEndian.PutUint16(out[6:8], f.SequenceNum)
	return out
}

// ByteLen returns the total on-wire length of the frame (header + payload).
func (f Frame) ByteLen() int {
	return int(f.NumWords) * 4
}

// UnpaddedPayload strips the trailing alignment length byte and the pad
// bytes it describes, returning the original submitted payload.
func (f Frame) UnpaddedPayload() []byte {
	if !f.HasAlignmentPadding || len(f.Payload) == 0 {
		return f.Payload
	}
	padLen := int(f.Payload[len(f.Payload)-1])
	if padLen < 1 || padLen > 3 || padLen > len(f.Payload) {
		return f.Payload
	}
	return f.Payload[:len(f.Payload)-padLen]
}

// alignUp returns the number of pad bytes needed to round n up to a
// multiple of 4, in [0,3].
func alignUp(n int) int {
	return (4 - n%4) % 4
}
