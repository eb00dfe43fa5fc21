package wire

import (
	"encoding/binary"
	"fmt"
)

// SegmentedHandler receives the completed segment buffers of a reassembled
// message, in segment order.
type SegmentedHandler func(segments [][]byte)

// SegmentedContext reassembles a schema-encoded message split across a
// preamble frame and N data frames (§4.3). One context exists per topic
// that carries segmented traffic; contexts never share state.
type SegmentedContext struct {
	handler SegmentedHandler

	expected  []int
	valid     []int
	segs      [][]byte
	readingIdx int
}

// NewSegmentedContext creates a context that is empty (expects a preamble
// next) until the first preamble frame is consumed.
func NewSegmentedContext(handler SegmentedHandler) *SegmentedContext {
	return &SegmentedContext{handler: handler}
}

// Consume feeds one reassembled topic frame's payload into the context. It
// implements the reading_idx==0-means-preamble rule from §4.3.
func (c *SegmentedContext) Consume(payload []byte) error {
	if c.readingIdx == 0 && c.expected == nil {
		return c.consumePreamble(payload)
	}
	return c.consumeSegment(payload)
}

// consumePreamble parses {idx_u32, seg_len_u32_in_qwords...} and allocates
// the segment buffers.
func (c *SegmentedContext) consumePreamble(payload []byte) error {
	if len(payload) < 4 || len(payload)%4 != 0 {
		c.reset()
		return fmt.Errorf("wire: malformed segmented preamble, length %d", len(payload))
	}

	n := int(binary.LittleEndian.Uint32(payload[0:4]))
	lenFields := (len(payload) / 4) - 1
	if n <= 0 || n > lenFields {
		c.reset()
		return fmt.Errorf("wire: segmented preamble declares %d segments, only %d length fields present", n, lenFields)
	}

	c.expected = make([]int, n)
	c.valid = make([]int, n)
	c.segs = make([][]byte, n)
	for i := 0; i < n; i++ {
		qwords := binary.LittleEndian.Uint32(payload[4+i*4 : 8+i*4])
		byteLen := int(qwords) * 8
		c.expected[i] = byteLen
		c.segs[i] = make([]byte, byteLen)
	}
	c.readingIdx = 0
	return nil
}

// consumeSegment copies into the current segment, advancing when it fills
// and invoking the handler once all segments are complete.
func (c *SegmentedContext) consumeSegment(payload []byte) error {
	idx := c.readingIdx
	remaining := c.expected[idx] - c.valid[idx]
	if len(payload) > remaining {
		c.reset()
		return fmt.Errorf("wire: segment %d overrun: got %d bytes, %d remaining", idx, len(payload), remaining)
	}

	copy(c.segs[idx][c.valid[idx]:], payload)
	c.valid[idx] += len(payload)

	if c.valid[idx] == c.expected[idx] {
		c.readingIdx++
		if c.readingIdx == len(c.expected) {
			done := c.segs
			c.handler(done)
			c.reset()
		}
	}
	return nil
}

// reset clears the context back to "expect a preamble".
func (c *SegmentedContext) reset() {
	c.expected = nil
	c.valid = nil
	c.segs = nil
	c.readingIdx = 0
}

// EncodeSegments builds the preamble + N data-frame payloads for a
// segmented message, the inverse of the reassembly this package performs.
// Each segment's length must be a multiple of 8 bytes (a whole number of
// qwords), matching the preamble's length encoding.
func EncodeSegments(segments [][]byte) ([][]byte, error) {
	preamble := make([]byte, 4+4*len(segments))
	binary.LittleEndian.PutUint32(preamble[0:4], uint32(len(segments)))
	for i, seg := range segments {
		if len(seg)%8 != 0 {
			return nil, fmt.Errorf("wire: segment %d length %d is not a multiple of 8", i, len(seg))
		}
		binary.LittleEndian.PutUint32(preamble[4+i*4:8+i*4], uint32(len(seg)/8))
	}

	frames := make([][]byte, 0, len(segments)+1)
	frames = append(frames, preamble)
	frames = append(frames, segments...)
	return frames, nil
}
