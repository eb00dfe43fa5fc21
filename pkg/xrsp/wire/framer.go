package wire

import (
	"fmt"
	"sync"

	"github.com/xrsp-project/xrsp-host/pkg/logger"
)

// Transport is the minimal surface the framer needs from the USB layer.
// pkg/usbtransport.Transport satisfies it.
type Transport interface {
	Send(buf []byte) error
}

// workingPkt is the single in-flight inbound frame being assembled.
type workingPkt struct {
	header  Frame
	buf     []byte
	written int
}

// Framer implements §4.2: it emits aligned, filler-padded topic frames on
// the way out, and reassembles them one at a time on the way in.
type Framer struct {
	log *logger.Logger

	sendMu   sync.Mutex // transport lock: held for one send_to_topic call
	transport Transport
	seq      uint16

	working *workingPkt
}

// New creates a framer bound to a transport.
func New(log *logger.Logger, transport Transport) *Framer {
	return &Framer{
		log:       log.WithComponent("framer"),
		transport: transport,
	}
}

// SendToTopic fragments payload into ≤ MaxChunkBytes chunks and emits each
// as one data frame, followed by a filler frame if one fits before the
// next 1024-byte boundary. The whole call holds the transport lock so
// chunks of this logical message never interleave with another topic.
func (fr *Framer) SendToTopic(topic uint8, payload []byte) error {
	fr.sendMu.Lock()
	defer fr.sendMu.Unlock()

	if len(payload) == 0 {
		return fr.emitOne(topic, nil)
	}
	for off := 0; off < len(payload); off += MaxChunkBytes {
		end := off + MaxChunkBytes
		if end > len(payload) {
			end = len(payload)
		}
		if err := fr.emitOne(topic, payload[off:end]); err != nil {
			return err
		}
	}
	return nil
}

// emitOne writes a single data frame (with alignment padding) followed by
// a filler frame when the gap to the next 1024-byte boundary is [8,1024).
func (fr *Framer) emitOne(topic uint8, chunk []byte) error {
	dataFrame, out := fr.buildDataFrame(topic, chunk)
	if err := fr.transport.Send(out); err != nil {
		return fmt.Errorf("wire: send data frame: %w", err)
	}

	gap := gapToBoundary(dataFrame.ByteLen())
	if gap >= HeaderSize && gap < 1024 {
		filler := fr.buildFillerFrame(gap)
		if err := fr.transport.Send(filler); err != nil {
			return fmt.Errorf("wire: send filler frame: %w", err)
		}
	}
	return nil
}

// buildDataFrame assembles the header+payload bytes for one data frame and
// returns the parsed Frame alongside the raw bytes.
func (fr *Framer) buildDataFrame(topic uint8, chunk []byte) (Frame, []byte) {
	pad := alignUp(len(chunk))
	hasPad := pad != 0

	payloadLen := len(chunk)
	if hasPad {
		payloadLen += pad
	}

	f := Frame{
		HasAlignmentPadding: hasPad,
		Topic:               topic,
		SequenceNum:         fr.nextSeq(),
		NumWords:            uint16((HeaderSize + payloadLen) / 4),
	}

	out := make([]byte, HeaderSize+payloadLen)
	copy(out[:HeaderSize], EncodeHeader(f))
	copy(out[HeaderSize:], chunk)
	if hasPad {
		for i := HeaderSize + len(chunk); i < len(out)-1; i++ {
			out[i] = FillerByte
		}
		out[len(out)-1] = byte(pad)
	}
	return f, out
}

// buildFillerFrame builds a topic-0 frame with no payload padding whose
// total length is exactly gapBytes.
func (fr *Framer) buildFillerFrame(gapBytes int) []byte {
	f := Frame{
		Topic:       TopicFiller,
		SequenceNum: fr.nextSeq(),
		NumWords:    uint16(gapBytes / 4),
	}
	out := make([]byte, gapBytes)
	copy(out[:HeaderSize], EncodeHeader(f))
	for i := HeaderSize; i < len(out); i++ {
		out[i] = FillerByte
	}
	return out
}

// nextSeq increments the monotonic sequence number, shared across data and
// filler frames (one increment per data-or-filler pair per §4.2).
func (fr *Framer) nextSeq() uint16 {
	s := fr.seq
	fr.seq++
	return s
}

// gapToBoundary returns the distance from n bytes to the next 1024-byte
// boundary, in [0,1024).
func gapToBoundary(n int) int {
	return (1024 - n%1024) % 1024
}

// FeedInbound consumes one USB read of up to 1024 bytes, advancing or
// completing the working packet. Completed packets are passed to onFrame;
// topic-0 filler frames are silently dropped, matching §4.2.
func (fr *Framer) FeedInbound(data []byte, onFrame func(Frame)) {
	for len(data) > 0 {
		if fr.working == nil {
			if len(data) < HeaderSize {
				fr.log.Warn("wire: discarding short remainder", logger.Int("bytes", len(data)))
				return
			}
			hdr, err := ParseHeader(data)
			if err != nil {
				fr.log.Warn("wire: bad header", logger.Error(err))
				return
			}
			total := hdr.ByteLen()
			if total < HeaderSize {
				fr.log.Warn("wire: bad num_words", logger.Int("num_words", int(hdr.NumWords)))
				return
			}
			fr.working = &workingPkt{
				header: hdr,
				buf:    make([]byte, total-HeaderSize),
			}
			data = data[HeaderSize:]
		}

		w := fr.working
		missing := len(w.buf) - w.written
		take := missing
		if take > len(data) {
			take = len(data)
		}
		copy(w.buf[w.written:w.written+take], data[:take])
		w.written += take
		data = data[take:]

		if w.written == len(w.buf) {
			complete := w.header
			complete.Payload = w.buf
			fr.working = nil
			if complete.Topic != TopicFiller {
				onFrame(complete)
			}
		}
	}
}
