package host

import (
	"github.com/xrsp-project/xrsp-host/pkg/logger"
	"github.com/xrsp-project/xrsp-host/pkg/xrsp/handshake"
	"github.com/xrsp-project/xrsp-host/pkg/xrsp/ripc"
	"github.com/xrsp-project/xrsp-host/pkg/xrsp/wire"
)

// Dispatcher routes reassembled topic frames to their handlers (§4.6). It
// is driven synchronously by the reader: a handler runs to completion
// before the next frame is consumed, matching "dispatches under the
// dispatcher's synchronous discipline" from §5.
type Dispatcher struct {
	log *logger.Logger

	fsm     *handshake.FSM
	ripcReg *ripc.Registry
	pose    *wire.SegmentedContext

	onAction func(handshake.Action)
	onPose   func(segments [][]byte)
	onEcho   func(body []byte)
}

// NewDispatcher builds a dispatcher bound to the handshake FSM, the RIPC
// registry, and three callbacks: onAction receives every handshake action
// to execute, onPose receives completed pose segments, onEcho receives
// the raw PING/PONG payload whenever a TOPIC_HOSTINFO_ADV ECHO message
// arrives (§4.4's exchange is independent of the pairing table, so it
// bypasses the FSM entirely).
func NewDispatcher(log *logger.Logger, fsm *handshake.FSM, ripcReg *ripc.Registry, onAction func(handshake.Action), onPose func(segments [][]byte), onEcho func(body []byte)) *Dispatcher {
	d := &Dispatcher{
		log:      log.WithComponent("dispatcher"),
		fsm:      fsm,
		ripcReg:  ripcReg,
		onAction: onAction,
		onPose:   onPose,
		onEcho:   onEcho,
	}
	d.pose = wire.NewSegmentedContext(func(segs [][]byte) {
		if d.onPose != nil {
			d.onPose(segs)
		}
	})
	return d
}

// Dispatch routes one reassembled frame by topic.
func (d *Dispatcher) Dispatch(f wire.Frame) {
	payload := f.UnpaddedPayload()

	switch f.Topic {
	case TopicHostinfoAdv:
		d.dispatchHostinfo(payload)
	case TopicPose:
		if err := d.pose.Consume(payload); err != nil {
			d.log.Warn("pose segment error", logger.Error(err))
		}
	case TopicHands, TopicSkeleton, TopicBody, TopicLogging:
		// Out of scope beyond consuming the payload; a real deployment
		// wires these to the runtime's input/logging sinks.
	case TopicRuntimeIPC:
		d.dispatchRIPC(payload)
	case TopicSlice0, TopicSlice1, TopicSlice2, TopicSlice3:
		// Inbound slice topics carry status only; nothing to decode here.
	default:
		d.log.Warn("unknown topic, dropping", logger.Int("topic", int(f.Topic)))
	}
}

// hostinfoKind maps the first payload byte to an InboundKind. A real
// capture's schema tags each HOSTINFO_ADV message with its kind; we take
// the same byte-prefix-dispatch approach used for INVITE's device type.
func hostinfoKind(payload []byte) handshake.InboundKind {
	if len(payload) < 1 {
		return handshake.Echo
	}
	switch payload[0] {
	case 0:
		return handshake.Invite
	case 1:
		return handshake.Ack
	case 2:
		return handshake.CodegenAck
	case 3:
		return handshake.PairingAck
	case 4:
		return handshake.Bye
	default:
		return handshake.Echo
	}
}

func (d *Dispatcher) dispatchHostinfo(payload []byte) {
	kind := hostinfoKind(payload)
	var body []byte
	if len(payload) > 1 {
		body = payload[1:]
	}

	if kind == handshake.Echo {
		if d.onEcho != nil {
			d.onEcho(body)
		}
		return
	}

	actions, err := d.fsm.Handle(kind, body)
	if err != nil {
		d.log.Warn("protocol error, dropping message", logger.Error(err))
		return
	}
	for _, a := range actions {
		if d.onAction != nil {
			d.onAction(a)
		}
	}
}

func (d *Dispatcher) dispatchRIPC(payload []byte) {
	if len(payload) < 16 {
		d.log.Warn("ripc payload too short for preamble", logger.Int("bytes", len(payload)))
		return
	}
	pre, err := ripc.ParsePreamble(payload[:16])
	if err != nil {
		d.log.Warn("ripc preamble error", logger.Error(err))
		return
	}
	body := payload[16:]
	if !d.ripcReg.Resolve(pre.ClientID, pre.CmdID, body) {
		d.log.Debug("ripc reply with no pending call", logger.Uint32("client_id", pre.ClientID))
	}
}
