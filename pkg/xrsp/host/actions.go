package host

import (
	"github.com/xrsp-project/xrsp-host/pkg/logger"
	"github.com/xrsp-project/xrsp-host/pkg/xrsp/echo"
	"github.com/xrsp-project/xrsp-host/pkg/xrsp/handshake"
	"github.com/xrsp-project/xrsp-host/pkg/xrsp/ripc"
)


// Outbound TOPIC_HOSTINFO_ADV message tags, prefixed onto every message
// this engine sends so the reassembled payload round-trips through the
// same kind-byte scheme dispatchHostinfo uses for inbound messages. These
// tag values are an internal convention, not a wire constant from a real
// capture.
const (
	tagOKFirst uint8 = iota + 0x10
	tagOKSecond
	tagCodegen
	tagPairing
	tagVideoProbe
	tagPing
	tagBye
)

func tagged(tag uint8, body []byte) []byte {
	out := make([]byte, 1+len(body))
	out[0] = tag
	copy(out[1:], body)
	return out
}

// performAction executes one handshake.Action by sending the corresponding
// outbound message(s). It runs synchronously on whichever goroutine
// dispatched the triggering inbound frame, matching the dispatcher's
// synchronous discipline (§5); the framer's own send lock keeps this safe
// to call concurrently with the writer's periodic sends.
func (h *Host) performAction(a handshake.Action) {
	switch a.Kind {
	case handshake.ActionSendOKFirst:
		h.send(TopicHostinfoAdv, tagged(tagOKFirst, handshake.OKFirstPayload{}.Encode()))

	case handshake.ActionSendOKSecond:
		profile := ResolveDisplayProfile(a.Device.DeviceType, h.transport.IsSlowLink(), h.videoCfg)
		payload := handshake.OKSecondPayload{
			SessionType: 3,
			SliceCount:  uint8(h.pipelineSliceCount),
			Codec:       h.codec,
			FPS:         uint8(profile.FPS),
		}
		h.session.setDevice(a.Device)
		h.send(TopicHostinfoAdv, tagged(tagOKSecond, payload.Encode()))

	case handshake.ActionSendCodegen:
		h.send(TopicHostinfoAdv, tagged(tagCodegen, handshake.CodegenPayload{Round: a.Round}.Encode()))

	case handshake.ActionSendPairing:
		h.send(TopicHostinfoAdv, tagged(tagPairing, handshake.PairingPayload{Round: a.Round}.Encode()))

	case handshake.ActionSendVideoProbe:
		h.send(TopicHostinfoAdv, tagged(tagVideoProbe, nil))

	case handshake.ActionSendInitialPing, handshake.ActionResetEcho:
		// ActionResetEcho re-establishes the clock by issuing a fresh
		// PING; echo.Clock has no separate "reset" state to clear.
		h.sendPing()

	case handshake.ActionSendAudioControl:
		h.send(TopicAudioControl, ControlMessage{}.Encode())

	case handshake.ActionSendChemxToggle, handshake.ActionSendASWToggle, handshake.ActionSendDropFrameStateDisable:
		h.send(TopicCommand, ControlMessage{A: uint16(a.Kind)}.Encode())

	case handshake.ActionSendInputControlHands:
		h.send(TopicInputControl, InputControlHands().Encode())

	case handshake.ActionSendInputControlBody:
		h.send(TopicInputControl, InputControlBody().Encode())

	case handshake.ActionLaunchRPCEnsures:
		h.session.markPaired()
		h.launchRPCEnsures()
		if h.hooks.OnPairingTransition != nil {
			h.hooks.OnPairingTransition("PAIRED", h.session.deviceType().String())
		}

	case handshake.ActionSendRectifyMesh:
		h.send(TopicMesh, nil)

	case handshake.ActionSendBye:
		h.send(TopicHostinfoAdv, tagged(tagBye, nil))

	case handshake.ActionTriggerUSBReset:
		h.transport.Invalidate()
		if err := h.transport.Reset(); err != nil {
			h.log.Error("usb reset failed", logger.Error(err))
		}
		h.fsm.Reset()
	}
}

// send fragments and emits payload on topic, tracking outbound bytes and
// logging (not propagating) transport errors: a failed send here means
// the reader/writer loop will soon observe the transport invalid and
// drive the same reconnect policy.
func (h *Host) send(topic uint8, payload []byte) {
	if err := h.framer.SendToTopic(topic, payload); err != nil {
		h.log.Warn("send failed", logger.Int("topic", int(topic)), logger.Error(err))
		return
	}
	h.session.addBytesTx(len(payload))
}

func (h *Host) sendPing() {
	ping := h.clock.BuildPing()
	h.send(TopicHostinfoAdv, tagged(tagPing, ping.Encode()))
}

// launchRPCEnsures brings up the always-started core services (§4.7) once
// pairing completes. ENSURE_SERVICE_STARTED and CONNECT_TO_REMOTE_SERVER
// are fire-and-forget service bring-up commands, not RPC calls, so they
// are not registered in the pending-call map; only CmdRPC replies are
// correlated there.
func (h *Host) launchRPCEnsures() {
	for _, pre := range ripc.BringUp(h.clientID) {
		h.send(TopicRuntimeIPC, pre.EncodePreamble())
	}
}

// handleEcho processes one inbound TOPIC_HOSTINFO_ADV ECHO payload: a
// PING (org==0, recv==0) gets an immediate PONG reply; a PONG matching our
// last PING updates the clock offset.
func (h *Host) handleEcho(body []byte) {
	msg, err := echo.ParseMessage(body)
	if err != nil {
		h.log.Warn("echo decode error", logger.Error(err))
		return
	}

	if msg.Org == 0 && msg.Recv == 0 {
		pong := h.clock.OnPing(msg)
		h.send(TopicHostinfoAdv, tagged(tagPing, pong.Encode()))
		return
	}
	if h.clock.OnPong(msg) && h.hooks.OnClockSync != nil {
		h.hooks.OnClockSync(h.clock.Established(), h.clock.Offset())
	}
}
