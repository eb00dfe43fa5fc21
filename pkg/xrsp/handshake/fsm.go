package handshake

import "fmt"

// State is the pairing state enum from §3. The handshake only advances,
// never regresses, except on USB reconnect which resets it to WaitFirst.
type State int

const (
	WaitFirst State = iota
	WaitSecond
	Pairing
	Paired
)

func (s State) String() string {
	switch s {
	case WaitFirst:
		return "WAIT_FIRST"
	case WaitSecond:
		return "WAIT_SECOND"
	case Pairing:
		return "PAIRING"
	case Paired:
		return "PAIRED"
	default:
		return "UNKNOWN"
	}
}

// ActionKind enumerates the outbound effects a transition produces. The
// FSM itself never touches the transport or the echo clock; it reports
// what should happen and the caller (the Host) executes it.
type ActionKind int

const (
	ActionSendOKFirst ActionKind = iota
	ActionSendOKSecond
	ActionSendCodegen
	ActionSendPairing
	ActionSendVideoProbe
	ActionSendInitialPing
	ActionResetEcho
	ActionSendAudioControl
	ActionSendChemxToggle
	ActionSendASWToggle
	ActionSendDropFrameStateDisable
	ActionSendInputControlHands
	ActionSendInputControlBody
	ActionLaunchRPCEnsures
	ActionSendRectifyMesh
	ActionSendBye
	ActionTriggerUSBReset
)

// Action is one effect produced by a transition, in emission order.
type Action struct {
	Kind   ActionKind
	Round  uint32 // for ActionSendCodegen / ActionSendPairing
	Device DeviceInfo
}

// ErrUnexpectedMessage is returned (and the message dropped, per §7's
// Protocol error policy) when an inbound kind is not valid for the
// current state.
var ErrUnexpectedMessage = fmt.Errorf("handshake: unexpected message for current state")

// FSM drives the pairing state machine described in §4.5.
type FSM struct {
	state  State
	device DeviceInfo
}

// NewFSM creates an FSM in WaitFirst.
func NewFSM() *FSM {
	return &FSM{state: WaitFirst}
}

// State returns the current pairing state.
func (f *FSM) State() State {
	return f.state
}

// Reset forces the state back to WaitFirst, used on USB reconnect (§4.1)
// and on the "non-PAIRED pose/skeleton/log" protocol violation (§4.5).
func (f *FSM) Reset() {
	f.state = WaitFirst
}

// Handle applies one inbound TOPIC_HOSTINFO_ADV message and returns the
// ordered actions the caller must perform. payload is only consulted for
// Invite (to extract the device descriptor).
func (f *FSM) Handle(kind InboundKind, payload []byte) ([]Action, error) {
	switch f.state {
	case WaitFirst:
		return f.handleWaitFirst(kind, payload)
	case WaitSecond, Pairing:
		return f.handleSecondRound(kind, payload)
	case Paired:
		return f.handlePaired(kind)
	default:
		return nil, fmt.Errorf("handshake: unknown state %v", f.state)
	}
}

func (f *FSM) handleWaitFirst(kind InboundKind, payload []byte) ([]Action, error) {
	switch kind {
	case Invite:
		f.device = ParseInvite(payload)
		return []Action{{Kind: ActionSendOKFirst, Device: f.device}}, nil
	case Ack:
		return []Action{{Kind: ActionSendCodegen, Round: 1}}, nil
	case CodegenAck:
		return []Action{{Kind: ActionSendPairing, Round: 1}}, nil
	case PairingAck:
		f.state = WaitSecond
		return []Action{
			{Kind: ActionSendVideoProbe},
			{Kind: ActionSendInitialPing},
		}, nil
	default:
		return nil, ErrUnexpectedMessage
	}
}

func (f *FSM) handleSecondRound(kind InboundKind, payload []byte) ([]Action, error) {
	switch kind {
	case Invite:
		f.device = ParseInvite(payload)
		f.state = Pairing
		return []Action{
			{Kind: ActionResetEcho},
			{Kind: ActionSendOKSecond, Device: f.device},
		}, nil
	case Ack:
		return []Action{{Kind: ActionSendCodegen, Round: 2}}, nil
	case CodegenAck:
		return []Action{{Kind: ActionSendPairing, Round: 2}}, nil
	case PairingAck:
		f.state = Paired
		return []Action{
			{Kind: ActionSendAudioControl},
			{Kind: ActionSendChemxToggle},
			{Kind: ActionSendASWToggle},
			{Kind: ActionSendDropFrameStateDisable},
			{Kind: ActionSendInputControlHands},
			{Kind: ActionSendInputControlBody},
			{Kind: ActionLaunchRPCEnsures},
			{Kind: ActionSendRectifyMesh},
		}, nil
	default:
		return nil, ErrUnexpectedMessage
	}
}

func (f *FSM) handlePaired(kind InboundKind) ([]Action, error) {
	switch kind {
	case Echo:
		return nil, nil // caller answers via the echo clock directly
	default:
		// Any pose/skeleton/log traffic (represented here as any other
		// HOSTINFO_ADV message) while not freshly PAIRED is a protocol
		// violation: trigger BYE and a USB reset.
		return []Action{
			{Kind: ActionSendBye},
			{Kind: ActionTriggerUSBReset},
		}, nil
	}
}
