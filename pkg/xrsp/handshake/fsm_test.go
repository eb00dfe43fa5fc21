package handshake

import "testing"

// TestFSM_CleanHandshake replays spec §8 scenario 1 and checks both the
// final state and the exact outbound action trace.
func TestFSM_CleanHandshake(t *testing.T) {
	f := NewFSM()

	var trace []ActionKind
	drive := func(kind InboundKind) {
		actions, err := f.Handle(kind, []byte{byte(DeviceUnknown)})
		if err != nil {
			t.Fatalf("Handle(%v) in state %v: %v", kind, f.State(), err)
		}
		for _, a := range actions {
			trace = append(trace, a.Kind)
		}
	}

	drive(Invite)
	drive(Ack)
	drive(CodegenAck)
	drive(PairingAck)
	drive(Invite)
	drive(Ack)
	drive(CodegenAck)
	drive(PairingAck)

	if f.State() != Paired {
		t.Fatalf("expected PAIRED, got %v", f.State())
	}

	want := []ActionKind{
		ActionSendOKFirst,
		ActionSendCodegen,
		ActionSendPairing,
		ActionSendVideoProbe,
		ActionSendInitialPing,
		ActionResetEcho,
		ActionSendOKSecond,
		ActionSendCodegen,
		ActionSendPairing,
		ActionSendAudioControl,
		ActionSendChemxToggle,
		ActionSendASWToggle,
		ActionSendDropFrameStateDisable,
		ActionSendInputControlHands,
		ActionSendInputControlBody,
		ActionLaunchRPCEnsures,
		ActionSendRectifyMesh,
	}

	if len(trace) != len(want) {
		t.Fatalf("trace length mismatch: got %d actions, want %d\ngot:  %v\nwant: %v", len(trace), len(want), trace, want)
	}
	for i := range want {
		if trace[i] != want[i] {
			t.Errorf("action %d: got %v, want %v", i, trace[i], want[i])
		}
	}
}

func TestFSM_UnexpectedMessageIsDropped(t *testing.T) {
	f := NewFSM()
	if _, err := f.Handle(Echo, nil); err != ErrUnexpectedMessage {
		t.Fatalf("expected ErrUnexpectedMessage, got %v", err)
	}
	if f.State() != WaitFirst {
		t.Fatalf("a dropped message must not advance state, got %v", f.State())
	}
}

func TestFSM_Reset_ReturnsToWaitFirst(t *testing.T) {
	f := NewFSM()
	_, _ = f.Handle(Invite, []byte{byte(DeviceQuest3)})
	_, _ = f.Handle(Ack, nil)
	_, _ = f.Handle(CodegenAck, nil)
	_, _ = f.Handle(PairingAck, nil)
	if f.State() != WaitSecond {
		t.Fatalf("expected WAIT_SECOND, got %v", f.State())
	}

	f.Reset()
	if f.State() != WaitFirst {
		t.Fatalf("expected reset to WAIT_FIRST, got %v", f.State())
	}
}

func TestFSM_PairedNonEchoTriggersBye(t *testing.T) {
	f := NewFSM()
	_, _ = f.Handle(Invite, nil)
	_, _ = f.Handle(Ack, nil)
	_, _ = f.Handle(CodegenAck, nil)
	_, _ = f.Handle(PairingAck, nil)
	_, _ = f.Handle(Invite, nil)
	_, _ = f.Handle(Ack, nil)
	_, _ = f.Handle(CodegenAck, nil)
	_, _ = f.Handle(PairingAck, nil)

	actions, err := f.Handle(Bye, nil)
	if err != nil {
		t.Fatalf("Handle(Bye): %v", err)
	}
	if len(actions) != 2 || actions[0].Kind != ActionSendBye || actions[1].Kind != ActionTriggerUSBReset {
		t.Fatalf("expected [SendBye, TriggerUSBReset], got %v", actions)
	}
}

func TestDefaultFPS(t *testing.T) {
	cases := []struct {
		dt       DeviceType
		slowLink bool
		want     int
	}{
		{DeviceQuest2, false, 120},
		{DeviceQuest2, true, 90},
		{DeviceQuestPro, false, 90},
		{DeviceQuest3, false, 90},
		{DeviceUnknown, false, 72},
	}
	for _, c := range cases {
		if got := DefaultFPS(c.dt, c.slowLink); got != c.want {
			t.Errorf("DefaultFPS(%v, %v) = %d, want %d", c.dt, c.slowLink, got, c.want)
		}
	}
}
