package ripc

import "testing"

func TestPreamble_RoundTrip(t *testing.T) {
	p := Preamble{CmdID: CmdRPC, NextSize: 128, ClientID: 7, Unk: 0xAA}
	encoded := p.EncodePreamble()

	got, err := ParsePreamble(encoded)
	if err != nil {
		t.Fatalf("ParsePreamble: %v", err)
	}
	if got != p {
		t.Errorf("round trip mismatch: got %+v want %+v", got, p)
	}
}

func TestComposeMethodID(t *testing.T) {
	id := ComposeMethodID(0x1111, 0x2222, 0x4444)
	want := MethodID(0x1111 ^ 0x2222 ^ 0x4444)
	if id != want {
		t.Errorf("ComposeMethodID = %x, want %x", id, want)
	}
}

func TestRegistry_ResolveMatchesByClientAndCmd(t *testing.T) {
	reg := NewRegistry()
	call := reg.Register(5, CmdRPC, ComposeMethodID(1, 2, 3))

	if reg.Resolve(5, CmdEnsureServiceStarted, []byte("wrong cmd")) {
		t.Fatal("expected Resolve to fail for a non-matching cmd")
	}
	if !reg.Resolve(5, CmdRPC, []byte("reply")) {
		t.Fatal("expected Resolve to succeed for a matching (client_id, cmd_id)")
	}

	select {
	case payload := <-call.Done:
		if string(payload) != "reply" {
			t.Errorf("got payload %q, want %q", payload, "reply")
		}
	default:
		t.Fatal("expected a payload to be delivered to the pending call")
	}

	if reg.Pending() != 0 {
		t.Errorf("expected 0 pending calls after resolution, got %d", reg.Pending())
	}
}

func TestBringUp_OneEnsureAndConnectPerCoreService(t *testing.T) {
	preambles := BringUp(42)
	if len(preambles) != len(CoreServices)*2 {
		t.Fatalf("expected %d preambles, got %d", len(CoreServices)*2, len(preambles))
	}
	for i := 0; i < len(preambles); i += 2 {
		if preambles[i].CmdID != CmdEnsureServiceStarted {
			t.Errorf("preamble %d: expected CmdEnsureServiceStarted, got %v", i, preambles[i].CmdID)
		}
		if preambles[i+1].CmdID != CmdConnectToRemoteServer {
			t.Errorf("preamble %d: expected CmdConnectToRemoteServer, got %v", i+1, preambles[i+1].CmdID)
		}
	}
}
