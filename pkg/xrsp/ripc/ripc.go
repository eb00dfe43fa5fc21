// Package ripc implements the runtime RPC layer (§4.7) carried as a
// two-segment message atop TOPIC_RUNTIME_IPC.
package ripc

import (
	"encoding/binary"
	"fmt"
	"sync"
)

// Cmd identifies a RIPC command.
type Cmd uint32

const (
	CmdEnsureServiceStarted Cmd = iota + 1
	CmdConnectToRemoteServer
	CmdRPC
)

// Preamble is segment 1 of a RIPC message.
type Preamble struct {
	CmdID    Cmd
	NextSize uint32
	ClientID uint32
	Unk      uint32
}

// EncodePreamble encodes the fixed 16-byte preamble segment.
func (p Preamble) EncodePreamble() []byte {
	out := make([]byte, 16)
	binary.LittleEndian.PutUint32(out[0:4], uint32(p.CmdID))
	binary.LittleEndian.PutUint32(out[4:8], p.NextSize)
	binary.LittleEndian.PutUint32(out[8:12], p.ClientID)
	binary.LittleEndian.PutUint32(out[12:16], p.Unk)
	return out
}

// ParsePreamble decodes the fixed 16-byte preamble segment.
func ParsePreamble(data []byte) (Preamble, error) {
	if len(data) != 16 {
		return Preamble{}, fmt.Errorf("ripc: preamble must be 16 bytes, got %d", len(data))
	}
	return Preamble{
		CmdID:    Cmd(binary.LittleEndian.Uint32(data[0:4])),
		NextSize: binary.LittleEndian.Uint32(data[4:8]),
		ClientID: binary.LittleEndian.Uint32(data[8:12]),
		Unk:      binary.LittleEndian.Uint32(data[12:16]),
	}, nil
}

// MethodID is the 64-bit identifier for an RPC method: the method hash
// XORed with its return-type hash and argument-list hash (§4.7).
type MethodID uint64

// ComposeMethodID folds the three component hashes into one identifier.
func ComposeMethodID(methodHash, returnHash, argHash uint64) MethodID {
	return MethodID(methodHash ^ returnHash ^ argHash)
}

// pendingKey correlates a reply to the call that requested it.
type pendingKey struct {
	clientID uint32
	cmdID    Cmd
}

// PendingCall is a call awaiting a reply.
type PendingCall struct {
	Method MethodID
	Done   chan []byte
}

// Registry tracks in-flight RIPC calls and the set of services brought up
// at pairing completion.
type Registry struct {
	mu      sync.Mutex
	pending map[pendingKey]*PendingCall
}

// NewRegistry creates an empty pending-call registry.
func NewRegistry() *Registry {
	return &Registry{pending: make(map[pendingKey]*PendingCall)}
}

// Register records a new pending call, returning the channel its reply
// will be delivered on.
func (r *Registry) Register(clientID uint32, cmdID Cmd, method MethodID) *PendingCall {
	r.mu.Lock()
	defer r.mu.Unlock()

	call := &PendingCall{Method: method, Done: make(chan []byte, 1)}
	r.pending[pendingKey{clientID, cmdID}] = call
	return call
}

// Resolve delivers a reply payload to the pending call matching
// (client_id, cmd_id), if any. It reports whether a matching call was
// found.
func (r *Registry) Resolve(clientID uint32, cmdID Cmd, payload []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := pendingKey{clientID, cmdID}
	call, ok := r.pending[key]
	if !ok {
		return false
	}
	delete(r.pending, key)
	call.Done <- payload
	return true
}

// Pending returns the number of calls awaiting a reply, for diagnostics.
func (r *Registry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// CoreServices are always brought up once pairing completes (§4.7).
var CoreServices = []string{"runtime", "body-api", "eye-tracking"}

// BringUp returns the ENSURE_SERVICE_STARTED + CONNECT_TO_REMOTE_SERVER
// preamble pairs needed to start every core service, in order.
func BringUp(clientID uint32) []Preamble {
	out := make([]Preamble, 0, len(CoreServices)*2)
	for range CoreServices {
		out = append(out,
			Preamble{CmdID: CmdEnsureServiceStarted, ClientID: clientID},
			Preamble{CmdID: CmdConnectToRemoteServer, ClientID: clientID},
		)
	}
	return out
}
