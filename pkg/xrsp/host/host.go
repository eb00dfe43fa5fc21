// Package host assembles the per-session XRSP engine: the pairing FSM,
// clock sync, topic framer, video pipeline, and RIPC registry behind one
// mutex-guarded session struct, plus the reader/writer goroutines and
// topic dispatcher that drive them over a USB transport (§3).
package host

import (
	"sync"
	"time"

	"github.com/xrsp-project/xrsp-host/pkg/config"
	"github.com/xrsp-project/xrsp-host/pkg/logger"
	"github.com/xrsp-project/xrsp-host/pkg/xrsp/echo"
	"github.com/xrsp-project/xrsp-host/pkg/xrsp/handshake"
	"github.com/xrsp-project/xrsp-host/pkg/xrsp/ripc"
	"github.com/xrsp-project/xrsp-host/pkg/xrsp/video"
	"github.com/xrsp-project/xrsp-host/pkg/xrsp/wire"
)

// Transport is the USB surface the host needs; pkg/usbtransport.Transport
// satisfies it.
type Transport interface {
	wire.Transport
	Recv(buf []byte, deadline time.Duration) (int, error)
	Valid() bool
	Invalidate()
	Reset() error
	IsSlowLink() bool
}

// Session is one paired (or pairing) headset connection: the pairing
// state, the clock offset estimate, and the running byte/frame counters.
// It follows the same mutex-guarded-struct-with-Snapshot shape as a
// connected peer, since a headset session plays the same role here that a
// connected repeater peer plays in a relay: one piece of shared state
// touched by a reader goroutine, a writer goroutine, and status queries.
type Session struct {
	mu sync.RWMutex

	device      handshake.DeviceInfo
	pairedSince time.Time

	bytesRx, bytesTx     uint64
	framesRx, framesTx   uint64
	framesDropped        uint64
	pairingResets        uint64
}

func newSession() *Session {
	return &Session{}
}

// Snapshot is a read-only view of the session suitable for the status
// dashboard and metrics export.
type Snapshot struct {
	State          string
	DeviceType     handshake.DeviceType
	PairedSince    time.Time
	ClockOffsetNs  int64
	ClockEstablished bool
	BytesRx, BytesTx uint64
	FramesRx, FramesTx uint64
	FramesDropped  uint64
	PairingResets  uint64
	PendingRIPC    int
	SlowLink       bool
}

func (s *Session) markPaired() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pairedSince = time.Now()
}

func (s *Session) setDevice(d handshake.DeviceInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.device = d
}

func (s *Session) deviceType() handshake.DeviceType {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.device.DeviceType
}

func (s *Session) addBytesRx(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bytesRx += uint64(n)
}

func (s *Session) addBytesTx(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bytesTx += uint64(n)
}

func (s *Session) incFramesRx() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.framesRx++
}

func (s *Session) incFramesTx() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.framesTx++
}

func (s *Session) incFramesDropped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.framesDropped++
}

func (s *Session) incPairingResets() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pairingResets++
}

// Host is the engine for a single headset: one USB transport, one framer,
// one pairing FSM, one echo clock, one RIPC registry, and the D×S video
// pipeline. There is exactly one Host per running process (§3: the engine
// manages one session at a time).
type Host struct {
	log *logger.Logger

	transport Transport
	framer    *wire.Framer
	fsm       *handshake.FSM
	clock     *echo.Clock
	ripcReg   *ripc.Registry
	watchdog  *StallWatchdog
	pipeline  *video.Pipeline

	session *Session

	clientID uint32

	videoCfg           config.VideoConfig
	pipelineSliceCount int
	codec              handshake.Codec

	readTimeout time.Duration

	hooks Hooks
}

// Hooks are optional observers a caller can wire in to mirror session
// events into metrics, MQTT, and the frame transmission log without the
// host package importing any of them directly. Every field is safe to
// leave nil.
type Hooks struct {
	OnSlice             func(frameIdx uint32, sliceBytes int, keyframe, last bool)
	OnPairingTransition func(state string, deviceType string)
	OnDisconnect        func(reason string)
	OnClockSync         func(established bool, offsetNs int64)
}

// Config bundles the collaborators a Host needs to assemble; its fields
// are built from the loaded configuration plus an HmdSource adapter that
// supplies poses and display configuration; the video encoder itself
// feeds the host through EncoderSink.
type Config struct {
	Transport    Transport
	HMD          video.HmdSource
	Video        config.VideoConfig
	PingInterval time.Duration
	StallTimeout time.Duration
	ReadTimeout  time.Duration
	Hooks        Hooks
}

// New wires together a Host's collaborators. It does not start any
// goroutines; call Run to start the reader/writer loops.
func New(log *logger.Logger, cfg Config) *Host {
	codec := handshake.CodecH264
	if cfg.Video.Codec == "hevc" {
		codec = handshake.CodecHEVC
	}

	h := &Host{
		log:                log.WithComponent("host"),
		transport:          cfg.Transport,
		fsm:                handshake.NewFSM(),
		clock:              echo.New(func() int64 { return time.Now().UnixNano() }, cfg.PingInterval),
		ripcReg:            ripc.NewRegistry(),
		session:            newSession(),
		clientID:           1,
		videoCfg:           cfg.Video,
		pipelineSliceCount: cfg.Video.SliceCount,
		codec:              codec,
		readTimeout:        cfg.ReadTimeout,
		hooks:              cfg.Hooks,
	}
	h.framer = wire.New(log, cfg.Transport)
	h.pipeline = video.NewPipeline(cfg.Video.SwapchainDepth, cfg.Video.SliceCount, cfg.HMD, h.clock, func() int64 { return time.Now().UnixNano() })
	h.watchdog = NewStallWatchdog(cfg.StallTimeout, h.onStall)
	return h
}

// onStall implements §5's cancellation policy: an armed watchdog that
// fires means no inbound bytes arrived within the timeout. If the
// transport itself has gone bad, reopen it; otherwise send BYE. In both
// cases the pairing state resets to WAIT_FIRST so a fresh INVITE can
// restart it, and the video pipeline is drained.
func (h *Host) onStall() {
	h.log.Warn("stall watchdog fired")
	reason := "usb_reset"
	if !h.transport.Valid() {
		if err := h.transport.Reset(); err != nil {
			h.log.Error("usb reset failed", logger.Error(err))
		}
	} else {
		reason = "stall"
		h.send(TopicHostinfoAdv, tagged(tagBye, nil))
	}
	h.fsm.Reset()
	h.pipeline.Reset()
	h.session.incPairingResets()
	if h.hooks.OnDisconnect != nil {
		h.hooks.OnDisconnect(reason)
	}
}

// EncoderSink is the push surface an external video encoder drives (§9):
// start_encode/send_csd/send_idr/flush_stream against one swapchain slot
// and slice. *video.Pipeline satisfies this directly.
type EncoderSink interface {
	StartEncode(index, slice int, targetNs int64)
	SendCSD(index, slice int, data []byte)
	SendIDR(index, slice int, data []byte)
	FlushStream(index, slice int, targetNs int64)
}

// EncoderSink returns the push surface the external encoder feeds CSD/IDR
// into. The writer goroutine drains whatever lands here and ships it out
// over the slice topics.
func (h *Host) EncoderSink() EncoderSink {
	return h.pipeline
}

// Snapshot returns a consistent read-only view of the session's state.
func (h *Host) Snapshot() Snapshot {
	h.session.mu.RLock()
	defer h.session.mu.RUnlock()

	snap := Snapshot{
		State:            h.fsm.State().String(),
		DeviceType:       h.session.device.DeviceType,
		PairedSince:      h.session.pairedSince,
		ClockOffsetNs:    h.clock.Offset(),
		ClockEstablished: h.clock.Established(),
		BytesRx:          h.session.bytesRx,
		BytesTx:          h.session.bytesTx,
		FramesRx:         h.session.framesRx,
		FramesTx:         h.session.framesTx,
		FramesDropped:    h.session.framesDropped,
		PairingResets:    h.session.pairingResets,
		PendingRIPC:      h.ripcReg.Pending(),
		SlowLink:         h.transport.IsSlowLink(),
	}
	return snap
}
