package web

import (
	"encoding/json"
	"net/http"

	"github.com/xrsp-project/xrsp-host/pkg/logger"
	"github.com/xrsp-project/xrsp-host/pkg/xrsp/video"
)

// API handles REST API endpoints for the read-only status dashboard.
type API struct {
	logger  *logger.Logger
	session SessionProvider
	frames  *video.FrameLog
}

// NewAPI creates a new API instance.
func NewAPI(log *logger.Logger) *API {
	return &API{logger: log}
}

// SetDeps provides runtime dependencies to the API after construction.
func (a *API) SetDeps(session SessionProvider, frames *video.FrameLog) {
	a.session = session
	a.frames = frames
}

// SessionDTO is the dashboard's view of the engine's session state.
type SessionDTO struct {
	State            string `json:"state"`
	DeviceType       string `json:"device_type"`
	PairedSince      int64  `json:"paired_since,omitempty"`
	ClockOffsetNs    int64  `json:"clock_offset_ns"`
	ClockEstablished bool   `json:"clock_established"`
	BytesRx          uint64 `json:"bytes_rx"`
	BytesTx          uint64 `json:"bytes_tx"`
	FramesRx         uint64 `json:"frames_rx"`
	FramesTx         uint64 `json:"frames_tx"`
	FramesDropped    uint64 `json:"frames_dropped"`
	PairingResets    uint64 `json:"pairing_resets"`
	PendingRIPC      int    `json:"pending_ripc"`
	SlowLink         bool   `json:"slow_link"`
}

// FrameDTO is the dashboard's view of one recently transmitted frame.
type FrameDTO struct {
	FrameIdx   uint32 `json:"frame_idx"`
	Slices     int    `json:"slices"`
	Bytes      int    `json:"bytes"`
	Keyframe   bool   `json:"keyframe"`
	DurationMs int64  `json:"duration_ms"`
}

// HandleStatus handles the /api/status endpoint: a fixed service identity
// banner, independent of whether a session is currently active.
func (a *API) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	version, commit, build := GetVersionInfo()
	response := map[string]interface{}{
		"status":  "running",
		"service": "xrsp-host",
		"version": version,
		"commit":  commit,
		"build":   build,
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		a.logger.Error("failed to encode status response", logger.Error(err))
	}
}

// HandleSession handles the /api/session endpoint.
func (a *API) HandleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if a.session == nil {
		if err := json.NewEncoder(w).Encode(SessionDTO{State: "WAIT_FIRST"}); err != nil {
			a.logger.Error("failed to encode session response", logger.Error(err))
		}
		return
	}

	snap := a.session.Snapshot()
	dto := SessionDTO{
		State:            snap.State,
		DeviceType:       snap.DeviceType.String(),
		ClockOffsetNs:    snap.ClockOffsetNs,
		ClockEstablished: snap.ClockEstablished,
		BytesRx:          snap.BytesRx,
		BytesTx:          snap.BytesTx,
		FramesRx:         snap.FramesRx,
		FramesTx:         snap.FramesTx,
		FramesDropped:    snap.FramesDropped,
		PairingResets:    snap.PairingResets,
		PendingRIPC:      snap.PendingRIPC,
		SlowLink:         snap.SlowLink,
	}
	if !snap.PairedSince.IsZero() {
		dto.PairedSince = snap.PairedSince.Unix()
	}

	if err := json.NewEncoder(w).Encode(dto); err != nil {
		a.logger.Error("failed to encode session response", logger.Error(err))
	}
}

// HandleFrames handles the /api/frames endpoint: the recent frame
// transmission log kept by the video pipeline.
func (a *API) HandleFrames(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if a.frames == nil {
		if err := json.NewEncoder(w).Encode([]FrameDTO{}); err != nil {
			a.logger.Error("failed to encode frames response", logger.Error(err))
		}
		return
	}

	recent := a.frames.Recent()
	dtos := make([]FrameDTO, 0, len(recent))
	for _, rec := range recent {
		dtos = append(dtos, FrameDTO{
			FrameIdx:   rec.FrameIdx,
			Slices:     rec.Slices,
			Bytes:      rec.Bytes,
			Keyframe:   rec.Keyframe,
			DurationMs: rec.Duration().Milliseconds(),
		})
	}

	if err := json.NewEncoder(w).Encode(dtos); err != nil {
		a.logger.Error("failed to encode frames response", logger.Error(err))
	}
}
