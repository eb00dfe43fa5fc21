package main

import (
	"github.com/xrsp-project/xrsp-host/pkg/xrsp/handshake"
	"github.com/xrsp-project/xrsp-host/pkg/xrsp/host"
	"github.com/xrsp-project/xrsp-host/pkg/xrsp/video"
)

// staticHmdSource is a placeholder video.HmdSource: it reports an
// identity pose and a fixed display profile rather than querying a real
// compositor. The Vulkan swapchain and the device's actual pose tracker
// are external collaborators (§6, §9) this engine is not responsible for
// implementing; a real build replaces this with an adapter around that
// runtime.
type staticHmdSource struct {
	deviceType handshake.DeviceType
	profile    host.DisplayProfile
}

func newStaticHmdSource(dt handshake.DeviceType, profile host.DisplayProfile) *staticHmdSource {
	return &staticHmdSource{deviceType: dt, profile: profile}
}

func (s *staticHmdSource) GetPose(targetNs int64) video.Pose {
	return video.Pose{Quat: [4]float64{0, 0, 0, 1}}
}

func (s *staticHmdSource) DeviceType() int        { return int(s.deviceType) }
func (s *staticHmdSource) FPS() int                { return s.profile.FPS }
func (s *staticHmdSource) EncodeWidth() int        { return s.profile.Width }
func (s *staticHmdSource) EncodeHeight() int       { return s.profile.Height }
func (s *staticHmdSource) RectifyMeshID() uint32   { return 1 }
