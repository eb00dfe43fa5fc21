package host

import (
	"github.com/xrsp-project/xrsp-host/pkg/config"
	"github.com/xrsp-project/xrsp-host/pkg/xrsp/handshake"
)

// DisplayProfile is the resolved per-device encode target: the frame rate
// and framebuffer dimensions that drive the OK(second) payload and the
// HmdSource adapter, after applying any configured overrides (§6).
type DisplayProfile struct {
	FPS    int
	Width  int
	Height int
	Scale  float64
}

// defaultResolution gives a conservative per-device base resolution; the
// spec leaves the exact panel resolution to the device descriptor, so
// these are starting points a real capture's FOV/resolution update (if
// ever parsed) or an explicit override replaces.
func defaultResolution(dt handshake.DeviceType) (w, h int) {
	switch dt {
	case handshake.DeviceQuest2:
		return 1832, 1920
	case handshake.DeviceQuestPro:
		return 1800, 1920
	case handshake.DeviceQuest3:
		return 2064, 2208
	default:
		return 1600, 1600
	}
}

// ResolveDisplayProfile computes the FPS/resolution the host will target
// for device, honoring §6's four override environment variables (wired
// through VideoConfig) over the per-device defaults.
func ResolveDisplayProfile(dt handshake.DeviceType, slowLink bool, cfg config.VideoConfig) DisplayProfile {
	fps := handshake.DefaultFPS(dt, slowLink)
	if cfg.OverrideFPS > 0 {
		fps = cfg.OverrideFPS
	}

	w, h := defaultResolution(dt)
	if slowLink {
		w /= 2
		h /= 2
	}
	if cfg.OverrideWidth > 0 {
		w = cfg.OverrideWidth
	}
	if cfg.OverrideHeight > 0 {
		h = cfg.OverrideHeight
	}

	scale := cfg.OverrideScale
	if scale <= 0 {
		scale = 1.0
	}

	return DisplayProfile{
		FPS:    fps,
		Width:  int(float64(w) * scale),
		Height: int(float64(h) * scale),
		Scale:  scale,
	}
}
