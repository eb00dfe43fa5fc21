package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"
)

func TestLoad_UsesDefaults_WhenNoFile(t *testing.T) {
	viper.Reset()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Web.Enabled != true {
		t.Errorf("expected Web.Enabled default true, got %v", cfg.Web.Enabled)
	}
	if cfg.Web.Port != 8080 {
		t.Errorf("expected Web.Port default 8080, got %d", cfg.Web.Port)
	}
	if cfg.Video.SwapchainDepth != 3 {
		t.Errorf("expected Video.SwapchainDepth default 3, got %d", cfg.Video.SwapchainDepth)
	}
	if cfg.Echo.PingIntervalMs != 16 {
		t.Errorf("expected Echo.PingIntervalMs default 16, got %d", cfg.Echo.PingIntervalMs)
	}
	if cfg.Metrics.Prometheus.Port != 9091 {
		t.Errorf("expected Prometheus.Port default 9091, got %d", cfg.Metrics.Prometheus.Port)
	}
}

func TestLoad_ProtocolOverridesWinOverDefaults(t *testing.T) {
	viper.Reset()
	t.Setenv("OVERRIDE_FPS", "72")
	t.Setenv("OVERRIDE_SCALE", "0.5")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Video.OverrideFPS != 72 {
		t.Errorf("expected OverrideFPS 72, got %d", cfg.Video.OverrideFPS)
	}
	if cfg.Video.OverrideScale != 0.5 {
		t.Errorf("expected OverrideScale 0.5, got %v", cfg.Video.OverrideScale)
	}
	os.Unsetenv("OVERRIDE_FPS")
	os.Unsetenv("OVERRIDE_SCALE")
}

func TestValidate_Errors(t *testing.T) {
	t.Run("invalid slice count", func(t *testing.T) {
		cfg := &Config{
			USB:   USBConfig{VendorID: 1, ProductID: 1, ResetRetries: 1},
			Video: VideoConfig{SwapchainDepth: 3, SliceCount: 5, Codec: "h264"},
			Echo:  EchoConfig{PingIntervalMs: 1},
		}
		if err := validate(cfg); err == nil {
			t.Fatal("expected error for slice_count out of range")
		}
	})

	t.Run("invalid web port when enabled", func(t *testing.T) {
		cfg := &Config{
			USB:   USBConfig{VendorID: 1, ProductID: 1, ResetRetries: 1},
			Video: VideoConfig{SwapchainDepth: 3, SliceCount: 1, Codec: "h264"},
			Echo:  EchoConfig{PingIntervalMs: 1},
			Web:   WebConfig{Enabled: true, Port: 70000},
		}
		if err := validate(cfg); err == nil {
			t.Fatal("expected error for invalid web.port out of range")
		}
	})

	t.Run("mqtt enabled without broker", func(t *testing.T) {
		cfg := &Config{
			USB:   USBConfig{VendorID: 1, ProductID: 1, ResetRetries: 1},
			Video: VideoConfig{SwapchainDepth: 3, SliceCount: 1, Codec: "h264"},
			Echo:  EchoConfig{PingIntervalMs: 1},
			MQTT:  MQTTConfig{Enabled: true},
		}
		if err := validate(cfg); err == nil {
			t.Fatal("expected error for mqtt enabled without broker")
		}
	})
}
