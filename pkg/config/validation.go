package config

import "fmt"

// validate validates the configuration.
func validate(cfg *Config) error {
	if cfg.USB.VendorID <= 0 || cfg.USB.VendorID > 0xFFFF {
		return fmt.Errorf("usb.vendor_id must be between 1 and 0xFFFF")
	}
	if cfg.USB.ProductID <= 0 || cfg.USB.ProductID > 0xFFFF {
		return fmt.Errorf("usb.product_id must be between 1 and 0xFFFF")
	}
	if cfg.USB.ResetRetries <= 0 {
		return fmt.Errorf("usb.reset_retries must be positive")
	}

	if cfg.Video.SwapchainDepth <= 0 {
		return fmt.Errorf("video.swapchain_depth must be positive")
	}
	if cfg.Video.SliceCount <= 0 || cfg.Video.SliceCount > 4 {
		return fmt.Errorf("video.slice_count must be between 1 and 4")
	}
	if cfg.Video.Codec != "h264" && cfg.Video.Codec != "hevc" {
		return fmt.Errorf("video.codec must be h264 or hevc")
	}

	if cfg.Echo.PingIntervalMs <= 0 {
		return fmt.Errorf("echo.ping_interval_ms must be positive")
	}

	if cfg.Web.Enabled {
		if cfg.Web.Port <= 0 || cfg.Web.Port > 65535 {
			return fmt.Errorf("web.port must be between 1 and 65535")
		}
	}

	if cfg.MQTT.Enabled {
		if cfg.MQTT.Broker == "" {
			return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
		}
	}

	if cfg.Metrics.Prometheus.Enabled {
		if cfg.Metrics.Prometheus.Port <= 0 || cfg.Metrics.Prometheus.Port > 65535 {
			return fmt.Errorf("metrics.prometheus.port must be between 1 and 65535")
		}
	}

	return nil
}
