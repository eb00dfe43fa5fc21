package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/viper"
)

// Config represents the xrsp-host engine's configuration.
type Config struct {
	USB     USBConfig     `mapstructure:"usb"`
	Video   VideoConfig   `mapstructure:"video"`
	Echo    EchoConfig    `mapstructure:"echo"`
	Web     WebConfig     `mapstructure:"web"`
	MQTT    MQTTConfig    `mapstructure:"mqtt"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// USBConfig identifies the headset's USB interface and the transport's
// reconnect policy.
type USBConfig struct {
	VendorID       int `mapstructure:"vendor_id"`
	ProductID      int `mapstructure:"product_id"`
	Interface      int `mapstructure:"interface"`
	ResetRetries   int `mapstructure:"reset_retries"`
	ResetDelayMs   int `mapstructure:"reset_delay_ms"`
	ReadTimeoutMs  int `mapstructure:"read_timeout_ms"`
	StallTimeoutMs int `mapstructure:"stall_timeout_ms"`
}

// VideoConfig configures the slice/swapchain pipeline shape. Depth is fixed
// at 3 per spec §3 but is still exposed for tests.
type VideoConfig struct {
	SwapchainDepth int    `mapstructure:"swapchain_depth"`
	SliceCount     int    `mapstructure:"slice_count"`
	Codec          string `mapstructure:"codec"` // "h264" or "hevc"
	OverrideFPS    int    `mapstructure:"override_fps"`
	OverrideWidth  int    `mapstructure:"override_fb_w"`
	OverrideHeight int    `mapstructure:"override_fb_h"`
	OverrideScale  float64 `mapstructure:"override_scale"`
}

// EchoConfig configures the ping/pong clock sync cadence.
type EchoConfig struct {
	PingIntervalMs int `mapstructure:"ping_interval_ms"`
}

// WebConfig holds the status dashboard configuration.
type WebConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
}

// MQTTConfig holds session-eventing publisher configuration.
type MQTTConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Broker      string `mapstructure:"broker"`
	TopicPrefix string `mapstructure:"topic_prefix"`
	ClientID    string `mapstructure:"client_id"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	QoS         byte   `mapstructure:"qos"`
	Retained    bool   `mapstructure:"retained"`
}

// LoggingConfig holds logger configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig holds metrics export configuration.
type MetricsConfig struct {
	Enabled    bool             `mapstructure:"enabled"`
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

// PrometheusConfig holds Prometheus text-exporter configuration.
type PrometheusConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// Load loads configuration from file, environment variables, and finally the
// four spec-mandated override variables (which win over everything else,
// matching the wire protocol's own historical env var names).
func Load(configFile string) (*Config, error) {
	setDefaults()

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./configs")
		viper.AddConfigPath("/etc/xrsp-host")
	}

	viper.SetEnvPrefix("XRSP")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// No config file is fine, defaults + env apply.
		} else if os.IsNotExist(err) {
			// Explicit file missing is also fine.
		} else {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyProtocolOverrides(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// applyProtocolOverrides layers the four spec §6 environment variables on
// top of whatever viper/defaults produced. These are read unprefixed
// because they're part of the wire protocol's external contract, not this
// engine's own config namespace.
func applyProtocolOverrides(cfg *Config) {
	if v, ok := os.LookupEnv("OVERRIDE_FPS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Video.OverrideFPS = n
		}
	}
	if v, ok := os.LookupEnv("OVERRIDE_FB_W"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Video.OverrideWidth = n
		}
	}
	if v, ok := os.LookupEnv("OVERRIDE_FB_H"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Video.OverrideHeight = n
		}
	}
	if v, ok := os.LookupEnv("OVERRIDE_SCALE"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Video.OverrideScale = f
		}
	}
}

func setDefaults() {
	viper.SetDefault("usb.vendor_id", 0x2833) // Meta/Oculus VID used by the reference hardware
	viper.SetDefault("usb.product_id", 0x0186)
	viper.SetDefault("usb.interface", 0)
	viper.SetDefault("usb.reset_retries", 10)
	viper.SetDefault("usb.reset_delay_ms", 500)
	viper.SetDefault("usb.read_timeout_ms", 1)
	viper.SetDefault("usb.stall_timeout_ms", 1000)

	viper.SetDefault("video.swapchain_depth", 3)
	viper.SetDefault("video.slice_count", 2)
	viper.SetDefault("video.codec", "h264")
	viper.SetDefault("video.override_scale", 1.0)

	viper.SetDefault("echo.ping_interval_ms", 16)

	viper.SetDefault("web.enabled", true)
	viper.SetDefault("web.host", "0.0.0.0")
	viper.SetDefault("web.port", 8080)

	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.topic_prefix", "xrsp/host")
	viper.SetDefault("mqtt.client_id", "xrsp-host")
	viper.SetDefault("mqtt.qos", 1)
	viper.SetDefault("mqtt.retained", false)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")

	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.prometheus.enabled", true)
	viper.SetDefault("metrics.prometheus.port", 9091)
	viper.SetDefault("metrics.prometheus.path", "/metrics")
}
