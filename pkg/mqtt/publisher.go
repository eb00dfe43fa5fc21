package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/xrsp-project/xrsp-host/pkg/logger"
)

// Config holds MQTT publisher configuration.
type Config struct {
	Enabled     bool
	Broker      string
	TopicPrefix string
	ClientID    string
	Username    string
	Password    string
	QoS         byte
	Retained    bool
}

// Publisher handles MQTT event publishing for session lifecycle events.
type Publisher struct {
	config Config
	log    *logger.Logger
}

// Event types for MQTT publishing.

// PairingEvent represents a pairing state transition (§4.5).
type PairingEvent struct {
	State      string    `json:"state"` // WAIT_FIRST, WAIT_SECOND, PAIRING, PAIRED
	DeviceType string    `json:"device_type,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// DisconnectEvent represents the session regressing out of PAIRED: a BYE,
// a USB transport reset, or a stall watchdog firing.
type DisconnectEvent struct {
	Reason    string    `json:"reason"` // "bye", "usb_reset", "stall"
	Timestamp time.Time `json:"timestamp"`
}

// FirstKeyframeEvent represents the video pipeline emitting its first
// keyframe after pairing (§4.8's keyframe-first rule).
type FirstKeyframeEvent struct {
	FrameIdx  uint32    `json:"frame_idx"`
	Timestamp time.Time `json:"timestamp"`
}

// ClockSyncEvent represents the echo clock reaching (or losing) an
// established offset estimate (§4.4).
type ClockSyncEvent struct {
	Established bool      `json:"established"`
	OffsetNs    int64     `json:"offset_ns"`
	Timestamp   time.Time `json:"timestamp"`
}

// New creates a new MQTT publisher.
func New(config Config, log *logger.Logger) *Publisher {
	if log == nil {
		log = logger.New(logger.Config{Level: "info", Format: "text"})
	}

	return &Publisher{
		config: config,
		log:    log.WithComponent("mqtt"),
	}
}

// Start starts the MQTT publisher.
func (p *Publisher) Start(ctx context.Context) error {
	if !p.config.Enabled {
		p.log.Info("mqtt publisher disabled")
		return nil
	}

	p.log.Info("starting mqtt publisher",
		logger.String("broker", p.config.Broker),
		logger.String("client_id", p.config.ClientID))

	// TODO: dial the broker once paho.mqtt is wired in; until then this is
	// a no-op stub that lets the engine start without a broker present.
	p.log.Warn("mqtt connection not yet implemented - events will not be published")

	return nil
}

// Stop stops the MQTT publisher.
func (p *Publisher) Stop() {
	if !p.config.Enabled {
		return
	}

	p.log.Info("stopping mqtt publisher")
	// TODO: disconnect the MQTT client once Start dials a real broker.
}

// PublishPairingTransition publishes a pairing state transition event.
func (p *Publisher) PublishPairingTransition(event PairingEvent) error {
	if !p.config.Enabled {
		return nil
	}
	return p.publish(p.formatTopic("session/pairing"), event)
}

// PublishDisconnect publishes a session disconnect/regression event.
func (p *Publisher) PublishDisconnect(event DisconnectEvent) error {
	if !p.config.Enabled {
		return nil
	}
	return p.publish(p.formatTopic("session/disconnect"), event)
}

// PublishFirstKeyframe publishes the first-keyframe-sent event.
func (p *Publisher) PublishFirstKeyframe(event FirstKeyframeEvent) error {
	if !p.config.Enabled {
		return nil
	}
	return p.publish(p.formatTopic("video/first_keyframe"), event)
}

// PublishClockSync publishes a clock sync state change.
func (p *Publisher) PublishClockSync(event ClockSyncEvent) error {
	if !p.config.Enabled {
		return nil
	}
	return p.publish(p.formatTopic("session/clock_sync"), event)
}

// publish publishes an event to a topic.
func (p *Publisher) publish(topic string, event interface{}) error {
	payload, err := p.serializeEvent(event)
	if err != nil {
		p.log.Error("failed to serialize event",
			logger.String("topic", topic),
			logger.Error(err))
		return err
	}

	// TODO: publish over the real MQTT connection once Start dials one.
	p.log.Debug("would publish mqtt event",
		logger.String("topic", topic),
		logger.Int("payload_size", len(payload)))

	return nil
}

// serializeEvent serializes an event to JSON.
func (p *Publisher) serializeEvent(event interface{}) ([]byte, error) {
	return json.Marshal(event)
}

// formatTopic formats a topic with the configured prefix.
func (p *Publisher) formatTopic(suffix string) string {
	prefix := strings.TrimSuffix(p.config.TopicPrefix, "/")
	if prefix == "" {
		return suffix
	}
	return fmt.Sprintf("%s/%s", prefix, suffix)
}
