package metrics

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/xrsp-project/xrsp-host/pkg/logger"
)

// PrometheusConfig holds Prometheus server configuration.
type PrometheusConfig struct {
	Enabled bool
	Port    int
	Path    string
}

// PrometheusHandler handles Prometheus metrics HTTP requests.
type PrometheusHandler struct {
	collector *Collector
}

// NewPrometheusHandler creates a new Prometheus handler.
func NewPrometheusHandler(collector *Collector) *PrometheusHandler {
	return &PrometheusHandler{
		collector: collector,
	}
}

// ServeHTTP handles HTTP requests for metrics.
func (h *PrometheusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	var output strings.Builder

	output.WriteString("# HELP xrsp_packets_received_total Total reassembled topic frames received\n")
	output.WriteString("# TYPE xrsp_packets_received_total counter\n")
	output.WriteString(fmt.Sprintf("xrsp_packets_received_total %d\n", h.collector.GetPacketsReceived()))

	output.WriteString("# HELP xrsp_packets_sent_total Total topic frames sent\n")
	output.WriteString("# TYPE xrsp_packets_sent_total counter\n")
	output.WriteString(fmt.Sprintf("xrsp_packets_sent_total %d\n", h.collector.GetPacketsSent()))

	output.WriteString("# HELP xrsp_bytes_received_total Total bytes received over USB\n")
	output.WriteString("# TYPE xrsp_bytes_received_total counter\n")
	output.WriteString(fmt.Sprintf("xrsp_bytes_received_total %d\n", h.collector.GetBytesReceived()))

	output.WriteString("# HELP xrsp_bytes_sent_total Total bytes sent over USB\n")
	output.WriteString("# TYPE xrsp_bytes_sent_total counter\n")
	output.WriteString(fmt.Sprintf("xrsp_bytes_sent_total %d\n", h.collector.GetBytesSent()))

	output.WriteString("# HELP xrsp_usb_resets_total Total USB transport reopen events\n")
	output.WriteString("# TYPE xrsp_usb_resets_total counter\n")
	output.WriteString(fmt.Sprintf("xrsp_usb_resets_total %d\n", h.collector.GetUSBResets()))

	output.WriteString("# HELP xrsp_pairing_attempts_total Total INVITE-driven pairing rounds started\n")
	output.WriteString("# TYPE xrsp_pairing_attempts_total counter\n")
	output.WriteString(fmt.Sprintf("xrsp_pairing_attempts_total %d\n", h.collector.GetPairingAttempts()))

	output.WriteString("# HELP xrsp_pairing_success_total Total times the session reached PAIRED\n")
	output.WriteString("# TYPE xrsp_pairing_success_total counter\n")
	output.WriteString(fmt.Sprintf("xrsp_pairing_success_total %d\n", h.collector.GetPairingSuccess()))

	output.WriteString("# HELP xrsp_pairing_resets_total Total times the session regressed out of PAIRED\n")
	output.WriteString("# TYPE xrsp_pairing_resets_total counter\n")
	output.WriteString(fmt.Sprintf("xrsp_pairing_resets_total %d\n", h.collector.GetPairingResets()))

	output.WriteString("# HELP xrsp_paired Whether the session is currently paired\n")
	output.WriteString("# TYPE xrsp_paired gauge\n")
	output.WriteString(fmt.Sprintf("xrsp_paired %d\n", boolToInt(h.collector.IsPaired())))

	output.WriteString("# HELP xrsp_clock_offset_ns Current estimated clock offset to the device, nanoseconds\n")
	output.WriteString("# TYPE xrsp_clock_offset_ns gauge\n")
	output.WriteString(fmt.Sprintf("xrsp_clock_offset_ns %d\n", h.collector.GetClockOffsetNs()))

	output.WriteString("# HELP xrsp_clock_established Whether the clock offset estimate is established\n")
	output.WriteString("# TYPE xrsp_clock_established gauge\n")
	output.WriteString(fmt.Sprintf("xrsp_clock_established %d\n", boolToInt(h.collector.IsClockEstablished())))

	output.WriteString("# HELP xrsp_echo_round_trips_total Total completed ping/pong clock sync rounds\n")
	output.WriteString("# TYPE xrsp_echo_round_trips_total counter\n")
	output.WriteString(fmt.Sprintf("xrsp_echo_round_trips_total %d\n", h.collector.GetEchoRoundTrips()))

	output.WriteString("# HELP xrsp_frames_sent_total Total video frames transmitted\n")
	output.WriteString("# TYPE xrsp_frames_sent_total counter\n")
	output.WriteString(fmt.Sprintf("xrsp_frames_sent_total %d\n", h.collector.GetFramesSent()))

	output.WriteString("# HELP xrsp_keyframes_sent_total Total keyframes transmitted\n")
	output.WriteString("# TYPE xrsp_keyframes_sent_total counter\n")
	output.WriteString(fmt.Sprintf("xrsp_keyframes_sent_total %d\n", h.collector.GetKeyframesSent()))

	output.WriteString("# HELP xrsp_frames_dropped_total Total video frames dropped before transmission\n")
	output.WriteString("# TYPE xrsp_frames_dropped_total counter\n")
	output.WriteString(fmt.Sprintf("xrsp_frames_dropped_total %d\n", h.collector.GetFramesDropped()))

	output.WriteString("# HELP xrsp_pipeline_stalls_total Total stall watchdog firings\n")
	output.WriteString("# TYPE xrsp_pipeline_stalls_total counter\n")
	output.WriteString(fmt.Sprintf("xrsp_pipeline_stalls_total %d\n", h.collector.GetPipelineStalls()))

	w.Write([]byte(output.String()))
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// PrometheusServer is an HTTP server for Prometheus metrics.
type PrometheusServer struct {
	config    PrometheusConfig
	collector *Collector
	log       *logger.Logger
	server    *http.Server
}

// NewPrometheusServer creates a new Prometheus metrics server.
func NewPrometheusServer(config PrometheusConfig, collector *Collector, log *logger.Logger) *PrometheusServer {
	if log == nil {
		log = logger.New(logger.Config{Level: "info", Format: "text"})
	}

	return &PrometheusServer{
		config:    config,
		collector: collector,
		log:       log.WithComponent("metrics"),
	}
}

// Start starts the Prometheus metrics server, blocking until ctx is
// cancelled or the server fails.
func (s *PrometheusServer) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.log.Info("prometheus metrics server disabled")
		return nil
	}

	handler := NewPrometheusHandler(s.collector)
	mux := http.NewServeMux()
	mux.Handle(s.config.Path, handler)

	addr := fmt.Sprintf(":%d", s.config.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	actualPort := listener.Addr().(*net.TCPAddr).Port

	s.server = &http.Server{
		Handler: mux,
	}

	s.log.Info("starting prometheus metrics server",
		logger.Int("port", actualPort),
		logger.String("path", s.config.Path))

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.log.Info("shutting down prometheus metrics server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("metrics server shutdown error: %w", err)
		}
		return ctx.Err()
	case err := <-errChan:
		return err
	}
}

// Stop stops the Prometheus metrics server.
func (s *PrometheusServer) Stop() {
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(ctx)
	}
}
