package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/xrsp-project/xrsp-host/pkg/config"
	"github.com/xrsp-project/xrsp-host/pkg/logger"
	"github.com/xrsp-project/xrsp-host/pkg/metrics"
	"github.com/xrsp-project/xrsp-host/pkg/mqtt"
	"github.com/xrsp-project/xrsp-host/pkg/usbtransport"
	"github.com/xrsp-project/xrsp-host/pkg/web"
	"github.com/xrsp-project/xrsp-host/pkg/xrsp/handshake"
	"github.com/xrsp-project/xrsp-host/pkg/xrsp/host"
	"github.com/xrsp-project/xrsp-host/pkg/xrsp/video"
)

var (
	version   = "dev"
	gitCommit = "unknown"
	buildTime = "unknown"
)

func main() {
	configFile := flag.String("config", "config.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	validate := flag.Bool("validate", false, "Validate configuration and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("xrsp-host %s\n", version)
		fmt.Printf("Git Commit: %s\n", gitCommit)
		fmt.Printf("Built: %s\n", buildTime)
		os.Exit(0)
	}

	log := logger.New(logger.Config{
		Level:  "info",
		Format: "text",
	})

	log.Info("Starting xrsp-host",
		logger.String("version", version),
		logger.String("commit", gitCommit),
		logger.String("build_time", buildTime))

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Error("Failed to load configuration", logger.Error(err))
		os.Exit(1)
	}

	if *validate {
		log.Info("Configuration is valid")
		os.Exit(0)
	}

	log.Info("Configuration loaded successfully",
		logger.String("config_file", *configFile))

	log = logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	log.Debug("Debug logging enabled")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var wg sync.WaitGroup

	metricsCollector := metrics.NewCollector()
	web.SetVersionInfo(version, gitCommit, buildTime)

	if cfg.Metrics.Enabled && cfg.Metrics.Prometheus.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			metricsServer := metrics.NewPrometheusServer(
				metrics.PrometheusConfig{
					Enabled: cfg.Metrics.Prometheus.Enabled,
					Port:    cfg.Metrics.Prometheus.Port,
					Path:    cfg.Metrics.Prometheus.Path,
				},
				metricsCollector,
				log.WithComponent("metrics"),
			)
			if err := metricsServer.Start(ctx); err != nil && err != context.Canceled {
				log.Error("Prometheus metrics server error", logger.Error(err))
			}
		}()
		log.Info("Prometheus metrics server started",
			logger.Int("port", cfg.Metrics.Prometheus.Port),
			logger.String("path", cfg.Metrics.Prometheus.Path))
	}

	var mqttPublisher *mqtt.Publisher
	if cfg.MQTT.Enabled {
		mqttPublisher = mqtt.New(
			mqtt.Config{
				Enabled:     cfg.MQTT.Enabled,
				Broker:      cfg.MQTT.Broker,
				TopicPrefix: cfg.MQTT.TopicPrefix,
				ClientID:    cfg.MQTT.ClientID,
				Username:    cfg.MQTT.Username,
				Password:    cfg.MQTT.Password,
				QoS:         cfg.MQTT.QoS,
				Retained:    cfg.MQTT.Retained,
			},
			log.WithComponent("mqtt"),
		)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := mqttPublisher.Start(ctx); err != nil && err != context.Canceled {
				log.Error("MQTT publisher error", logger.Error(err))
			}
		}()
		log.Info("MQTT publisher started",
			logger.String("broker", cfg.MQTT.Broker),
			logger.String("topic_prefix", cfg.MQTT.TopicPrefix))
	}

	frameLog := video.NewFrameLog(256, log.WithComponent("framelog"))

	transport := usbtransport.New(log.WithComponent("usb"), usbtransport.Config{
		VendorID:     cfg.USB.VendorID,
		ProductID:    cfg.USB.ProductID,
		Interface:    cfg.USB.Interface,
		ResetRetries: cfg.USB.ResetRetries,
		ResetDelay:   time.Duration(cfg.USB.ResetDelayMs) * time.Millisecond,
	})
	if err := transport.Open(); err != nil {
		log.Error("Failed to open USB transport", logger.Error(err))
		os.Exit(1)
	}
	defer transport.Close()

	profile := host.ResolveDisplayProfile(handshake.DeviceUnknown, transport.IsSlowLink(), cfg.Video)
	hmd := newStaticHmdSource(handshake.DeviceUnknown, profile)

	firstKeyframeSent := false
	var firstKeyframeMu sync.Mutex

	hooks := host.Hooks{
		OnSlice: func(frameIdx uint32, sliceBytes int, keyframe, last bool) {
			frameLog.RecordSlice(frameIdx, sliceBytes, keyframe, last)
			metricsCollector.BytesSent(uint64(sliceBytes))
			if last {
				metricsCollector.FrameSent(keyframe)
			}
			if keyframe && mqttPublisher != nil {
				firstKeyframeMu.Lock()
				alreadySent := firstKeyframeSent
				firstKeyframeSent = true
				firstKeyframeMu.Unlock()
				if !alreadySent {
					if err := mqttPublisher.PublishFirstKeyframe(mqtt.FirstKeyframeEvent{
						FrameIdx:  frameIdx,
						Timestamp: time.Now(),
					}); err != nil {
						log.Warn("failed to publish first keyframe event", logger.Error(err))
					}
				}
			}
		},
		OnPairingTransition: func(state, deviceType string) {
			metricsCollector.PairingSucceeded()
			if mqttPublisher != nil {
				if err := mqttPublisher.PublishPairingTransition(mqtt.PairingEvent{
					State:      state,
					DeviceType: deviceType,
					Timestamp:  time.Now(),
				}); err != nil {
					log.Warn("failed to publish pairing transition event", logger.Error(err))
				}
			}
		},
		OnDisconnect: func(reason string) {
			metricsCollector.PairingReset()
			if reason == "usb_reset" {
				metricsCollector.USBReset()
			}
			firstKeyframeMu.Lock()
			firstKeyframeSent = false
			firstKeyframeMu.Unlock()
			if mqttPublisher != nil {
				if err := mqttPublisher.PublishDisconnect(mqtt.DisconnectEvent{
					Reason:    reason,
					Timestamp: time.Now(),
				}); err != nil {
					log.Warn("failed to publish disconnect event", logger.Error(err))
				}
			}
		},
		OnClockSync: func(established bool, offsetNs int64) {
			metricsCollector.ClockUpdated(offsetNs)
			if mqttPublisher != nil {
				if err := mqttPublisher.PublishClockSync(mqtt.ClockSyncEvent{
					Established: established,
					OffsetNs:    offsetNs,
					Timestamp:   time.Now(),
				}); err != nil {
					log.Warn("failed to publish clock sync event", logger.Error(err))
				}
			}
		},
	}

	engine := host.New(log.WithComponent("host"), host.Config{
		Transport:    transport,
		HMD:          hmd,
		Video:        cfg.Video,
		PingInterval: time.Duration(cfg.Echo.PingIntervalMs) * time.Millisecond,
		StallTimeout: time.Duration(cfg.USB.StallTimeoutMs) * time.Millisecond,
		ReadTimeout:  time.Duration(cfg.USB.ReadTimeoutMs) * time.Millisecond,
		Hooks:        hooks,
	})

	var webServer *web.Server
	if cfg.Web.Enabled {
		webServer = web.NewServer(cfg.Web, log.WithComponent("web")).
			WithSession(engine, frameLog)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := webServer.Start(ctx); err != nil && err != context.Canceled {
				log.Error("Web server error", logger.Error(err))
			}
		}()
		log.Info("Web server started",
			logger.String("host", cfg.Web.Host),
			logger.Int("port", cfg.Web.Port))
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		engine.Run(ctx)
	}()

	log.Info("xrsp-host initialized",
		logger.Int("vendor_id", cfg.USB.VendorID),
		logger.Int("product_id", cfg.USB.ProductID))

	sig := <-sigChan
	log.Info("Received shutdown signal",
		logger.String("signal", sig.String()))

	cancel()

	if mqttPublisher != nil {
		mqttPublisher.Stop()
	}

	wg.Wait()

	log.Info("xrsp-host stopped")
}
