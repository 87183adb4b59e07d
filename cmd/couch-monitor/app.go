package main

import (
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/couch-monitor/internal/alert"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/couch-monitor/internal/config"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/couch-monitor/internal/detector"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/couch-monitor/internal/evidence"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/couch-monitor/internal/logger"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/couch-monitor/internal/metrics"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/couch-monitor/internal/monitor"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/couch-monitor/internal/sink"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/couch-monitor/internal/source"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/couch-monitor/internal/webmonitor"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/couch-monitor/internal/webrtc"
)

const (
	sinkTimeout     = 30 * time.Second
	redisStreamSize = 1000
)

// app holds the wired components and everything that needs closing.
type app struct {
	monitor *monitor.Monitor
	metrics *metrics.Metrics
	status  *webmonitor.Server
	closers []func()
}

func newApp(cfg *config.Config) (*app, error) {
	a := &app{metrics: metrics.New()}

	src, err := newSource(cfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = src.Close() })

	det, err := newDetector(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	sinks, err := a.newSinks(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	options := []monitor.Option{monitor.WithMetrics(a.metrics)}

	var saver *evidence.Saver
	captureDir, detectionDir := "", ""
	if cfg.Camera.SaveImages {
		captureDir = cfg.Camera.ImageDir
	}
	if cfg.Camera.SaveDetectionImages {
		detectionDir = cfg.Camera.DetectionImageDir
	}
	if captureDir != "" || detectionDir != "" {
		saver, err = evidence.NewSaver(captureDir, detectionDir, cfg.Detection.ReferenceLabel)
		if err != nil {
			a.Close()
			return nil, err
		}
		options = append(options, monitor.WithEvidence(saver))
	}

	if cfg.Server.Addr != "" && cfg.Server.Addr != "off" {
		rtc := webrtc.NewServer(cfg.Server.StunServers, cfg.Server.MaxClients,
			cfg.Detection.TargetLabel, cfg.Detection.ReferenceLabel)
		sinks.Add(rtc)
		a.closers = append(a.closers, func() { _ = rtc.Close() })

		wcfg := webmonitor.DefaultConfig()
		wcfg.Addr = cfg.Server.Addr
		wcfg.Target = cfg.Detection.TargetLabel
		wcfg.Reference = cfg.Detection.ReferenceLabel
		wcfg.Interval = cfg.Detection.CheckInterval
		wcfg.Cooldown = cfg.Detection.AlertCooldown

		events := webmonitor.NewEventBroadcaster()
		state := webmonitor.NewState(wcfg, events)
		a.status = webmonitor.NewServer(wcfg, state, events, rtc, a.metrics.Handler())
		if saver != nil {
			a.status.SetEvidence(saver)
		}
		options = append(options, monitor.WithObserver(state))
	}

	testEvery := 0
	if cfg.Detection.TestMode {
		testEvery = max(cfg.Detection.TestAlertEveryN, 1)
		logger.Warn("Main", "Test mode: synthetic alert every %d cycle(s)", testEvery)
	}

	a.monitor = monitor.New(src, det, sinks, alert.NewEngine(cfg.Detection.AlertCooldown), monitor.Options{
		Interval:        cfg.Detection.CheckInterval,
		Target:          cfg.Detection.TargetLabel,
		Reference:       cfg.Detection.ReferenceLabel,
		Bystander:       cfg.Detection.BystanderLabel,
		TestAlertEveryN: testEvery,
		SaveCaptures:    captureDir != "",
		SaveDetections:  detectionDir != "",
	}, options...)

	return a, nil
}

// Close releases sink connections in reverse order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func newSource(cfg *config.Config) (*source.Resized, error) {
	src, err := source.Open(cfg.Camera.Source, cfg.Camera.Path, cfg.Model.Timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to open frame source: %w", err)
	}
	logger.Info("Main", "Frame source: %s (%s)", src.Name(), cfg.Camera.Path)
	return source.NewResized(src, cfg.Camera.Width, cfg.Camera.Height), nil
}

func newDetector(cfg *config.Config) (*detector.Detector, error) {
	det, err := detector.Open(cfg.Model.Backend, cfg.Model.Endpoint, cfg.Model.ModelPath, cfg.Model.Timeout,
		detector.ClassifierFor(cfg.Model, cfg.Detection))
	if err != nil {
		return nil, err
	}
	logger.Info("Main", "Detector backend: %s (%s, model %s)", det.Backend(), cfg.Model.Endpoint, cfg.Model.ModelPath)
	return det, nil
}

func (a *app) newSinks(cfg *config.Config) (*sink.Multi, error) {
	target, reference := cfg.Detection.TargetLabel, cfg.Detection.ReferenceLabel

	multi := sink.NewMulti(sinkTimeout, sink.Log{Target: target, Reference: reference})
	multi.OnError(func(name string, err error) {
		a.metrics.SinkErrors.Add(1)
		logger.Warn("Alert", "Sink %s failed: %v", name, err)
	})

	if cfg.Audio.Enabled {
		multi.Add(sink.NewAudio(sink.AudioConfig{
			Player:    cfg.Audio.Player,
			Device:    cfg.Audio.AlsaDevice,
			SoundFile: cfg.Audio.AlertSound,
			SoundDir:  cfg.Audio.AlertSoundDir,
			Quiet:     cfg.Audio.AplayQuiet,
			Volume:    cfg.Audio.AlertVolume,
		}))
	}

	if cfg.MQTT.Broker != "" {
		client, err := sink.NewMQTTClient(sink.MQTTOptions{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to MQTT broker: %w", err)
		}
		a.closers = append(a.closers, client.Disconnect)
		multi.Add(sink.NewMQTT(client, cfg.MQTT.Topic, cfg.MQTT.QoS, target, reference))
		logger.Info("Main", "MQTT alerts: %s topic %s", cfg.MQTT.Broker, cfg.MQTT.Topic)
	}

	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.closers = append(a.closers, func() { _ = client.Close() })
		multi.Add(sink.NewRedis(client, cfg.Redis.Stream, redisStreamSize, target, reference))
		logger.Info("Main", "Redis alerts: %s stream %s", cfg.Redis.Addr, cfg.Redis.Stream)
	}

	return multi, nil
}
