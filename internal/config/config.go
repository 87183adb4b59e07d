// Package config loads and validates the monitor configuration.
//
// Values come from DefaultConfig, then an optional YAML file, then the
// environment (optionally seeded from a .env file), then command-line flags
// applied by the caller. Validate must pass before the monitor starts.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/couch-monitor/pkg/types"
)

// Bystander policies.
const (
	BystanderLog      = "log"
	BystanderAlert    = "alert"
	BystanderSuppress = "suppress"
)

// ModelConfig selects and tunes the detection backend.
type ModelConfig struct {
	Backend                   string        `yaml:"backend"` // "remote" or "ollama"
	ModelPath                 string        `yaml:"model_path"`
	ModelDir                  string        `yaml:"model_dir"`
	Endpoint                  string        `yaml:"endpoint"`
	Timeout                   time.Duration `yaml:"timeout"`
	ConfidenceThreshold       float64       `yaml:"confidence_threshold"`
	PersonConfidenceThreshold float64       `yaml:"person_confidence_threshold"`
}

// DetectionConfig drives the decision core.
type DetectionConfig struct {
	CheckInterval       time.Duration `yaml:"check_interval"`
	AlertCooldown       time.Duration `yaml:"alert_cooldown"`
	MinOverlapThreshold float64       `yaml:"min_overlap_threshold"`
	TargetLabel         string        `yaml:"target_label"`
	ReferenceLabel      string        `yaml:"reference_label"`
	BystanderLabel      string        `yaml:"bystander_label"`
	BystanderPolicy     string        `yaml:"bystander_policy"`
	TestMode            bool          `yaml:"test_mode"`
	TestAlertEveryN     int           `yaml:"test_alert_every_n"`
}

// CameraConfig selects the frame source.
type CameraConfig struct {
	Source              string `yaml:"source"` // "file", "dir", "screen", "snapshot", "shm"
	Path                string `yaml:"path"`   // file, directory, URL or shm name
	Width               int    `yaml:"width"`
	Height              int    `yaml:"height"`
	ImageDir            string `yaml:"image_dir"`
	SaveImages          bool   `yaml:"save_images"`
	SaveDetectionImages bool   `yaml:"save_detection_images"`
	DetectionImageDir   string `yaml:"detection_image_dir"`
}

// LoggingConfig mirrors the logger options.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
	Color  bool   `yaml:"color"`
}

// AudioConfig configures the audio alert sink.
type AudioConfig struct {
	Enabled       bool    `yaml:"enabled"`
	Player        string  `yaml:"player"`
	AlsaDevice    string  `yaml:"alsa_device"`
	AlertSound    string  `yaml:"alert_sound"`
	AlertSoundDir string  `yaml:"alert_sound_dir"`
	AplayQuiet    bool    `yaml:"aplay_quiet"`
	AlertVolume   float64 `yaml:"alert_volume"`
}

// MQTTConfig configures the MQTT alert sink.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Topic    string `yaml:"topic"`
	QoS      byte   `yaml:"qos"`
}

// RedisConfig configures the Redis stream alert sink.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Stream   string `yaml:"stream"`
}

// ServerConfig configures the status HTTP server.
type ServerConfig struct {
	Addr        string   `yaml:"addr"`
	StunServers []string `yaml:"stun_servers"`
	MaxClients  int      `yaml:"max_clients"`
}

// Config is the full runtime configuration.
type Config struct {
	BaseDir   string          `yaml:"base_dir"`
	Model     ModelConfig     `yaml:"model"`
	Detection DetectionConfig `yaml:"detection"`
	Camera    CameraConfig    `yaml:"camera"`
	Logging   LoggingConfig   `yaml:"logging"`
	Audio     AudioConfig     `yaml:"audio"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Redis     RedisConfig     `yaml:"redis"`
	Server    ServerConfig    `yaml:"server"`
}

// DefaultConfig returns the production defaults for a Raspberry Pi install.
func DefaultConfig() *Config {
	return &Config{
		Model: ModelConfig{
			Backend:                   "remote",
			ModelPath:                 "yolov8n.pt",
			Endpoint:                  "http://localhost:8000/detect",
			Timeout:                   30 * time.Second,
			ConfidenceThreshold:       0.20,
			PersonConfidenceThreshold: 0.25,
		},
		Detection: DetectionConfig{
			CheckInterval:       10 * time.Second,
			AlertCooldown:       300 * time.Second,
			MinOverlapThreshold: 0.3,
			TargetLabel:         "dog",
			ReferenceLabel:      "couch",
			BystanderLabel:      "person",
			BystanderPolicy:     BystanderLog,
		},
		Camera: CameraConfig{
			Source: "file",
			Width:  640,
			Height: 480,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			File:   "logs/couch-nagger.log",
			Color:  true,
		},
		Audio: AudioConfig{
			Enabled:     true,
			Player:      "aplay",
			AlsaDevice:  "default",
			AlertSound:  "/usr/share/sounds/alsa/Front_Center.wav",
			AplayQuiet:  true,
			AlertVolume: 0.8,
		},
		MQTT: MQTTConfig{
			ClientID: "couch-monitor",
			Topic:    "couch-monitor/alerts",
			QoS:      1,
		},
		Redis: RedisConfig{
			Stream: "couch-monitor:alerts",
		},
		Server: ServerConfig{
			Addr:        ":8080",
			StunServers: []string{"stun:stun.l.google.com:19302"},
			MaxClients:  10,
		},
	}
}

// Load builds a Config from defaults, the optional YAML file at path, the
// optional env file and the process environment.
func Load(path, envFile string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if envFile != "" {
		if err := LoadEnvFile(envFile); err != nil {
			return nil, err
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	cfg.resolvePaths()

	return cfg, nil
}

// resolvePaths makes relative paths relative to BaseDir when it is set.
func (c *Config) resolvePaths() {
	if c.BaseDir == "" {
		return
	}
	resolve := func(p *string) {
		if *p == "" || filepath.IsAbs(*p) {
			return
		}
		*p = filepath.Join(c.BaseDir, *p)
	}
	resolve(&c.Model.ModelDir)
	resolve(&c.Logging.File)
	resolve(&c.Camera.ImageDir)
	resolve(&c.Camera.DetectionImageDir)
}

// Validate rejects settings the monitor cannot run with.
func (c *Config) Validate() error {
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		return &types.ConfigurationError{Field: "camera.width/height", Reason: "must be positive"}
	}
	if !inUnitRange(c.Model.ConfidenceThreshold) {
		return &types.ConfigurationError{Field: "model.confidence_threshold", Reason: "must be between 0 and 1"}
	}
	if !inUnitRange(c.Model.PersonConfidenceThreshold) {
		return &types.ConfigurationError{Field: "model.person_confidence_threshold", Reason: "must be between 0 and 1"}
	}
	if !inUnitRange(c.Detection.MinOverlapThreshold) {
		return &types.ConfigurationError{Field: "detection.min_overlap_threshold", Reason: "must be between 0 and 1"}
	}
	if c.Detection.CheckInterval <= 0 {
		return &types.ConfigurationError{Field: "detection.check_interval", Reason: "must be > 0"}
	}
	if c.Detection.AlertCooldown < 0 {
		return &types.ConfigurationError{Field: "detection.alert_cooldown", Reason: "must be >= 0"}
	}
	if c.Detection.TestAlertEveryN < 0 {
		return &types.ConfigurationError{Field: "detection.test_alert_every_n", Reason: "must be >= 0"}
	}
	if c.Detection.TargetLabel == "" || c.Detection.ReferenceLabel == "" {
		return &types.ConfigurationError{Field: "detection.target_label/reference_label", Reason: "must not be empty"}
	}
	if c.Detection.TargetLabel == c.Detection.ReferenceLabel {
		return &types.ConfigurationError{Field: "detection.reference_label", Reason: "must differ from the target label"}
	}
	switch c.Detection.BystanderPolicy {
	case BystanderLog, BystanderAlert, BystanderSuppress:
	default:
		return &types.ConfigurationError{
			Field:  "detection.bystander_policy",
			Reason: fmt.Sprintf("unknown policy %q (want log, alert or suppress)", c.Detection.BystanderPolicy),
		}
	}
	if c.Detection.BystanderPolicy != BystanderLog && c.Detection.BystanderLabel == "" {
		return &types.ConfigurationError{Field: "detection.bystander_label", Reason: "required by the bystander policy"}
	}
	if c.Audio.AlertVolume < 0 {
		return &types.ConfigurationError{Field: "audio.alert_volume", Reason: "must be >= 0"}
	}
	if c.Model.Timeout < 0 {
		return &types.ConfigurationError{Field: "model.timeout", Reason: "must be >= 0"}
	}
	return nil
}

func inUnitRange(v float64) bool {
	return v >= 0 && v <= 1
}
