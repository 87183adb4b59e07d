package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// LoadEnvFile reads KEY=VALUE lines from path into the environment without
// overriding variables that are already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open env file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return fmt.Errorf("failed to set %s: %w", key, err)
		}
	}
	return scanner.Err()
}

// ApplyEnv overrides fields from environment variables.
func (c *Config) ApplyEnv() error {
	c.BaseDir = getEnv("BASE_DIR", c.BaseDir)

	c.Model.Backend = getEnv("DETECTOR_BACKEND", c.Model.Backend)
	c.Model.ModelPath = getEnv("MODEL_PATH", c.Model.ModelPath)
	c.Model.ModelDir = getEnv("MODEL_DIR", c.Model.ModelDir)
	c.Model.Endpoint = getEnv("DETECTOR_ENDPOINT", c.Model.Endpoint)

	var err error
	if c.Model.Timeout, err = getEnvSeconds("DETECTOR_TIMEOUT", c.Model.Timeout); err != nil {
		return err
	}
	if c.Model.ConfidenceThreshold, err = getEnvFloat("CONFIDENCE_THRESHOLD", c.Model.ConfidenceThreshold); err != nil {
		return err
	}
	if c.Model.PersonConfidenceThreshold, err = getEnvFloat("PERSON_CONFIDENCE_THRESHOLD", c.Model.PersonConfidenceThreshold); err != nil {
		return err
	}

	if c.Detection.CheckInterval, err = getEnvSeconds("CHECK_INTERVAL", c.Detection.CheckInterval); err != nil {
		return err
	}
	if c.Detection.AlertCooldown, err = getEnvSeconds("ALERT_COOLDOWN", c.Detection.AlertCooldown); err != nil {
		return err
	}
	if c.Detection.MinOverlapThreshold, err = getEnvFloat("MIN_OVERLAP_THRESHOLD", c.Detection.MinOverlapThreshold); err != nil {
		return err
	}
	c.Detection.TargetLabel = getEnv("TARGET_LABEL", c.Detection.TargetLabel)
	c.Detection.ReferenceLabel = getEnv("REFERENCE_LABEL", c.Detection.ReferenceLabel)
	c.Detection.BystanderLabel = getEnv("BYSTANDER_LABEL", c.Detection.BystanderLabel)
	c.Detection.BystanderPolicy = getEnv("BYSTANDER_POLICY", c.Detection.BystanderPolicy)
	c.Detection.TestMode = getEnvFlag("TEST_MODE", c.Detection.TestMode)
	if c.Detection.TestAlertEveryN, err = getEnvInt("TEST_ALERT_EVERY_N", c.Detection.TestAlertEveryN); err != nil {
		return err
	}

	c.Camera.Source = getEnv("CAMERA_SOURCE", c.Camera.Source)
	c.Camera.Path = getEnv("CAMERA_PATH", c.Camera.Path)
	if c.Camera.Width, err = getEnvInt("CAMERA_RESOLUTION_WIDTH", c.Camera.Width); err != nil {
		return err
	}
	if c.Camera.Height, err = getEnvInt("CAMERA_RESOLUTION_HEIGHT", c.Camera.Height); err != nil {
		return err
	}
	c.Camera.ImageDir = getEnv("IMAGE_DIR", c.Camera.ImageDir)
	c.Camera.SaveImages = getEnvFlag("SAVE_IMAGES", c.Camera.SaveImages)
	c.Camera.SaveDetectionImages = getEnvFlag("SAVE_DETECTION_IMAGES", c.Camera.SaveDetectionImages)
	c.Camera.DetectionImageDir = getEnv("DETECTION_IMAGE_DIR", c.Camera.DetectionImageDir)

	c.Logging.Level = getEnv("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnv("LOG_FORMAT", c.Logging.Format)
	c.Logging.File = getEnv("LOG_FILE", c.Logging.File)

	c.Audio.AlsaDevice = getEnv("ALSA_DEVICE", c.Audio.AlsaDevice)
	c.Audio.AlertSound = getEnv("ALERT_SOUND", c.Audio.AlertSound)
	c.Audio.AlertSoundDir = getEnv("ALERT_SOUND_DIR", c.Audio.AlertSoundDir)
	c.Audio.AplayQuiet = getEnvFlag("APLAY_QUIET", c.Audio.AplayQuiet)
	if c.Audio.AlertVolume, err = getEnvFloat("ALERT_VOLUME", c.Audio.AlertVolume); err != nil {
		return err
	}

	c.MQTT.Broker = getEnv("MQTT_BROKER", c.MQTT.Broker)
	c.MQTT.Username = getEnv("MQTT_USERNAME", c.MQTT.Username)
	c.MQTT.Password = getEnv("MQTT_PASSWORD", c.MQTT.Password)
	c.MQTT.Topic = getEnv("MQTT_TOPIC", c.MQTT.Topic)

	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.Stream = getEnv("REDIS_STREAM", c.Redis.Stream)

	c.Server.Addr = getEnv("HTTP_ADDR", c.Server.Addr)
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid number %q: %w", key, value, err)
	}
	return f, nil
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return n, nil
}

// getEnvSeconds accepts plain seconds ("10", "0.5") or Go durations ("10s").
func getEnvSeconds(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return d, nil
}

// getEnvFlag treats "1" and "true" as on, "0" and "false" as off.
func getEnvFlag(key string, defaultValue bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return defaultValue
	}
}
