package main

import (
	"context"
	"fmt"
	"image"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/couch-monitor/internal/alert"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/couch-monitor/internal/config"
)

func testConfig(t *testing.T, detections string) *config.Config {
	t.Helper()
	dir := t.TempDir()

	path := filepath.Join(dir, "frame.jpg")
	require.NoError(t, imaging.Save(imaging.New(640, 480, image.Black.C), path))

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(detections))
	}))
	t.Cleanup(backend.Close)

	cfg := config.DefaultConfig()
	cfg.Camera.Path = path
	cfg.Camera.SaveDetectionImages = true
	cfg.Camera.DetectionImageDir = filepath.Join(dir, "detections")
	cfg.Model.Endpoint = backend.URL
	cfg.Audio.Enabled = false
	cfg.Server.Addr = "off"
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestAppRunsCycleEndToEnd(t *testing.T) {
	cfg := testConfig(t, `{"detections":[
		{"class_name":"dog","confidence":0.9,"bbox":{"x":100,"y":100,"w":100,"h":100}},
		{"class_name":"couch","confidence":0.8,"bbox":{"x":50,"y":50,"w":400,"h":300}}
	]}`)

	a, err := newApp(cfg)
	require.NoError(t, err)
	defer a.Close()

	require.NotEmpty(t, a.closers, "frame source must be closed on shutdown")

	report := a.monitor.RunCycle(context.Background())
	require.False(t, report.Failed(), "cycle error: %v", report.Err)
	assert.Equal(t, alert.Alert, report.Decision.Action)
	assert.NotEmpty(t, report.Evidence)
	assert.Equal(t, uint64(1), a.metrics.AlertsEmitted.Load())

	// Still on the couch, but inside the cooldown.
	report = a.monitor.RunCycle(context.Background())
	assert.Equal(t, alert.Suppressed, report.Decision.Action)
}

func TestAppStatusServerWired(t *testing.T) {
	cfg := testConfig(t, `{"detections":[]}`)
	cfg.Server.Addr = "127.0.0.1:0"

	a, err := newApp(cfg)
	require.NoError(t, err)
	defer a.Close()
	require.NotNil(t, a.status)

	a.monitor.RunCycle(context.Background())

	ts := httptest.NewServer(a.status.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNewDetectorRejectsUnknownBackend(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Model.Backend = "tflite"

	_, err := newDetector(cfg)
	assert.ErrorContains(t, err, "unknown detector backend")
}

func TestRunOnceReturnsExitCodeAndFlushesLog(t *testing.T) {
	dir := t.TempDir()
	framePath := filepath.Join(dir, "frame.jpg")
	require.NoError(t, imaging.Save(imaging.New(64, 48, image.Black.C), framePath))

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"detections":[]}`))
	}))
	defer backend.Close()

	logPath := filepath.Join(dir, "logs", "monitor.log")
	cfgPath := filepath.Join(dir, "config.yaml")
	yaml := fmt.Sprintf(`model:
  endpoint: %s
camera:
  source: file
  path: %s
audio:
  enabled: false
server:
  addr: "off"
logging:
  level: info
  file: %s
  color: false
`, backend.URL, framePath, logPath)
	require.NoError(t, os.WriteFile(cfgPath, []byte(yaml), 0o644))

	*configPath, *envFile, *once = cfgPath, "", true
	defer func() { *configPath, *envFile, *once = "", ".env", false }()

	assert.Equal(t, 0, run())

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Cycle done")
}

func TestRunReportsConfigErrors(t *testing.T) {
	*configPath, *envFile = filepath.Join(t.TempDir(), "missing.yaml"), ""
	defer func() { *configPath, *envFile = "", ".env" }()

	assert.Equal(t, 1, run())
}
